// Package engine runs compiled workflows: it interprets the step tree
// against a per-run environment, gates email capabilities behind account
// authorization and streams ordered output events to the caller.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arnavsurve/agentblocks/pkg/capability"
	"github.com/arnavsurve/agentblocks/pkg/gate"
	"github.com/arnavsurve/agentblocks/pkg/log"
	"github.com/arnavsurve/agentblocks/pkg/metrics"
	"github.com/arnavsurve/agentblocks/pkg/types"
)

// ErrRunInProgress is returned when Execute is called while another run on
// the same executor has not finished.
var ErrRunInProgress = errors.New("a workflow run is already in progress on this executor")

// Result is the outcome of one Execute call. Output holds every event the
// run produced, including on failure.
type Result struct {
	Success   bool           `json:"success"`
	Output    []OutputEvent  `json:"output"`
	Error     string         `json:"error,omitempty"`
	Variables map[string]any `json:"-"`
	Err       error          `json:"-"`
}

// WorkflowExecutor owns one capability gate and runs at most one workflow
// at a time. Use separate executors for concurrent runs.
type WorkflowExecutor struct {
	client  capability.Client
	gate    *gate.Gate
	logger  types.Logger
	metrics *metrics.Collector
	now     func() time.Time

	running sync.Mutex
}

type Option func(*WorkflowExecutor)

// WithGate replaces the gate the executor builds for itself. When metrics
// are configured the executor adds its wait observer to g as well.
func WithGate(g *gate.Gate) Option {
	return func(e *WorkflowExecutor) {
		if g != nil {
			e.gate = g
		}
	}
}

func WithLogger(logger types.Logger) Option {
	return func(e *WorkflowExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(e *WorkflowExecutor) {
		e.metrics = m
	}
}

// WithClock replaces the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *WorkflowExecutor) {
		if now != nil {
			e.now = now
		}
	}
}

func NewWorkflowExecutor(client capability.Client, opts ...Option) *WorkflowExecutor {
	e := &WorkflowExecutor{
		client: client,
		logger: log.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.gate == nil {
		e.gate = gate.New(gate.WithLogger(e.logger))
	}
	if e.metrics != nil {
		m := e.metrics
		e.gate.AddWaitObserver(func(outcome string, waited time.Duration) {
			m.ObserveGateWait(outcome, waited.Seconds())
		})
	}
	return e
}

// Gate returns the executor's capability gate, for the caller to register
// the authorization hook and report connection status.
func (e *WorkflowExecutor) Gate() *gate.Gate {
	return e.gate
}

// Execute runs steps with a fresh environment seeded from inputData.
// onOutput, when set, receives the full event log after every append.
func (e *WorkflowExecutor) Execute(ctx context.Context, steps []types.Step, inputData map[string]any, onOutput Listener) Result {
	if !e.running.TryLock() {
		e.metrics.RecordRun("rejected")
		return Result{Success: false, Output: []OutputEvent{}, Error: ErrRunInProgress.Error(), Err: ErrRunInProgress}
	}
	defer e.running.Unlock()

	start := time.Now()
	output := NewEventLog(onOutput, e.now)
	output.onAppend = func(ev OutputEvent) {
		e.metrics.RecordOutputEvent(string(ev.Kind))
	}
	env := NewEnvironment(inputData, output)

	in := &interpreter{
		env:     env,
		client:  e.client,
		gate:    e.gate,
		logger:  e.logger,
		metrics: e.metrics,
	}

	e.logger.Info().Int("steps", len(steps)).Msg("Starting workflow execution")

	err := e.interpret(ctx, in, steps)
	if err != nil {
		e.logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Workflow execution failed")
		e.appendTerminal(output, KindError, "Execution error: "+err.Error())
		e.metrics.RecordRun("failure")
		return Result{
			Success:   false,
			Output:    output.Events(),
			Error:     err.Error(),
			Variables: env.Variables(),
			Err:       err,
		}
	}

	e.appendTerminal(output, KindSuccess, "Workflow completed successfully!")
	e.metrics.RecordRun("success")
	e.logger.Info().Dur("duration", time.Since(start)).Int("events", output.Len()).Msg("Workflow execution completed")
	return Result{
		Success:   true,
		Output:    output.Events(),
		Variables: env.Variables(),
	}
}

// interpret emits the start event and runs the steps, converting a panic
// (from a step or from the listener) into a run failure.
func (e *WorkflowExecutor) interpret(ctx context.Context, in *interpreter, steps []types.Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	in.emit(KindLog, "Starting workflow execution...", nil)
	return in.run(ctx, steps)
}

// appendTerminal records the run's last event. The outcome is already
// decided, so a listener panic here is logged and dropped.
func (e *WorkflowExecutor) appendTerminal(output *EventLog, kind EventKind, content string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Str("event", string(kind)).Msg("Output listener panicked on the terminal event")
		}
	}()
	output.Append(kind, content, nil)
}

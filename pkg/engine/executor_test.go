package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arnavsurve/agentblocks/pkg/capability"
	"github.com/arnavsurve/agentblocks/pkg/engine"
	"github.com/arnavsurve/agentblocks/pkg/gate"
	"github.com/arnavsurve/agentblocks/pkg/metrics"
	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authorizedGate() *gate.Gate {
	g := gate.New()
	g.SetAuthorized(true)
	return g
}

func kinds(events []engine.OutputEvent) []engine.EventKind {
	out := make([]engine.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func ofKind(events []engine.OutputEvent, kind engine.EventKind) []engine.OutputEvent {
	var out []engine.OutputEvent
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func indexOf(events []engine.OutputEvent, kind engine.EventKind) int {
	for i, ev := range events {
		if ev.Kind == kind {
			return i
		}
	}
	return -1
}

func fetchStep(result string, max int) types.Step {
	return types.Step{Kind: types.StepCallCapability, Call: &types.CapabilityCall{
		Capability: types.CapabilityFetchEmails, Result: result, Max: max,
	}}
}

func TestExecute_GenerateReplyScenario(t *testing.T) {
	client := newFakeClient()
	client.text = "Thanks, checking now."

	steps := []types.Step{
		{Kind: types.StepLog, Message: types.Lit("start")},
		{Kind: types.StepCallCapability, Call: &types.CapabilityCall{
			Capability: types.CapabilityGenerateText,
			Input:      types.Input("emailBody"),
			Task:       types.Lit("draft a reply"),
			Result:     "reply",
		}},
		{Kind: types.StepOutput, Value: types.Var("reply")},
	}

	exec := engine.NewWorkflowExecutor(client)
	res := exec.Execute(context.Background(), steps, map[string]any{"emailBody": "order #12345 not shipped"}, nil)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, []engine.EventKind{
		engine.KindLog, engine.KindLog, engine.KindAIResult, engine.KindResult, engine.KindSuccess,
	}, kinds(res.Output))
	assert.Equal(t, "start", res.Output[1].Content)

	ai := res.Output[2]
	assert.Equal(t, "Thanks, checking now.", ai.Content)
	assert.Equal(t, 21, ai.Metadata["length"])
	assert.Equal(t, "Thanks, checking now.", res.Output[3].Content)

	assert.Equal(t, [][2]string{{"order #12345 not shipped", "draft a reply"}}, client.prompts)
	assert.Equal(t, int64(1), client.AICalls())
	assert.Equal(t, "Thanks, checking now.", res.Variables["reply"])
	assert.Equal(t, "order #12345 not shipped", res.Variables["emailBody"])
	assert.False(t, exec.Gate().Authorized(), "generate_text is not gated")
}

func TestExecute_FetchWaitsForAuthorization(t *testing.T) {
	client := newFakeClient()
	client.emails = []types.Email{{ID: "m1", From: "ada@example.com", Subject: "Hi", Body: "Hello"}}

	g := gate.New(gate.WithTimeout(2*time.Second), gate.WithPollInterval(10*time.Millisecond))
	g.SetHook(func(ctx context.Context) error {
		time.AfterFunc(200*time.Millisecond, func() { g.SetAuthorized(true) })
		return nil
	})

	exec := engine.NewWorkflowExecutor(client, engine.WithGate(g))
	res := exec.Execute(context.Background(), []types.Step{fetchStep("emails", 0)}, nil, nil)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, gate.Authorized, g.State())

	fetched := indexOf(res.Output, engine.KindSuccess)
	require.Greater(t, fetched, 0)
	warnings := ofKind(res.Output[:fetched], engine.KindWarning)
	assert.Len(t, warnings, 1)
	assert.Less(t, indexOf(res.Output, engine.KindWarning), fetched)
}

func TestExecute_SendReplyFailureAborts(t *testing.T) {
	client := newFakeClient()
	client.sendErr = capability.NewError(capability.OpSendReply, "quota exceeded", nil)

	steps := []types.Step{
		{Kind: types.StepSetVariable, Name: "stage", Value: types.Lit("replying")},
		{Kind: types.StepForEachEmail, List: "emails", Body: []types.Step{
			{Kind: types.StepCallCapability, Call: &types.CapabilityCall{
				Capability: types.CapabilitySendReply,
				Body:       types.Lit("We are looking into your order right now."),
			}},
			{Kind: types.StepLog, Message: types.Lit("after send")},
		}},
		{Kind: types.StepLog, Message: types.Lit("never")},
	}
	input := map[string]any{"emails": []types.Email{
		{ID: "m1", ThreadID: "t1", From: "ada@example.com", Subject: "Order"},
		{ID: "m2", From: "grace@example.com", Subject: "Order"},
	}}

	exec := engine.NewWorkflowExecutor(client, engine.WithGate(authorizedGate()))
	res := exec.Execute(context.Background(), steps, input, nil)

	require.False(t, res.Success)
	assert.Contains(t, res.Error, "quota exceeded")

	var capErr *capability.Error
	require.True(t, errors.As(res.Err, &capErr))
	assert.Equal(t, capability.OpSendReply, capErr.Operation)

	n := len(res.Output)
	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, engine.KindEmailSending, res.Output[n-2].Kind)
	assert.Equal(t, engine.KindError, res.Output[n-1].Kind)
	assert.Equal(t, "Execution error: quota exceeded", res.Output[n-1].Content)
	assert.Len(t, ofKind(res.Output, engine.KindError), 1)

	for _, ev := range res.Output {
		assert.NotEqual(t, "after send", ev.Content)
		assert.NotEqual(t, "never", ev.Content)
	}

	require.Len(t, client.sent, 1)
	assert.Equal(t, "m1", client.sent[0].EmailID)
	assert.Equal(t, "t1", client.sent[0].ThreadID)
	assert.Equal(t, "Order", client.sent[0].Subject)
	assert.Equal(t, "ada@example.com", client.sent[0].To)

	assert.Equal(t, "replying", res.Variables["stage"], "bindings survive a failed run")
}

func TestExecute_AuthorizationTimeoutFailsRun(t *testing.T) {
	client := newFakeClient()
	g := gate.New(
		gate.WithTimeout(50*time.Millisecond),
		gate.WithPollInterval(5*time.Millisecond),
		gate.WithHook(func(ctx context.Context) error { return nil }),
	)

	steps := []types.Step{
		fetchStep("emails", 0),
		{Kind: types.StepLog, Message: types.Lit("never")},
	}
	res := engine.NewWorkflowExecutor(client, engine.WithGate(g)).Execute(context.Background(), steps, nil, nil)

	require.False(t, res.Success)
	assert.ErrorIs(t, res.Err, gate.ErrAuthorizationTimeout)
	assert.Equal(t, gate.TimedOut, g.State())
	assert.Equal(t, 0, client.fetchCalls)
	assert.Equal(t, []engine.EventKind{engine.KindLog, engine.KindWarning, engine.KindError}, kinds(res.Output))
}

func TestExecute_NoAuthorizationHookFailsRun(t *testing.T) {
	res := engine.NewWorkflowExecutor(newFakeClient()).Execute(context.Background(), []types.Step{fetchStep("emails", 0)}, nil, nil)

	require.False(t, res.Success)
	assert.ErrorIs(t, res.Err, gate.ErrNoAuthorizationHook)
}

func TestExecute_TimestampsNonDecreasing(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	offsets := []time.Duration{0, 5 * time.Second, 2 * time.Second, 7 * time.Second, time.Second}
	i := 0
	clock := func() time.Time {
		ts := base.Add(offsets[i%len(offsets)])
		i++
		return ts
	}

	steps := []types.Step{
		{Kind: types.StepLog, Message: types.Lit("a")},
		{Kind: types.StepLog, Message: types.Lit("b")},
		{Kind: types.StepLog, Message: types.Lit("c")},
	}
	res := engine.NewWorkflowExecutor(newFakeClient(), engine.WithClock(clock)).Execute(context.Background(), steps, nil, nil)

	require.Len(t, res.Output, 5)
	for j := 1; j < len(res.Output); j++ {
		assert.False(t, res.Output[j].Timestamp.Before(res.Output[j-1].Timestamp), "event %d went back in time", j)
	}
	assert.Equal(t, base.Add(5*time.Second), res.Output[2].Timestamp)
}

func TestExecute_ListenerSeesEveryAppendInOrder(t *testing.T) {
	var snapshots [][]engine.OutputEvent
	listener := func(events []engine.OutputEvent) {
		snapshots = append(snapshots, events)
	}

	steps := []types.Step{
		{Kind: types.StepLog, Message: types.Lit("one")},
		{Kind: types.StepOutput, Value: types.Lit("two")},
	}
	res := engine.NewWorkflowExecutor(newFakeClient()).Execute(context.Background(), steps, nil, listener)

	require.Len(t, snapshots, len(res.Output))
	for i, snap := range snapshots {
		require.Len(t, snap, i+1)
		assert.Equal(t, res.Output[:i+1], snap)
	}

	snapshots[0][0].Content = "mutated"
	assert.Equal(t, "Starting workflow execution...", res.Output[0].Content)
}

func TestExecute_RejectsConcurrentRun(t *testing.T) {
	exec := engine.NewWorkflowExecutor(newFakeClient())

	var nested engine.Result
	called := false
	listener := func(events []engine.OutputEvent) {
		if called {
			return
		}
		called = true
		nested = exec.Execute(context.Background(), nil, nil, nil)
	}

	res := exec.Execute(context.Background(), []types.Step{{Kind: types.StepLog, Message: types.Lit("x")}}, nil, listener)
	require.True(t, res.Success)

	assert.False(t, nested.Success)
	assert.ErrorIs(t, nested.Err, engine.ErrRunInProgress)
	assert.Empty(t, nested.Output)

	again := exec.Execute(context.Background(), nil, nil, nil)
	assert.True(t, again.Success, "the executor is reusable once the run finishes")
}

func TestExecute_FreshEnvironmentPerRun(t *testing.T) {
	exec := engine.NewWorkflowExecutor(newFakeClient())

	first := exec.Execute(context.Background(), []types.Step{
		{Kind: types.StepSetVariable, Name: "leak", Value: types.Lit("yes")},
	}, nil, nil)
	require.True(t, first.Success)

	second := exec.Execute(context.Background(), []types.Step{
		{Kind: types.StepOutput, Value: types.Var("leak")},
	}, nil, nil)
	require.True(t, second.Success)
	assert.Equal(t, "", ofKind(second.Output, engine.KindResult)[0].Content)
	assert.NotContains(t, second.Variables, "leak")
}

func TestExecute_InputIsNotMutated(t *testing.T) {
	input := map[string]any{"name": "original"}
	steps := []types.Step{
		{Kind: types.StepSetVariable, Name: "name", Value: types.Lit("changed")},
		{Kind: types.StepOutput, Value: types.Input("name")},
		{Kind: types.StepOutput, Value: types.Var("name")},
	}
	res := engine.NewWorkflowExecutor(newFakeClient()).Execute(context.Background(), steps, input, nil)

	results := ofKind(res.Output, engine.KindResult)
	require.Len(t, results, 2)
	assert.Equal(t, "original", results[0].Content)
	assert.Equal(t, "changed", results[1].Content)
	assert.Equal(t, "original", input["name"])
}

func TestExecute_RecoversFromPanic(t *testing.T) {
	client := newFakeClient()
	client.genPanic = "provider exploded"

	steps := []types.Step{{Kind: types.StepCallCapability, Call: &types.CapabilityCall{
		Capability: types.CapabilityGenerateText, Input: types.Lit("x"), Task: types.Lit("y"),
	}}}
	res := engine.NewWorkflowExecutor(client).Execute(context.Background(), steps, nil, nil)

	require.False(t, res.Success)
	assert.Contains(t, res.Error, "provider exploded")
	assert.Equal(t, engine.KindError, res.Output[len(res.Output)-1].Kind)
}

func TestExecute_RecordsMetrics(t *testing.T) {
	m := metrics.NewCollector()
	client := newFakeClient()
	client.text = "ok"

	steps := []types.Step{{Kind: types.StepCallCapability, Call: &types.CapabilityCall{
		Capability: types.CapabilityGenerateText, Input: types.Lit("x"), Task: types.Lit("y"),
	}}}
	res := engine.NewWorkflowExecutor(client, engine.WithMetrics(m)).Execute(context.Background(), steps, nil, nil)
	require.True(t, res.Success)

	count, err := testutil.GatherAndCount(m.Registry(), "agentblocks_runs_total", "agentblocks_capability_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(m.Registry(), "agentblocks_output_events_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "log, ai-result and success")
}

func TestExecute_ListenerCannotAlterEmittedEvents(t *testing.T) {
	client := newFakeClient()
	client.text = "hello"

	steps := []types.Step{{Kind: types.StepCallCapability, Call: &types.CapabilityCall{
		Capability: types.CapabilityGenerateText, Input: types.Lit("x"), Task: types.Lit("y"),
	}}}

	var later []engine.OutputEvent
	listener := func(events []engine.OutputEvent) {
		for _, ev := range events {
			if ev.Metadata != nil {
				ev.Metadata["length"] = -1
			}
		}
		later = events
	}

	res := engine.NewWorkflowExecutor(client).Execute(context.Background(), steps, nil, listener)
	require.True(t, res.Success)

	results := ofKind(res.Output, engine.KindAIResult)
	require.Len(t, results, 1)
	assert.Equal(t, 5, results[0].Metadata["length"])
	assert.Equal(t, "hello", results[0].Metadata["result"])

	// The last snapshot was mutated by the listener itself; the run's copy was not.
	require.NotEmpty(t, later)
	assert.Equal(t, -1, ofKind(later, engine.KindAIResult)[0].Metadata["length"])
}

func TestExecute_PanickingListenerDoesNotEscape(t *testing.T) {
	tests := []struct {
		name       string
		panicsFrom int
	}{
		{"every call", 1},
		{"after the first call", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			listener := func(events []engine.OutputEvent) {
				calls++
				if calls >= tt.panicsFrom {
					panic("boom again")
				}
			}
			steps := []types.Step{{Kind: types.StepLog, Message: types.Lit("hi")}}

			var res engine.Result
			require.NotPanics(t, func() {
				res = engine.NewWorkflowExecutor(newFakeClient()).Execute(context.Background(), steps, nil, listener)
			})

			require.False(t, res.Success)
			assert.Contains(t, res.Error, "boom again")
			require.NotEmpty(t, res.Output)
			assert.Equal(t, engine.KindLog, res.Output[0].Kind)
			assert.Equal(t, engine.KindError, res.Output[len(res.Output)-1].Kind)
		})
	}
}

func TestExecute_RecordsGateWaitOnSuppliedGate(t *testing.T) {
	m := metrics.NewCollector()
	var outcomes []string
	g := gate.New(gate.WithWaitObserver(func(o string, _ time.Duration) { outcomes = append(outcomes, o) }))

	exec := engine.NewWorkflowExecutor(newFakeClient(), engine.WithGate(g), engine.WithMetrics(m))
	res := exec.Execute(context.Background(), []types.Step{fetchStep("emails", 0)}, nil, nil)
	require.False(t, res.Success)

	count, err := testutil.GatherAndCount(m.Registry(), "agentblocks_gate_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"error"}, outcomes, "caller's own observer is kept")
}

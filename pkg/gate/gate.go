// Package gate mediates access to the email capability. Steps that need the
// email account call EnsureAuthorized, which prompts the caller through a
// hook and waits, within a bounded budget, for the account to be connected.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arnavsurve/agentblocks/pkg/log"
	"github.com/arnavsurve/agentblocks/pkg/types"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

// State is the position of the gate in its connect-and-wait protocol.
type State int

const (
	Unauthorized State = iota
	PromptPending
	Waiting
	Authorized
	TimedOut
)

func (s State) String() string {
	switch s {
	case Unauthorized:
		return "unauthorized"
	case PromptPending:
		return "prompt_pending"
	case Waiting:
		return "waiting"
	case Authorized:
		return "authorized"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrAuthorizationTimeout matches any AuthorizationTimeoutError.
	ErrAuthorizationTimeout = errors.New("authorization timeout")

	// ErrNoAuthorizationHook is returned when authorization is needed but
	// the caller never registered a hook to drive the connect flow.
	ErrNoAuthorizationHook = errors.New("email account not connected and no authorization hook is registered")
)

// AuthorizationTimeoutError reports that the wait budget elapsed before the
// account was connected.
type AuthorizationTimeoutError struct {
	Waited time.Duration
}

func (e *AuthorizationTimeoutError) Error() string {
	return fmt.Sprintf("email connection timed out after %s - please connect your email account", e.Waited.Round(time.Millisecond))
}

func (e *AuthorizationTimeoutError) Is(target error) bool {
	return target == ErrAuthorizationTimeout
}

// Hook drives the external account-connect flow. It may block until the
// flow finishes or return immediately and call SetAuthorized later from
// another goroutine. ctx expires with the gate's wait budget.
type Hook func(ctx context.Context) error

// WaitObserver is notified once per completed wait with its outcome
// ("authorized", "timeout" or "error").
type WaitObserver func(outcome string, waited time.Duration)

type Gate struct {
	mu           sync.Mutex
	state        State
	hook         Hook
	timeout      time.Duration
	pollInterval time.Duration
	logger       types.Logger
	observers    []WaitObserver
}

type Option func(*Gate)

func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.pollInterval = d
		}
	}
}

func WithLogger(logger types.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithHook(hook Hook) Option {
	return func(g *Gate) {
		g.hook = hook
	}
}

func WithWaitObserver(o WaitObserver) Option {
	return func(g *Gate) {
		if o != nil {
			g.observers = append(g.observers, o)
		}
	}
}

func New(opts ...Option) *Gate {
	g := &Gate{
		state:        Unauthorized,
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
		logger:       log.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetHook registers the function invoked when authorization is required.
func (g *Gate) SetHook(hook Hook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hook = hook
}

// AddWaitObserver registers o in addition to any observers already set.
func (g *Gate) AddWaitObserver(o WaitObserver) {
	if o == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, o)
}

// SetAuthorized records the caller's view of the account connection.
func (g *Gate) SetAuthorized(authorized bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if authorized {
		g.state = Authorized
		return
	}
	if g.state == Authorized {
		g.state = Unauthorized
	}
}

func (g *Gate) Authorized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == Authorized
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) Timeout() time.Duration {
	return g.timeout
}

func (g *Gate) setState(s State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
}

// EnsureAuthorized returns immediately when the account is connected.
// Otherwise it reports a warning through warn, invokes the hook and polls
// until SetAuthorized(true) is observed or the timeout elapses.
func (g *Gate) EnsureAuthorized(ctx context.Context, warn func(string)) error {
	g.mu.Lock()
	if g.state == Authorized {
		g.mu.Unlock()
		return nil
	}
	g.state = PromptPending
	hook := g.hook
	g.mu.Unlock()

	if warn != nil {
		warn("Email connection required")
	}

	if hook == nil {
		g.setState(Unauthorized)
		g.observe("error", 0)
		return ErrNoAuthorizationHook
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	g.logger.Info().Dur("timeout", g.timeout).Msg("Prompting for email account connection")
	if err := hook(waitCtx); err != nil {
		if g.Authorized() {
			return nil
		}
		g.setState(Unauthorized)
		g.observe("error", time.Since(start))
		return fmt.Errorf("authorization hook: %w", err)
	}

	g.mu.Lock()
	if g.state == Authorized {
		g.mu.Unlock()
		g.observe("authorized", time.Since(start))
		return nil
	}
	g.state = Waiting
	g.mu.Unlock()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if g.Authorized() {
				waited := time.Since(start)
				g.logger.Info().Dur("waited", waited).Msg("Email account connected")
				g.observe("authorized", waited)
				return nil
			}
		case <-waitCtx.Done():
			// A connection that lands on the deadline still counts.
			if g.Authorized() {
				g.observe("authorized", time.Since(start))
				return nil
			}
			waited := time.Since(start)
			g.setState(TimedOut)
			g.observe("timeout", waited)
			if ctx.Err() != nil {
				return fmt.Errorf("waiting for email authorization: %w", ctx.Err())
			}
			g.logger.Warn().Dur("waited", waited).Msg("Timed out waiting for email account connection")
			return &AuthorizationTimeoutError{Waited: waited}
		}
	}
}

func (g *Gate) observe(outcome string, waited time.Duration) {
	g.mu.Lock()
	observers := append([]WaitObserver(nil), g.observers...)
	g.mu.Unlock()
	for _, o := range observers {
		o(outcome, waited)
	}
}

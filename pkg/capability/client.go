// Package capability defines the client the engine uses to reach external
// email and text-generation capabilities, and a registry of providers that
// implement it.
package capability

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/arnavsurve/agentblocks/pkg/types"
)

// Operation names used in Error.Operation.
const (
	OpFetchUnreadEmails = "fetch_emails"
	OpGenerateText      = "generate_text"
	OpSendReply         = "send_reply"
	OpMarkRead          = "mark_read"
	OpEmailStatus       = "email_status"
)

// Client performs one round-trip per call with no retries.
type Client interface {
	FetchUnreadEmails(ctx context.Context) ([]types.Email, error)
	GenerateText(ctx context.Context, input, task string) (string, error)
	SendReply(ctx context.Context, req types.ReplyRequest) (*types.SendResult, error)
	MarkRead(ctx context.Context, emailID string) (bool, error)
	EmailStatus(ctx context.Context) (types.AccountStatus, error)

	// AICalls is the number of GenerateText calls made through this client.
	AICalls() int64
}

// Error is a failed capability call. Message is the provider's message,
// unmodified, and is what Error returns.
type Error struct {
	Operation string
	Message   string
	Err       error
}

func NewError(op, message string, err error) *Error {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &Error{Operation: op, Message: message, Err: err}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsError reports whether err is, or wraps, a capability Error.
func IsError(err error) bool {
	var capErr *Error
	return errors.As(err, &capErr)
}

// CallCounter counts AI calls. Providers embed it to satisfy Client.AICalls.
type CallCounter struct {
	n atomic.Int64
}

func (c *CallCounter) CountAICall() int64 {
	return c.n.Add(1)
}

func (c *CallCounter) AICalls() int64 {
	return c.n.Load()
}

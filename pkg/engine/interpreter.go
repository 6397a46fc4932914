package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arnavsurve/agentblocks/pkg/capability"
	"github.com/arnavsurve/agentblocks/pkg/gate"
	"github.com/arnavsurve/agentblocks/pkg/metrics"
	"github.com/arnavsurve/agentblocks/pkg/types"
)

const (
	previewLength      = 100
	replyPreviewLength = 200
)

var errNoClient = errors.New("no capability client configured")

// interpreter walks a step tree depth-first against one Environment.
type interpreter struct {
	env     *Environment
	client  capability.Client
	gate    *gate.Gate
	logger  types.Logger
	metrics *metrics.Collector
}

func (in *interpreter) emit(kind EventKind, content string, metadata map[string]any) {
	in.env.Output().Append(kind, content, metadata)
}

func (in *interpreter) malformed(step, reason string) {
	err := &MalformedStepError{Step: step, Reason: reason}
	in.logger.Debug().Err(err).Str("step", step).Msg("Resolved malformed reference to empty value")
}

func (in *interpreter) run(ctx context.Context, steps []types.Step) error {
	for i := range steps {
		if err := in.exec(ctx, &steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func (in *interpreter) exec(ctx context.Context, step *types.Step) error {
	label := step.Label()

	switch step.Kind {
	case types.StepLog:
		in.emit(KindLog, in.evalText(label, step.Message), nil)
	case types.StepOutput:
		in.emit(KindResult, in.evalText(label, step.Value), nil)
	case types.StepSetVariable:
		in.env.Set(step.Name, in.eval(label, step.Value))
		in.logger.Debug().Str("step", label).Str("variable", step.Name).Msg("Variable set")
	case types.StepConditional:
		return in.conditional(ctx, step)
	case types.StepForEachEmail:
		return in.forEachEmail(ctx, step)
	case types.StepCallCapability:
		return in.callCapability(ctx, step)
	default:
		in.malformed(label, fmt.Sprintf("unknown step kind %q", step.Kind))
	}
	return nil
}

func (in *interpreter) conditional(ctx context.Context, step *types.Step) error {
	text := in.evalText(step.Label(), step.Text)
	if !strings.Contains(strings.ToLower(text), strings.ToLower(step.Keyword)) {
		return nil
	}
	in.emit(KindLog, fmt.Sprintf("Keyword '%s' found, executing conditional steps...", step.Keyword), nil)
	return in.run(ctx, step.Body)
}

func (in *interpreter) forEachEmail(ctx context.Context, step *types.Step) error {
	value, _ := in.env.Get(step.List)
	items, ok := asList(value)
	if !ok {
		in.emit(KindWarning, fmt.Sprintf("%s is not a list, skipping loop", step.List), nil)
		return nil
	}

	for _, item := range items {
		err := in.env.withItem(item, func() error {
			in.emit(KindLog, "Processing email from: "+fieldText(item, "from"), nil)
			return in.run(ctx, step.Body)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (in *interpreter) callCapability(ctx context.Context, step *types.Step) error {
	call := step.Call
	if call == nil {
		in.malformed(step.Label(), "call_capability step has no 'call'")
		return nil
	}

	switch call.Capability {
	case types.CapabilityFetchEmails:
		return in.fetchEmails(ctx, step.Label(), call)
	case types.CapabilityGenerateText:
		return in.generateText(ctx, step.Label(), call)
	case types.CapabilitySendReply:
		return in.sendReply(ctx, step.Label(), call)
	case types.CapabilityMarkRead:
		return in.markRead(ctx, step.Label(), call)
	default:
		in.malformed(step.Label(), fmt.Sprintf("unknown capability %q", call.Capability))
		return nil
	}
}

// authorize consults the gate for capabilities that need the email account
// and is a no-op for the rest.
func (in *interpreter) authorize(ctx context.Context, kind types.CapabilityKind) error {
	if !kind.RequiresAuthorization() {
		return nil
	}
	return in.gate.EnsureAuthorized(ctx, func(msg string) {
		in.emit(KindWarning, msg, nil)
	})
}

func (in *interpreter) bind(call *types.CapabilityCall, value any) {
	if call.Result != "" {
		in.env.Set(call.Result, value)
	}
}

func (in *interpreter) record(kind types.CapabilityKind, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	in.metrics.RecordCapabilityCall(string(kind), status)
}

func (in *interpreter) fetchEmails(ctx context.Context, label string, call *types.CapabilityCall) error {
	if err := in.authorize(ctx, call.Capability); err != nil {
		return err
	}

	in.emit(KindLog, "Fetching unread emails...", nil)

	emails, err := in.fetch(ctx)
	in.record(call.Capability, err)
	if err != nil {
		in.logger.Warn().Err(err).Str("step", label).Msg("Fetching emails failed")
		in.emit(KindError, "Failed to fetch emails: "+err.Error(), nil)
		in.bind(call, []types.Email{})
		return nil
	}

	if len(emails) == 0 {
		in.emit(KindInfo, "No unread emails found", nil)
		in.bind(call, []types.Email{})
		return nil
	}

	in.emit(KindSuccess, fmt.Sprintf("Found %d unread email(s)", len(emails)), map[string]any{"count": len(emails)})
	for i, e := range emails {
		in.emit(KindEmailPreview,
			fmt.Sprintf("Email %d:\n  From: %s\n  Subject: %s\n  Preview: %s...", i+1, e.From, e.Subject, truncate(e.Preview(), previewLength)),
			map[string]any{"emailData": e},
		)
	}

	kept := emails
	if call.Max > 0 && call.Max < len(emails) {
		kept = emails[:call.Max]
	}
	in.bind(call, kept)
	in.emit(KindLog, fmt.Sprintf("Processing %d of %d unread email(s)", len(kept), len(emails)), nil)
	return nil
}

func (in *interpreter) fetch(ctx context.Context) ([]types.Email, error) {
	if in.client == nil {
		return nil, capability.NewError(capability.OpFetchUnreadEmails, "", errNoClient)
	}
	return in.client.FetchUnreadEmails(ctx)
}

func (in *interpreter) generateText(ctx context.Context, label string, call *types.CapabilityCall) error {
	input := in.evalText(label, call.Input)
	task := in.evalText(label, call.Task)

	in.logger.Debug().Str("step", label).Str("capability", string(call.Capability)).Str("task", truncate(task, 60)).Msg("Calling AI")
	if err := in.authorize(ctx, call.Capability); err != nil {
		return err
	}

	var text string
	var err error
	if in.client == nil {
		err = capability.NewError(capability.OpGenerateText, "", errNoClient)
	} else {
		text, err = in.client.GenerateText(ctx, input, task)
	}
	in.record(call.Capability, err)
	if err != nil {
		in.logger.Warn().Err(err).Str("step", label).Msg("Text generation failed")
		in.emit(KindError, "AI call failed: "+err.Error(), nil)
		in.bind(call, "")
		return nil
	}

	in.emit(KindAIResult, text, map[string]any{
		"result": text,
		"length": len([]rune(text)),
	})
	in.bind(call, text)
	return nil
}

// replyField resolves a send_reply argument, falling back to the current
// loop item's field when the argument is unset.
func (in *interpreter) replyField(label string, expr *types.Expr, field string) string {
	if expr != nil {
		return in.evalText(label, expr)
	}
	item, ok := in.env.CurrentItem()
	if !ok {
		return ""
	}
	return fieldText(item, field)
}

func (in *interpreter) sendReply(ctx context.Context, label string, call *types.CapabilityCall) error {
	req := types.ReplyRequest{
		EmailID:  in.replyField(label, call.EmailID, "id"),
		Body:     in.evalText(label, call.Body),
		Subject:  in.replyField(label, call.Subject, "subject"),
		To:       in.replyField(label, call.To, "from"),
		ThreadID: in.replyField(label, call.ThreadID, "threadId"),
	}
	if item, ok := in.env.CurrentItem(); ok {
		req.MessageID = fieldText(item, "messageId")
	}

	if req.EmailID == "" {
		in.emit(KindWarning, "Cannot send reply: no current email", nil)
		return nil
	}
	if strings.TrimSpace(req.Body) == "" {
		in.emit(KindWarning, "Cannot send reply: reply is empty", nil)
		return nil
	}

	if err := in.authorize(ctx, call.Capability); err != nil {
		return err
	}

	subject := types.ReplySubject(req.Subject)
	bodyLen := len([]rune(req.Body))
	in.emit(KindLog, fmt.Sprintf("Sending reply to %s...", req.To), nil)
	in.emit(KindEmailSending,
		fmt.Sprintf("Email Details:\n  To: %s\n  Subject: %s\n  Length: %d chars\n\nBody preview:\n%s...", req.To, subject, bodyLen, truncate(req.Body, replyPreviewLength)),
		map[string]any{"to": req.To, "subject": subject, "body": req.Body, "bodyLength": bodyLen},
	)

	var res *types.SendResult
	var err error
	if in.client == nil {
		err = capability.NewError(capability.OpSendReply, "", errNoClient)
	} else {
		res, err = in.client.SendReply(ctx, req)
	}
	in.record(call.Capability, err)
	if err != nil {
		return err
	}
	if res == nil {
		res = &types.SendResult{To: req.To, Subject: subject, Body: req.Body}
	}

	if res.Simulated {
		in.emit(KindTestMode,
			"TEST MODE: Email validated but NOT sent\n\nThis email would have been sent to: "+res.To,
			map[string]any{"emailDetails": *res},
		)
	} else {
		in.emit(KindEmailSent,
			fmt.Sprintf("Email sent successfully!\n  To: %s\n  Message ID: %s", res.To, res.MessageID),
			map[string]any{"messageId": res.MessageID, "emailDetails": *res},
		)
	}
	in.bind(call, *res)
	return nil
}

func (in *interpreter) markRead(ctx context.Context, label string, call *types.CapabilityCall) error {
	emailID := in.replyField(label, call.EmailID, "id")
	if emailID == "" {
		in.emit(KindLog, "No current email to mark as read", nil)
		return nil
	}

	if err := in.authorize(ctx, call.Capability); err != nil {
		return err
	}

	var ok bool
	var err error
	if in.client == nil {
		err = capability.NewError(capability.OpMarkRead, "", errNoClient)
	} else {
		ok, err = in.client.MarkRead(ctx, emailID)
	}
	in.record(call.Capability, err)

	switch {
	case err != nil:
		in.logger.Warn().Err(err).Str("step", label).Msg("Mark as read failed")
		in.emit(KindWarning, "Could not mark email as read: "+err.Error(), nil)
	case !ok:
		in.emit(KindWarning, "Could not mark email as read", nil)
	default:
		in.emit(KindLog, "Email marked as read", nil)
	}
	in.bind(call, err == nil && ok)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

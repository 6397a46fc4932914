package engine_test

import (
	"context"
	"sync"

	"github.com/arnavsurve/agentblocks/pkg/capability"
	"github.com/arnavsurve/agentblocks/pkg/types"
)

// fakeClient is an in-memory capability.Client.
type fakeClient struct {
	capability.CallCounter

	mu         sync.Mutex
	emails     []types.Email
	fetchErr   error
	text       string
	genErr     error
	genPanic   any
	sendResult *types.SendResult
	sendErr    error
	markOK     bool
	markErr    error

	fetchCalls int
	prompts    [][2]string
	sent       []types.ReplyRequest
	marked     []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{markOK: true}
}

func (f *fakeClient) FetchUnreadEmails(ctx context.Context) ([]types.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]types.Email(nil), f.emails...), nil
}

func (f *fakeClient) GenerateText(ctx context.Context, input, task string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.genPanic != nil {
		panic(f.genPanic)
	}
	f.CountAICall()
	f.prompts = append(f.prompts, [2]string{input, task})
	if f.genErr != nil {
		return "", f.genErr
	}
	return f.text, nil
}

func (f *fakeClient) SendReply(ctx context.Context, req types.ReplyRequest) (*types.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.sendResult != nil {
		return f.sendResult, nil
	}
	return &types.SendResult{MessageID: "sent-" + req.EmailID, To: req.To, Subject: types.ReplySubject(req.Subject), Body: req.Body}, nil
}

func (f *fakeClient) MarkRead(ctx context.Context, emailID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, emailID)
	return f.markOK, f.markErr
}

func (f *fakeClient) EmailStatus(ctx context.Context) (types.AccountStatus, error) {
	return types.AccountStatus{Connected: true}, nil
}

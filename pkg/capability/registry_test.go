package capability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/arnavsurve/agentblocks/pkg/capability"
	"github.com/arnavsurve/agentblocks/pkg/core"
	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	capability.CallCounter
	name string
}

func (s *stubClient) FetchUnreadEmails(ctx context.Context) ([]types.Email, error) {
	return nil, nil
}

func (s *stubClient) GenerateText(ctx context.Context, input, task string) (string, error) {
	s.CountAICall()
	return input, nil
}

func (s *stubClient) SendReply(ctx context.Context, req types.ReplyRequest) (*types.SendResult, error) {
	return &types.SendResult{}, nil
}

func (s *stubClient) MarkRead(ctx context.Context, emailID string) (bool, error) {
	return true, nil
}

func (s *stubClient) EmailStatus(ctx context.Context) (types.AccountStatus, error) {
	return types.AccountStatus{}, nil
}

func TestNewClient(t *testing.T) {
	capability.RegisterProviderFactory("stub", func(s capability.Settings) (capability.Client, error) {
		return &stubClient{name: s.Config.Name}, nil
	})
	capability.RegisterProviderFactory("broken", func(s capability.Settings) (capability.Client, error) {
		return nil, errors.New("missing api key")
	})

	client, err := capability.NewClient(capability.Settings{Config: core.ProviderConfig{Name: "primary", Type: "stub"}})
	require.NoError(t, err)
	assert.Equal(t, "primary", client.(*stubClient).name)

	_, err = client.GenerateText(context.Background(), "hi", "echo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), client.AICalls())

	_, err = capability.NewClient(capability.Settings{Config: core.ProviderConfig{Name: "p", Type: "nope"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no capability provider registered for type: nope")

	_, err = capability.NewClient(capability.Settings{Config: core.ProviderConfig{Name: "p", Type: "broken"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `creating "broken" provider "p": missing api key`)

	assert.True(t, capability.IsRegistered("stub"))
	assert.Contains(t, capability.ProviderTypes(), "stub")
}

func TestError(t *testing.T) {
	cause := errors.New("connection refused")
	err := capability.NewError(capability.OpSendReply, "Reply too short or empty", cause)

	assert.Equal(t, "Reply too short or empty", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, capability.IsError(err))
	assert.False(t, capability.IsError(cause))

	fallback := capability.NewError(capability.OpFetchUnreadEmails, "", cause)
	assert.Equal(t, "connection refused", fallback.Message)
}

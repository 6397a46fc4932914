package types_test

import (
	"testing"

	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestEmailField(t *testing.T) {
	e := types.Email{ID: "m1", ThreadID: "t1", From: "Ada <ada@example.com>", Subject: "Hi", Body: "Hello"}

	tests := []struct {
		name  string
		want  string
		found bool
	}{
		{"id", "m1", true},
		{"threadId", "t1", true},
		{"thread_id", "t1", true},
		{"from", "Ada <ada@example.com>", true},
		{"subject", "Hi", true},
		{"body", "Hello", true},
		{"attachments", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.Field(tt.name)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmailPreview(t *testing.T) {
	assert.Equal(t, "snip", types.Email{Snippet: "snip", Body: "body"}.Preview())
	assert.Equal(t, "body", types.Email{Body: "body"}.Preview())
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Lunch", types.ReplySubject("Lunch"))
	assert.Equal(t, "Re: Lunch", types.ReplySubject("RE: Lunch"))
	assert.Equal(t, "Re: Lunch", types.ReplySubject("re:Lunch"))
	assert.Equal(t, "Re: ", types.ReplySubject(""))
}

func TestRequiresAuthorization(t *testing.T) {
	assert.True(t, types.CapabilityFetchEmails.RequiresAuthorization())
	assert.True(t, types.CapabilitySendReply.RequiresAuthorization())
	assert.True(t, types.CapabilityMarkRead.RequiresAuthorization())
	assert.False(t, types.CapabilityGenerateText.RequiresAuthorization())
}

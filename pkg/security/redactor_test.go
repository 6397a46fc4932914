package security_test

import (
	"testing"

	"github.com/arnavsurve/agentblocks/pkg/core"
	"github.com/arnavsurve/agentblocks/pkg/security"
	"github.com/stretchr/testify/assert"
)

func TestRedactor_Redact(t *testing.T) {
	tests := []struct {
		name    string
		secrets []string
		input   string
		want    string
	}{
		{
			name:    "exact match",
			secrets: []string{"gsk_live_123"},
			input:   "calling completion API with key gsk_live_123",
			want:    "calling completion API with key ********",
		},
		{
			name:    "multiple occurrences",
			secrets: []string{"tok"},
			input:   "tok and tok again",
			want:    "******** and ******** again",
		},
		{
			name:    "secret not present",
			secrets: []string{"unused"},
			input:   "Fetching unread emails",
			want:    "Fetching unread emails",
		},
		{
			name:    "no secrets",
			secrets: nil,
			input:   "Original string",
			want:    "Original string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &security.Redactor{Secrets: tt.secrets}
			assert.Equal(t, tt.want, r.Redact(tt.input))
		})
	}
}

func TestRedactor_NilReceiver(t *testing.T) {
	var r *security.Redactor
	assert.Equal(t, "untouched", r.Redact("untouched"))
}

func TestNewRedactor(t *testing.T) {
	tests := []struct {
		name        string
		inputs      []core.Input
		varCtx      core.VarContext
		extra       []string
		wantSecrets []string
	}{
		{
			name: "collects secret inputs only",
			inputs: []core.Input{
				{Name: "password", Secret: true},
				{Name: "username", Secret: false},
			},
			varCtx:      core.VarContext{"password": "pass123", "username": "user1"},
			wantSecrets: []string{"pass123"},
		},
		{
			name:        "empty and missing values are excluded",
			inputs:      []core.Input{{Name: "empty", Secret: true}, {Name: "missing", Secret: true}},
			varCtx:      core.VarContext{"empty": ""},
			wantSecrets: nil,
		},
		{
			name:        "non-string values are stringified",
			inputs:      []core.Input{{Name: "pin", Secret: true}},
			varCtx:      core.VarContext{"pin": 9876},
			wantSecrets: []string{"9876"},
		},
		{
			name:        "extra credentials are included",
			inputs:      nil,
			varCtx:      nil,
			extra:       []string{"gsk_abc", "", "client-secret"},
			wantSecrets: []string{"client-secret", "gsk_abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := security.NewRedactor(tt.inputs, tt.varCtx, tt.extra...)
			assert.ElementsMatch(t, tt.wantSecrets, r.Secrets)
		})
	}
}

func TestNewRedactor_OverlappingSecrets(t *testing.T) {
	r := security.NewRedactor(
		[]core.Input{{Name: "short", Secret: true}, {Name: "long", Secret: true}},
		core.VarContext{"short": "secret", "long": "supersecret"},
	)

	assert.Equal(t, []string{"supersecret", "secret"}, r.Secrets)
	assert.Equal(t, "has ******** and ********", r.Redact("has supersecret and secret"))
}

package core

import (
	"time"

	"github.com/arnavsurve/agentblocks/pkg/types"
)

// ProviderConfig configures one capability provider. Type selects the
// registered provider factory; the remaining fields are read by the
// providers that need them.
type ProviderConfig struct {
	Name              string   `yaml:"name"`
	Type              string   `yaml:"type"`
	APIKey            string   `yaml:"api_key,omitempty"`
	BaseURL           string   `yaml:"base_url,omitempty"`
	AIBaseURL         string   `yaml:"ai_base_url,omitempty"`
	Model             string   `yaml:"model,omitempty"`
	TokenFile         string   `yaml:"token_file,omitempty"`
	ClientID          string   `yaml:"client_id,omitempty"`
	ClientSecret      string   `yaml:"client_secret,omitempty"`
	TestMode          *bool    `yaml:"test_mode,omitempty"`
	AllowedRecipients []string `yaml:"allowed_recipients,omitempty"`
	MaxEmails         int      `yaml:"max_emails,omitempty"`
	RequestsPerSecond float64  `yaml:"requests_per_second,omitempty"`
	Timeout           string   `yaml:"timeout,omitempty"`
}

// Input declares a value the workflow expects in its varfile.
type Input struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required,omitempty"`
	Secret   bool   `yaml:"secret,omitempty"`
	Default  string `yaml:"default,omitempty"`
}

// GateConfig tunes the email authorization wait.
type GateConfig struct {
	Timeout      string `yaml:"timeout,omitempty"`
	PollInterval string `yaml:"poll_interval,omitempty"`
}

// Workflow is the compiled form of a block graph: the step tree the engine
// executes plus the configuration around it.
type Workflow struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	AgentType   string           `yaml:"agent_type,omitempty"`
	Inputs      []Input          `yaml:"inputs"`
	Providers   []ProviderConfig `yaml:"providers,omitempty"`
	Provider    string           `yaml:"provider,omitempty"`
	Gate        GateConfig       `yaml:"gate,omitempty"`
	Steps       []Step           `yaml:"steps"`
}

type Step = types.Step

type Expr = types.Expr

// Durations parses the gate configuration, falling back to the given
// defaults for unset values.
func (g GateConfig) Durations(defTimeout, defPoll time.Duration) (timeout, poll time.Duration, err error) {
	timeout, poll = defTimeout, defPoll
	if g.Timeout != "" {
		if timeout, err = time.ParseDuration(g.Timeout); err != nil {
			return 0, 0, err
		}
	}
	if g.PollInterval != "" {
		if poll, err = time.ParseDuration(g.PollInterval); err != nil {
			return 0, 0, err
		}
	}
	return timeout, poll, nil
}

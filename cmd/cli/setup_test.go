package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arnavsurve/agentblocks/pkg/core"
	"github.com/arnavsurve/agentblocks/pkg/log"
	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveProvider_DefaultsToBackend(t *testing.T) {
	p, err := resolveProvider(log.Nop(), &core.Workflow{Name: "x"}, core.VarContext{})
	require.NoError(t, err)
	assert.Equal(t, "backend", p.Type)
}

func TestResolveProvider_GmailFallbacks(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_env")
	t.Setenv("GMAIL_CLIENT_ID", "client-id")
	t.Setenv("GMAIL_CLIENT_SECRET", "client-secret")

	wf := &core.Workflow{
		Name:      "x",
		Providers: []core.ProviderConfig{{Name: "mail", Type: "gmail", TokenFile: "{{ dir }}/tokens.json"}},
	}
	p, err := resolveProvider(log.Nop(), wf, core.VarContext{"dir": "/tmp"})
	require.NoError(t, err)

	assert.Equal(t, "gsk_env", p.APIKey)
	assert.Equal(t, "client-id", p.ClientID)
	assert.Equal(t, "client-secret", p.ClientSecret)
	assert.Equal(t, "/tmp/tokens.json", p.TokenFile)
}

func TestResolveProvider_UnresolvedVariable(t *testing.T) {
	wf := &core.Workflow{
		Name:      "x",
		Providers: []core.ProviderConfig{{Name: "api", Type: "backend", APIKey: "{{ missing }}"}},
	}
	_, err := resolveProvider(log.Nop(), wf, core.VarContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `resolving variables for provider "api"`)
}

func TestLoadVarContext(t *testing.T) {
	dir := t.TempDir()

	vars := loadVarContext(log.Nop(), filepath.Join(dir, "missing.yml"))
	assert.Empty(t, vars)

	path := filepath.Join(dir, "agvars.yml")
	require.NoError(t, os.WriteFile(path, []byte("emailBody: hello\n"), 0644))
	vars = loadVarContext(log.Nop(), path)
	assert.Equal(t, "hello", vars["emailBody"])
}

func TestConsoleLevel(t *testing.T) {
	assert.Equal(t, types.DebugLevel, consoleLevel(true))
	assert.Equal(t, types.WarnLevel, consoleLevel(false))
}

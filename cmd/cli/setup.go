package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/arnavsurve/agentblocks/pkg/core"
	"github.com/arnavsurve/agentblocks/pkg/log"
	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

const defaultProviderType = "backend"

func getFallbackKey(providerType string) string {
	switch providerType {
	case "gmail":
		if key := os.Getenv("GROQ_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}

// workflowDirOf returns the absolute directory holding the workflow file.
func workflowDirOf(workflowPath string) (string, error) {
	abs, err := filepath.Abs(workflowPath)
	if err != nil {
		return "", fmt.Errorf("determining absolute path for workflow file %q: %w", workflowPath, err)
	}
	return filepath.Dir(abs), nil
}

// loadVarContext reads the varfile if it exists. A missing or unreadable
// varfile is not fatal; required input validation reports what is missing.
func loadVarContext(logger types.Logger, varfile string) core.VarContext {
	if _, statErr := os.Stat(varfile); os.IsNotExist(statErr) {
		logger.Warn().Msgf("Varfile %s not found. Proceeding without input variables.", varfile)
		return make(core.VarContext)
	}

	varCtx, err := core.ResolveVarfile(varfile)
	if err != nil {
		logger.Warn().Err(err).Msgf("Could not resolve varfile %q. Proceeding without input variables.", varfile)
		return make(core.VarContext)
	}
	logger.Info().Msgf("Successfully loaded and resolved varfile: %s", varfile)
	return varCtx
}

// resolveProvider picks the workflow's provider, resolves its {{ }}
// placeholders and applies environment fallbacks for missing credentials.
// Workflows without providers talk to the local backend server.
func resolveProvider(logger types.Logger, wf *core.Workflow, varCtx core.VarContext) (core.ProviderConfig, error) {
	selected, ok := wf.SelectedProvider()
	if !ok {
		logger.Info().Msg("No provider declared in the workflow. Using the local backend server.")
		return core.ProviderConfig{Name: defaultProviderType, Type: defaultProviderType}, nil
	}

	resolved, err := core.ResolveProviderVariables(&selected, varCtx)
	if err != nil {
		return core.ProviderConfig{}, fmt.Errorf("resolving variables for provider %q: %w", selected.Name, err)
	}

	if resolved.APIKey == "" {
		if fallback := getFallbackKey(resolved.Type); fallback != "" {
			logger.Info().Msgf("API key for provider %q is not defined in the workflow. Falling back to environment variable.", resolved.Name)
			resolved.APIKey = fallback
		}
	}
	if resolved.Type == "gmail" {
		if resolved.ClientID == "" {
			resolved.ClientID = os.Getenv("GMAIL_CLIENT_ID")
		}
		if resolved.ClientSecret == "" {
			resolved.ClientSecret = os.Getenv("GMAIL_CLIENT_SECRET")
		}
	}
	return *resolved, nil
}

// newCmdLogger builds the command logger on top of router. Events below
// consoleLevel are kept off the console but still reach the other sinks.
func newCmdLogger(router *log.Router) *log.ZerologAdapter {
	base := zerolog.New(router).With().Timestamp().Logger()
	zlog.Logger = base
	return log.NewZerologAdapter(base)
}

func consoleLevel(debug bool) types.Level {
	if debug {
		return types.DebugLevel
	}
	return types.WarnLevel
}

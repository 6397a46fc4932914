package cli

import (
	"fmt"

	"github.com/arnavsurve/agentblocks/pkg/capability"
	"github.com/arnavsurve/agentblocks/pkg/core"
	"github.com/arnavsurve/agentblocks/pkg/gate"
	"github.com/arnavsurve/agentblocks/pkg/log"
	"github.com/arnavsurve/agentblocks/pkg/log/sinks"
	"github.com/arnavsurve/agentblocks/pkg/types"
	"github.com/joho/godotenv"

	// Ensure all provider implementations are registered
	_ "github.com/arnavsurve/agentblocks/pkg/capability/providers"
)

type LintCmd struct {
	Varfile  string `help:"The YAML varfile for input variables." default:"agvars.yml"`
	Workflow string `help:"The workflow configuration file." default:"agentblocks.yml"`
}

func (l *LintCmd) Run() error {
	consoleSink := sinks.NewConsoleSink().WithMinLevel(types.InfoLevel)
	logRouter := log.NewRouter(consoleSink)
	cmdLogger := newCmdLogger(logRouter)
	defer logRouter.Close()

	cmdLogger.Info().Msgf("Validating %s using %s", l.Workflow, l.Varfile)

	if err := godotenv.Load(); err != nil {
		cmdLogger.Debug().Err(err).Msg("No .env file found or error thrown while loading it. Relying on existing ENV if vars use {{ env.* }}")
	}

	// Loading also validates the step tree and expressions.
	wf, err := core.LoadWorkflowFromFile(l.Workflow)
	if err != nil {
		cmdLogger.Error().Err(err).Msgf("Failed to load workflow file %s", l.Workflow)
		return fmt.Errorf("loading workflow file %q: %w", l.Workflow, err)
	}
	cmdLogger.Info().Msgf("Successfully loaded workflow: %s (%d top-level steps)", wf.Name, len(wf.Steps))

	varCtx := loadVarContext(cmdLogger, l.Varfile)
	core.ApplyInputDefaults(wf, varCtx)

	if err := core.ValidateRequiredInputs(wf, varCtx); err != nil {
		cmdLogger.Error().Err(err).Msg("Required input validation failed")
		return fmt.Errorf("validating required inputs: %w", err)
	}
	cmdLogger.Info().Msg("Required input validation passed")

	cmdLogger.Info().Msg("Validating providers...")
	for _, p := range wf.Providers {
		if !capability.IsRegistered(p.Type) {
			cmdLogger.Error().Msgf("Provider %q has unknown type %q", p.Name, p.Type)
			return fmt.Errorf("provider %q: unknown type %q (known: %v)", p.Name, p.Type, capability.ProviderTypes())
		}
		if _, err := core.ResolveProviderVariables(&p, varCtx); err != nil {
			cmdLogger.Error().Err(err).Msgf("Provider %q has a configuration issue", p.Name)
			return fmt.Errorf("resolving variables for provider %q: %w", p.Name, err)
		}
	}
	if _, err := resolveProvider(cmdLogger, wf, varCtx); err != nil {
		return err
	}
	cmdLogger.Info().Msg("Provider validation passed")

	if _, _, err := wf.Gate.Durations(gate.DefaultTimeout, gate.DefaultPollInterval); err != nil {
		return fmt.Errorf("parsing gate configuration: %w", err)
	}

	cmdLogger.Info().Msg("Successfully validated workflow configuration ✅")
	return nil
}

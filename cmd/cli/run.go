package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/arnavsurve/agentblocks/pkg/capability"
	"github.com/arnavsurve/agentblocks/pkg/core"
	"github.com/arnavsurve/agentblocks/pkg/engine"
	"github.com/arnavsurve/agentblocks/pkg/gate"
	"github.com/arnavsurve/agentblocks/pkg/log"
	"github.com/arnavsurve/agentblocks/pkg/log/sinks"
	"github.com/arnavsurve/agentblocks/pkg/metrics"
	"github.com/arnavsurve/agentblocks/pkg/security"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	// Ensure all provider implementations are registered
	_ "github.com/arnavsurve/agentblocks/pkg/capability/providers"
)

type RunCmd struct {
	Varfile     string            `help:"The YAML varfile for input variables." default:"agvars.yml"`
	Workflow    string            `help:"The workflow configuration file." default:"agentblocks.yml"`
	Input       map[string]string `help:"Override input variables (key=value)." short:"i"`
	AuthTimeout time.Duration     `help:"How long to wait for the email account to be connected. Overrides the workflow's gate timeout."`
	MetricsAddr string            `help:"Serve Prometheus metrics on this address while the run is active (e.g. :9090)."`
	Debug       bool              `help:"Show debug logs on the console."`
}

func (r *RunCmd) Run() error {
	wfRunID := uuid.New().String()

	consoleSink := sinks.NewConsoleSink().WithMinLevel(consoleLevel(r.Debug))

	logsDir := ".agentblocks/logs"
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs directory %q: %w", logsDir, err)
	}
	logFilePath := filepath.Join(logsDir, fmt.Sprintf("%s.json", wfRunID))
	fileSink, err := sinks.NewFileSink(logFilePath)
	if err != nil {
		return fmt.Errorf("creating file log sink: %w", err)
	}

	logRouter := log.NewRouter(consoleSink, fileSink)
	cmdLogger := newCmdLogger(logRouter)

	cmdLogger.Info().Msgf("Starting workflow run with ID: %s", wfRunID)
	cmdLogger.Info().Msgf("Logs will be saved to %q", logFilePath)

	defer func() {
		cmdLogger.Info().Msg("Shutting down logger...")
		if err := logRouter.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during log shutdown: %v\n", err)
		}
	}()

	if err := godotenv.Load(); err != nil {
		cmdLogger.Debug().Err(err).Msg("No .env file found or error thrown while loading it. Relying on existing ENV if vars use {{ env.* }}")
	}

	wf, err := core.LoadWorkflowFromFile(r.Workflow)
	if err != nil {
		cmdLogger.Error().Err(err).Msgf("Failed to load workflow file %s", r.Workflow)
		return fmt.Errorf("loading workflow file %q: %w", r.Workflow, err)
	}
	cmdLogger.Info().Msgf("Successfully loaded workflow: %q", wf.Name)

	workflowDir, err := workflowDirOf(r.Workflow)
	if err != nil {
		return err
	}

	varCtx := loadVarContext(cmdLogger, r.Varfile)
	for k, v := range r.Input {
		varCtx[k] = v
	}
	for _, name := range core.ApplyInputDefaults(wf, varCtx) {
		cmdLogger.Debug().Msgf("Using default value for input %q", name)
	}

	if err := core.ValidateRequiredInputs(wf, varCtx); err != nil {
		cmdLogger.Error().Err(err).Msg("Required input validation failed")
		return err
	}
	cmdLogger.Info().Msg("Required input validation passed")

	provider, err := resolveProvider(cmdLogger, wf, varCtx)
	if err != nil {
		cmdLogger.Error().Err(err).Msg("Provider resolution failed")
		return err
	}
	logRouter.SetRedactor(security.NewRedactor(wf.Inputs, varCtx, provider.APIKey, provider.ClientSecret))

	client, err := capability.NewClient(capability.Settings{
		Config:      provider,
		WorkflowDir: workflowDir,
		Logger:      cmdLogger.With().Str("provider", provider.Name).Logger(),
	})
	if err != nil {
		cmdLogger.Error().Err(err).Msg("Failed to create capability client")
		return err
	}

	timeout, poll, err := wf.Gate.Durations(gate.DefaultTimeout, gate.DefaultPollInterval)
	if err != nil {
		return fmt.Errorf("parsing gate configuration: %w", err)
	}
	if r.AuthTimeout > 0 {
		timeout = r.AuthTimeout
	}

	collector := metrics.NewCollector()
	if r.MetricsAddr != "" {
		stop := serveMetrics(r.MetricsAddr, collector, cmdLogger)
		defer stop()
	}

	g := gate.New(
		gate.WithTimeout(timeout),
		gate.WithPollInterval(poll),
		gate.WithLogger(cmdLogger.With().Str("component", "gate").Logger()),
	)
	g.SetHook(authorizationHook(client, g, os.Stdout, poll, cmdLogger))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if status, err := client.EmailStatus(ctx); err != nil {
		cmdLogger.Warn().Err(err).Msg("Could not check email connection status")
	} else {
		g.SetAuthorized(status.Connected)
		cmdLogger.Info().
			Str("user_email", status.UserEmail).
			Interface("test_mode", status.TestMode).
			Msgf("Email connected: %t", status.Connected)
	}

	cmdLogger.Info().Msgf("Executing workflow: %q", wf.Name)

	executor := engine.NewWorkflowExecutor(client,
		engine.WithGate(g),
		engine.WithLogger(cmdLogger.With().Str("workflow", wf.Name).Logger()),
		engine.WithMetrics(collector),
	)
	renderer := newEventRenderer(os.Stdout)
	res := executor.Execute(ctx, wf.Steps, varCtx, renderer.listen)

	cmdLogger.Info().Msgf("AI calls made: %d", client.AICalls())

	if !res.Success {
		if errors.Is(res.Err, engine.ErrRunInProgress) {
			return res.Err
		}
		cmdLogger.Error().Err(res.Err).Msgf("Workflow %q failed. Logs can be found at %q", wf.Name, logFilePath)
		return fmt.Errorf("workflow %q failed: %s", wf.Name, res.Error)
	}

	cmdLogger.Info().Msgf("Workflow completed successfully. Logs can be found at %q", logFilePath)
	return nil
}

// serveMetrics exposes the collector on addr and returns a function that
// shuts the server down.
func serveMetrics(addr string, collector *metrics.Collector, logger *log.ZerologAdapter) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msgf("Metrics server on %s stopped", addr)
		}
	}()
	logger.Info().Msgf("Serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/jbweber/k93s/internal/backend"
	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/logging"
	"github.com/jbweber/k93s/internal/metrics"
	"github.com/jbweber/k93s/internal/orchestrator"
	"github.com/jbweber/k93s/internal/survey"
)

// app carries what every command shares for one invocation.
type app struct {
	settings *config.Settings
	log      zerolog.Logger
	metrics  *metrics.Recorder
	prompt   *survey.Prompt
}

func newApp(s *config.Settings, log zerolog.Logger) *app {
	return &app{
		settings: s,
		log:      log,
		metrics:  metrics.NewRecorder(),
		prompt:   &survey.Prompt{Accessible: !logging.IsTerminal(os.Stdin)},
	}
}

// configPath returns the resolved cluster config path.
func (a *app) configPath() (string, error) {
	return config.ResolvePath(a.settings.ConfigFile)
}

// loadConfig loads the cluster document; a missing file exits with 5.
func (a *app) loadConfig() (*config.ClusterConfig, error) {
	path, err := a.configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, &exitError{code: exitNoConfig, err: fmt.Errorf("%w; run k93s config first", err)}
		}
		return nil, err
	}
	return cfg, nil
}

func (a *app) registry() (*backend.Registry, error) {
	return orchestrator.DefaultRegistry(a.settings, a.log, a.metrics)
}

// session is one command's working directory plus the runner bound to it.
type session struct {
	app     *app
	cfg     *config.ClusterConfig
	workDir string
	temp    bool
	runner  *orchestrator.Runner
}

// begin loads the config and prepares the working directory.
func (a *app) begin() (*session, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	workDir, err := orchestrator.PrepareWorkDir(a.settings.WorkDir)
	if err != nil {
		return nil, err
	}

	log := a.log.With().Str("cluster", cfg.Name).Logger()
	return &session{
		app:     a,
		cfg:     cfg,
		workDir: workDir,
		temp:    a.settings.WorkDir == "",
		runner: &orchestrator.Runner{
			Registry:      reg,
			Logger:        log.With().Str("component", "orchestrator").Logger(),
			RemoveWorkDir: a.settings.RemoveWorkDir,
			Metrics:       a.metrics,
		},
	}, nil
}

func (s *session) run(ctx context.Context, actions ...backend.Action) ([]*orchestrator.Outcome, error) {
	return s.runner.RunActions(ctx, s.workDir, s.cfg, actions...)
}

// finish removes a temporary working directory or reports where it is, and
// writes metrics. The runner has already cleared the directory's contents
// when remove_workdir is set.
func (s *session) finish() {
	log := s.app.log
	switch {
	case s.app.settings.RemoveWorkDir && s.temp:
		if err := os.RemoveAll(s.workDir); err != nil {
			log.Warn().Err(err).Str("workdir", s.workDir).Msg("failed to remove working directory")
		}
	case !s.app.settings.RemoveWorkDir:
		log.Info().Str("workdir", s.workDir).Msg("working directory retained")
	}

	if path := s.app.settings.MetricsFile; path != "" {
		if err := s.app.metrics.WriteTextfile(path); err != nil {
			log.Warn().Err(err).Msg("failed to write metrics")
		}
	}
}

// checkReport warns about per-VM failures, and turns them into exit code 3
// when strict.
func checkReport(log zerolog.Logger, report *backend.Report, strict bool) error {
	if report == nil {
		return nil
	}
	failed := report.Failed()
	if len(failed) == 0 {
		return nil
	}
	for _, res := range failed {
		log.Warn().Str("vm", res.VM).Err(res.Err).Msgf("%s failed", res.Action)
	}
	if strict {
		return &exitError{code: exitStrict, err: fmt.Errorf("%d VM(s) failed: %w", len(failed), report.Err())}
	}
	log.Warn().Int("failed", len(failed)).Msg("some VMs failed; continuing (use --strict to fail)")
	return nil
}

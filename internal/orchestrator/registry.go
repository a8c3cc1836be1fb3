package orchestrator

import (
	"github.com/rs/zerolog"

	"github.com/jbweber/k93s/internal/backend"
	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/lightning"
)

// DefaultRegistry returns a registry holding the lightning backend,
// registered under its name and its legacy alias, configured from s.
// observer may be nil.
func DefaultRegistry(s *config.Settings, log zerolog.Logger, observer backend.Observer) (*backend.Registry, error) {
	disp := &backend.Dispatcher{
		SettleDelay: s.SettleDelay,
		Concurrency: s.Concurrency,
		Logger:      log.With().Str("component", "dispatch").Logger(),
		Observer:    observer,
	}

	reg := backend.NewRegistry()
	driver := lightning.New(
		lightning.WithDispatcher(disp),
		lightning.WithImageBaseURL(s.ImageBaseURL),
		lightning.WithLogger(log),
	)
	if err := reg.Register(driver, lightning.Alias); err != nil {
		return nil, err
	}
	return reg, nil
}

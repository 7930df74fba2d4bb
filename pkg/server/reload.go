package server

import (
	"errors"
	"fmt"

	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/providers"
)

// Reload applies the apps section of cfg. Each app's provider list is
// replaced atomically; breaker state of providers that remain is kept.
// Other sections take effect on the next start.
func (s *Server) Reload(cfg *config.Config) error {
	var errs []error
	for _, app := range providers.Apps() {
		before := s.sw.Registry().Snapshot(app).IDs()
		if err := s.sw.Reconfigure(app, cfg.ProviderList(app)); err != nil {
			errs = append(errs, fmt.Errorf("apps.%s: %w", app, err))
			continue
		}

		after := s.sw.Registry().Snapshot(app)
		for _, id := range before {
			if _, ok := after.Get(id); !ok {
				s.metrics.ForgetProvider(app.String(), id)
			}
		}
		for _, st := range s.sw.States(app) {
			s.metrics.RecordBreakerState(app.String(), st.ProviderID, st.Status)
		}
	}
	return errors.Join(errs...)
}

// reloadFromFile re-reads the configuration file given in Options.
func (s *Server) reloadFromFile() (*config.Config, error) {
	if s.opts.ConfigPath == "" {
		return nil, errors.New("no configuration file to reload")
	}
	cfg, err := config.LoadConfigWithEnvOverrides(s.opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := s.Reload(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

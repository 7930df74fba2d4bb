package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/storage"
)

// OpenStorage opens the state database named by cfg.Storage. Commands that
// work on persisted state without a running proxy use it too.
func OpenStorage(ctx context.Context, cfg *config.Config) (*storage.DB, error) {
	return storage.Open(ctx, storage.Config{
		Path:        config.ExpandHome(cfg.Storage.Path),
		BusyTimeout: cfg.Storage.BusyTimeout,
		WALMode:     config.BoolValue(cfg.Storage.WALMode, config.DefaultStorageWALMode),
	})
}

// TakeoverPaths resolves the CLI configuration file of every app.
// Apps whose file cannot be located are logged and left out.
func TakeoverPaths(cfg *config.Config, logger *slog.Logger) map[providers.App]string {
	paths := make(map[providers.App]string, providers.NumApps)
	for _, app := range providers.Apps() {
		p, err := cfg.CLIConfigPath(app)
		if err != nil {
			logger.Warn("takeover unavailable: cannot locate CLI config", "app", app.String(), "error", err)
			continue
		}
		paths[app] = p
	}
	return paths
}

// aliveTimeout bounds the health call made by ProxyAlive.
const aliveTimeout = 2 * time.Second

// ProxyAlive reports whether a switchboard proxy answers the health
// endpoint at the origin of proxyURL, a base URL written by takeover.
func ProxyAlive(ctx context.Context, proxyURL string) bool {
	u, err := url.Parse(proxyURL)
	if err != nil || u.Host == "" {
		return false
	}
	c := cli.NewClient(u.Scheme + "://" + u.Host)
	c.HTTP = &http.Client{Timeout: aliveTimeout}
	return c.Get(ctx, ControlPrefix+"/health", nil, nil) == nil
}

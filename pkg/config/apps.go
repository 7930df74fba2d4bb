package config

import (
	"fmt"
	"os"
	"path/filepath"

	"mercator-hq/switchboard/pkg/providers"
)

// ProviderList converts the configured providers of app into registry
// entries. Credentials named by api_key_env are resolved here.
func (c *Config) ProviderList(app providers.App) []providers.Provider {
	appCfg := c.Apps[app.String()]
	list := make([]providers.Provider, 0, len(appCfg.Providers))
	for _, p := range appCfg.Providers {
		key := p.APIKey
		if key == "" && p.APIKeyEnv != "" {
			key = os.Getenv(p.APIKeyEnv)
		}
		list = append(list, providers.Provider{
			ID:          p.ID,
			App:         app,
			DisplayName: p.Name,
			BaseURL:     p.BaseURL,
			Credential:  key,
			ModelMap:    p.ModelMap,
			Priority:    p.Priority,
		})
	}
	return list
}

// BuildRegistry creates a registry holding every configured provider.
func (c *Config) BuildRegistry() (*providers.Registry, error) {
	reg := providers.NewRegistry()
	for _, app := range providers.Apps() {
		if _, err := reg.Replace(app, c.ProviderList(app)); err != nil {
			return nil, fmt.Errorf("apps.%s: %w", app, err)
		}
	}
	return reg, nil
}

// TakeoverApps returns the apps whose configuration should be taken over at startup.
func (c *Config) TakeoverApps() []providers.App {
	var out []providers.App
	for _, app := range providers.Apps() {
		if c.Apps[app.String()].Takeover {
			out = append(out, app)
		}
	}
	return out
}

// HomeDir returns the directory used to locate CLI configuration files.
func (c *Config) HomeDir() (string, error) {
	if c.Takeover.HomeDir != "" {
		return ExpandHome(c.Takeover.HomeDir), nil
	}
	return os.UserHomeDir()
}

// CLIConfigPath returns the CLI configuration file of app, honoring
// apps.<app>.config_path.
func (c *Config) CLIConfigPath(app providers.App) (string, error) {
	if p := c.Apps[app.String()].ConfigPath; p != "" {
		return ExpandHome(p), nil
	}
	home, err := c.HomeDir()
	if err != nil {
		return "", err
	}
	switch app {
	case providers.AppClaude:
		return filepath.Join(home, ".claude", "settings.json"), nil
	case providers.AppCodex:
		return filepath.Join(home, ".codex", "config.toml"), nil
	case providers.AppGemini:
		return filepath.Join(home, ".gemini", ".env"), nil
	}
	return "", &providers.UnknownAppError{Value: app.String()}
}

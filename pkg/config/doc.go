// Package config provides configuration management for switchboard.
//
// Configuration is read from a YAML file (by default
// ~/.switchboard/config.yaml), completed with defaults, overridden by
// environment variables and validated before use.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfigWithEnvOverrides(config.DefaultPath())
//
// A missing file is not an error; the proxy then starts with defaults and
// whatever providers the environment defines.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention SWITCHBOARD_SECTION_FIELD:
//
//   - SWITCHBOARD_PROXY_PORT overrides proxy.port
//   - SWITCHBOARD_BREAKER_COOLDOWN overrides breaker.cooldown
//   - SWITCHBOARD_CLAUDE_BASE_URL and SWITCHBOARD_CLAUDE_API_KEY override the
//     first Claude provider
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// When watch.enabled is set, Watcher re-reads the file on change and hands the
// new configuration to a callback which reconfigures provider lists. Other
// sections take effect on restart.
//
// # Example Configuration
//
//	proxy:
//	  port: 15721
//
//	apps:
//	  claude:
//	    takeover: true
//	    providers:
//	      - id: primary
//	        base_url: "https://api.anthropic.com"
//	        api_key_env: ANTHROPIC_API_KEY
//	      - id: backup
//	        base_url: "https://relay.example.com"
//	        api_key: "sk-..."
//	        priority: 1
//	        model_map:
//	          "*": "claude-sonnet-4"
//
//	breaker:
//	  failure_threshold: 5
//	  cooldown: 60s
package config

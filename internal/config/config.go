package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Core: CoreConfig{
			Address: "localhost:4242",
		},
		Gateway: GatewayConfig{
			Listen:     "127.0.0.1:6667",
			ServerName: "qbridge",
			HTTP: GatewayHTTP{
				Listen: "127.0.0.1:18790",
			},
		},
		Bridge: BridgeConfig{
			Mode:         "rich",
			BacklogLimit: 100,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

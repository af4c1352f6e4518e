package config

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential and path fields so they can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.TLS.CertPath = expandEnvVars(cfg.Gateway.TLS.CertPath)
	cfg.Gateway.TLS.KeyPath = expandEnvVars(cfg.Gateway.TLS.KeyPath)
	cfg.Store.Path = expandEnvVars(cfg.Store.Path)
	cfg.Logging.File = expandEnvVars(cfg.Logging.File)
}

// isTOML reports whether path names a TOML file. Everything else is YAML.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func unmarshal(path string, data []byte, v any) error {
	if isTOML(path) {
		return toml.Unmarshal(data, v)
	}
	return yaml.Unmarshal(data, v)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := unmarshal(path, data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := unmarshal(path, data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to the config file in the format its
// extension names.
func SaveRaw(path string, raw map[string]any) error {
	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
			return err
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(raw); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Core.Address == "" {
		cfg.Core.Address = def.Core.Address
	}
	if cfg.Gateway.Listen == "" {
		cfg.Gateway.Listen = def.Gateway.Listen
	}
	if cfg.Gateway.ServerName == "" {
		cfg.Gateway.ServerName = def.Gateway.ServerName
	}
	if cfg.Gateway.HTTP.Listen == "" {
		cfg.Gateway.HTTP.Listen = def.Gateway.HTTP.Listen
	}
	if cfg.Bridge.Mode == "" {
		cfg.Bridge.Mode = def.Bridge.Mode
	}
	if cfg.Bridge.BacklogLimit == 0 {
		cfg.Bridge.BacklogLimit = def.Bridge.BacklogLimit
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = def.Store.Driver
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = def.Logging.ConsoleStyle
	}
}

// applyEnvOverrides reads QBRIDGE_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QBRIDGE_CORE_ADDRESS"); v != "" {
		cfg.Core.Address = v
	}
	if v := os.Getenv("QBRIDGE_CORE_TLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Core.TLS.Enabled = b
		}
	}
	if v := os.Getenv("QBRIDGE_GATEWAY_LISTEN"); v != "" {
		cfg.Gateway.Listen = v
	}
	if v := os.Getenv("QBRIDGE_HTTP_LISTEN"); v != "" {
		cfg.Gateway.HTTP.Listen = v
	}
	if v := os.Getenv("QBRIDGE_BRIDGE_MODE"); v != "" {
		cfg.Bridge.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("QBRIDGE_BACKLOG_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bridge.BacklogLimit = n
		}
	}
	if v := os.Getenv("QBRIDGE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("QBRIDGE_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("QBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

package config

// Config is the root configuration for qbridge.
type Config struct {
	Core    CoreConfig    `yaml:"core,omitempty" toml:"core"`
	Gateway GatewayConfig `yaml:"gateway,omitempty" toml:"gateway"`
	Bridge  BridgeConfig  `yaml:"bridge,omitempty" toml:"bridge"`
	Store   StoreConfig   `yaml:"store,omitempty" toml:"store"`
	Logging LoggingConfig `yaml:"logging,omitempty" toml:"logging"`
	Hooks   HooksConfig   `yaml:"hooks,omitempty" toml:"hooks"`
}

// CoreConfig locates the Quassel core every session dials.
type CoreConfig struct {
	Address string  `yaml:"address,omitempty" toml:"address"` // host:port
	TLS     CoreTLS `yaml:"tls,omitempty" toml:"tls"`
}

// CoreTLS configures TLS towards the core.
type CoreTLS struct {
	Enabled            bool   `yaml:"enabled,omitempty" toml:"enabled"`
	ServerName         string `yaml:"serverName,omitempty" toml:"serverName"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify,omitempty" toml:"insecureSkipVerify"`
}

// GatewayConfig controls the local IRC listener and the HTTP side
// (IRC-over-WebSocket and status).
type GatewayConfig struct {
	Listen     string      `yaml:"listen,omitempty" toml:"listen"` // IRC listener, host:port
	ServerName string      `yaml:"serverName,omitempty" toml:"serverName"`
	TLS        GatewayTLS  `yaml:"tls,omitempty" toml:"tls"`
	HTTP       GatewayHTTP `yaml:"http,omitempty" toml:"http"`
	Auth       GatewayAuth `yaml:"auth,omitempty" toml:"auth"`
}

// GatewayTLS configures TLS for the IRC listener.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty" toml:"enabled"`
	CertPath string `yaml:"certPath,omitempty" toml:"certPath"`
	KeyPath  string `yaml:"keyPath,omitempty" toml:"keyPath"`
}

// GatewayHTTP configures the WebSocket and status endpoints.
type GatewayHTTP struct {
	Enabled        bool     `yaml:"enabled,omitempty" toml:"enabled"`
	Listen         string   `yaml:"listen,omitempty" toml:"listen"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty" toml:"allowedOrigins"`
}

// GatewayAuth protects the status endpoint.
type GatewayAuth struct {
	Token string `yaml:"token,omitempty" toml:"token"`
}

// BridgeConfig tunes per-session behavior.
type BridgeConfig struct {
	Mode         string `yaml:"mode,omitempty" toml:"mode"` // "rich" | "quote" | "strict"
	BacklogLimit int    `yaml:"backlogLimit,omitempty" toml:"backlogLimit"`
}

// StoreConfig selects where resume state is kept.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty" toml:"driver"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty" toml:"path"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty" toml:"level"`               // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty" toml:"consoleStyle"` // "pretty" | "json"
	// File also receives every entry as JSON. Relative paths are under
	// the logs directory.
	File string `yaml:"file,omitempty" toml:"file"`
}

// HooksConfig defines commands run on lifecycle events.
type HooksConfig struct {
	SessionStart  []HookEntry `yaml:"sessionStart,omitempty" toml:"sessionStart"`
	SessionStatus []HookEntry `yaml:"sessionStatus,omitempty" toml:"sessionStatus"`
	SessionEnd    []HookEntry `yaml:"sessionEnd,omitempty" toml:"sessionEnd"`
	GatewayStart  []HookEntry `yaml:"gatewayStart,omitempty" toml:"gatewayStart"`
	GatewayStop   []HookEntry `yaml:"gatewayStop,omitempty" toml:"gatewayStop"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command" toml:"command"`
	Timeout int    `yaml:"timeout,omitempty" toml:"timeout"` // milliseconds
}

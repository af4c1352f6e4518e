package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_CoreAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"localhost:4242", true},
		{"[::1]:4242", true},
		{"quassel.example.org:0", true},
		{"", false},
		{"localhost", false},
		{":4242", false},
		{"localhost:99999", false},
		{"localhost:port", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			cfg := Defaults()
			cfg.Core.Address = tt.addr
			issues := Validate(&cfg)
			if tt.valid {
				assert.Empty(t, issues)
				return
			}
			require.Len(t, issues, 1)
			assert.Equal(t, "core.address", issues[0].Path)
		})
	}
}

func TestValidate_GatewayListen(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Listen = ":6667"
	assert.Empty(t, Validate(&cfg))

	cfg.Gateway.Listen = "6667"
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "gateway.listen", issues[0].Path)
}

func TestValidate_GatewayTLS(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.TLS.Enabled = true
	issues := Validate(&cfg)
	require.Len(t, issues, 2)
	assert.Equal(t, "gateway.tls.certPath", issues[0].Path)
	assert.Equal(t, "gateway.tls.keyPath", issues[1].Path)

	cfg.Gateway.TLS.CertPath = "cert.pem"
	cfg.Gateway.TLS.KeyPath = "key.pem"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_HTTPListenOnlyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.HTTP.Listen = "nope"
	assert.Empty(t, Validate(&cfg))

	cfg.Gateway.HTTP.Enabled = true
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "gateway.http.listen", issues[0].Path)
}

func TestValidate_BridgeMode(t *testing.T) {
	for _, mode := range []string{"rich", "quote", "strict", ""} {
		cfg := Defaults()
		cfg.Bridge.Mode = mode
		assert.Empty(t, Validate(&cfg), "mode %q should be valid", mode)
	}

	cfg := Defaults()
	cfg.Bridge.Mode = "passthrough"
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "bridge.mode", issues[0].Path)
}

func TestValidate_BacklogLimit(t *testing.T) {
	cfg := Defaults()
	cfg.Bridge.BacklogLimit = 0
	assert.Empty(t, Validate(&cfg))

	cfg.Bridge.BacklogLimit = -5
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "bridge.backlogLimit", issues[0].Path)
}

func TestValidate_StoreDriver(t *testing.T) {
	for _, d := range []string{"sqlite", "memory"} {
		cfg := Defaults()
		cfg.Store.Driver = d
		assert.Empty(t, Validate(&cfg))
	}

	cfg := Defaults()
	cfg.Store.Driver = "postgres"
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "store.driver", issues[0].Path)
}

func TestValidate_Logging(t *testing.T) {
	for _, level := range []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"} {
		cfg := Defaults()
		cfg.Logging.Level = level
		assert.Empty(t, Validate(&cfg), "level %q should be valid", level)
	}

	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	cfg.Logging.ConsoleStyle = "compact"
	issues := Validate(&cfg)
	require.Len(t, issues, 2)
	assert.Equal(t, "logging.level", issues[0].Path)
	assert.Equal(t, "logging.consoleStyle", issues[1].Path)
}

func TestValidate_Hooks(t *testing.T) {
	cfg := Defaults()
	cfg.Hooks.SessionStart = []HookEntry{{Command: "logger started"}}
	cfg.Hooks.SessionEnd = []HookEntry{{Command: "ok"}, {Command: "", Timeout: -1}}
	issues := Validate(&cfg)
	require.Len(t, issues, 2)
	assert.Equal(t, "hooks.sessionEnd[1].command", issues[0].Path)
	assert.Equal(t, "hooks.sessionEnd[1].timeout", issues[1].Path)
}

func TestValidationIssue_String(t *testing.T) {
	issue := ValidationIssue{Path: "core.address", Message: "address is required"}
	assert.Equal(t, "core.address: address is required", issue.String())
}

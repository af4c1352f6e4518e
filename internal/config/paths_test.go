package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"single segment", "core", []string{"core"}, false},
		{"two segments", "core.address", []string{"core", "address"}, false},
		{"three segments", "gateway.tls.enabled", []string{"gateway", "tls", "enabled"}, false},
		{"empty", "", nil, true},
		{"empty segment", "core..address", nil, true},
		{"leading dot", ".core", nil, true},
		{"trailing dot", "core.", nil, true},
		{"blocked __proto__", "foo.__proto__.bar", nil, true},
		{"blocked prototype", "prototype.x", nil, true},
		{"blocked constructor", "constructor", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestGetValueAtPath(t *testing.T) {
	root := map[string]any{
		"bridge": map[string]any{
			"backlogLimit": 100,
			"store": map[string]any{
				"driver": "sqlite",
			},
		},
		"simple": "value",
	}

	tests := []struct {
		name string
		path []string
		want any
		ok   bool
	}{
		{"nested value", []string{"bridge", "backlogLimit"}, 100, true},
		{"deeply nested", []string{"bridge", "store", "driver"}, "sqlite", true},
		{"top level", []string{"simple"}, "value", true},
		{"missing key", []string{"nonexistent"}, nil, false},
		{"missing nested", []string{"bridge", "nonexistent"}, nil, false},
		{"non-map intermediate", []string{"simple", "sub"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, ok := GetValueAtPath(root, tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, val)
			}
		})
	}
}

func TestSetValueAtPath_Update(t *testing.T) {
	root := map[string]any{
		"core": map[string]any{
			"address": "localhost:4242",
		},
	}

	SetValueAtPath(root, []string{"core", "address"}, "quassel.example:4242")
	val, ok := GetValueAtPath(root, []string{"core", "address"})
	assert.True(t, ok)
	assert.Equal(t, "quassel.example:4242", val)
}

func TestSetValueAtPath_CreatesIntermediates(t *testing.T) {
	root := map[string]any{}

	SetValueAtPath(root, []string{"a", "b", "c"}, "deep")
	val, ok := GetValueAtPath(root, []string{"a", "b", "c"})
	assert.True(t, ok)
	assert.Equal(t, "deep", val)
}

func TestSetValueAtPath_OverwritesNonMap(t *testing.T) {
	root := map[string]any{
		"gateway": "string-not-map",
	}

	SetValueAtPath(root, []string{"gateway", "listen"}, ":6667")
	val, ok := GetValueAtPath(root, []string{"gateway", "listen"})
	assert.True(t, ok)
	assert.Equal(t, ":6667", val)
}

func TestUnsetValueAtPath_PreserveSiblings(t *testing.T) {
	root := map[string]any{
		"bridge": map[string]any{
			"mode":         "strict",
			"backlogLimit": 50,
		},
	}

	assert.True(t, UnsetValueAtPath(root, []string{"bridge", "mode"}))

	_, found := GetValueAtPath(root, []string{"bridge", "mode"})
	assert.False(t, found)

	val, found := GetValueAtPath(root, []string{"bridge", "backlogLimit"})
	assert.True(t, found)
	assert.Equal(t, 50, val)
}

func TestUnsetValueAtPath_Missing(t *testing.T) {
	root := map[string]any{
		"gateway": "string",
		"bridge":  map[string]any{"mode": "rich"},
	}
	assert.False(t, UnsetValueAtPath(root, []string{"bridge", "nonexistent"}))
	assert.False(t, UnsetValueAtPath(root, []string{"a", "b", "c"}))
	assert.False(t, UnsetValueAtPath(root, []string{"gateway", "listen"}))
}

func TestResolvePaths_Default(t *testing.T) {
	t.Setenv("QBRIDGE_HOME", "")

	paths, err := ResolvePaths()
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".qbridge")
	assert.Equal(t, base, paths.Base)
	assert.Equal(t, filepath.Join(base, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(base, "data"), paths.Data)
	assert.Equal(t, filepath.Join(base, "data", "qbridge.db"), paths.Database)
	assert.Equal(t, filepath.Join(base, "logs"), paths.Logs)
}

func TestResolvePaths_CustomHome(t *testing.T) {
	t.Setenv("QBRIDGE_HOME", "/tmp/qb")

	paths, err := ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/qb", paths.Base)
	assert.Equal(t, "/tmp/qb/config.yaml", paths.Config)
	assert.Equal(t, "/tmp/qb/data/qbridge.db", paths.Database)
}

func TestStorePath(t *testing.T) {
	paths := Paths{Database: "/var/lib/qbridge/qbridge.db"}
	cfg := Defaults()
	assert.Equal(t, "/var/lib/qbridge/qbridge.db", paths.StorePath(&cfg))

	cfg.Store.Path = "/srv/state.db"
	assert.Equal(t, "/srv/state.db", paths.StorePath(&cfg))
}

func TestLogFile(t *testing.T) {
	paths := Paths{Logs: "/home/a/.qbridge/logs"}
	cfg := Defaults()
	assert.Empty(t, paths.LogFile(&cfg))

	cfg.Logging.File = "qbridge.log"
	assert.Equal(t, "/home/a/.qbridge/logs/qbridge.log", paths.LogFile(&cfg))

	cfg.Logging.File = "/var/log/qbridge.log"
	assert.Equal(t, "/var/log/qbridge.log", paths.LogFile(&cfg))
}

func TestEnsureDirs(t *testing.T) {
	tmpDir := t.TempDir()
	paths := Paths{
		Base: tmpDir,
		Data: filepath.Join(tmpDir, "data"),
		Logs: filepath.Join(tmpDir, "logs"),
	}

	require.NoError(t, paths.EnsureDirs())
	require.NoError(t, paths.EnsureDirs())

	for _, dir := range []string{paths.Base, paths.Data, paths.Logs} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestBlockedKeys(t *testing.T) {
	assert.True(t, blockedKeys["__proto__"])
	assert.True(t, blockedKeys["prototype"])
	assert.True(t, blockedKeys["constructor"])
	assert.False(t, blockedKeys["core"])
}

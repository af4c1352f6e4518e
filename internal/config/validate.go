package config

import (
	"fmt"
	"net"
	"slices"
	"strconv"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// checkHostPort returns a message describing why addr is not host:port,
// or "" when it is.
func checkHostPort(addr string, requireHost bool) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("must be host:port, got %q", addr)
	}
	if requireHost && host == "" {
		return "host is required"
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Sprintf("port must be 0-65535, got %q", port)
	}
	return ""
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Core validation
	if cfg.Core.Address == "" {
		issues = append(issues, ValidationIssue{
			Path:    "core.address",
			Message: "address is required",
		})
	} else if msg := checkHostPort(cfg.Core.Address, true); msg != "" {
		issues = append(issues, ValidationIssue{Path: "core.address", Message: msg})
	}

	// Gateway validation
	if cfg.Gateway.Listen != "" {
		if msg := checkHostPort(cfg.Gateway.Listen, false); msg != "" {
			issues = append(issues, ValidationIssue{Path: "gateway.listen", Message: msg})
		}
	}
	if cfg.Gateway.TLS.Enabled {
		if cfg.Gateway.TLS.CertPath == "" {
			issues = append(issues, ValidationIssue{
				Path:    "gateway.tls.certPath",
				Message: "required when TLS is enabled",
			})
		}
		if cfg.Gateway.TLS.KeyPath == "" {
			issues = append(issues, ValidationIssue{
				Path:    "gateway.tls.keyPath",
				Message: "required when TLS is enabled",
			})
		}
	}
	if cfg.Gateway.HTTP.Enabled && cfg.Gateway.HTTP.Listen != "" {
		if msg := checkHostPort(cfg.Gateway.HTTP.Listen, false); msg != "" {
			issues = append(issues, ValidationIssue{Path: "gateway.http.listen", Message: msg})
		}
	}

	// Bridge validation
	validModes := []string{"rich", "quote", "strict"}
	if cfg.Bridge.Mode != "" && !slices.Contains(validModes, cfg.Bridge.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "bridge.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validModes, cfg.Bridge.Mode),
		})
	}
	if cfg.Bridge.BacklogLimit < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "bridge.backlogLimit",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Bridge.BacklogLimit),
		})
	}

	// Store validation
	validDrivers := []string{"sqlite", "memory"}
	if cfg.Store.Driver != "" && !slices.Contains(validDrivers, cfg.Store.Driver) {
		issues = append(issues, ValidationIssue{
			Path:    "store.driver",
			Message: fmt.Sprintf("must be one of %v, got %q", validDrivers, cfg.Store.Driver),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// Hooks validation
	hookLists := []struct {
		path    string
		entries []HookEntry
	}{
		{"hooks.sessionStart", cfg.Hooks.SessionStart},
		{"hooks.sessionStatus", cfg.Hooks.SessionStatus},
		{"hooks.sessionEnd", cfg.Hooks.SessionEnd},
		{"hooks.gatewayStart", cfg.Hooks.GatewayStart},
		{"hooks.gatewayStop", cfg.Hooks.GatewayStop},
	}
	for _, hl := range hookLists {
		for i, h := range hl.entries {
			path := fmt.Sprintf("%s[%d]", hl.path, i)
			if h.Command == "" {
				issues = append(issues, ValidationIssue{Path: path + ".command", Message: "command is required"})
			}
			if h.Timeout < 0 {
				issues = append(issues, ValidationIssue{
					Path:    path + ".timeout",
					Message: fmt.Sprintf("must not be negative, got %d", h.Timeout),
				})
			}
		}
	}

	return issues
}

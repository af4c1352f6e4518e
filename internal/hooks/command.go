package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/qbridge/internal/config"
)

// DefaultCommandTimeout bounds a hook command that sets no timeout.
const DefaultCommandTimeout = 10 * time.Second

// Command returns a Handler that runs command through sh -c with the
// payload as JSON on stdin. QBRIDGE_EVENT is set in its environment.
func Command(command string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return func(ctx context.Context, p Payload) error {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(body)
		cmd.Env = append(cmd.Environ(), "QBRIDGE_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		// Children of sh may hold stderr open after sh is killed.
		cmd.WaitDelay = time.Second

		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook %q: %w: %s", command, err, msg)
			}
			return fmt.Errorf("hook %q: %w", command, err)
		}
		return nil
	}
}

// FromConfig registers a command handler for every configured hook entry.
func (m *Manager) FromConfig(cfg config.HooksConfig) {
	lists := []struct {
		event   string
		entries []config.HookEntry
	}{
		{EventSessionStart, cfg.SessionStart},
		{EventSessionStatus, cfg.SessionStatus},
		{EventSessionEnd, cfg.SessionEnd},
		{EventGatewayStart, cfg.GatewayStart},
		{EventGatewayStop, cfg.GatewayStop},
	}
	for _, l := range lists {
		for i, e := range l.entries {
			name := fmt.Sprintf("config:%s[%d]", l.event, i)
			m.On(l.event, name, Command(e.Command, time.Duration(e.Timeout)*time.Millisecond))
		}
	}
}

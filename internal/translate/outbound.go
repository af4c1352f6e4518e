package translate

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/qbridge/internal/domain"
)

// ErrNoBuffer is returned in strict mode when a PRIVMSG or NOTICE names a
// target with no known buffer.
var ErrNoBuffer = errors.New("translate: no buffer for target")

// Mode selects how outbound lines are mapped.
type Mode int

const (
	// ModeRich maps PRIVMSG and NOTICE to buffer-bound input and sends
	// everything else raw through the status buffer.
	ModeRich Mode = iota
	// ModeQuote sends every line raw through the status buffer.
	ModeQuote
	// ModeStrict is ModeRich but rejects messages to unknown targets.
	ModeStrict
)

func (m Mode) String() string {
	switch m {
	case ModeRich:
		return "rich"
	case ModeQuote:
		return "quote"
	case ModeStrict:
		return "strict"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "rich":
		return ModeRich, nil
	case "quote":
		return ModeQuote, nil
	case "strict":
		return ModeStrict, nil
	default:
		return ModeRich, fmt.Errorf("unknown outbound mode %q", s)
	}
}

// Action is user input bound to a buffer, sent to the core as-is.
type Action struct {
	Buffer domain.BufferInfo
	Text   string
}

// None reports whether the line produced nothing to send.
func (a Action) None() bool { return a.Text == "" }

// Outbound converts a raw line from the IRC client into input for the
// core. QUIT is always swallowed: the session ends when the client
// disconnects, not when it says goodbye.
func (t *Translator) Outbound(line string) (Action, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || isQuit(line) {
		return Action{}, nil
	}
	if t.mode == ModeQuote {
		return t.quote(line), nil
	}

	// PRIVMSG and NOTICE take exactly a target and a text; anything else,
	// such as unquoted multi-word text, goes to the core verbatim.
	ev := girc.ParseEvent(line)
	if ev == nil || len(ev.Params) != 2 {
		return t.quote(line), nil
	}
	cmd := strings.ToUpper(ev.Command)
	if cmd != girc.PRIVMSG && cmd != girc.NOTICE {
		return t.quote(line), nil
	}

	target, text := ev.Params[0], ev.Params[1]
	buf, ok := t.buffers.Lookup(target)
	if !ok {
		if t.mode == ModeStrict {
			return Action{}, fmt.Errorf("%w: %s", ErrNoBuffer, target)
		}
		return t.quote(line), nil
	}

	switch {
	case strings.HasPrefix(text, actionPrefix) && strings.HasSuffix(text, ctcpDelim) && len(text) > len(actionPrefix):
		return Action{Buffer: buf, Text: "/ME " + strings.TrimSuffix(strings.TrimPrefix(text, actionPrefix), ctcpDelim)}, nil
	case cmd == girc.PRIVMSG:
		return Action{Buffer: buf, Text: "/SAY " + text}, nil
	default:
		return Action{Buffer: buf, Text: "/NOTICE " + buf.Name + " " + text}, nil
	}
}

func (t *Translator) quote(line string) Action {
	return Action{Buffer: domain.StatusBuffer(t.network), Text: "/QUOTE " + line}
}

// isQuit matches a bare QUIT command, optionally followed by whitespace
// and parameters.
func isQuit(line string) bool {
	if len(line) < 4 || !strings.EqualFold(line[:4], "QUIT") {
		return false
	}
	return len(line) == 4 || unicode.IsSpace(rune(line[4]))
}

package translate

import (
	"strings"
	"time"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/qbridge/internal/domain"
)

// ErrUnknownError is the numeric used for terminal error text.
const ErrUnknownError = "400"

// Channel is the state needed to present a joined channel to the client.
type Channel struct {
	Name  string
	Topic string
	// Users are nicks already carrying their mode prefix, e.g. "@alice".
	Users []string
}

func (t *Translator) line(command string, params ...string) domain.LineCommand {
	return domain.LineCommand{
		Prefix:  t.Prefix(),
		Command: command,
		Params:  params,
		Time:    time.Now().UTC(),
	}
}

// Info is a numeric reply addressed to our nick carrying one line of text.
func (t *Translator) Info(code, text string) domain.LineCommand {
	return t.line(code, t.nick, text)
}

// Error is the single line reported for a terminal failure.
func (t *Translator) Error(err error) domain.LineCommand {
	return t.Info(ErrUnknownError, err.Error())
}

// Ready is sent once the network is synchronized.
func (t *Translator) Ready() domain.LineCommand {
	return t.Info(girc.RPL_MYINFO, "Done")
}

// Support advertises network parameters. Empty values are left out.
func (t *Translator) Support(tokens map[string]string) domain.LineCommand {
	params := []string{t.nick}
	for _, key := range []string{"NETWORK", "PREFIX", "CHANTYPES"} {
		if v := tokens[key]; v != "" {
			params = append(params, key+"="+v)
		}
	}
	params = append(params, "are supported by this server")
	return t.line(girc.RPL_ISUPPORT, params...)
}

// Join presents a channel: JOIN, topic and names.
func (t *Translator) Join(ch Channel) []domain.LineCommand {
	out := []domain.LineCommand{t.line(girc.JOIN, ch.Name)}
	out = append(out, t.Topic(ch))
	out = append(out, t.Names(ch)...)
	return out
}

// Topic renders RPL_TOPIC, or RPL_NOTOPIC when the topic is empty.
func (t *Translator) Topic(ch Channel) domain.LineCommand {
	if ch.Topic == "" {
		return t.line(girc.RPL_NOTOPIC, t.nick, ch.Name, "No topic is set")
	}
	return t.line(girc.RPL_TOPIC, t.nick, ch.Name, ch.Topic)
}

// Names renders the member list, split so no line grows unreasonably.
func (t *Translator) Names(ch Channel) []domain.LineCommand {
	const perLine = 40
	var out []domain.LineCommand
	for start := 0; start < len(ch.Users); start += perLine {
		end := min(start+perLine, len(ch.Users))
		out = append(out, t.line(girc.RPL_NAMREPLY, t.nick, "=", ch.Name, strings.Join(ch.Users[start:end], " ")))
	}
	out = append(out, t.line(girc.RPL_ENDOFNAMES, t.nick, ch.Name, "End of /NAMES list."))
	return out
}

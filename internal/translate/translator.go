// Package translate converts between Quassel messages and IRC lines.
package translate

import (
	"strings"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/qbridge/internal/domain"
	"github.com/soyeahso/qbridge/internal/logging"
)

const (
	// netsplitSep separates nicks and the reason in netsplit contents.
	netsplitSep = "#:#"

	actionPrefix = "\x01ACTION "
	ctcpDelim    = "\x01"
)

// Translator holds the per-connection translation state: the bound
// network, our nick and the buffer table.
type Translator struct {
	user    string
	nick    string
	network domain.NetworkID
	mode    Mode
	buffers *BufferTable
	log     *logging.Logger
}

// New creates a translator for user, who appears on the IRC side as nick.
func New(user, nick string, mode Mode, log *logging.Logger) *Translator {
	return &Translator{
		user:    user,
		nick:    nick,
		mode:    mode,
		buffers: NewBufferTable(),
		log:     log.Sub("translate"),
	}
}

func (t *Translator) Buffers() *BufferTable { return t.buffers }

func (t *Translator) Nick() string { return t.nick }

// SetNick updates the local nickname used in numerics and invites.
func (t *Translator) SetNick(nick string) {
	if nick != "" {
		t.nick = nick
	}
}

// Bind fixes the network raw input is sent to. The first call wins.
func (t *Translator) Bind(network domain.NetworkID) {
	if !t.network.Valid() {
		t.network = network
	}
}

func (t *Translator) Network() domain.NetworkID { return t.network }

// Prefix is the source used for lines the bridge synthesizes itself.
func (t *Translator) Prefix() string {
	return t.nick + "!" + t.user + "@quassel"
}

// Translate converts one core message into zero or more IRC lines.
func (t *Translator) Translate(m domain.Message) []domain.LineCommand {
	if m.Has(domain.FlagSelf) {
		return nil
	}

	buffer := m.Buffer.Name
	var out []domain.LineCommand
	emit := func(prefix, command string, params ...string) {
		out = append(out, domain.LineCommand{
			Prefix:   prefix,
			Command:  command,
			Params:   params,
			Time:     m.Timestamp,
			Playback: m.Has(domain.FlagBacklog),
		})
	}

	switch m.Type {
	case domain.MessagePlain:
		emit(m.Sender, girc.PRIVMSG, buffer, m.Contents)
	case domain.MessageNotice:
		emit(m.Sender, girc.NOTICE, buffer, m.Contents)
	case domain.MessageAction:
		emit(m.Sender, girc.PRIVMSG, buffer, actionPrefix+m.Contents+ctcpDelim)
	case domain.MessageJoin, domain.MessagePart:
		cmd := girc.JOIN
		if m.Type == domain.MessagePart {
			cmd = girc.PART
		}
		if m.Contents == "" {
			emit(m.Sender, cmd, buffer)
		} else {
			emit(m.Sender, cmd, buffer, m.Contents)
		}
	case domain.MessageNick:
		emit(m.Sender, girc.NICK, m.Contents)
	case domain.MessageQuit:
		emit(m.Sender, girc.QUIT, m.Contents)
	case domain.MessageMode:
		emit(m.Sender, girc.MODE, strings.Fields(m.Contents)...)
	case domain.MessageKick:
		split := strings.Fields(m.Contents)
		if len(split) == 0 {
			t.log.Debug().Str("buffer", buffer).Msg("kick without victim")
			return nil
		}
		if len(split) == 1 {
			emit(m.Sender, girc.KICK, buffer, split[0])
		} else {
			emit(m.Sender, girc.KICK, buffer, split[0], strings.Join(split[1:], " "))
		}
	case domain.MessageInvite:
		split := strings.Fields(m.Contents)
		if len(split) == 0 {
			t.log.Debug().Str("type", m.Type.String()).Msg("invite without contents")
			return nil
		}
		emit(split[0], girc.INVITE, t.nick, split[len(split)-1])
	case domain.MessageServer:
		emit(m.Sender, girc.RPL_WELCOME, "*", m.Contents)
	case domain.MessageError:
		emit("ERROR", girc.NOTICE, "*", m.Contents)
	case domain.MessageNetsplitQuit:
		split := strings.Split(m.Contents, netsplitSep)
		reason := split[len(split)-1]
		for _, nick := range split[:len(split)-1] {
			emit(nick, girc.QUIT, reason)
		}
	case domain.MessageTopic:
		// The contents are a localized sentence ("Topic for #x is ...",
		// "nick has changed topic for #x to: ...") with no reliable
		// structure, so no TOPIC line is produced.
		t.log.Debug().Str("buffer", buffer).Msg("topic message not translated")
	default:
		// kill, info, day change, netsplit join and unknown types
		t.log.Debug().
			Str("type", m.Type.String()).
			Str("sender", m.Sender).
			Str("contents", m.Contents).
			Msg("message not translated")
	}
	return out
}

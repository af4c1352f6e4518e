package translate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/soyeahso/qbridge/internal/domain"
	"github.com/soyeahso/qbridge/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ts      = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	chanBuf = domain.BufferInfo{ID: 10, NetworkID: 42, Type: domain.BufferChannel, Name: "#chan"}
)

func newTranslator(mode Mode) *Translator {
	tr := New("alice", "alice_", mode, logging.New(nil, "silent"))
	tr.Bind(42)
	return tr
}

func msg(typ domain.MessageType, contents string) domain.Message {
	return domain.Message{
		ID:        1,
		Type:      typ,
		Sender:    "bob!b@host",
		Buffer:    chanBuf,
		Contents:  contents,
		Timestamp: ts,
	}
}

func TestTranslate_Table(t *testing.T) {
	tests := []struct {
		name   string
		in     domain.Message
		prefix string
		cmd    string
		params []string
	}{
		{"plain", msg(domain.MessagePlain, "hi"), "bob!b@host", "PRIVMSG", []string{"#chan", "hi"}},
		{"notice", msg(domain.MessageNotice, "psst"), "bob!b@host", "NOTICE", []string{"#chan", "psst"}},
		{"action", msg(domain.MessageAction, "waves"), "bob!b@host", "PRIVMSG", []string{"#chan", "\x01ACTION waves\x01"}},
		{"join", msg(domain.MessageJoin, ""), "bob!b@host", "JOIN", []string{"#chan"}},
		{"part with reason", msg(domain.MessagePart, "bye"), "bob!b@host", "PART", []string{"#chan", "bye"}},
		{"part without reason", msg(domain.MessagePart, ""), "bob!b@host", "PART", []string{"#chan"}},
		{"nick", msg(domain.MessageNick, "robert"), "bob!b@host", "NICK", []string{"robert"}},
		{"quit", msg(domain.MessageQuit, "Ping timeout"), "bob!b@host", "QUIT", []string{"Ping timeout"}},
		{"mode", msg(domain.MessageMode, "#chan +o  carol"), "bob!b@host", "MODE", []string{"#chan", "+o", "carol"}},
		{"kick", msg(domain.MessageKick, "carol you know   why"), "bob!b@host", "KICK", []string{"#chan", "carol", "you know why"}},
		{"kick without reason", msg(domain.MessageKick, " carol "), "bob!b@host", "KICK", []string{"#chan", "carol"}},
		{"invite", msg(domain.MessageInvite, "dave invited you to #secret"), "dave", "INVITE", []string{"alice_", "#secret"}},
		{"server", msg(domain.MessageServer, "This server was created today"), "bob!b@host", "001", []string{"*", "This server was created today"}},
		{"error", msg(domain.MessageError, "Cannot join"), "ERROR", "NOTICE", []string{"*", "Cannot join"}},
	}

	tr := newTranslator(ModeRich)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tr.Translate(tt.in)
			require.Len(t, out, 1)
			assert.Equal(t, tt.prefix, out[0].Prefix)
			assert.Equal(t, tt.cmd, out[0].Command)
			assert.Equal(t, tt.params, out[0].Params)
			assert.Equal(t, ts, out[0].Time)
			assert.False(t, out[0].Playback)
		})
	}
}

func TestTranslate_ProducesNothing(t *testing.T) {
	tr := newTranslator(ModeRich)
	for _, typ := range []domain.MessageType{
		domain.MessageTopic,
		domain.MessageKill,
		domain.MessageInfo,
		domain.MessageDayChange,
		domain.MessageNetsplitJoin,
		domain.MessageType(0x40000),
	} {
		t.Run(typ.String(), func(t *testing.T) {
			assert.Empty(t, tr.Translate(msg(typ, "Topic for #chan is \"hello\"")))
		})
	}
}

func TestTranslate_KickWithoutVictim(t *testing.T) {
	tr := newTranslator(ModeRich)
	for _, contents := range []string{"", "   "} {
		assert.Empty(t, tr.Translate(msg(domain.MessageKick, contents)), "%q", contents)
	}
}

func TestTranslate_SelfProducesNothing(t *testing.T) {
	tr := newTranslator(ModeRich)
	for typ := domain.MessagePlain; typ <= domain.MessageInvite; typ <<= 1 {
		m := msg(typ, "nick1#:#nick2#:#gone")
		m.Flags = domain.FlagSelf | domain.FlagBacklog
		assert.Empty(t, tr.Translate(m), "type %s", typ)
	}
}

func TestTranslate_NetsplitQuit(t *testing.T) {
	tr := newTranslator(ModeRich)
	out := tr.Translate(msg(domain.MessageNetsplitQuit, "nick1#:#nick2#:#gone"))
	require.Len(t, out, 2)
	assert.Equal(t, "nick1", out[0].Prefix)
	assert.Equal(t, "nick2", out[1].Prefix)
	for _, l := range out {
		assert.Equal(t, "QUIT", l.Command)
		assert.Equal(t, []string{"gone"}, l.Params)
	}

	out = tr.Translate(msg(domain.MessageNetsplitQuit, "a#:#b#:#c#:#d#:#hub.example leaf.example"))
	require.Len(t, out, 4)
	assert.Equal(t, "d", out[3].Prefix)
	assert.Equal(t, []string{"hub.example leaf.example"}, out[3].Params)

	assert.Empty(t, tr.Translate(msg(domain.MessageNetsplitQuit, "only-a-reason")))
}

func TestTranslate_BacklogIsPlayback(t *testing.T) {
	tr := newTranslator(ModeRich)
	m := msg(domain.MessageNetsplitQuit, "nick1#:#nick2#:#gone")
	m.Flags = domain.FlagBacklog
	out := tr.Translate(m)
	require.Len(t, out, 2)
	for _, l := range out {
		assert.True(t, l.Playback)
		assert.Equal(t, ts, l.Time)
	}
}

func TestTranslate_LineBytes(t *testing.T) {
	tr := newTranslator(ModeRich)
	out := tr.Translate(msg(domain.MessageAction, "waves"))
	require.Len(t, out, 1)
	line := string(out[0].Bytes())
	assert.True(t, strings.HasPrefix(line, ":bob!b@host "), line)
	assert.Contains(t, line, "PRIVMSG #chan :\x01ACTION waves\x01")
}

func TestOutbound_Rich(t *testing.T) {
	tr := newTranslator(ModeRich)
	require.NoError(t, tr.Buffers().Add(chanBuf))

	tests := []struct {
		name string
		line string
		want Action
	}{
		{"action", "PRIVMSG #chan :\x01ACTION waves\x01", Action{Buffer: chanBuf, Text: "/ME waves"}},
		{"privmsg", "PRIVMSG #chan :hello there", Action{Buffer: chanBuf, Text: "/SAY hello there"}},
		{"case insensitive target", "PRIVMSG #CHAN :hi", Action{Buffer: chanBuf, Text: "/SAY hi"}},
		{"notice", "NOTICE #chan :heads up", Action{Buffer: chanBuf, Text: "/NOTICE #chan heads up"}},
		{"unknown target falls back", "PRIVMSG carol :hey", Action{Buffer: domain.StatusBuffer(42), Text: "/QUOTE PRIVMSG carol :hey"}},
		{"unquoted words pass through", "PRIVMSG #chan hello world", Action{Buffer: domain.StatusBuffer(42), Text: "/QUOTE PRIVMSG #chan hello world"}},
		{"single unquoted word", "PRIVMSG #chan hello", Action{Buffer: chanBuf, Text: "/SAY hello"}},
		{"other command", "MODE #chan +m", Action{Buffer: domain.StatusBuffer(42), Text: "/QUOTE MODE #chan +m"}},
		{"crlf trimmed", "JOIN #go\r\n", Action{Buffer: domain.StatusBuffer(42), Text: "/QUOTE JOIN #go"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.Outbound(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutbound_QuitIsSwallowed(t *testing.T) {
	for _, mode := range []Mode{ModeRich, ModeQuote, ModeStrict} {
		tr := newTranslator(mode)
		for _, line := range []string{"QUIT", "QUIT :bye", "quit   ", "Quit\tsee you"} {
			got, err := tr.Outbound(line)
			require.NoError(t, err)
			assert.True(t, got.None(), "%s: %q", mode, line)
		}
	}

	tr := newTranslator(ModeRich)
	got, err := tr.Outbound("QUITTER")
	require.NoError(t, err)
	assert.Equal(t, "/QUOTE QUITTER", got.Text)
}

func TestOutbound_Strict(t *testing.T) {
	tr := newTranslator(ModeStrict)
	require.NoError(t, tr.Buffers().Add(chanBuf))

	_, err := tr.Outbound("PRIVMSG #nowhere :hi")
	assert.ErrorIs(t, err, ErrNoBuffer)

	got, err := tr.Outbound("PRIVMSG #chan :\x01ACTION waves\x01")
	require.NoError(t, err)
	assert.Equal(t, Action{Buffer: chanBuf, Text: "/ME waves"}, got)

	got, err = tr.Outbound("PRIVMSG #chan two words")
	require.NoError(t, err)
	assert.Equal(t, "/QUOTE PRIVMSG #chan two words", got.Text)
}

func TestOutbound_Quote(t *testing.T) {
	tr := newTranslator(ModeQuote)
	require.NoError(t, tr.Buffers().Add(chanBuf))

	got, err := tr.Outbound("PRIVMSG #chan :hi")
	require.NoError(t, err)
	assert.Equal(t, Action{Buffer: domain.StatusBuffer(42), Text: "/QUOTE PRIVMSG #chan :hi"}, got)
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeRich, ModeQuote, ModeStrict} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeRich, got)
	_, err = ParseMode("loud")
	assert.Error(t, err)
}

func TestSynthesizedLines(t *testing.T) {
	tr := newTranslator(ModeRich)
	assert.Equal(t, "alice_!alice@quassel", tr.Prefix())

	info := tr.Info("004", "Welcome to Quassel")
	assert.Equal(t, "alice_!alice@quassel", info.Prefix)
	assert.Equal(t, []string{"alice_", "Welcome to Quassel"}, info.Params)

	e := tr.Error(errors.New("login failed: nope"))
	assert.Equal(t, ErrUnknownError, e.Command)
	assert.Equal(t, []string{"alice_", "login failed: nope"}, e.Params)

	sup := tr.Support(map[string]string{"NETWORK": "Libera", "PREFIX": "(ov)@+", "CHANTYPES": ""})
	assert.Equal(t, "005", sup.Command)
	assert.Equal(t, []string{"alice_", "NETWORK=Libera", "PREFIX=(ov)@+", "are supported by this server"}, sup.Params)

	lines := tr.Join(Channel{Name: "#go", Topic: "gophers", Users: []string{"@bob", "alice_"}})
	require.Len(t, lines, 4)
	assert.Equal(t, "JOIN", lines[0].Command)
	assert.Equal(t, []string{"#go"}, lines[0].Params)
	assert.Equal(t, "332", lines[1].Command)
	assert.Equal(t, []string{"alice_", "#go", "gophers"}, lines[1].Params)
	assert.Equal(t, "353", lines[2].Command)
	assert.Equal(t, []string{"alice_", "=", "#go", "@bob alice_"}, lines[2].Params)
	assert.Equal(t, "366", lines[3].Command)

	noTopic := tr.Topic(Channel{Name: "#quiet"})
	assert.Equal(t, "331", noTopic.Command)
}

func TestSetNickAndBind(t *testing.T) {
	tr := newTranslator(ModeRich)
	tr.SetNick("")
	assert.Equal(t, "alice_", tr.Nick())
	tr.SetNick("alice")
	assert.Equal(t, "alice", tr.Nick())

	tr.Bind(7)
	assert.Equal(t, domain.NetworkID(42), tr.Network())
}

// Package netsync drives the signal-proxy traffic after login: it
// synchronizes the bound Network object, answers heartbeats, requests
// backlog and feeds core messages to the translator.
package netsync

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/soyeahso/qbridge/internal/domain"
	"github.com/soyeahso/qbridge/internal/logging"
	"github.com/soyeahso/qbridge/internal/quassel"
	"github.com/soyeahso/qbridge/internal/store"
	"github.com/soyeahso/qbridge/internal/translate"
)

// DefaultBacklogLimit is the number of messages requested on connect.
const DefaultBacklogLimit = 100

const (
	classNetwork = "Network"
	classBacklog = "BacklogManager"
	classChannel = "IrcChannel"

	signalDisplayMsg    = "2displayMsg(Message)"
	signalBufferUpdated = "2bufferInfoUpdated(BufferInfo)"
	signalSendInput     = "2sendInput(BufferInfo,QString)"
)

// Dispatcher sends messages to the core.
type Dispatcher interface {
	Dispatch(m quassel.Message) error
}

// Update is the outcome of one handled message.
type Update struct {
	Lines []domain.LineCommand
	// Ready is set on the update that completes network synchronization.
	Ready bool
}

// Syncer is owned by a single goroutine; none of its methods are safe for
// concurrent use.
type Syncer struct {
	d       Dispatcher
	tr      *translate.Translator
	state   store.State
	user    string
	limit   int
	network domain.NetworkID
	object  string
	cursor  domain.MsgID
	ready   bool
	log     *logging.Logger

	// Set while a backlog request is outstanding: the cursor it was sent
	// with and the ids delivered live since.
	pending     bool
	backlogFrom domain.MsgID
	live        map[domain.MsgID]struct{}
}

// New creates a syncer for user. A limit of 0 uses DefaultBacklogLimit.
func New(d Dispatcher, tr *translate.Translator, state store.State, user string, limit int, log *logging.Logger) *Syncer {
	if limit <= 0 {
		limit = DefaultBacklogLimit
	}
	if state == nil {
		state = store.NewMemoryState()
	}
	return &Syncer{
		d:      d,
		tr:     tr,
		state:  state,
		user:   user,
		limit:  limit,
		cursor: -1,
		log:    log.Sub("netsync"),
	}
}

func (s *Syncer) Ready() bool { return s.ready }

// Cursor is the id of the newest message delivered so far, or -1.
func (s *Syncer) Cursor() domain.MsgID { return s.cursor }

// Start binds the syncer to network, seeds the buffer table and asks the
// core for the network's state.
func (s *Syncer) Start(network domain.NetworkID, seed []domain.BufferInfo) error {
	s.network = network
	s.object = network.String()
	s.tr.Bind(network)

	stored, err := s.state.Buffers(s.user, network)
	if err != nil {
		s.log.Warn().Err(err).Msg("loading stored buffers")
	}
	for _, b := range slices.Concat(seed, stored) {
		s.addBuffer(b)
	}

	if id, ok, err := s.state.LastMessage(s.user, network); err != nil {
		s.log.Warn().Err(err).Msg("loading backlog cursor")
	} else if ok {
		s.cursor = id
	}

	s.log.Debug().Str("network", s.object).Int("buffers", s.tr.Buffers().Len()).Msg("requesting network state")
	return s.d.Dispatch(quassel.InitRequest{Class: classNetwork, Object: s.object})
}

// Handle consumes one signal-proxy message. Errors are transport failures.
func (s *Syncer) Handle(m quassel.Message) (Update, error) {
	switch msg := m.(type) {
	case quassel.HeartBeat:
		return Update{}, s.d.Dispatch(quassel.HeartBeatReply{Time: msg.Time})
	case quassel.HeartBeatReply:
		return Update{}, nil
	case quassel.InitData:
		if msg.Class == classNetwork && msg.Object == s.object && !s.ready {
			return s.networkReady(msg.Properties)
		}
	case quassel.RPCCall:
		return s.rpc(msg), nil
	case quassel.SyncMessage:
		return s.sync(msg), nil
	}
	return Update{}, nil
}

// SendInput forwards outbound user input to the core.
func (s *Syncer) SendInput(a translate.Action) error {
	if a.None() {
		return nil
	}
	return s.d.Dispatch(quassel.RPCCall{
		Signal: signalSendInput,
		Params: quassel.VariantList{a.Buffer, a.Text},
	})
}

func (s *Syncer) networkReady(props quassel.VariantMap) (Update, error) {
	st := parseNetwork(props)
	s.tr.SetNick(st.nick)
	s.ready = true

	lines := []domain.LineCommand{s.tr.Ready(), s.tr.Support(st.supports)}
	for _, ch := range st.channels {
		lines = append(lines, s.tr.Join(ch)...)
	}
	s.log.Info().
		Str("network", s.object).
		Str("nick", s.tr.Nick()).
		Int("channels", len(st.channels)).
		Msg("network synchronized")

	s.pending = true
	s.backlogFrom = s.cursor
	s.live = make(map[domain.MsgID]struct{})
	err := s.d.Dispatch(quassel.SyncMessage{
		Class: classBacklog,
		Slot:  "requestBacklogAll",
		Params: quassel.VariantList{
			s.cursor, domain.MsgID(-1), int32(s.limit), int32(0),
		},
	})
	if err != nil {
		return Update{Lines: lines, Ready: true}, fmt.Errorf("requesting backlog: %w", err)
	}
	return Update{Lines: lines, Ready: true}, nil
}

func (s *Syncer) rpc(call quassel.RPCCall) Update {
	if len(call.Params) == 0 {
		return Update{}
	}
	switch call.Signal {
	case signalDisplayMsg:
		m, ok := call.Params[0].(domain.Message)
		if !ok || m.Buffer.NetworkID != s.network {
			return Update{}
		}
		s.addBuffer(m.Buffer)
		lines := s.tr.Translate(m)
		if s.pending {
			s.live[m.ID] = struct{}{}
		}
		s.advance(m.ID)
		return Update{Lines: lines}
	case signalBufferUpdated:
		if b, ok := call.Params[0].(domain.BufferInfo); ok && b.NetworkID == s.network {
			s.addBuffer(b)
		}
	}
	return Update{}
}

func (s *Syncer) sync(msg quassel.SyncMessage) Update {
	switch {
	case msg.Class == classBacklog && strings.HasPrefix(msg.Slot, "receiveBacklog"):
		return s.backlog(msg.Params)
	case msg.Class == classNetwork && msg.Object == s.object && msg.Slot == "setMyNick":
		if len(msg.Params) == 0 {
			return Update{}
		}
		nick := quassel.AsString(msg.Params[0])
		if nick == "" || nick == s.tr.Nick() {
			return Update{}
		}
		line := s.tr.Info("NICK", nick)
		line.Params = []string{nick}
		s.tr.SetNick(nick)
		return Update{Lines: []domain.LineCommand{line}}
	case msg.Class == classChannel && msg.Slot == "setTopic" && len(msg.Params) > 0:
		net, name, ok := strings.Cut(msg.Object, "/")
		if !ok || net != s.object || !s.ready {
			return Update{}
		}
		topic := s.tr.Topic(translate.Channel{Name: name, Topic: quassel.AsString(msg.Params[0])})
		return Update{Lines: []domain.LineCommand{topic}}
	}
	return Update{}
}

// backlog translates a backlog reply. The message list is the last
// parameter for both the per-buffer and the all-buffers reply. A reply to
// our request is filtered against the cursor it was sent with, so live
// messages that overtook it do not hide older backlog.
func (s *Syncer) backlog(params quassel.VariantList) Update {
	if len(params) == 0 {
		return Update{}
	}
	from, live := s.cursor, s.live
	if s.pending {
		from = s.backlogFrom
		s.pending, s.live = false, nil
	}
	var msgs []domain.Message
	for _, v := range quassel.AsList(params[len(params)-1]) {
		m, ok := v.(domain.Message)
		if !ok || m.Buffer.NetworkID != s.network || m.ID <= from {
			continue
		}
		if _, seen := live[m.ID]; seen {
			continue
		}
		m.Flags |= domain.FlagBacklog
		msgs = append(msgs, m)
	}
	slices.SortFunc(msgs, func(a, b domain.Message) int { return cmp.Compare(a.ID, b.ID) })

	var lines []domain.LineCommand
	for _, m := range msgs {
		s.addBuffer(m.Buffer)
		lines = append(lines, s.tr.Translate(m)...)
	}
	if len(msgs) > 0 {
		s.advance(msgs[len(msgs)-1].ID)
	}
	s.log.Debug().Int("messages", len(msgs)).Int("lines", len(lines)).Msg("backlog received")
	return Update{Lines: lines}
}

func (s *Syncer) addBuffer(b domain.BufferInfo) {
	if cur, ok := s.tr.Buffers().ByID(b.ID); ok && cur.Name == b.Name {
		return
	}
	if err := s.tr.Buffers().Add(b); err != nil {
		s.log.Warn().Err(err).Int("buffer", int(b.ID)).Msg("buffer not added")
		return
	}
	if err := s.state.SaveBuffer(s.user, b); err != nil {
		s.log.Warn().Err(err).Msg("saving buffer")
	}
}

func (s *Syncer) advance(id domain.MsgID) {
	if id <= s.cursor {
		return
	}
	s.cursor = id
	if err := s.state.SaveLastMessage(s.user, s.network, id); err != nil {
		s.log.Warn().Err(err).Int("id", int(id)).Msg("saving backlog cursor")
	}
}

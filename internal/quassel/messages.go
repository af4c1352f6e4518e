package quassel

import (
	"fmt"
	"time"

	"github.com/soyeahso/qbridge/internal/domain"
)

// Message is any handshake or signal proxy message.
type Message interface {
	quasselMessage()
}

// Handshake messages.

type RegisterClient struct {
	ClientVersion  string
	ClientDate     string
	UseSSL         bool
	UseCompression bool
	Features       uint32
}

type ClientDenied struct {
	Reason string
}

type ClientRegistered struct {
	CoreFeatures uint32
	Configured   bool
	FeatureList  []string
}

type Login struct {
	User     string
	Password string
}

type LoginFailed struct {
	Reason string
}

type LoginSuccess struct{}

// SessionState is the descriptor the core sends after a successful login.
type SessionState struct {
	NetworkIDs []domain.NetworkID
	Buffers    []domain.BufferInfo
	Identities []VariantMap
}

// Signal proxy messages.

type SyncMessage struct {
	Class  string
	Object string
	Slot   string
	Params VariantList
}

type RPCCall struct {
	Signal string
	Params VariantList
}

type InitRequest struct {
	Class  string
	Object string
}

type InitData struct {
	Class      string
	Object     string
	Properties VariantMap
}

type HeartBeat struct {
	Time time.Time
}

type HeartBeatReply struct {
	Time time.Time
}

func (RegisterClient) quasselMessage()   {}
func (ClientDenied) quasselMessage()     {}
func (ClientRegistered) quasselMessage() {}
func (Login) quasselMessage()            {}
func (LoginFailed) quasselMessage()      {}
func (LoginSuccess) quasselMessage()     {}
func (SessionState) quasselMessage()     {}
func (SyncMessage) quasselMessage()      {}
func (RPCCall) quasselMessage()          {}
func (InitRequest) quasselMessage()      {}
func (InitData) quasselMessage()         {}
func (HeartBeat) quasselMessage()        {}
func (HeartBeatReply) quasselMessage()   {}

// Signal proxy request types.
const (
	requestSync           int32 = 1
	requestRPCCall        int32 = 2
	requestInitRequest    int32 = 3
	requestInitData       int32 = 4
	requestHeartBeat      int32 = 5
	requestHeartBeatReply int32 = 6
)

// Handshake MsgType values.
const (
	msgClientInit       = "ClientInit"
	msgClientInitReject = "ClientInitReject"
	msgClientInitAck    = "ClientInitAck"
	msgClientLogin      = "ClientLogin"
	msgClientLoginRej   = "ClientLoginReject"
	msgClientLoginAck   = "ClientLoginAck"
	msgSessionInit      = "SessionInit"
)

// Codec turns messages into frame payloads and back for one wire variant.
type Codec interface {
	Encode(m Message) ([]byte, error)
	Decode(payload []byte) (Message, error)
}

// NewCodec returns the codec for a protocol variant.
func NewCodec(t ProtocolType) (Codec, error) {
	switch t {
	case DataStreamProtocol:
		return dataStreamCodec{}, nil
	case LegacyProtocol:
		return legacyCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: protocol %s", ErrUnknownType, t)
	}
}

// handshakeMap builds the key/value form shared by both variants.
func handshakeMap(m Message, legacy bool) (VariantMap, bool) {
	switch msg := m.(type) {
	case RegisterClient:
		vm := VariantMap{
			"MsgType":       msgClientInit,
			"ClientVersion": msg.ClientVersion,
			"ClientDate":    msg.ClientDate,
		}
		if legacy {
			vm["ProtocolVersion"] = LegacyProtocolVersion
			vm["UseSsl"] = msg.UseSSL
			vm["UseCompression"] = msg.UseCompression
		} else {
			vm["Features"] = msg.Features
			vm["FeatureList"] = []string{}
		}
		return vm, true
	case ClientDenied:
		return VariantMap{"MsgType": msgClientInitReject, "Error": msg.Reason}, true
	case ClientRegistered:
		return VariantMap{
			"MsgType":      msgClientInitAck,
			"CoreFeatures": msg.CoreFeatures,
			"Configured":   msg.Configured,
			"FeatureList":  append([]string{}, msg.FeatureList...),
		}, true
	case Login:
		return VariantMap{"MsgType": msgClientLogin, "User": msg.User, "Password": msg.Password}, true
	case LoginFailed:
		return VariantMap{"MsgType": msgClientLoginRej, "Error": msg.Reason}, true
	case LoginSuccess:
		return VariantMap{"MsgType": msgClientLoginAck}, true
	case SessionState:
		nets := make(VariantList, 0, len(msg.NetworkIDs))
		for _, id := range msg.NetworkIDs {
			nets = append(nets, id)
		}
		bufs := make(VariantList, 0, len(msg.Buffers))
		for _, b := range msg.Buffers {
			bufs = append(bufs, b)
		}
		ids := make(VariantList, 0, len(msg.Identities))
		for _, i := range msg.Identities {
			ids = append(ids, i)
		}
		return VariantMap{
			"MsgType": msgSessionInit,
			"SessionState": VariantMap{
				"NetworkIds":  nets,
				"BufferInfos": bufs,
				"Identities":  ids,
			},
		}, true
	default:
		return nil, false
	}
}

func handshakeFromMap(vm VariantMap) (Message, error) {
	typ := AsString(vm["MsgType"])
	switch typ {
	case msgClientInit:
		return RegisterClient{
			ClientVersion:  AsString(vm["ClientVersion"]),
			ClientDate:     AsString(vm["ClientDate"]),
			UseSSL:         AsBool(vm["UseSsl"]),
			UseCompression: AsBool(vm["UseCompression"]),
			Features:       uint32(AsInt(vm["Features"])),
		}, nil
	case msgClientInitReject:
		return ClientDenied{Reason: AsString(vm["Error"])}, nil
	case msgClientInitAck:
		return ClientRegistered{
			CoreFeatures: uint32(AsInt(vm["CoreFeatures"])),
			Configured:   AsBool(vm["Configured"]),
			FeatureList:  AsStrings(vm["FeatureList"]),
		}, nil
	case msgClientLogin:
		return Login{User: AsString(vm["User"]), Password: AsString(vm["Password"])}, nil
	case msgClientLoginRej:
		return LoginFailed{Reason: AsString(vm["Error"])}, nil
	case msgClientLoginAck:
		return LoginSuccess{}, nil
	case msgSessionInit:
		return sessionStateFromMap(AsMap(vm["SessionState"]))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMsgType, typ)
	}
}

func sessionStateFromMap(vm VariantMap) (SessionState, error) {
	var st SessionState
	for _, v := range AsList(vm["NetworkIds"]) {
		id, ok := v.(domain.NetworkID)
		if !ok {
			return st, fmt.Errorf("%w: network id of type %T", ErrBadMessage, v)
		}
		st.NetworkIDs = append(st.NetworkIDs, id)
	}
	for _, v := range AsList(vm["BufferInfos"]) {
		bi, ok := v.(domain.BufferInfo)
		if !ok {
			return st, fmt.Errorf("%w: buffer info of type %T", ErrBadMessage, v)
		}
		st.Buffers = append(st.Buffers, bi)
	}
	for _, v := range AsList(vm["Identities"]) {
		if m := AsMap(v); m != nil {
			st.Identities = append(st.Identities, m)
		}
	}
	return st, nil
}

type dataStreamCodec struct{}

func (dataStreamCodec) Encode(m Message) ([]byte, error) {
	var list VariantList
	if vm, ok := handshakeMap(m, false); ok {
		list = make(VariantList, 0, 2*len(vm))
		for _, k := range vm.Keys() {
			list = append(list, []byte(k), vm[k])
		}
	} else {
		var err error
		if list, err = signalList(m, false); err != nil {
			return nil, err
		}
	}
	var e Encoder
	if err := e.List(list); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

func (dataStreamCodec) Decode(payload []byte) (Message, error) {
	list, err := NewDecoder(payload).List()
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrBadMessage)
	}
	if _, ok := list[0].([]byte); ok {
		if len(list)%2 != 0 {
			return nil, fmt.Errorf("%w: odd handshake list", ErrBadMessage)
		}
		vm := make(VariantMap, len(list)/2)
		for i := 0; i < len(list); i += 2 {
			vm[AsString(list[i])] = list[i+1]
		}
		return handshakeFromMap(vm)
	}
	return signalFromList(list, false)
}

type legacyCodec struct{}

func (legacyCodec) Encode(m Message) ([]byte, error) {
	var e Encoder
	if vm, ok := handshakeMap(m, true); ok {
		if err := e.Variant(vm); err != nil {
			return nil, err
		}
		return e.Bytes(), nil
	}
	list, err := signalList(m, true)
	if err != nil {
		return nil, err
	}
	if err := e.Variant(list); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

func (legacyCodec) Decode(payload []byte) (Message, error) {
	v, err := NewDecoder(payload).Variant()
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case VariantMap:
		return handshakeFromMap(val)
	case VariantList:
		return signalFromList(val, true)
	default:
		return nil, fmt.Errorf("%w: top level %T", ErrBadMessage, v)
	}
}

// objectName is a QByteArray on the modern wire and a QString on legacy.
func objectName(s string, legacy bool) any {
	if legacy {
		return s
	}
	return []byte(s)
}

func signalList(m Message, legacy bool) (VariantList, error) {
	switch msg := m.(type) {
	case SyncMessage:
		l := VariantList{requestSync, []byte(msg.Class), objectName(msg.Object, legacy), []byte(msg.Slot)}
		return append(l, msg.Params...), nil
	case RPCCall:
		l := VariantList{requestRPCCall, []byte(msg.Signal)}
		return append(l, msg.Params...), nil
	case InitRequest:
		return VariantList{requestInitRequest, []byte(msg.Class), objectName(msg.Object, legacy)}, nil
	case InitData:
		l := VariantList{requestInitData, []byte(msg.Class), objectName(msg.Object, legacy)}
		if legacy {
			return append(l, msg.Properties), nil
		}
		for _, k := range msg.Properties.Keys() {
			l = append(l, []byte(k), msg.Properties[k])
		}
		return l, nil
	case HeartBeat:
		return VariantList{requestHeartBeat, heartBeatTime(msg.Time, legacy)}, nil
	case HeartBeatReply:
		return VariantList{requestHeartBeatReply, heartBeatTime(msg.Time, legacy)}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnencodable, m)
	}
}

func heartBeatTime(t time.Time, legacy bool) any {
	if !legacy {
		return t
	}
	u := t.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return QTime(u.Sub(midnight).Truncate(time.Millisecond))
}

func heartBeatFrom(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case QTime:
		return time.Unix(0, 0).UTC().Add(time.Duration(t))
	default:
		return time.Time{}
	}
}

func signalFromList(list VariantList, legacy bool) (Message, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrBadMessage)
	}
	need := func(n int) error {
		if len(list) < n {
			return fmt.Errorf("%w: request type %d needs %d items, got %d", ErrBadMessage, AsInt(list[0]), n, len(list))
		}
		return nil
	}
	switch int32(AsInt(list[0])) {
	case requestSync:
		if err := need(4); err != nil {
			return nil, err
		}
		return SyncMessage{
			Class:  AsString(list[1]),
			Object: AsString(list[2]),
			Slot:   AsString(list[3]),
			Params: append(VariantList{}, list[4:]...),
		}, nil
	case requestRPCCall:
		if err := need(2); err != nil {
			return nil, err
		}
		return RPCCall{Signal: AsString(list[1]), Params: append(VariantList{}, list[2:]...)}, nil
	case requestInitRequest:
		if err := need(3); err != nil {
			return nil, err
		}
		return InitRequest{Class: AsString(list[1]), Object: AsString(list[2])}, nil
	case requestInitData:
		if err := need(3); err != nil {
			return nil, err
		}
		msg := InitData{Class: AsString(list[1]), Object: AsString(list[2])}
		if legacy {
			if len(list) > 3 {
				msg.Properties = AsMap(list[3])
			}
			if msg.Properties == nil {
				msg.Properties = VariantMap{}
			}
			return msg, nil
		}
		rest := list[3:]
		if len(rest)%2 != 0 {
			return nil, fmt.Errorf("%w: odd init data", ErrBadMessage)
		}
		msg.Properties = make(VariantMap, len(rest)/2)
		for i := 0; i < len(rest); i += 2 {
			msg.Properties[AsString(rest[i])] = rest[i+1]
		}
		return msg, nil
	case requestHeartBeat:
		if err := need(2); err != nil {
			return nil, err
		}
		return HeartBeat{Time: heartBeatFrom(list[1])}, nil
	case requestHeartBeatReply:
		if err := need(2); err != nil {
			return nil, err
		}
		return HeartBeatReply{Time: heartBeatFrom(list[1])}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownRequest, list[0])
	}
}

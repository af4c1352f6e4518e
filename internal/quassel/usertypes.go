package quassel

import (
	"fmt"
	"time"

	"github.com/soyeahso/qbridge/internal/domain"
)

// IdentityID identifies an identity configured on the core.
type IdentityID int32

// User type names as registered with the Qt meta type system on the core.
const (
	userNetworkID  = "NetworkId"
	userBufferID   = "BufferId"
	userMsgID      = "MsgId"
	userIdentityID = "IdentityId"
	userBufferInfo = "BufferInfo"
	userMessage    = "Message"
	userIdentity   = "Identity"
	userServer     = "Network::Server"
	userNetInfo    = "NetworkInfo"
)

func (d *Decoder) userType(name string) (any, error) {
	switch name {
	case userNetworkID:
		v, err := d.Int32()
		return domain.NetworkID(v), err
	case userBufferID:
		v, err := d.Int32()
		return domain.BufferID(v), err
	case userMsgID:
		v, err := d.Int32()
		return domain.MsgID(v), err
	case userIdentityID:
		v, err := d.Int32()
		return IdentityID(v), err
	case userBufferInfo:
		return d.BufferInfo()
	case userMessage:
		return d.Message()
	case userIdentity, userServer, userNetInfo:
		return d.Map()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownUserType, name)
	}
}

// BufferInfo reads a bare BufferInfo value.
func (d *Decoder) BufferInfo() (domain.BufferInfo, error) {
	var bi domain.BufferInfo
	id, err := d.Int32()
	if err != nil {
		return bi, err
	}
	net, err := d.Int32()
	if err != nil {
		return bi, err
	}
	typ, err := d.Int16()
	if err != nil {
		return bi, err
	}
	group, err := d.Uint32()
	if err != nil {
		return bi, err
	}
	name, err := d.ByteArray()
	if err != nil {
		return bi, err
	}
	bi = domain.BufferInfo{
		ID:        domain.BufferID(id),
		NetworkID: domain.NetworkID(net),
		Type:      domain.BufferType(typ),
		GroupID:   group,
		Name:      string(name),
	}
	return bi, nil
}

// Message reads a bare Message value in the layout used when no extended
// message features were negotiated.
func (d *Decoder) Message() (domain.Message, error) {
	var m domain.Message
	id, err := d.Int32()
	if err != nil {
		return m, err
	}
	ts, err := d.Uint32()
	if err != nil {
		return m, err
	}
	typ, err := d.Uint32()
	if err != nil {
		return m, err
	}
	flags, err := d.Uint8()
	if err != nil {
		return m, err
	}
	buf, err := d.BufferInfo()
	if err != nil {
		return m, err
	}
	sender, err := d.ByteArray()
	if err != nil {
		return m, err
	}
	contents, err := d.ByteArray()
	if err != nil {
		return m, err
	}
	m = domain.Message{
		ID:        domain.MsgID(id),
		Type:      domain.MessageType(typ),
		Flags:     domain.MessageFlag(flags),
		Sender:    string(sender),
		Buffer:    buf,
		Contents:  string(contents),
		Timestamp: time.Unix(int64(ts), 0).UTC(),
	}
	return m, nil
}

func (e *Encoder) userHeader(name string) {
	e.header(typeUser)
	e.ByteArray(append([]byte(name), 0))
}

// BufferInfo writes a bare BufferInfo value.
func (e *Encoder) BufferInfo(bi domain.BufferInfo) {
	e.Int32(int32(bi.ID))
	e.Int32(int32(bi.NetworkID))
	e.Int16(int16(bi.Type))
	e.Uint32(bi.GroupID)
	e.ByteArray([]byte(bi.Name))
}

// Message writes a bare Message value.
func (e *Encoder) Message(m domain.Message) {
	e.Int32(int32(m.ID))
	e.Uint32(uint32(m.Timestamp.Unix()))
	e.Uint32(uint32(m.Type))
	e.Uint8(uint8(m.Flags))
	e.BufferInfo(m.Buffer)
	e.ByteArray([]byte(m.Sender))
	e.ByteArray([]byte(m.Contents))
}

func (e *Encoder) userType(v any) error {
	switch val := v.(type) {
	case domain.NetworkID:
		e.userHeader(userNetworkID)
		e.Int32(int32(val))
	case domain.BufferID:
		e.userHeader(userBufferID)
		e.Int32(int32(val))
	case domain.MsgID:
		e.userHeader(userMsgID)
		e.Int32(int32(val))
	case IdentityID:
		e.userHeader(userIdentityID)
		e.Int32(int32(val))
	case domain.BufferInfo:
		e.userHeader(userBufferInfo)
		e.BufferInfo(val)
	case domain.Message:
		e.userHeader(userMessage)
		e.Message(val)
	default:
		return fmt.Errorf("%w: %T", ErrUnencodable, v)
	}
	return nil
}

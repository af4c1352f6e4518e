package domain

import "time"

// MessageType identifies the kind of event a core message carries.
// Values match the core's wire encoding.
type MessageType uint32

const (
	MessagePlain        MessageType = 0x00001
	MessageNotice       MessageType = 0x00002
	MessageAction       MessageType = 0x00004
	MessageNick         MessageType = 0x00008
	MessageMode         MessageType = 0x00010
	MessageJoin         MessageType = 0x00020
	MessagePart         MessageType = 0x00040
	MessageQuit         MessageType = 0x00080
	MessageKick         MessageType = 0x00100
	MessageKill         MessageType = 0x00200
	MessageServer       MessageType = 0x00400
	MessageInfo         MessageType = 0x00800
	MessageError        MessageType = 0x01000
	MessageDayChange    MessageType = 0x02000
	MessageTopic        MessageType = 0x04000
	MessageNetsplitJoin MessageType = 0x08000
	MessageNetsplitQuit MessageType = 0x10000
	MessageInvite       MessageType = 0x20000
)

var messageTypeNames = map[MessageType]string{
	MessagePlain:        "plain",
	MessageNotice:       "notice",
	MessageAction:       "action",
	MessageNick:         "nick",
	MessageMode:         "mode",
	MessageJoin:         "join",
	MessagePart:         "part",
	MessageQuit:         "quit",
	MessageKick:         "kick",
	MessageKill:         "kill",
	MessageServer:       "server",
	MessageInfo:         "info",
	MessageError:        "error",
	MessageDayChange:    "daychange",
	MessageTopic:        "topic",
	MessageNetsplitJoin: "netsplit-join",
	MessageNetsplitQuit: "netsplit-quit",
	MessageInvite:       "invite",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MessageFlag is a bit in Message.Flags.
type MessageFlag uint8

const (
	FlagSelf       MessageFlag = 0x01
	FlagHighlight  MessageFlag = 0x02
	FlagRedirected MessageFlag = 0x04
	FlagServerMsg  MessageFlag = 0x08
	FlagBacklog    MessageFlag = 0x80
)

// Message is a structured event received from the core: a chat line or a
// state change, before it is turned into IRC lines.
type Message struct {
	ID        MsgID       `json:"id"`
	Type      MessageType `json:"type"`
	Flags     MessageFlag `json:"flags,omitempty"`
	Sender    string      `json:"sender"`
	Buffer    BufferInfo  `json:"buffer"`
	Contents  string      `json:"contents"`
	Timestamp time.Time   `json:"timestamp"`
}

// Has reports whether all bits of f are set.
func (m Message) Has(f MessageFlag) bool {
	return m.Flags&f == f
}

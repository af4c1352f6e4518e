package domain

import "strconv"

// NetworkID identifies an IRC network configured on the core.
type NetworkID int32

func (id NetworkID) String() string { return strconv.Itoa(int(id)) }

// Valid reports whether the id refers to a real network. The core never
// hands out ids below 1.
func (id NetworkID) Valid() bool { return id > 0 }

// BufferID identifies a buffer (channel, query or status window).
type BufferID int32

// MsgID identifies a message in the core's backlog.
type MsgID int32

// BufferType classifies a buffer.
type BufferType int16

const (
	BufferInvalid BufferType = 0x00
	BufferStatus  BufferType = 0x01
	BufferChannel BufferType = 0x02
	BufferQuery   BufferType = 0x04
	BufferGroup   BufferType = 0x08
)

// BufferInfo describes one buffer as the core knows it.
type BufferInfo struct {
	ID        BufferID   `json:"id"`
	NetworkID NetworkID  `json:"networkId"`
	Type      BufferType `json:"type"`
	GroupID   uint32     `json:"groupId,omitempty"`
	Name      string     `json:"name"`
}

// StatusBuffer returns the placeholder status buffer of a network, used as
// the target for raw input that is not bound to a channel or query.
func StatusBuffer(network NetworkID) BufferInfo {
	return BufferInfo{NetworkID: network, Type: BufferStatus}
}

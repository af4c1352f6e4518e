// Package quassel implements the parts of the Quassel core wire protocol the
// bridge needs: capability probing constants, the QDataStream variant codec
// subset, handshake messages and signal-proxy messages.
package quassel

import "fmt"

// Magic opens every capability probe.
const Magic uint32 = 0x42b33f00

// ConnectionFeature bits live in the low byte of the probe word and in the
// top byte of the core's reply.
type ConnectionFeature uint8

const (
	FeatureEncryption  ConnectionFeature = 0x01
	FeatureCompression ConnectionFeature = 0x02
)

// ProtocolType is the wire variant tag carried in the low byte of a
// proposal or reply word.
type ProtocolType uint8

const (
	LegacyProtocol     ProtocolType = 0x01
	DataStreamProtocol ProtocolType = 0x02
)

// EndOfProtocolList marks the last entry of the proposal list.
const EndOfProtocolList uint32 = 0x80000000

// LegacyProtocolVersion is announced in the legacy ClientInit.
const LegacyProtocolVersion uint32 = 10

func (t ProtocolType) String() string {
	switch t {
	case LegacyProtocol:
		return "legacy"
	case DataStreamProtocol:
		return "datastream"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// Known reports whether the bridge can speak the variant.
func (t ProtocolType) Known() bool {
	return t == LegacyProtocol || t == DataStreamProtocol
}

// ProbeWord builds the capability word sent first on a fresh connection.
// Compression is always requested; encryption only when the transport is
// already encrypted.
func ProbeWord(encrypted bool) uint32 {
	w := Magic | uint32(FeatureCompression)
	if encrypted {
		w |= uint32(FeatureEncryption)
	}
	return w
}

// ProposalWord builds one entry of the proposal list.
func ProposalWord(t ProtocolType, features uint16, last bool) uint32 {
	w := uint32(t) | uint32(features)<<8
	if last {
		w |= EndOfProtocolList
	}
	return w
}

// Reply is the core's 4-byte answer to a probe.
type Reply uint32

// Type is the selected protocol variant.
func (r Reply) Type() ProtocolType { return ProtocolType(r & 0xff) }

// ProtocolFeatures is the feature mask for the selected variant.
func (r Reply) ProtocolFeatures() uint16 { return uint16(r >> 8 & 0xffff) }

// ConnectionFeatures carries the accepted connection features.
func (r Reply) ConnectionFeatures() ConnectionFeature { return ConnectionFeature(r >> 24) }

// Candidate is the wire variant committed for one connection attempt.
type Candidate struct {
	Type        ProtocolType
	Features    uint16
	Compression bool
}

// LegacyCandidate is used when the core predates probing.
func LegacyCandidate() Candidate {
	return Candidate{Type: LegacyProtocol}
}

// CandidateFromReply derives the candidate a reply selects. Compression
// follows the reply's connection-feature bit only.
func CandidateFromReply(r Reply) Candidate {
	return Candidate{
		Type:        r.Type(),
		Features:    r.ProtocolFeatures(),
		Compression: r.ConnectionFeatures()&FeatureCompression != 0,
	}
}

func (c Candidate) String() string {
	s := c.Type.String()
	if c.Compression {
		s += "+zlib"
	}
	return s
}

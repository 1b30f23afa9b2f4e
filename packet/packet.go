// Package packet defines the wire-agnostic packet contract shared by the
// admission queue and its collaborators.
//
// A Packet here is a tagged record, not a class hierarchy: the admission
// queue's poison sentinel is a Packet whose OptionalDelay equals Poison, not
// a distinct type. This lets the sentinel pass through a generic queue of
// Packet without downcasts.
package packet

import "sync/atomic"

// Flags is a bitset carried by every Packet.
type Flags uint8

const (
	// FlagSYN marks a connection-initiation request.
	FlagSYN Flags = 1 << iota
	// FlagRST marks a reset, aborting a would-be or existing flow.
	FlagRST
	// FlagSignatureIncluded marks a packet as carrying a signature the
	// codec can verify against the claimed sender.
	FlagSignatureIncluded
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// MaxLegalDelay is the largest value OptionalDelay may legitimately carry
// on the wire. Poison is one greater, so it can never be forged by a
// remote peer.
const MaxLegalDelay = 0x7FFF

// Poison is the sentinel value of OptionalDelay that distinguishes the
// admission queue's internal wakeup packet from any packet an attacker
// could construct.
const Poison = MaxLegalDelay + 1

// Identity is an opaque remote endpoint identity, as carried in a Packet's
// OptionalFrom and checked by the PacketCodec on signature verification.
type Identity interface {
	// Equal reports whether two identities name the same remote endpoint.
	Equal(Identity) bool
}

// Packet is the data the admission queue and DDF observe. Every other
// field of the real wire packet (payload, framing, crypto state) is
// opaque to the core and reached only through ReleasePayload.
type Packet struct {
	SendStreamID    uint32
	ReceiveStreamID uint32
	SequenceNumber  uint64
	AckThrough      uint64
	Flags           Flags
	OptionalFrom    Identity // nil means absent
	OptionalDelay   int

	released atomic.Bool
	payload  func()
}

// New constructs a Packet with a release callback. release may be nil for
// packets that own no external buffer (e.g. the poison sentinel).
func New(sendStreamID, receiveStreamID uint32, seq uint64, flags Flags, from Identity, delay int, release func()) *Packet {
	return &Packet{
		SendStreamID:    sendStreamID,
		ReceiveStreamID: receiveStreamID,
		SequenceNumber:  seq,
		Flags:           flags,
		OptionalFrom:    from,
		OptionalDelay:   delay,
		payload:         release,
	}
}

// NewPoison builds the distinguished sentinel packet used to unblock a
// consumer blocked in Accept when the queue is deactivated.
func NewPoison() *Packet {
	return &Packet{OptionalDelay: Poison}
}

// IsPoison reports whether this packet is the shutdown sentinel.
func (p *Packet) IsPoison() bool {
	return p.OptionalDelay == Poison
}

// ReleasePayload returns the packet's buffer to its pool, exactly once.
// Safe to call from either the consumer or a timeout handler; the second
// caller is a no-op.
func (p *Packet) ReleasePayload() {
	if p == nil || p.payload == nil {
		return
	}

	if p.released.CompareAndSwap(false, true) {
		p.payload()
	}
}

package admission

import (
	"context"

	"github.com/shadowmesh/admitcore/packet"
)

// Connection is opaque to the admission queue: whatever the connection
// manager hands back on a successful accept. A Connection that can take a
// re-dispatched non-SYN packet implements PacketReceiver; the admission
// queue never assumes more than that.
type Connection interface{}

// PacketReceiver is the optional capability a Connection may implement so
// the admission queue can hand it a non-SYN packet that arrived before (or
// queued alongside) the SYN that created it.
type PacketReceiver interface {
	ReceivePacket(p *packet.Packet)
}

// ConnectionManager is the collaborator the admission queue uses to admit
// connections, look them up, and send packets the queue itself constructs.
type ConnectionManager interface {
	// ReceiveConnection offers a SYN packet to the connection manager. A
	// non-nil Connection means the connection was fully admitted.
	ReceiveConnection(ctx context.Context, syn *packet.Packet) (Connection, bool)
	// GetConnectionByOutboundID looks up an existing connection by the
	// stream id the local side assigned on accept. Used both for
	// duplicate-SYN suppression and for re-dispatching a non-SYN packet
	// once its connection exists.
	GetConnectionByOutboundID(id uint32) (Connection, Identity, bool)
	// EnqueueOutbound hands a constructed packet (e.g. an RST) to the
	// outbound packet queue for transmission. No retries.
	EnqueueOutbound(p *packet.Packet)
	// MyDestination returns the local session's own identity, used as the
	// sender of any packet the admission queue constructs.
	MyDestination() packet.Identity
}

// Identity is re-exported for collaborator signatures that compare a
// looked-up connection's remote identity against a packet's OptionalFrom.
type Identity = packet.Identity

// PacketCodec is the collaborator the admission queue uses to verify an
// inbound packet's signature before acting on it.
type PacketCodec interface {
	// VerifySignature checks an inbound packet's signature against the
	// identity it claims to be from.
	VerifySignature(p *packet.Packet, claimedSender packet.Identity) bool
}

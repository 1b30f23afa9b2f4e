package daemon

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/shadowmesh/admitcore/admission"
	"github.com/shadowmesh/admitcore/packet"
)

// frameHeaderSize is the fixed part of the demo wire frame: flags (1) +
// send_stream_id (4) + receive_stream_id (4) + sequence_number (8) +
// ack_through (8). Anything past the header is taken as the sender's
// claimed identity bytes.
const frameHeaderSize = 1 + 4 + 4 + 8 + 8

// decodeFrame parses a UDP datagram into a Packet. This is a minimal
// stand-in transport: real deployments would plug in whatever wire
// codec their network layer already speaks. release is invoked exactly
// once when the packet's buffer is no longer needed.
func decodeFrame(buf []byte, release func()) (*packet.Packet, error) {
	if len(buf) < frameHeaderSize {
		return nil, fmt.Errorf("daemon: frame too short: %d bytes", len(buf))
	}

	flags := packet.Flags(buf[0])
	sendID := binary.BigEndian.Uint32(buf[1:5])
	recvID := binary.BigEndian.Uint32(buf[5:9])
	seq := binary.BigEndian.Uint64(buf[9:17])
	ackThrough := binary.BigEndian.Uint64(buf[17:25])

	var from packet.Identity
	if len(buf) > frameHeaderSize {
		raw := make([]byte, len(buf)-frameHeaderSize)
		copy(raw, buf[frameHeaderSize:])
		from = udpIdentity{raw: raw}
	}

	p := packet.New(sendID, recvID, seq, flags, from, 0, release)
	p.AckThrough = ackThrough

	return p, nil
}

// encodeFrame renders an outbound Packet (typically an RST) back to
// wire bytes.
func encodeFrame(p *packet.Packet, myIdentity udpIdentity) []byte {
	buf := make([]byte, frameHeaderSize+len(myIdentity.raw))

	buf[0] = byte(p.Flags)
	binary.BigEndian.PutUint32(buf[1:5], p.SendStreamID)
	binary.BigEndian.PutUint32(buf[5:9], p.ReceiveStreamID)
	binary.BigEndian.PutUint64(buf[9:17], p.SequenceNumber)
	binary.BigEndian.PutUint64(buf[17:25], p.AckThrough)
	copy(buf[frameHeaderSize:], myIdentity.raw)

	return buf
}

// udpConnection is the Connection handed back by connectionManager on a
// successful admit. It accepts re-dispatched non-SYN packets for the
// lifetime of the demo (it has nowhere further to send them; a real
// connection manager would hand them to the session it owns).
type udpConnection struct {
	remote     udpIdentity
	outboundID uint32
}

func (c *udpConnection) ReceivePacket(p *packet.Packet) {
	p.ReleasePayload()
}

// connectionManager is the demo's admission.ConnectionManager and
// admission.PacketCodec, in one type since nothing here needs them
// separated. It tracks admitted connections by the outbound id the
// far end will reference in future non-SYN packets, and queues
// constructed replies (RSTs) for the daemon's writer loop to send.
type connectionManager struct {
	mu    sync.Mutex
	byID  map[uint32]*udpConnection
	myID  udpIdentity
	outCh chan *packet.Packet

	addrsMu sync.Mutex
	addrs   map[uint32]*net.UDPAddr
}

func newConnectionManager(myID udpIdentity, outboundBuffer int) *connectionManager {
	return &connectionManager{
		byID:  make(map[uint32]*udpConnection),
		myID:  myID,
		outCh: make(chan *packet.Packet, outboundBuffer),
		addrs: make(map[uint32]*net.UDPAddr),
	}
}

// rememberAddr records the source address a datagram naming
// receiveStreamID arrived from, so a later RST built against that id
// (send_reset sets the RST's send_stream_id to the inbound packet's
// receive_stream_id) can be routed back to the right peer.
func (cm *connectionManager) rememberAddr(receiveStreamID uint32, addr *net.UDPAddr) {
	cm.addrsMu.Lock()
	cm.addrs[receiveStreamID] = addr
	cm.addrsMu.Unlock()
}

// takeAddr looks up and forgets the address an outbound packet's
// send_stream_id maps back to.
func (cm *connectionManager) takeAddr(sendStreamID uint32) (*net.UDPAddr, bool) {
	cm.addrsMu.Lock()
	defer cm.addrsMu.Unlock()

	addr, ok := cm.addrs[sendStreamID]
	delete(cm.addrs, sendStreamID)

	return addr, ok
}

func (cm *connectionManager) ReceiveConnection(_ context.Context, syn *packet.Packet) (admission.Connection, bool) {
	identity, ok := syn.OptionalFrom.(udpIdentity)
	if !ok {
		return nil, false
	}

	conn := &udpConnection{remote: identity, outboundID: syn.SendStreamID}

	cm.mu.Lock()
	cm.byID[syn.SendStreamID] = conn
	cm.mu.Unlock()

	return conn, true
}

func (cm *connectionManager) GetConnectionByOutboundID(id uint32) (admission.Connection, admission.Identity, bool) {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	cm.mu.Unlock()

	if !ok {
		return nil, nil, false
	}

	return conn, conn.remote, true
}

func (cm *connectionManager) EnqueueOutbound(p *packet.Packet) {
	select {
	case cm.outCh <- p:
	default:
		// Writer loop can't keep up; drop the reply rather than block the
		// admission queue's caller.
	}
}

func (cm *connectionManager) MyDestination() packet.Identity {
	return cm.myID
}

// VerifySignature is a deliberately trivial stand-in: this demo
// transport does not implement a real signature scheme, so any packet
// that names a claimed sender is accepted. A production PacketCodec
// would verify a MAC or public-key signature over the packet here.
func (cm *connectionManager) VerifySignature(_ *packet.Packet, claimedSender packet.Identity) bool {
	return claimedSender != nil
}

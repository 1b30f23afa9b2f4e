package daemon

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowmesh/admitcore/packet"
)

func TestDecodeFrameRejectsShortBuffer(t *testing.T) {
	_, err := decodeFrame(make([]byte, frameHeaderSize-1), nil)
	assert.Error(t, err)
}

func TestDecodeFrameWithoutIdentity(t *testing.T) {
	buf := make([]byte, frameHeaderSize)
	buf[0] = byte(packet.FlagSYN)

	p, err := decodeFrame(buf, nil)
	require.NoError(t, err)
	assert.Nil(t, p.OptionalFrom)
	assert.True(t, p.Flags.Has(packet.FlagSYN))
}

func TestEncodeDecodeFrameRoundTrips(t *testing.T) {
	me := udpIdentity{raw: []byte("local-node")}

	original := packet.New(11, 22, 33, packet.FlagRST|packet.FlagSignatureIncluded, me, 0, nil)
	original.AckThrough = 44

	buf := encodeFrame(original, me)

	released := false
	decoded, err := decodeFrame(buf, func() { released = true })
	require.NoError(t, err)

	assert.Equal(t, original.SendStreamID, decoded.SendStreamID)
	assert.Equal(t, original.ReceiveStreamID, decoded.ReceiveStreamID)
	assert.Equal(t, original.SequenceNumber, decoded.SequenceNumber)
	assert.Equal(t, original.AckThrough, decoded.AckThrough)
	assert.Equal(t, original.Flags, decoded.Flags)
	assert.Equal(t, me, decoded.OptionalFrom)

	decoded.ReleasePayload()
	assert.True(t, released)
}

func TestConnectionManagerReceiveConnectionRequiresUDPIdentity(t *testing.T) {
	cm := newConnectionManager(udpIdentity{raw: []byte("me")}, 8)

	_, ok := cm.ReceiveConnection(nil, packet.New(1, 2, 3, packet.FlagSYN, nil, 0, nil))
	assert.False(t, ok)

	from := udpIdentity{raw: []byte("peer")}
	conn, ok := cm.ReceiveConnection(nil, packet.New(1, 2, 3, packet.FlagSYN, from, 0, nil))
	require.True(t, ok)

	got, identity, ok := cm.GetConnectionByOutboundID(1)
	require.True(t, ok)
	assert.Equal(t, conn, got)
	assert.Equal(t, from, identity)
}

func TestConnectionManagerGetConnectionByOutboundIDMiss(t *testing.T) {
	cm := newConnectionManager(udpIdentity{raw: []byte("me")}, 8)

	_, _, ok := cm.GetConnectionByOutboundID(99)
	assert.False(t, ok)
}

func TestConnectionManagerEnqueueOutboundDropsWhenFull(t *testing.T) {
	cm := newConnectionManager(udpIdentity{raw: []byte("me")}, 1)

	cm.EnqueueOutbound(packet.New(1, 2, 3, 0, nil, 0, nil))
	cm.EnqueueOutbound(packet.New(4, 5, 6, 0, nil, 0, nil)) // dropped, channel full

	assert.Len(t, cm.outCh, 1)
}

func TestConnectionManagerRememberAndTakeAddr(t *testing.T) {
	cm := newConnectionManager(udpIdentity{raw: []byte("me")}, 8)
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}

	cm.rememberAddr(7, addr)

	got, ok := cm.takeAddr(7)
	require.True(t, ok)
	assert.Equal(t, addr, got)

	_, ok = cm.takeAddr(7)
	assert.False(t, ok)
}

func TestVerifySignatureAcceptsAnyClaimedSender(t *testing.T) {
	cm := newConnectionManager(udpIdentity{raw: []byte("me")}, 8)

	assert.True(t, cm.VerifySignature(nil, udpIdentity{raw: []byte("x")}))
	assert.False(t, cm.VerifySignature(nil, nil))
}

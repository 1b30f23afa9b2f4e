package admission_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shadowmesh/admitcore/admission"
	"github.com/shadowmesh/admitcore/clock"
	"github.com/shadowmesh/admitcore/internal/testlib"
	"github.com/shadowmesh/admitcore/packet"
)

var myIdentity = testlib.Identity{Name: "local"}

func newTestQueue(t *testing.T, clk clock.Service, opts ...admission.Option) (*admission.Queue, *testlib.ConnectionManagerMock, *testlib.PacketCodecMock) {
	t.Helper()

	cm := &testlib.ConnectionManagerMock{}
	codec := &testlib.PacketCodecMock{}
	cm.On("MyDestination").Return(packet.Identity(myIdentity))

	q := admission.New(clk, cm, codec, opts...)

	return q, cm, codec
}

func signedSyn(receiveStreamID uint32, seq uint64, from packet.Identity) *packet.Packet {
	return packet.New(0, receiveStreamID, seq, packet.FlagSYN|packet.FlagSignatureIncluded, from, 0, nil)
}

// Backlog bound: excess SYNs over capacity are dropped and RST'd.
func TestBacklogBound(t *testing.T) {
	clk := clock.NewVirtual()
	q, cm, codec := newTestQueue(t, clk)
	q.SetActive(true)

	codec.On("VerifySignature", mock.Anything, mock.Anything).Return(true)

	rstCount := 0
	cm.On("EnqueueOutbound", mock.Anything).Run(func(args mock.Arguments) { rstCount++ }).Return()

	for i := 0; i < 100; i++ {
		q.ReceiveNewSyn(signedSyn(uint32(i), uint64(i), myIdentity))
	}

	snap := q.Metrics()
	assert.Equal(t, 64, snap.Depth)
	assert.EqualValues(t, 36, snap.DropsFull)
	assert.Equal(t, 36, rstCount)
}

// Duplicate SYN suppression: a second SYN for an admitted connection is dropped silently.
func TestDuplicateSynSuppression(t *testing.T) {
	clk := clock.NewVirtual()
	q, cm, codec := newTestQueue(t, clk)
	q.SetActive(true)

	codec.On("VerifySignature", mock.Anything, mock.Anything).Return(true)

	fakeConn := &struct{}{}

	cm.On("GetConnectionByOutboundID", uint32(7)).Return(nil, nil, false).Once()
	cm.On("ReceiveConnection", mock.Anything, mock.Anything).Return(admission.Connection(fakeConn), true).Once()

	q.ReceiveNewSyn(signedSyn(7, 1, myIdentity))

	acceptor, err := q.Acceptor()
	require.NoError(t, err)

	ctx := context.Background()
	conn, ok := acceptor.Accept(ctx, 200)
	require.True(t, ok)
	assert.Equal(t, fakeConn, conn)

	cm.On("GetConnectionByOutboundID", uint32(7)).Return(admission.Connection(fakeConn), packet.Identity(myIdentity), true)

	rstCount := 0
	cm.On("EnqueueOutbound", mock.Anything).Run(func(args mock.Arguments) { rstCount++ }).Return()

	q.ReceiveNewSyn(signedSyn(7, 2, myIdentity))

	_, ok = acceptor.Accept(ctx, 100)
	assert.False(t, ok)

	snap := q.Metrics()
	assert.EqualValues(t, 1, snap.DropsDuplicateSyn)
	assert.Equal(t, 0, rstCount)
}

// Timeout: an unaccepted SYN gets RST'd once its deadline passes.
func TestTimeoutEmitsReset(t *testing.T) {
	clk := clock.NewVirtual()
	q, cm, codec := newTestQueue(t, clk)
	q.SetActive(true)

	codec.On("VerifySignature", mock.Anything, mock.Anything).Return(true)

	var sent *packet.Packet
	cm.On("EnqueueOutbound", mock.Anything).Run(func(args mock.Arguments) {
		sent, _ = args.Get(0).(*packet.Packet)
	}).Return()

	q.ReceiveNewSyn(signedSyn(55, 999, myIdentity))

	clk.Advance(3000)

	require.NotNil(t, sent)
	assert.Equal(t, uint32(55), sent.SendStreamID)
	assert.Equal(t, uint32(0), sent.ReceiveStreamID)
	assert.Equal(t, uint64(999), sent.AckThrough)
	assert.True(t, sent.Flags.Has(packet.FlagRST))

	snap := q.Metrics()
	assert.EqualValues(t, 1, snap.Timeouts)
	assert.EqualValues(t, 1, snap.RSTsSent)
}

// Shutdown drain: every still-queued SYN is RST'd and a blocked consumer wakes.
func TestShutdownDrainEmitsResets(t *testing.T) {
	clk := clock.NewVirtual()
	q, cm, codec := newTestQueue(t, clk)
	q.SetActive(true)

	codec.On("VerifySignature", mock.Anything, mock.Anything).Return(true)

	rstCount := 0
	cm.On("EnqueueOutbound", mock.Anything).Run(func(args mock.Arguments) { rstCount++ }).Return()

	q.ReceiveNewSyn(signedSyn(1, 1, myIdentity))
	q.ReceiveNewSyn(signedSyn(2, 2, myIdentity))
	q.ReceiveNewSyn(signedSyn(3, 3, myIdentity))

	q.SetActive(false)

	assert.Equal(t, 3, rstCount)
}

func TestShutdownWakesBlockedConsumer(t *testing.T) {
	clk := clock.NewVirtual()
	q, _, _ := newTestQueue(t, clk)
	q.SetActive(true)

	acceptor, err := q.Acceptor()
	require.NoError(t, err)

	done := make(chan bool, 1)

	go func() {
		_, ok := acceptor.Accept(context.Background(), 0)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.SetActive(false)

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("accept did not return after shutdown")
	}
}

// RST is never emitted for a packet whose signature fails verification.
func TestNoResetOnBadSignature(t *testing.T) {
	clk := clock.NewVirtual()
	q, cm, codec := newTestQueue(t, clk)
	q.SetActive(true)

	codec.On("VerifySignature", mock.Anything, mock.Anything).Return(false)

	q.ReceiveNewSyn(signedSyn(1, 1, myIdentity))
	q.SetActive(false)

	cm.AssertNotCalled(t, "EnqueueOutbound", mock.Anything)
}

// RST is never emitted for a non-SYN drop.
func TestNoResetForNonSynDrop(t *testing.T) {
	clk := clock.NewVirtual()
	q, cm, _ := newTestQueue(t, clk)
	// Inactive: non-SYN packets are dropped outright.

	released := false
	p := packet.New(1, 2, 3, 0, myIdentity, 0, func() { released = true })
	q.ReceiveNewSyn(p)

	cm.AssertNotCalled(t, "EnqueueOutbound", mock.Anything)
	assert.True(t, released)
}

func TestAcceptorCanOnlyBeTakenOnce(t *testing.T) {
	clk := clock.NewVirtual()
	q, _, _ := newTestQueue(t, clk)

	_, err := q.Acceptor()
	require.NoError(t, err)

	_, err = q.Acceptor()
	assert.ErrorIs(t, err, admission.ErrAcceptorAlreadyTaken)
}

package testlib

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shadowmesh/admitcore/admission"
	"github.com/shadowmesh/admitcore/packet"
)

// ConnectionManagerMock mocks admission.ConnectionManager.
type ConnectionManagerMock struct {
	mock.Mock
}

func (m *ConnectionManagerMock) ReceiveConnection(ctx context.Context, syn *packet.Packet) (admission.Connection, bool) {
	args := m.Called(ctx, syn)

	conn, _ := args.Get(0).(admission.Connection)

	return conn, args.Bool(1)
}

func (m *ConnectionManagerMock) GetConnectionByOutboundID(id uint32) (admission.Connection, admission.Identity, bool) {
	args := m.Called(id)

	conn, _ := args.Get(0).(admission.Connection)
	identity, _ := args.Get(1).(admission.Identity)

	return conn, identity, args.Bool(2)
}

func (m *ConnectionManagerMock) EnqueueOutbound(p *packet.Packet) {
	m.Called(p)
}

func (m *ConnectionManagerMock) MyDestination() packet.Identity {
	return m.Called().Get(0).(packet.Identity) //nolint: forcetypeassert
}

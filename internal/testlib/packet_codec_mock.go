package testlib

import (
	"github.com/stretchr/testify/mock"

	"github.com/shadowmesh/admitcore/packet"
)

// PacketCodecMock mocks admission.PacketCodec.
type PacketCodecMock struct {
	mock.Mock
}

func (m *PacketCodecMock) VerifySignature(p *packet.Packet, claimedSender packet.Identity) bool {
	return m.Called(p, claimedSender).Bool(0)
}

// Identity is a trivial comparable packet.Identity for tests.
type Identity struct {
	Name string
}

func (i Identity) Equal(other packet.Identity) bool {
	o, ok := other.(Identity)
	return ok && o.Name == i.Name
}

package daemon

import (
	"bytes"

	"github.com/shadowmesh/admitcore/packet"
)

// udpIdentity is the Identity the demo transport hands to the admission
// queue: the raw bytes a peer claimed as its sender id on the wire. Real
// deployments would bind Identity to a verified public key instead.
type udpIdentity struct {
	raw []byte
}

func (u udpIdentity) Equal(other packet.Identity) bool {
	o, ok := other.(udpIdentity)
	if !ok {
		return false
	}

	return bytes.Equal(u.raw, o.raw)
}

package admission

import "sync/atomic"

// Metrics are the admission queue's observability counters. All fields are
// safe for concurrent use.
type Metrics struct {
	DropsFull          atomic.Uint64
	DropsInactive      atomic.Uint64
	DropsNoFrom        atomic.Uint64
	DropsDuplicateSyn  atomic.Uint64
	DropsBadSignature  atomic.Uint64
	Accepts            atomic.Uint64
	Timeouts           atomic.Uint64
	RSTsSent           atomic.Uint64
}

// Snapshot is a point-in-time copy of Metrics, safe to pass around and
// serialize (e.g. for a Prometheus or StatsD exporter).
type Snapshot struct {
	Depth             int
	DropsFull         uint64
	DropsInactive     uint64
	DropsNoFrom       uint64
	DropsDuplicateSyn uint64
	DropsBadSignature uint64
	Accepts           uint64
	Timeouts          uint64
	RSTsSent          uint64
}

func (m *Metrics) snapshot(depth int) Snapshot {
	return Snapshot{
		Depth:             depth,
		DropsFull:         m.DropsFull.Load(),
		DropsInactive:     m.DropsInactive.Load(),
		DropsNoFrom:       m.DropsNoFrom.Load(),
		DropsDuplicateSyn: m.DropsDuplicateSyn.Load(),
		DropsBadSignature: m.DropsBadSignature.Load(),
		Accepts:           m.Accepts.Load(),
		Timeouts:          m.Timeouts.Load(),
		RSTsSent:          m.RSTsSent.Load(),
	}
}

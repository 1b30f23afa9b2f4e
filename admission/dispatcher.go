package admission

import (
	"fmt"

	"github.com/panjf2000/ants/v2"

	"github.com/shadowmesh/admitcore/packet"
)

// Dispatcher is a bounded pool of goroutines that call ReceiveNewSyn on a
// Queue concurrently, so producers may hand packets off from any thread:
// the transport hands each decoded packet to the Dispatcher instead of
// calling the Queue directly, bounding how many packets are being admitted
// at once regardless of how bursty the inbound socket is.
type Dispatcher struct {
	pool  *ants.PoolWithFunc
	queue *Queue
}

// NewDispatcher builds a Dispatcher with the given number of workers, all
// feeding into queue.
func NewDispatcher(queue *Queue, workers int) (*Dispatcher, error) {
	d := &Dispatcher{queue: queue}

	pool, err := ants.NewPoolWithFunc(workers, func(arg interface{}) {
		p, ok := arg.(*packet.Packet)
		if !ok {
			return
		}

		d.queue.ReceiveNewSyn(p)
	})
	if err != nil {
		return nil, fmt.Errorf("admission: cannot build dispatcher pool: %w", err)
	}

	d.pool = pool

	return d, nil
}

// Submit hands p to the next free worker, waiting for one if every worker
// is busy. An error means the pool has been released.
func (d *Dispatcher) Submit(p *packet.Packet) error {
	if err := d.pool.Invoke(p); err != nil {
		return fmt.Errorf("admission: dispatcher rejected packet: %w", err)
	}

	return nil
}

// Release closes the pool: later Submit calls fail. It does not wait for
// workers that are already processing a packet.
func (d *Dispatcher) Release() {
	d.pool.Release()
}

// Running reports how many worker goroutines the pool currently has alive,
// idle ones included.
func (d *Dispatcher) Running() int {
	return d.pool.Running()
}

package stats_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowmesh/admitcore/events"
	"github.com/shadowmesh/admitcore/stats"
)

// TestStatsDFactorySendsOverUDP exercises the real wire path end to end: a
// UDP socket standing in for the collector, a live statsd client, and an
// observer built from it. It only asserts that something naming the metric
// arrives, not the exact line format, since that's the statsd client
// library's concern, not this package's.
func TestStatsDFactorySendsOverUDP(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer conn.Close()

	factory := stats.NewStatsD(conn.LocalAddr().String(), "admitcore_test")
	observer := factory.Make()

	observer.EventSynQueued(events.NewEventSynQueued("s1", 1))
	observer.EventDropped(events.NewEventDropped("s2", 2, events.DropReasonFull))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, 4096)

	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)

	body := string(buf[:n])
	assert.Contains(t, body, "admitcore_test")

	assert.NoError(t, factory.Close())
}

func TestStatsDObserverShutdownIsNoop(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer conn.Close()

	factory := stats.NewStatsD(conn.LocalAddr().String(), "admitcore_test3")
	observer := factory.Make()

	assert.NotPanics(t, observer.Shutdown)
	assert.NoError(t, factory.Close())
}

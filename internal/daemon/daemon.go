// Package daemon wires the admission queue, the decaying duplicate
// filter, and the stats exporters to a concrete (and intentionally
// minimal) UDP transport, the way the retrieved proxy's Proxy type wires
// its relay, rate limiter, and event stream to a TCP listener.
package daemon

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/shadowmesh/admitcore/admission"
	"github.com/shadowmesh/admitcore/clock"
	"github.com/shadowmesh/admitcore/ddf"
	"github.com/shadowmesh/admitcore/events"
	"github.com/shadowmesh/admitcore/internal/config"
	"github.com/shadowmesh/admitcore/stats"
)

const (
	defaultWorkerPoolSize = 256
	defaultOutboundBuffer = 256
	defaultDatagramBuffer = 2048
	ddfEntryBytes         = 12 // send_stream_id (4) + sequence_number (8)

	// defaultIngestRate and defaultIngestBurst bound the datagram-read
	// loop itself, not any one remote peer: a local overload guard, not
	// the per-peer fairness the admission queue deliberately doesn't do.
	defaultIngestRate  = 20000
	defaultIngestBurst = 4096
)

// Daemon owns every collaborator admitd needs for one run.
type Daemon struct {
	cfg    config.Config
	logger zerolog.Logger

	clk    clock.Real
	filter *ddf.Filter
	cm     *connectionManager
	queue  *admission.Queue
	stream events.EventStream

	promFactory  *stats.PrometheusFactory
	statsdFactory *stats.StatsDFactory

	conn       *net.UDPConn
	dispatcher *admission.Dispatcher
	limiter    *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Daemon from a parsed Config. It does not bind any socket
// yet; that happens in Run.
func New(cfg config.Config, logger zerolog.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	myID := udpIdentity{raw: []byte(cfg.BindTo.Get(""))}
	cm := newConnectionManager(myID, defaultOutboundBuffer)

	factories, promFactory, statsdFactory := buildObserverFactories(cfg)
	stream := events.NewEventStream(factories)

	clk := clock.NewReal()

	filter, err := ddf.New(
		clk,
		cfg.DuplicateFilter.Duration.Milliseconds(3000),
		ddfEntryBytes,
		ddf.WithLogger(logger),
		ddf.WithMK(
			uint(cfg.DuplicateFilter.M.Get(ddf.DefaultM)),
			uint(cfg.DuplicateFilter.K.Get(ddf.DefaultK)),
		),
		ddf.WithRotateHook(func(s ddf.RotationStats) {
			stream.Send(ctx, events.NewEventDDFRotate(s.DuplicatesInWindow, s.InsertedInWindow))
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("daemon: cannot build duplicate filter: %w", err)
	}

	queue := admission.New(clk, cm, cm,
		admission.WithQueueSize(int(cfg.Admission.QueueSize.Get(admission.DefaultQueueSize))),
		admission.WithAcceptTimeoutMs(cfg.Admission.AcceptTimeout.Milliseconds(admission.DefaultAcceptTimeoutMs)),
		admission.WithLogger(logger),
		admission.WithEventStream(stream),
	)

	ingestRate := rate.Limit(cfg.Admission.IngestRate.Get(defaultIngestRate))
	ingestBurst := int(cfg.Admission.IngestBurst.Get(defaultIngestBurst))

	return &Daemon{
		cfg:           cfg,
		logger:        logger,
		clk:           clk,
		filter:        filter,
		cm:            cm,
		queue:         queue,
		stream:        stream,
		promFactory:   promFactory,
		statsdFactory: statsdFactory,
		limiter:       rate.NewLimiter(ingestRate, ingestBurst),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func buildObserverFactories(cfg config.Config) ([]events.ObserverFactory, *stats.PrometheusFactory, *stats.StatsDFactory) {
	var (
		factories     []events.ObserverFactory
		promFactory   *stats.PrometheusFactory
		statsdFactory *stats.StatsDFactory
	)

	if cfg.Stats.Prometheus.Enabled.Get(false) {
		prefix := cfg.Stats.Prometheus.MetricPrefix
		if prefix == "" {
			prefix = "admitcore"
		}

		httpPath := cfg.Stats.Prometheus.HTTPPath
		if httpPath == "" {
			httpPath = "/metrics"
		}

		promFactory = stats.NewPrometheus(prefix, httpPath, "dev")
		factories = append(factories, promFactory.Make)
	}

	if cfg.Stats.StatsD.Enabled.Get(false) {
		prefix := cfg.Stats.StatsD.MetricPrefix
		if prefix == "" {
			prefix = "admitcore"
		}

		statsdFactory = stats.NewStatsD(cfg.Stats.StatsD.Address.Get(""), prefix)
		factories = append(factories, statsdFactory.Make)
	}

	return factories, promFactory, statsdFactory
}

// Run binds the UDP socket, starts every worker, and blocks until the
// process receives a shutdown signal or the daemon's context is
// cancelled.
func (d *Daemon) Run() error {
	addr, err := net.ResolveUDPAddr("udp", d.cfg.BindTo.Get(""))
	if err != nil {
		return fmt.Errorf("daemon: bad bindTo: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("daemon: cannot bind: %w", err)
	}

	d.conn = conn

	dispatcher, err := admission.NewDispatcher(d.queue, defaultWorkerPoolSize)
	if err != nil {
		conn.Close()
		return fmt.Errorf("daemon: cannot build dispatcher: %w", err)
	}

	d.dispatcher = dispatcher

	d.queue.SetActive(true)

	if d.promFactory != nil && d.cfg.Stats.Prometheus.BindTo.Get("") != "" {
		d.startPrometheusServer()
	}

	d.wg.Add(3)
	go d.readLoop()
	go d.writeLoop()
	go d.acceptLoop()

	d.logger.Info().Str("bindTo", d.cfg.BindTo.Get("")).Msg("admitd listening")

	sigCtx, stop := signal.NotifyContext(d.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	d.cancel()
	d.shutdown()

	return nil
}

func (d *Daemon) startPrometheusServer() {
	listener, err := net.Listen("tcp", d.cfg.Stats.Prometheus.BindTo.Get(""))
	if err != nil {
		d.logger.Error().Err(err).Msg("cannot bind prometheus listener")
		return
	}

	go func() {
		if err := d.promFactory.Serve(listener); err != nil {
			d.logger.Debug().Err(err).Msg("prometheus server stopped")
		}
	}()
}

// readLoop decodes and deduplicates inline (both are cheap, allocation-light
// checks) and hands only the admission call itself off to the dispatcher's
// worker pool.
func (d *Daemon) readLoop() {
	defer d.wg.Done()

	buf := make([]byte, defaultDatagramBuffer)

	for {
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
				d.logger.Debug().Err(err).Msg("udp read error")
				continue
			}
		}

		if !d.limiter.Allow() {
			d.logger.Debug().Msg("ingest rate limit exceeded, dropping datagram")
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		d.handleDatagram(payload, addr)
	}
}

func (d *Daemon) handleDatagram(payload []byte, addr *net.UDPAddr) {
	p, err := decodeFrame(payload, nil)
	if err != nil {
		d.logger.Debug().Err(err).Msg("dropping malformed frame")
		return
	}

	d.cm.rememberAddr(p.ReceiveStreamID, addr)

	entry := make([]byte, ddfEntryBytes)
	binary.LittleEndian.PutUint32(entry[0:4], p.SendStreamID)
	binary.LittleEndian.PutUint64(entry[4:12], p.SequenceNumber)

	if dup, err := d.filter.Add(entry); err == nil && dup {
		d.stream.Send(d.ctx, events.NewEventDDFDuplicate())
		return
	}

	if err := d.dispatcher.Submit(p); err != nil {
		d.logger.Debug().Err(err).Msg("dispatcher rejected packet")
	}
}

func (d *Daemon) writeLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case p := <-d.cm.outCh:
			addr, ok := d.cm.takeAddr(p.SendStreamID)
			if !ok {
				d.logger.Debug().Uint32("sendStreamId", p.SendStreamID).Msg("no known address for outbound packet")
				continue
			}

			buf := encodeFrame(p, d.cm.myID)

			if _, err := d.conn.WriteToUDP(buf, addr); err != nil {
				d.logger.Debug().Err(err).Msg("udp write error")
			}
		}
	}
}

func (d *Daemon) acceptLoop() {
	defer d.wg.Done()

	acceptor, err := d.queue.Acceptor()
	if err != nil {
		d.logger.Error().Err(err).Msg("cannot obtain acceptor")
		return
	}

	for {
		conn, ok := acceptor.Accept(d.ctx, 0)
		if !ok {
			return
		}

		uc, ok := conn.(*udpConnection)
		if !ok {
			continue
		}

		d.logger.Info().Uint32("outboundId", uc.outboundID).Msg("connection admitted")
	}
}

func (d *Daemon) shutdown() {
	d.queue.SetActive(false)
	d.filter.StopDecaying()

	if d.conn != nil {
		d.conn.Close()
	}

	d.wg.Wait()

	if d.dispatcher != nil {
		d.dispatcher.Release()
	}

	d.stream.Shutdown()

	if d.promFactory != nil {
		if err := d.promFactory.Close(); err != nil {
			d.logger.Debug().Err(err).Msg("error closing prometheus server")
		}
	}

	if d.statsdFactory != nil {
		if err := d.statsdFactory.Close(); err != nil {
			d.logger.Debug().Err(err).Msg("error closing statsd client")
		}
	}
}

// Shutdown requests the daemon stop; Run returns once cleanup finishes.
func (d *Daemon) Shutdown() {
	d.cancel()
}


package supervisor

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/mt5gateway/observe"
	"github.com/jonwraymond/mt5gateway/resilience"
	"github.com/jonwraymond/mt5gateway/transport"
)

// Supervisor owns the three broker sockets end to end: dialing them (with
// C1 retry), watching them with a heartbeat, and reconnecting them
// (resubscribing previously active topics) when liveness is lost.
type Supervisor struct {
	cfg    Config
	logger observe.Logger
	tracer observe.Tracer

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	mu          sync.RWMutex
	state       State
	mux         *transport.Multiplexer
	connectedAt time.Time
	hbCancel    context.CancelFunc
	hbDone      chan struct{}

	reconnectCount atomic.Int64
	lastHeartbeat  atomic.Int64 // unix nano, 0 = none yet
}

// New builds a Supervisor in the Initialized state. It does not connect;
// call Connect to open the sockets.
func New(cfg Config, logger observe.Logger, tracer observe.Tracer) *Supervisor {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = observe.NewNoopLogger()
	}
	if tracer == nil {
		tracer = observe.NewNoopTracer()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:            cfg,
		logger:         logger,
		tracer:         tracer,
		state:          Initialized,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// Connect dials all three sockets (retried with exponential backoff per
// Config.ConnectMaxAttempts) and starts the heartbeat loop on success.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.setState(Connecting)

	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  s.cfg.ConnectMaxAttempts,
		InitialDelay: s.cfg.ConnectBaseDelay,
		MaxDelay:     s.cfg.ConnectMaxDelay,
		Strategy:     resilience.BackoffExponential,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			s.logger.Warn(context.Background(), "supervisor: connect attempt failed",
				observe.Field{Key: "attempt", Value: attempt},
				observe.Field{Key: "error", Value: err.Error()},
				observe.Field{Key: "next_delay", Value: delay},
			)
		},
	})

	var mux *transport.Multiplexer
	err := retry.Execute(ctx, func(ctx context.Context) error {
		m, e := s.dialAndBuild(ctx)
		if e != nil {
			return e
		}
		mux = m
		return nil
	})
	if err != nil {
		s.setState(Disconnected)
		return err
	}

	s.mu.Lock()
	s.mux = mux
	s.connectedAt = time.Now()
	s.mu.Unlock()

	s.setState(Connected)
	s.startHeartbeat()
	return nil
}

// Disconnect stops the heartbeat and closes the current sockets without
// attempting to reconnect. A subsequent Connect call is required to resume.
func (s *Supervisor) Disconnect(ctx context.Context) error {
	s.stopHeartbeat()

	s.mu.Lock()
	mux := s.mux
	s.mux = nil
	s.connectedAt = time.Time{}
	s.mu.Unlock()

	if mux != nil {
		_ = mux.Close()
	}
	s.setState(Disconnected)
	return nil
}

// Shutdown disconnects, cancels any reconnection attempt in flight, and
// moves the supervisor to its terminal Shutdown state.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.shutdownCancel()
	err := s.Disconnect(ctx)
	s.setState(Shutdown)
	return err
}

// Multiplexer returns the current live multiplexer, or nil if not
// connected.
func (s *Supervisor) Multiplexer() *transport.Multiplexer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mux
}

// State reports the supervisor's current lifecycle position.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Stats reports the observable connection statistics required for
// external health surfaces.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	state := s.state
	connectedAt := s.connectedAt
	mux := s.mux
	s.mu.RUnlock()

	var pending, pool int
	if mux != nil {
		pending = mux.PendingCount()
		pool = 3
	}
	var lastHB time.Time
	if n := s.lastHeartbeat.Load(); n != 0 {
		lastHB = time.Unix(0, n)
	}

	return Stats{
		State:           state,
		ConnectedSince:  connectedAt,
		ReconnectCount:  s.reconnectCount.Load(),
		LastHeartbeat:   lastHB,
		PendingRequests: pending,
		PoolSize:        pool,
	}
}

func (s *Supervisor) setState(newState State) {
	s.mu.Lock()
	old := s.state
	s.state = newState
	s.mu.Unlock()
	if old != newState && s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(old, newState)
	}
}

// dialAndBuild opens all three sockets concurrently via errgroup so a
// single connect attempt pays the cost of the slowest dial, not the sum of
// all three, then wraps them in a Multiplexer.
func (s *Supervisor) dialAndBuild(ctx context.Context) (*transport.Multiplexer, error) {
	g, gctx := errgroup.WithContext(ctx)
	var reqConn, subConn, pushConn net.Conn

	g.Go(func() error {
		c, err := transport.DialTCP(gctx, s.cfg.Host, s.cfg.Port, s.cfg.DialTimeout)
		if err != nil {
			return err
		}
		reqConn = c
		return nil
	})
	g.Go(func() error {
		c, err := transport.DialTCP(gctx, s.cfg.Host, s.cfg.Port+1, s.cfg.DialTimeout)
		if err != nil {
			return err
		}
		subConn = c
		return nil
	})
	g.Go(func() error {
		c, err := transport.DialTCP(gctx, s.cfg.Host, s.cfg.Port+2, s.cfg.DialTimeout)
		if err != nil {
			return err
		}
		pushConn = c
		return nil
	})

	if err := g.Wait(); err != nil {
		for _, c := range []net.Conn{reqConn, subConn, pushConn} {
			if c != nil {
				_ = c.Close()
			}
		}
		return nil, err
	}

	mux := transport.NewMultiplexer(reqConn, subConn, pushConn, transport.Config{
		RequestTimeout: s.cfg.RequestTimeout,
		Encryptor:      s.cfg.Encryptor,
	}, s.logger, s.tracer)
	return mux, nil
}

func (s *Supervisor) startHeartbeat() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.hbCancel = cancel
	s.hbDone = done
	s.mu.Unlock()
	go s.heartbeatLoop(ctx, done)
}

func (s *Supervisor) stopHeartbeat() {
	s.mu.Lock()
	cancel := s.hbCancel
	done := s.hbDone
	s.hbCancel = nil
	s.hbDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// heartbeatLoop pings the broker at HeartbeatInterval. MaxHeartbeatMisses
// consecutive failures hands liveness loss off to handleConnectionLost and
// the loop exits; the cancellation-driven exit (via Disconnect/Shutdown)
// takes precedence and exits quietly.
func (s *Supervisor) heartbeatLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mux := s.Multiplexer()
			if mux == nil {
				return
			}
			hbCtx, cancel := context.WithTimeout(ctx, s.cfg.HeartbeatTimeout)
			_, err := mux.SendRequest(hbCtx, "HEARTBEAT", "ping", nil)
			cancel()

			if err != nil {
				misses++
				s.logger.Warn(context.Background(), "supervisor: heartbeat miss",
					observe.Field{Key: "misses", Value: misses},
					observe.Field{Key: "error", Value: err.Error()},
				)
				if misses >= s.cfg.MaxHeartbeatMisses {
					go s.handleConnectionLost()
					return
				}
				continue
			}
			misses = 0
			s.lastHeartbeat.Store(time.Now().UnixNano())
		}
	}
}

// handleConnectionLost implements the supervisor's liveness-loss sequence:
// mark not-connected, fail pending requests (via mux.Close's rejectAll),
// transition to Reconnecting, and hand off to the reconnect loop.
func (s *Supervisor) handleConnectionLost() {
	s.mu.Lock()
	s.hbCancel = nil
	s.hbDone = nil
	mux := s.mux
	s.mu.Unlock()

	if mux == nil {
		return
	}
	topics := mux.ActiveTopics()
	s.setState(Reconnecting)
	_ = mux.Close()
	s.reconnectLoop(topics)
}

// reconnectLoop re-dials with exponential backoff up to
// MaxReconnectAttempts. On success it resubscribes the topics that were
// active before the connection was lost and resumes the heartbeat. On
// exhaustion it transitions through Unreachable to Disconnected, per spec.
func (s *Supervisor) reconnectLoop(topics []string) {
	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  s.cfg.MaxReconnectAttempts,
		InitialDelay: s.cfg.ReconnectBaseDelay,
		MaxDelay:     s.cfg.ReconnectMaxDelay,
		Strategy:     resilience.BackoffExponential,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			s.logger.Warn(context.Background(), "supervisor: reconnect attempt failed",
				observe.Field{Key: "attempt", Value: attempt},
				observe.Field{Key: "error", Value: err.Error()},
				observe.Field{Key: "next_delay", Value: delay},
			)
		},
	})

	var mux *transport.Multiplexer
	err := retry.Execute(s.shutdownCtx, func(ctx context.Context) error {
		m, e := s.dialAndBuild(ctx)
		if e != nil {
			return e
		}
		mux = m
		return nil
	})
	if err != nil {
		if s.State() == Shutdown {
			return
		}
		s.setState(Unreachable)
		s.setState(Disconnected)
		s.logger.Error(context.Background(), "supervisor: exhausted reconnect attempts",
			observe.Field{Key: "max_attempts", Value: s.cfg.MaxReconnectAttempts},
		)
		return
	}

	if len(topics) > 0 {
		if serr := mux.Subscribe(topics); serr != nil {
			s.logger.Warn(context.Background(), "supervisor: resubscribe after reconnect failed",
				observe.Field{Key: "error", Value: serr.Error()},
			)
		}
	}

	s.mu.Lock()
	s.mux = mux
	s.connectedAt = time.Now()
	s.mu.Unlock()

	s.reconnectCount.Add(1)
	s.setState(Connected)
	s.startHeartbeat()
	s.logger.Info(context.Background(), "supervisor: reconnected",
		observe.Field{Key: "topics", Value: len(topics)},
	)
}

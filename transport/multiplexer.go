package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/mt5gateway/observe"
)

// Config configures a Multiplexer's request timeout and encryption. Socket
// dialing itself is the supervisor's job (it owns reconnect/backoff); the
// multiplexer only ever wraps already-established connections.
type Config struct {
	RequestTimeout time.Duration
	Encryptor      Encryptor // nil selects a pass-through no-op
}

// DialTCP opens one channel's TCP connection with a bounded dial timeout.
// The supervisor calls this once per channel (REQ, SUB, PUSH), typically in
// parallel via errgroup, then hands the three net.Conns to NewMultiplexer.
func DialTCP(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return conn, nil
}

// Multiplexer owns the three channels to the broker: REQ/REP for correlated
// requests, SUB for inbound topic events, PUSH for fire-and-forget
// notifications. Its request path pipelines: the REQ socket write is
// serialized with a mutex (never interleaving two frames) but callers are
// not blocked one-at-a-time — reqReadLoop resolves the pending table by
// envelope id as replies arrive, in whatever order the broker returns them.
type Multiplexer struct {
	cfg    Config
	enc    Encryptor
	logger observe.Logger
	tracer observe.Tracer

	reqConn  net.Conn
	subConn  net.Conn
	pushConn net.Conn

	reqWriteMu sync.Mutex
	pending    *pendingTable

	topicsMu sync.RWMutex
	topics   map[string]struct{}

	events    chan Envelope
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewMultiplexer wraps three already-dialed connections and starts their
// read loops. The caller (supervisor) owns connect/reconnect; once built, a
// Multiplexer runs until Close is called.
func NewMultiplexer(reqConn, subConn, pushConn net.Conn, cfg Config, logger observe.Logger, tracer observe.Tracer) *Multiplexer {
	if cfg.Encryptor == nil {
		cfg.Encryptor = noopEncryptor{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = observe.NewNoopLogger()
	}
	if tracer == nil {
		tracer = observe.NewNoopTracer()
	}

	m := &Multiplexer{
		cfg:      cfg,
		enc:      cfg.Encryptor,
		logger:   logger,
		tracer:   tracer,
		reqConn:  reqConn,
		subConn:  subConn,
		pushConn: pushConn,
		pending:  newPendingTable(),
		topics:   make(map[string]struct{}),
		events:   make(chan Envelope, 256),
		closed:   make(chan struct{}),
	}

	m.wg.Add(2)
	go m.reqReadLoop()
	go m.subReadLoop()

	return m
}

// SendRequest implements the send contract: generate id, stamp timestamp,
// encrypt, enqueue on REQ, register a pending entry with a deadline, then
// suspend until exactly one of reply/timeout/connection-loss/cancellation
// terminally resolves it.
func (m *Multiplexer) SendRequest(ctx context.Context, msgType, action string, data any) (Envelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("transport: marshal request data: %w", err)
	}

	env := Envelope{
		ID:        uuid.NewString(),
		Type:      msgType,
		Action:    action,
		Timestamp: time.Now().UnixMilli(),
		Data:      payload,
	}

	ctx, span := m.tracer.StartSpan(ctx, observe.CallMeta{Component: "transport", Operation: "send_request", ID: env.ID})
	defer func() { m.tracer.EndSpan(span, err) }()

	pr := m.pending.register(env.ID)

	m.reqWriteMu.Lock()
	writeErr := writeFrame(m.reqConn, env, m.enc)
	m.reqWriteMu.Unlock()
	if writeErr != nil {
		m.pending.remove(env.ID)
		err = fmt.Errorf("%w: %v", ErrConnectionLost, writeErr)
		return Envelope{}, err
	}

	select {
	case res := <-pr.resultCh:
		if res.err != nil {
			err = res.err
			return Envelope{}, err
		}
		return res.env, nil
	case <-ctx.Done():
		m.pending.remove(env.ID)
		err = ErrCancelled
		return Envelope{}, err
	case <-time.After(m.cfg.RequestTimeout):
		m.pending.remove(env.ID)
		err = ErrRequestTimeout
		return Envelope{}, err
	case <-m.closed:
		err = ErrClosed
		return Envelope{}, err
	}
}

// SendMessage pushes a fire-and-forget notification on the PUSH channel. No
// correlation and no retry: retry is the caller's job via resilience.Retry
// if it opts in.
func (m *Multiplexer) SendMessage(msgType, action string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("transport: marshal push data: %w", err)
	}
	env := Envelope{
		ID:        uuid.NewString(),
		Type:      msgType,
		Action:    action,
		Timestamp: time.Now().UnixMilli(),
		Data:      payload,
	}
	if err := writeFrame(m.pushConn, env, m.enc); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

// Subscribe routes topics to the SUB socket. Topics are opaque strings.
func (m *Multiplexer) Subscribe(topics []string) error {
	return m.sendSubCommand("subscribe", topics)
}

// Unsubscribe removes topics from the SUB socket.
func (m *Multiplexer) Unsubscribe(topics []string) error {
	return m.sendSubCommand("unsubscribe", topics)
}

func (m *Multiplexer) sendSubCommand(action string, topics []string) error {
	payload, err := json.Marshal(map[string][]string{"topics": topics})
	if err != nil {
		return fmt.Errorf("transport: marshal %s topics: %w", action, err)
	}
	env := Envelope{
		ID:        uuid.NewString(),
		Type:      "SUBSCRIPTION",
		Action:    action,
		Timestamp: time.Now().UnixMilli(),
		Data:      payload,
	}
	if err := writeFrame(m.subConn, env, m.enc); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	m.topicsMu.Lock()
	defer m.topicsMu.Unlock()
	for _, t := range topics {
		if action == "subscribe" {
			m.topics[t] = struct{}{}
		} else {
			delete(m.topics, t)
		}
	}
	return nil
}

// ActiveTopics returns the topics currently believed subscribed, used by
// the supervisor to resubscribe after a reconnect.
func (m *Multiplexer) ActiveTopics() []string {
	m.topicsMu.RLock()
	defer m.topicsMu.RUnlock()
	topics := make([]string, 0, len(m.topics))
	for t := range m.topics {
		topics = append(topics, t)
	}
	return topics
}

// Events returns the channel of inbound SUB-socket events, consumed by the
// event router (C5).
func (m *Multiplexer) Events() <-chan Envelope {
	return m.events
}

// PendingCount reports the number of in-flight requests, an observable stat
// surfaced by the supervisor.
func (m *Multiplexer) PendingCount() int {
	return m.pending.len()
}

// Close tears down all three sockets, rejects every pending request with
// ErrConnectionLost, and stops the read loops.
func (m *Multiplexer) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.pending.rejectAll(ErrConnectionLost)
		close(m.closed)
		if e := m.reqConn.Close(); e != nil {
			err = e
		}
		_ = m.subConn.Close()
		_ = m.pushConn.Close()
		m.wg.Wait()
		close(m.events)
	})
	return err
}

func (m *Multiplexer) reqReadLoop() {
	defer m.wg.Done()
	for {
		env, err := readFrame(m.reqConn, m.enc)
		if err != nil {
			select {
			case <-m.closed:
				return
			default:
			}
			m.logger.Warn(context.Background(), "transport: req read failed", observe.Field{Key: "error", Value: err.Error()})
			m.pending.rejectAll(ErrConnectionLost)
			return
		}
		if env.IsHeartbeat() {
			m.pending.resolve(env)
			continue
		}
		if !m.pending.resolve(env) {
			m.logger.Debug(context.Background(), "transport: reply for unknown or already-resolved id", observe.Field{Key: "id", Value: env.ID})
		}
	}
}

func (m *Multiplexer) subReadLoop() {
	defer m.wg.Done()
	for {
		env, err := readFrame(m.subConn, m.enc)
		if err != nil {
			select {
			case <-m.closed:
				return
			default:
			}
			m.logger.Warn(context.Background(), "transport: sub read failed", observe.Field{Key: "error", Value: err.Error()})
			return
		}
		select {
		case m.events <- env:
		case <-m.closed:
			return
		}
	}
}

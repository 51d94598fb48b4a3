package conn

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pushtray/pushtray/internal/domain"
)

// FrameHandler consumes raw inbound frames. Satisfied by the dispatcher.
type FrameHandler interface {
	HandleFrame(data []byte)
}

// Hooks carries the metric callback functions injected by main.
// Nil fields are replaced with no-ops.
type Hooks struct {
	OnStateChange        func(State)
	OnFrame              func(bytes int)
	OnHeartbeat          func()
	OnReconnectScheduled func(delay time.Duration, attempt int)
}

func (h *Hooks) fillNoops() {
	if h.OnStateChange == nil {
		h.OnStateChange = func(State) {}
	}
	if h.OnFrame == nil {
		h.OnFrame = func(int) {}
	}
	if h.OnHeartbeat == nil {
		h.OnHeartbeat = func() {}
	}
	if h.OnReconnectScheduled == nil {
		h.OnReconnectScheduled = func(time.Duration, int) {}
	}
}

// Config controls the manager. Zero values get defaults matching the
// wire contract: 25 s heartbeat, 1 s backoff base, 30 s backoff cap,
// 10 s dial timeout, wall clock.
type Config struct {
	URL   string
	Token string

	HeartbeatInterval time.Duration
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	DialTimeout       time.Duration
	Clock             Clock
}

func (c *Config) fillDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
}

// Manager owns the single push channel: it opens it, feeds inbound
// frames to the handler, sends heartbeats, and re-establishes the
// channel after any loss with exponential backoff. Socket failures are
// never surfaced to callers; they only ever produce a scheduled retry,
// indefinitely, until Disconnect or Close.
//
// The generation counter invalidates callbacks belonging to a torn-down
// connection: Disconnect bumps it, so a stale dial result or read-loop
// exit observing an old generation does nothing. This is what keeps "at
// most one live socket" true even when teardown races an in-flight dial.
type Manager struct {
	cfg    Config
	dialer Dialer
	frames FrameHandler
	logger *zap.Logger
	hooks  Hooks

	mu        sync.Mutex
	state     State
	token     string
	retries   int
	gen       uint64
	dialing   bool
	conn      Conn
	reconnect Timer
	heartbeat Timer
	hbRunning bool
}

func New(cfg Config, dialer Dialer, frames FrameHandler, logger *zap.Logger, hooks Hooks) *Manager {
	cfg.fillDefaults()
	hooks.fillNoops()
	return &Manager{
		cfg:    cfg,
		dialer: dialer,
		frames: frames,
		logger: logger,
		hooks:  hooks,
		token:  cfg.Token,
		state:  StateDisconnected,
	}
}

// Start begins the heartbeat chain and issues the first connect. Safe to
// call repeatedly; a closed manager stays closed.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	if !m.hbRunning {
		m.hbRunning = true
		m.heartbeat = m.cfg.Clock.AfterFunc(m.cfg.HeartbeatInterval, m.heartbeatTick)
	}
	m.mu.Unlock()

	m.Connect()
}

// Connect ensures a dial is in flight or a socket is open. It is a
// no-op while the manager is closed, a dial is pending, or a socket is
// live, so callers may invoke it freely and concurrently. Any pending
// backoff timer is cancelled in favor of the immediate attempt.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == StateClosed || m.dialing || m.conn != nil {
		m.mu.Unlock()
		return
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.dialing = true
	gen := m.gen
	endpoint := buildURL(m.cfg.URL, m.token)
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	go m.dial(gen, endpoint)
}

// SetToken replaces the bearer token used for subsequent dials. A live
// socket is not re-dialed; the new token applies on the next connect.
func (m *Manager) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// Disconnect tears the channel down to a clean slate: cancels any
// pending reconnect, stops the heartbeat, closes the live socket, and
// resets the retry counter. Idempotent; Start or Connect brings the
// manager back afterward.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return
	}
	m.teardownLocked(StateDisconnected)
}

// Close is Disconnect plus a terminal closed state. Subsequent Start
// and Connect calls are no-ops.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return
	}
	m.teardownLocked(StateClosed)
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Retries returns the current value of the retry counter.
func (m *Manager) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

func (m *Manager) teardownLocked(next State) {
	m.gen++
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
	m.hbRunning = false
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.retries = 0
	m.dialing = false
	m.setStateLocked(next)
}

func (m *Manager) dial(gen uint64, endpoint string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	defer cancel()

	c, err := m.dialer.Dial(ctx, endpoint)

	m.mu.Lock()
	if m.gen != gen || m.state == StateClosed {
		m.mu.Unlock()
		// Teardown raced the dial; the fresh socket is not ours to keep.
		if c != nil {
			c.Close()
		}
		return
	}
	m.dialing = false
	if err != nil {
		m.logger.Warn("push channel dial failed", zap.Error(err))
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return
	}
	m.conn = c
	m.retries = 0
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.logger.Info("push channel connected", zap.String("url", m.cfg.URL))
	go m.readLoop(gen, c)
}

func (m *Manager) readLoop(gen uint64, c Conn) {
	for {
		data, err := c.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		m.hooks.OnFrame(len(data))
		m.frames.HandleFrame(data)
	}
}

// handleClose runs when the read loop exits. Losses belonging to the
// current generation schedule a retry; anything else was already torn
// down deliberately.
func (m *Manager) handleClose(gen uint64, cause error) {
	m.mu.Lock()
	if m.gen != gen || m.conn == nil {
		m.mu.Unlock()
		return
	}
	m.conn.Close()
	m.conn = nil
	m.logger.Warn("push channel lost", zap.Error(cause))
	m.scheduleReconnectLocked()
	m.mu.Unlock()
}

// scheduleReconnectLocked arms the backoff timer for the next attempt
// and increments the retry counter. The timer is armed before any state
// change or hook is published, so an observer that sees reconnecting can
// rely on the retry being scheduled. Callers hold m.mu.
func (m *Manager) scheduleReconnectLocked() {
	delay := m.backoffDelayLocked()
	m.retries++
	attempt := m.retries

	gen := m.gen
	m.reconnect = m.cfg.Clock.AfterFunc(delay, func() {
		m.mu.Lock()
		stale := m.gen != gen
		m.mu.Unlock()
		if stale {
			return
		}
		m.Connect()
	})
	m.setStateLocked(StateReconnecting)
	m.logger.Info("reconnect scheduled",
		zap.Duration("delay", delay), zap.Int("attempt", attempt))
	m.hooks.OnReconnectScheduled(delay, attempt)
}

// backoffDelayLocked computes min(cap, base * 2^retries), clamped so the
// shift cannot overflow for large retry counts.
func (m *Manager) backoffDelayLocked() time.Duration {
	if m.retries >= 32 {
		return m.cfg.BackoffCap
	}
	delay := m.cfg.BackoffBase << uint(m.retries)
	if delay <= 0 || delay > m.cfg.BackoffCap {
		return m.cfg.BackoffCap
	}
	return delay
}

// heartbeatTick sends one ping and rearms itself. Send failures are
// swallowed: a dead socket is the read loop's problem, and a ping must
// never fail into the caller.
func (m *Manager) heartbeatTick() {
	m.mu.Lock()
	if !m.hbRunning || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.heartbeat = m.cfg.Clock.AfterFunc(m.cfg.HeartbeatInterval, m.heartbeatTick)
	c := m.conn
	now := m.cfg.Clock.Now()
	m.mu.Unlock()

	if c == nil {
		return
	}
	ping := domain.PingFrame{Type: domain.FrameTypePing, T: now.UnixMilli()}
	if err := c.WriteJSON(ping); err != nil {
		m.logger.Debug("heartbeat send failed", zap.Error(err))
		return
	}
	m.hooks.OnHeartbeat()
}

func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}
	prev := m.state
	m.state = next
	m.logger.Debug("connection state changed",
		zap.String("from", string(prev)), zap.String("to", string(next)))
	m.hooks.OnStateChange(next)
}

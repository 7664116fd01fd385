package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"gorm.io/gorm"

	"github.com/diegod088/bot-bens11-sub000/internal/config"
	"github.com/diegod088/bot-bens11-sub000/internal/logger"
	"github.com/diegod088/bot-bens11-sub000/internal/metrics"
	"github.com/diegod088/bot-bens11-sub000/internal/retry"
)

// Status represents the state of the secondary session.
type Status string

// Status constants define the possible states of the secondary session.
const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
	StatusDegraded     Status = "DEGRADED"
	StatusUnauthorized Status = "UNAUTHORIZED"
	StatusFatal        Status = "FATAL"
)

var allStatuses = []Status{
	StatusDisconnected, StatusConnecting, StatusConnected,
	StatusDegraded, StatusUnauthorized, StatusFatal,
}

// ClientFactory opens a connection of the secondary session.
type ClientFactory func(ctx context.Context, cfg *config.Config, db *gorm.DB) (Conn, error)

// QRClientFactory is a function that creates a raw telegram client for QR auth.
type QRClientFactory func(cfg *config.Config) (*QRClientBundle, error)

// Manager owns the secondary session connection. Every provider call goes
// through Do, which connects on demand, paces requests, honours flood-waits
// and reconnects after network failures.
type Manager struct {
	conn Conn
	db   *gorm.DB
	cfg  *config.Config
	sess config.SessionConfig
	log  *logger.Logger

	status Status
	mu     sync.RWMutex

	// serializes connection attempts
	connectMu sync.Mutex

	limiter *RateLimiter
	sleep   retry.Sleeper

	clientFactory   ClientFactory
	qrClientFactory QRClientFactory

	listeners   []func(Status)
	listenersMu sync.RWMutex

	// QR flow state management
	qrInProgress atomic.Bool
	qrCancel     context.CancelFunc
	qrMu         sync.Mutex
}

// NewManager creates a new session Manager.
func NewManager(cfg *config.Config, db *gorm.DB) *Manager {
	sess := withDefaults(cfg.Session)
	return &Manager{
		db:              db,
		cfg:             cfg,
		sess:            sess,
		log:             logger.Component("telegram"),
		status:          StatusDisconnected,
		limiter:         NewRateLimiter(sess.RPS, 1),
		sleep:           retry.Sleep,
		clientFactory:   NewPersistentClient,
		qrClientFactory: NewQRClient,
	}
}

func withDefaults(s config.SessionConfig) config.SessionConfig {
	if s.ConnectAttempts < 1 {
		s.ConnectAttempts = 5
	}
	if s.FloodAttempts < 1 {
		s.FloodAttempts = 3
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = time.Second
	}
	if s.BackoffMax <= 0 {
		s.BackoffMax = time.Minute
	}
	if s.FloodMaxWait <= 0 {
		s.FloodMaxWait = 5 * time.Minute
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = time.Minute
	}
	if s.DownloadTimeout <= 0 {
		s.DownloadTimeout = 10 * time.Minute
	}
	if s.HealthInterval <= 0 {
		s.HealthInterval = 30 * time.Second
	}
	return s
}

// SetClientFactory allows overriding the client creation logic (e.g. for testing).
func (m *Manager) SetClientFactory(f ClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientFactory = f
}

// SetQRClientFactory allows overriding the QR client creation logic (e.g. for testing).
func (m *Manager) SetQRClientFactory(f QRClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qrClientFactory = f
}

// SetClock replaces wall-clock waiting, for tests.
func (m *Manager) SetClock(now func() time.Time, sleep retry.Sleeper) {
	m.sleep = sleep
	m.limiter.now = now
	m.limiter.sleep = sleep
}

// OnStatusChange registers a callback fired after every state transition.
func (m *Manager) OnStatusChange(fn func(Status)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Status returns the current session state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	old := m.status
	m.status = s
	m.mu.Unlock()

	if old == s {
		return
	}

	m.log.Info().Str("from", string(old)).Str("to", string(s)).Msg("telegram: session state changed")
	for _, st := range allStatuses {
		v := 0.0
		if st == s {
			v = 1
		}
		metrics.SessionState.WithLabelValues(string(st)).Set(v)
	}

	m.listenersMu.RLock()
	listeners := append([]func(Status){}, m.listeners...)
	m.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}

func (m *Manager) api() API {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return nil
	}
	return m.conn.API()
}

func (m *Manager) hasSession() bool {
	return m.cfg.TGSessionStr != "" || HasStoredSession(m.db)
}

// Init connects when a stored session exists. It never fails: without a
// session or a reachable server the bot keeps running in degraded mode.
func (m *Manager) Init(ctx context.Context) error {
	if !m.hasSession() {
		m.log.Info().Msg("telegram: no session in database, waiting for auth")
		m.setStatus(StatusUnauthorized)
		return nil
	}

	if err := m.EnsureConnected(ctx); err != nil {
		m.log.Warn().Err(err).Msg("telegram: initial connect failed, running degraded")
		return nil
	}

	m.log.Info().Msg("telegram: client is ready")
	return nil
}

// EnsureConnected is idempotent: it returns at once when connected and
// otherwise runs one bounded, backed-off connection loop shared by all callers.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	if m.Status() == StatusConnected {
		return nil
	}

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	switch m.Status() {
	case StatusConnected:
		return nil
	case StatusFatal:
		return ErrSessionRevoked
	}

	if !m.hasSession() {
		m.setStatus(StatusUnauthorized)
		return ErrUnauthorized
	}

	m.setStatus(StatusConnecting)
	m.dropConn()

	m.mu.RLock()
	factory := m.clientFactory
	m.mu.RUnlock()

	policy := retry.Policy{
		MaxAttempts: m.sess.ConnectAttempts,
		BaseDelay:   m.sess.BackoffBase,
		MaxDelay:    m.sess.BackoffMax,
		Multiplier:  2,
		Jitter:      0.1,
	}

	err := retry.Do(ctx, policy, classifyConnect, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, m.sess.CallTimeout)
		defer cancel()

		conn, err := factory(cctx, m.cfg, m.db)
		if err != nil {
			metrics.ReconnectsTotal.WithLabelValues("error").Inc()
			return err
		}

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		metrics.ReconnectsTotal.WithLabelValues("ok").Inc()
		return nil
	},
		retry.WithSleeper(m.sleep),
		retry.WithNotify(func(attempt int, err error, wait time.Duration) {
			m.log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("telegram: connect failed, backing off")
		}),
	)

	switch {
	case err == nil:
		m.setStatus(StatusConnected)
		return nil
	case IsFatal(err):
		m.markFatal(err)
		return fmt.Errorf("%w: %v", ErrSessionRevoked, err)
	case ctx.Err() != nil:
		m.setStatus(StatusDisconnected)
		return err
	default:
		m.setStatus(StatusDisconnected)
		return fmt.Errorf("%w: %v", ErrConnectionExhausted, err)
	}
}

func classifyConnect(err error) retry.Verdict {
	if IsFatal(err) || errors.Is(err, context.Canceled) {
		return retry.StopOn()
	}
	return retry.Backoff()
}

// Do runs fn against the live API with the session's resilience policy.
func (m *Manager) Do(ctx context.Context, op string, fn func(ctx context.Context, api API) error, opts ...CallOption) error {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	timeout := m.sess.CallTimeout
	if o.long {
		timeout = m.sess.DownloadTimeout
	}

	policy := retry.Policy{
		MaxAttempts: m.sess.FloodAttempts + 1,
		BaseDelay:   m.sess.BackoffBase,
		MaxDelay:    m.sess.BackoffMax,
		Multiplier:  2,
	}

	return retry.Do(ctx, policy, m.classifyCall, func(ctx context.Context) error {
		if err := m.EnsureConnected(ctx); err != nil {
			return err
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}

		api := m.api()
		if api == nil {
			return ErrNotConnected
		}

		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := fn(cctx, api)
		if err != nil && ctx.Err() == nil {
			m.observe(op, err)
		}
		return err
	},
		retry.WithSleeper(m.sleep),
		retry.WithNotify(func(attempt int, err error, wait time.Duration) {
			m.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("wait", wait).Msg("telegram: call failed, retrying")
		}),
	)
}

func (m *Manager) classifyCall(err error) retry.Verdict {
	switch {
	case errors.Is(err, ErrSessionRevoked),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrConnectionExhausted),
		errors.Is(err, context.Canceled),
		IsFatal(err):
		return retry.StopOn()
	}

	if d, ok := FloodWait(err); ok {
		if d > m.sess.FloodMaxWait {
			return retry.StopOn()
		}
		return retry.After(d + m.sess.FloodMargin)
	}

	if IsNetwork(err) || errors.Is(err, ErrNotConnected) {
		return retry.Backoff()
	}
	return retry.StopOn()
}

// observe updates session state after a failed call.
func (m *Manager) observe(op string, err error) {
	if d, ok := FloodWait(err); ok {
		metrics.FloodWaitsTotal.WithLabelValues(op).Inc()
		metrics.FloodWaitSecondsTotal.WithLabelValues(op).Add(d.Seconds())
		m.log.Warn().Str("op", op).Dur("wait", d).Msg("telegram: FLOOD_WAIT, pausing session")
		m.limiter.SetFloodWait(d)
		return
	}
	if IsFatal(err) {
		m.markFatal(err)
		return
	}
	if IsNetwork(err) {
		m.markDegraded(op, err)
	}
}

func (m *Manager) markDegraded(op string, err error) {
	m.mu.Lock()
	connected := m.status == StatusConnected
	m.mu.Unlock()
	if !connected {
		return
	}
	m.log.Warn().Err(err).Str("op", op).Msg("telegram: network failure, session degraded")
	m.setStatus(StatusDegraded)
}

func (m *Manager) markFatal(err error) {
	m.dropConn()
	m.setStatus(StatusFatal)
	m.log.Alert(err, "telegram: secondary session revoked or account deactivated, re-login required")
}

func (m *Manager) dropConn() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Stop()
	}
}

// Supervise keeps the session healthy until ctx is done: it pings while
// connected and reconnects while degraded.
func (m *Manager) Supervise(ctx context.Context) error {
	ticker := time.NewTicker(m.sess.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return nil
		case <-ticker.C:
			m.checkHealth(ctx)
		}
	}
}

func (m *Manager) checkHealth(ctx context.Context) {
	switch m.Status() {
	case StatusConnected:
		api := m.api()
		if api == nil {
			m.setStatus(StatusDegraded)
			return
		}

		pctx, cancel := context.WithTimeout(ctx, m.sess.CallTimeout)
		_, err := api.UpdatesGetState(pctx)
		cancel()
		if err == nil || ctx.Err() != nil {
			return
		}

		m.observe("ping", err)
		if _, flood := FloodWait(err); !flood && !IsFatal(err) && !IsNetwork(err) {
			m.log.Warn().Err(err).Msg("telegram: health ping failed")
		}

	case StatusDegraded, StatusDisconnected, StatusUnauthorized:
		if !m.hasSession() {
			return
		}
		if err := m.EnsureConnected(ctx); err != nil && ctx.Err() == nil {
			m.log.Warn().Err(err).Msg("telegram: reconnect failed")
		}
	}
}

// IsQRInProgress returns true if a QR login flow is currently in progress.
func (m *Manager) IsQRInProgress() bool {
	return m.qrInProgress.Load()
}

// StartQR starts the QR login flow.
// It blocks until login succeeds or ctx is canceled, and fails at once
// when another QR flow is running.
func (m *Manager) StartQR(ctx context.Context, onQRCode func(url string)) error {
	if m.Status() == StatusConnected {
		return fmt.Errorf("already logged in")
	}

	m.qrMu.Lock()
	if m.qrInProgress.Load() {
		m.qrMu.Unlock()
		m.log.Info().Msg("telegram: QR flow already in progress, ignoring new request")
		return fmt.Errorf("QR login already in progress")
	}

	qrCtx, cancel := context.WithCancel(ctx)
	m.qrCancel = cancel
	m.qrInProgress.Store(true)
	m.qrMu.Unlock()

	defer func() {
		m.qrInProgress.Store(false)
		m.qrMu.Lock()
		if m.qrCancel != nil {
			m.qrCancel()
			m.qrCancel = nil
		}
		m.qrMu.Unlock()
	}()

	m.mu.RLock()
	factory := m.qrClientFactory
	m.mu.RUnlock()

	bundle, err := factory(m.cfg)
	if err != nil {
		return fmt.Errorf("create QR client: %w", err)
	}

	var (
		authErr     error
		sessionData *session.Data
	)

	err = bundle.Client.Run(qrCtx, func(ctx context.Context) error {
		qr := bundle.Client.QR()
		loggedIn := qrlogin.OnLoginToken(&bundle.Dispatcher)

		_, authErr = qr.Auth(ctx, loggedIn, func(_ context.Context, token qrlogin.Token) error {
			m.log.Info().Msg("telegram: QR token generated")
			onQRCode(token.URL())
			return nil
		})
		if authErr != nil {
			return authErr
		}

		loader := session.Loader{Storage: bundle.Storage}
		sessionData, authErr = loader.Load(ctx)
		return authErr
	})

	if err != nil || authErr != nil {
		if errors.Is(err, context.Canceled) || errors.Is(authErr, context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("QR auth flow failed: %w", errors.Join(err, authErr))
	}

	if sessionData == nil {
		return fmt.Errorf("session data is nil after successful auth")
	}

	m.log.Info().Msg("telegram: saving session to database")
	if err := SaveSession(m.db, sessionData); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	// a fresh login clears a revoked state
	m.setStatus(StatusDisconnected)
	return m.EnsureConnected(ctx)
}

// CancelQR cancels any ongoing QR login flow.
func (m *Manager) CancelQR() {
	m.qrMu.Lock()
	defer m.qrMu.Unlock()

	if m.qrCancel != nil {
		m.log.Info().Msg("telegram: canceling ongoing QR flow")
		m.qrCancel()
		m.qrCancel = nil
	}
	m.qrInProgress.Store(false)
}

// Stop closes the connection. A revoked or unauthorized state is kept.
func (m *Manager) Stop() {
	m.dropConn()

	switch m.Status() {
	case StatusFatal, StatusUnauthorized:
	default:
		m.setStatus(StatusDisconnected)
	}
}

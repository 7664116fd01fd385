package telegram

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gotd/td/pool"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/diegod088/bot-bens11-sub000/internal/config"
	"github.com/diegod088/bot-bens11-sub000/internal/retry"
)

func TestManager_Init_NoSession_Unauthorized(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, false)

	err := tm.Init(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, StatusUnauthorized, tm.Status())
	assert.Zero(t, tm.dials.Load(), "factory must not be called without a session")
}

func TestManager_Init_WithSession_Connected(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, true)

	var seen []Status
	tm.OnStatusChange(func(s Status) { seen = append(seen, s) })

	require.NoError(t, tm.Init(context.Background()))

	assert.Equal(t, StatusConnected, tm.Status())
	assert.Equal(t, []Status{StatusConnecting, StatusConnected}, seen)
}

func TestManager_Init_FactoryError_Degraded(t *testing.T) {
	db := newSessionDB(t, true)
	m := NewManager(testConfig(), db)
	clock := newFakeClock()
	m.SetClock(clock.Now, clock.Sleep)

	calls := 0
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (Conn, error) {
		calls++
		return nil, errors.New("dial tcp: connection refused")
	})

	err := m.Init(context.Background())

	assert.NoError(t, err, "Init should not return error even if factory fails")
	assert.Equal(t, StatusDisconnected, m.Status())
	assert.Equal(t, 3, calls)
	assert.Len(t, clock.Slept(), 2)
}

func TestManager_EnsureConnected_Exhausted(t *testing.T) {
	m := NewManager(testConfig(), newSessionDB(t, true))
	clock := newFakeClock()
	m.SetClock(clock.Now, clock.Sleep)
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (Conn, error) {
		return nil, io.EOF
	})

	err := m.EnsureConnected(context.Background())

	assert.ErrorIs(t, err, ErrConnectionExhausted)
	for i, d := range clock.Slept() {
		assert.Greater(t, d, time.Duration(0), "wait %d", i)
		assert.LessOrEqual(t, d, 5*time.Second, "wait %d must stay near the cap", i)
	}
}

func TestManager_EnsureConnected_FatalShortCircuits(t *testing.T) {
	m := NewManager(testConfig(), newSessionDB(t, true))
	clock := newFakeClock()
	m.SetClock(clock.Now, clock.Sleep)

	calls := 0
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (Conn, error) {
		calls++
		return nil, tgerr.New(401, "AUTH_KEY_UNREGISTERED")
	})

	err := m.EnsureConnected(context.Background())
	assert.ErrorIs(t, err, ErrSessionRevoked)
	assert.Equal(t, StatusFatal, m.Status())
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.Slept())

	err = m.EnsureConnected(context.Background())
	assert.ErrorIs(t, err, ErrSessionRevoked)
	assert.Equal(t, 1, calls, "revoked session must not reconnect")
}

func TestManager_EnsureConnected_NoSession(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, false)

	err := tm.EnsureConnected(context.Background())

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, StatusUnauthorized, tm.Status())
}

func TestManager_EnsureConnected_Concurrent(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tm.EnsureConnected(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), tm.dials.Load())
}

func TestManager_Do_FloodWaitThenSuccess(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, true)

	calls := 0
	var got string
	err := tm.Do(context.Background(), "test", func(ctx context.Context, api API) error {
		calls++
		switch calls {
		case 1:
			return tgerr.New(420, "FLOOD_WAIT_3")
		case 2:
			return tgerr.New(420, "FLOOD_WAIT_5")
		}
		got = "ok"
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)

	var total time.Duration
	for _, d := range tm.clock.Slept() {
		total += d
	}
	assert.GreaterOrEqual(t, total, 3*time.Second+5*time.Second+2*2*time.Second)
	assert.Equal(t, []time.Duration{5 * time.Second, 7 * time.Second}, tm.clock.Slept())
}

func TestManager_Do_FloodWaitExhausted(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, true)

	calls := 0
	err := tm.Do(context.Background(), "test", func(ctx context.Context, api API) error {
		calls++
		return tgerr.New(420, "FLOOD_WAIT_1")
	})

	var ex *retry.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 4, calls, "initial call plus three flood retries")

	d, ok := FloodWait(err)
	assert.True(t, ok, "rate-limit failure must reach the caller")
	assert.Equal(t, time.Second, d)
	assert.True(t, IsTransient(err))
}

func TestManager_Do_FloodWaitTooLong(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, true)

	calls := 0
	err := tm.Do(context.Background(), "test", func(ctx context.Context, api API) error {
		calls++
		return tgerr.New(420, "FLOOD_WAIT_3600")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsTransient(err))
}

func TestManager_Do_NetworkErrorReconnects(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, true)

	calls := 0
	err := tm.Do(context.Background(), "test", func(ctx context.Context, api API) error {
		calls++
		if calls == 1 {
			return pool.ErrConnDead
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int32(2), tm.dials.Load(), "degraded session must reconnect")
	assert.True(t, tm.conns[0].stopped.Load(), "dead connection must be stopped")
	assert.Equal(t, StatusConnected, tm.Status())
}

func TestManager_Do_FatalErrorMarksSession(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, true)

	calls := 0
	err := tm.Do(context.Background(), "test", func(ctx context.Context, api API) error {
		calls++
		return tgerr.New(401, "SESSION_REVOKED")
	})

	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, StatusFatal, tm.Status())

	err = tm.Do(context.Background(), "test", func(ctx context.Context, api API) error {
		t.Fatal("must not run on a revoked session")
		return nil
	})
	assert.ErrorIs(t, err, ErrSessionRevoked)
}

func TestManager_Do_OtherErrorsAreNotRetried(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, true)

	calls := 0
	err := tm.Do(context.Background(), "test", func(ctx context.Context, api API) error {
		calls++
		return tgerr.New(400, "MSG_ID_INVALID")
	})

	assert.True(t, tgerr.Is(err, "MSG_ID_INVALID"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, StatusConnected, tm.Status())
}

func TestManager_Do_AppliesCallTimeout(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, true)

	var deadline time.Time
	err := tm.Do(context.Background(), "test", func(ctx context.Context, api API) error {
		deadline, _ = ctx.Deadline()
		return nil
	})

	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
}

func TestManager_CheckHealth(t *testing.T) {
	pingErr := io.EOF
	api := &fakeAPI{getState: func(ctx context.Context) (*tg.UpdatesState, error) {
		return nil, pingErr
	}}
	tm := newTestManager(t, api, true)
	require.NoError(t, tm.EnsureConnected(context.Background()))

	tm.checkHealth(context.Background())
	assert.Equal(t, StatusDegraded, tm.Status())

	pingErr = nil
	tm.checkHealth(context.Background())
	assert.Equal(t, StatusConnected, tm.Status())
	assert.Equal(t, int32(2), tm.dials.Load())
}

func TestManager_Supervise_StopsOnCancel(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, true)
	require.NoError(t, tm.EnsureConnected(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tm.Supervise(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Supervise did not return after cancel")
	}
	assert.Equal(t, StatusDisconnected, tm.Status())
}

func TestManager_StartQR_UsesQRFactory(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, false)

	mockErr := errors.New("mock factory called")
	qrCalled := false
	tm.SetQRClientFactory(func(cfg *config.Config) (*QRClientBundle, error) {
		qrCalled = true
		return nil, mockErr
	})

	err := tm.StartQR(context.Background(), func(url string) {})

	assert.True(t, qrCalled)
	assert.ErrorIs(t, err, mockErr)
	assert.Zero(t, tm.dials.Load(), "StartQR must not use the regular factory")
	assert.False(t, tm.IsQRInProgress())
}

func TestManager_StartQR_AlreadyLoggedIn(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, true)
	require.NoError(t, tm.EnsureConnected(context.Background()))

	err := tm.StartQR(context.Background(), func(string) {})
	assert.EqualError(t, err, "already logged in")
}

func TestManager_Status_Concurrent(t *testing.T) {
	tm := newTestManager(t, &fakeAPI{}, false)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			tm.Status()
		}()
	}

	close(start)
	wg.Wait()
}

func TestManager_Stop_Graceful(t *testing.T) {
	m := NewManager(&config.Config{}, newSessionDB(t, false))

	assert.NotPanics(t, func() {
		m.Stop()
	})
}

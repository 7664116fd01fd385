package telegram

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	protoerrors "github.com/celestix/gotgproto/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/diegod088/bot-bens11-sub000/internal/config"
)

func TestDialWithin_ReturnsConnection(t *testing.T) {
	want := &fakeConn{}

	conn, err := dialWithin(context.Background(), func() (Conn, error) { return want, nil })

	require.NoError(t, err)
	assert.Same(t, want, conn)
	assert.False(t, want.stopped.Load())
}

func TestDialWithin_PassesDialError(t *testing.T) {
	_, err := dialWithin(context.Background(), func() (Conn, error) {
		return nil, fmt.Errorf("start: %w", protoerrors.ErrSessionUnauthorized)
	})

	assert.True(t, IsFatal(err))
}

func TestDialWithin_DeadlineStopsLateConnection(t *testing.T) {
	release := make(chan struct{})
	late := &fakeConn{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	conn, err := dialWithin(ctx, func() (Conn, error) {
		<-release
		return late, nil
	})

	assert.Nil(t, conn)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	assert.Eventually(t, late.stopped.Load, time.Second, 5*time.Millisecond)
}

func TestIsFatal_UnauthorizedSession(t *testing.T) {
	assert.True(t, IsFatal(protoerrors.ErrSessionUnauthorized))
	assert.True(t, IsFatal(fmt.Errorf("client: %w", protoerrors.ErrSessionUnauthorized)))
	assert.False(t, IsTransient(protoerrors.ErrSessionUnauthorized))
}

func TestManager_EnsureConnected_UnauthorizedSessionIsFatal(t *testing.T) {
	m := NewManager(testConfig(), newSessionDB(t, true))
	clock := newFakeClock()
	m.SetClock(clock.Now, clock.Sleep)

	calls := 0
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (Conn, error) {
		calls++
		return dialWithin(ctx, func() (Conn, error) {
			return nil, fmt.Errorf("login: %w", protoerrors.ErrSessionUnauthorized)
		})
	})

	err := m.EnsureConnected(context.Background())

	assert.ErrorIs(t, err, ErrSessionRevoked)
	assert.Equal(t, StatusFatal, m.Status())
	assert.Equal(t, 1, calls, "no retry and no interactive login")
}

func TestManager_EnsureConnected_HungDialIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.Session.CallTimeout = 20 * time.Millisecond
	m := NewManager(cfg, newSessionDB(t, true))
	clock := newFakeClock()
	m.SetClock(clock.Now, clock.Sleep)

	release := make(chan struct{})
	var (
		mu   sync.Mutex
		late []*fakeConn
	)
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (Conn, error) {
		c := &fakeConn{}
		mu.Lock()
		late = append(late, c)
		mu.Unlock()
		return dialWithin(ctx, func() (Conn, error) {
			<-release
			return c, nil
		})
	})

	done := make(chan error, 1)
	go func() { done <- m.EnsureConnected(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnectionExhausted)
	case <-time.After(5 * time.Second):
		t.Fatal("connect attempts were not bounded by the call timeout")
	}
	assert.Equal(t, StatusDisconnected, m.Status())

	close(release)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, late, cfg.Session.ConnectAttempts)
	for _, c := range late {
		assert.Eventually(t, c.stopped.Load, time.Second, 5*time.Millisecond)
	}
}

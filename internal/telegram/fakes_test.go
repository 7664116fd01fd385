package telegram

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/diegod088/bot-bens11-sub000/internal/config"
)

// fakeAPI implements the calls a test needs; anything else panics through
// the nil embedded interface.
type fakeAPI struct {
	API

	getState     func(ctx context.Context) (*tg.UpdatesState, error)
	resolve      func(ctx context.Context, req *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	getMessages  func(ctx context.Context, req *tg.ChannelsGetMessagesRequest) (tg.MessagesMessagesClass, error)
	getHistory   func(ctx context.Context, req *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
	getDialogs   func(ctx context.Context, req *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)
	importInvite func(ctx context.Context, hash string) (tg.UpdatesClass, error)
	checkInvite  func(ctx context.Context, hash string) (tg.ChatInviteClass, error)
}

func (f *fakeAPI) UpdatesGetState(ctx context.Context) (*tg.UpdatesState, error) {
	return f.getState(ctx)
}

func (f *fakeAPI) ContactsResolveUsername(ctx context.Context, req *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error) {
	return f.resolve(ctx, req)
}

func (f *fakeAPI) ChannelsGetMessages(ctx context.Context, req *tg.ChannelsGetMessagesRequest) (tg.MessagesMessagesClass, error) {
	return f.getMessages(ctx, req)
}

func (f *fakeAPI) MessagesGetHistory(ctx context.Context, req *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error) {
	return f.getHistory(ctx, req)
}

func (f *fakeAPI) MessagesGetDialogs(ctx context.Context, req *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error) {
	return f.getDialogs(ctx, req)
}

func (f *fakeAPI) MessagesImportChatInvite(ctx context.Context, hash string) (tg.UpdatesClass, error) {
	return f.importInvite(ctx, hash)
}

func (f *fakeAPI) MessagesCheckChatInvite(ctx context.Context, hash string) (tg.ChatInviteClass, error) {
	return f.checkInvite(ctx, hash)
}

type fakeConn struct {
	api     API
	stopped atomic.Bool
}

func (c *fakeConn) API() API { return c.api }
func (c *fakeConn) Stop() { c.stopped.Store(true) }

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	return nil
}

func (c *fakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

func newSessionDB(t *testing.T, withSession bool) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// every pooled connection would get its own in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec("CREATE TABLE sessions (version integer primary key, data blob)").Error)
	if withSession {
		require.NoError(t, db.Exec("INSERT INTO sessions (version, data) VALUES (1, ?)", []byte(`{"mock":"data"}`)).Error)
	}
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		TGApiID:   12345,
		TGApiHash: "test_hash",
		Session: config.SessionConfig{
			ConnectAttempts: 3,
			BackoffBase:     time.Second,
			BackoffMax:      4 * time.Second,
			FloodAttempts:   3,
			FloodMargin:     2 * time.Second,
			FloodMaxWait:    time.Minute,
			CallTimeout:     time.Second,
			DownloadTimeout: time.Second,
			HealthInterval:  time.Second,
		},
	}
}

type testManager struct {
	*Manager
	clock   *fakeClock
	dials   atomic.Int32
	conns   []*fakeConn
	connsMu sync.Mutex
}

// newTestManager returns a manager whose factory always hands out api.
func newTestManager(t *testing.T, api API, withSession bool) *testManager {
	t.Helper()

	tm := &testManager{
		Manager: NewManager(testConfig(), newSessionDB(t, withSession)),
		clock:   newFakeClock(),
	}
	tm.SetClock(tm.clock.Now, tm.clock.Sleep)
	tm.SetClientFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (Conn, error) {
		tm.dials.Add(1)
		c := &fakeConn{api: api}
		tm.connsMu.Lock()
		tm.conns = append(tm.conns, c)
		tm.connsMu.Unlock()
		return c, nil
	})
	return tm
}

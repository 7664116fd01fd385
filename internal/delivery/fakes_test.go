package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/require"

	"github.com/diegod088/bot-bens11-sub000/internal/links"
	"github.com/diegod088/bot-bens11-sub000/internal/models"
	"github.com/diegod088/bot-bens11-sub000/internal/quota"
	"github.com/diegod088/bot-bens11-sub000/internal/telegram"
)

type fakeAccess struct {
	err       error
	calls     int
	forgotten []int64
}

func (f *fakeAccess) Forget(ch *telegram.Channel) {
	f.forgotten = append(f.forgotten, ch.ID)
}

func (f *fakeAccess) EnsureAccess(_ context.Context, ref links.ChannelRef) (*telegram.Channel, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &telegram.Channel{ID: 1001, Username: ref.Username}, nil
}

type fakeFetcher struct {
	byID   map[int]telegram.Message
	latest []telegram.Message
	err    error
	// returned by the first fetch only
	errOnce error
}

func (f *fakeFetcher) FetchMessage(_ context.Context, _ *telegram.Channel, id int) (*telegram.Message, error) {
	if err := f.errOnce; err != nil {
		f.errOnce = nil
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.byID[id]
	if !ok {
		return nil, telegram.ErrMessageNotFound
	}
	return &m, nil
}

func (f *fakeFetcher) FetchLatest(_ context.Context, _ *telegram.Channel) ([]telegram.Message, error) {
	if err := f.errOnce; err != nil {
		f.errOnce = nil
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.latest, nil
}

// fakeDownloader returns size bytes for every media, or the declared size
// when size is zero.
type fakeDownloader struct {
	size  int64
	err   error
	calls  int
	paths  []string
	limits []int64
}

func (f *fakeDownloader) payload(m tg.MessageMediaClass) []byte {
	n := f.size
	if n == 0 {
		if d, ok := m.(*tg.MessageMediaDocument); ok {
			n = d.Document.(*tg.Document).Size
		} else {
			n = 16
		}
	}
	return bytes.Repeat([]byte{'x'}, int(n))
}

func (f *fakeDownloader) ToBuffer(_ context.Context, m tg.MessageMediaClass, limit int64) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.payload(m), nil
}

func (f *fakeDownloader) ToFile(_ context.Context, m tg.MessageMediaClass, path string, limit int64) (int64, error) {
	f.calls++
	f.paths = append(f.paths, path)
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	data := f.payload(m)
	if limit > 0 && int64(len(data)) > limit {
		// a real download stops at the cap and leaves a partial file
		_ = os.WriteFile(path, data[:limit], 0o600)
		return 0, fmt.Errorf("download to file: %w", telegram.ErrFileTooLarge)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

type reply struct {
	chatID  int64
	replyTo int
	text    string
}

type recordingSender struct {
	mu      sync.Mutex
	sent    []Outgoing
	replies []reply
	sendErr error

	// fileExisted records whether each file-backed item was on disk at send time
	fileExisted []bool
}

func (s *recordingSender) Send(_ context.Context, out Outgoing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out.Path != "" {
		_, err := os.Stat(out.Path)
		s.fileExisted = append(s.fileExisted, err == nil)
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, out)
	return nil
}

func (s *recordingSender) Reply(_ context.Context, chatID int64, replyTo int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply{chatID, replyTo, text})
	return nil
}

// fakeQuota grants everything and can fail commits.
type fakeQuota struct {
	commitErr error
	commits   int
	releases  int
}

func (q *fakeQuota) CheckAndReserve(context.Context, int64, models.ContentKind) (quota.Decision, error) {
	return quota.Decision{Granted: true, Remaining: quota.Unlimited}, nil
}

func (q *fakeQuota) Commit(context.Context, int64, models.ContentKind) error {
	q.commits++
	return q.commitErr
}

func (q *fakeQuota) Release(int64, models.ContentKind) { q.releases++ }

func photoMedia(id int64, size int) tg.MessageMediaClass {
	return &tg.MessageMediaPhoto{Photo: &tg.Photo{
		ID:    id,
		Sizes: []tg.PhotoSizeClass{&tg.PhotoSize{Type: "y", W: 1280, H: 720, Size: size}},
	}}
}

func videoMedia(id, size int64) tg.MessageMediaClass {
	return &tg.MessageMediaDocument{Document: &tg.Document{
		ID:       id,
		Size:     size,
		MimeType: "video/mp4",
		Attributes: []tg.DocumentAttributeClass{
			&tg.DocumentAttributeVideo{W: 1280, H: 720},
			&tg.DocumentAttributeFilename{FileName: "clip.mp4"},
		},
	}}
}

func musicMedia(id, size int64) tg.MessageMediaClass {
	return &tg.MessageMediaDocument{Document: &tg.Document{
		ID:         id,
		Size:       size,
		MimeType:   "audio/mpeg",
		Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeAudio{Title: "song"}},
	}}
}

type harness struct {
	svc        *Service
	access     *fakeAccess
	fetcher    *fakeFetcher
	downloader *fakeDownloader
	sender     *recordingSender
	ledger     *quota.Ledger
	store      *quota.MemoryStore
	tempDir    string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	h := &harness{
		access:     &fakeAccess{},
		fetcher:    &fakeFetcher{byID: map[int]telegram.Message{}},
		downloader: &fakeDownloader{},
		sender:     &recordingSender{},
		store:      quota.NewMemoryStore(nil),
		tempDir:    t.TempDir(),
	}
	h.ledger = quota.NewLedger(h.store, quota.DefaultLimits())

	opts.TempDir = h.tempDir
	if opts.MaxBytes == 0 {
		opts.MaxBytes = 2 << 30
	}
	h.svc = NewService(h.access, h.fetcher, h.downloader, h.ledger, h.sender, nil, opts)
	h.svc.sleep = func(context.Context, time.Duration) error { return nil }
	return h
}

func (h *harness) handle(text string) Result {
	return h.svc.Handle(context.Background(), Request{UserID: 42, ChatID: 42, ReplyTo: 7, Text: text})
}

// requireTempEmpty asserts no download left anything behind.
func requireTempEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "temp dir must be cleaned up")
}

var errBoom = errors.New("boom")

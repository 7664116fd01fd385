// Package delivery runs a user's link through resolution, access, fetch,
// quota, download and send, replying exactly once on failure.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gotd/td/tg"

	"github.com/diegod088/bot-bens11-sub000/internal/config"
	"github.com/diegod088/bot-bens11-sub000/internal/links"
	"github.com/diegod088/bot-bens11-sub000/internal/logger"
	"github.com/diegod088/bot-bens11-sub000/internal/media"
	"github.com/diegod088/bot-bens11-sub000/internal/metrics"
	"github.com/diegod088/bot-bens11-sub000/internal/models"
	"github.com/diegod088/bot-bens11-sub000/internal/publisher"
	"github.com/diegod088/bot-bens11-sub000/internal/quota"
	"github.com/diegod088/bot-bens11-sub000/internal/retry"
	"github.com/diegod088/bot-bens11-sub000/internal/telegram"
)

// Access resolves channel references into readable channels.
type Access interface {
	EnsureAccess(ctx context.Context, ref links.ChannelRef) (*telegram.Channel, error)
	Forget(ch *telegram.Channel)
}

// Fetcher retrieves channel posts.
type Fetcher interface {
	FetchMessage(ctx context.Context, ch *telegram.Channel, id int) (*telegram.Message, error)
	FetchLatest(ctx context.Context, ch *telegram.Channel) ([]telegram.Message, error)
}

// Downloader pulls media through the secondary session.
type Downloader interface {
	ToBuffer(ctx context.Context, m tg.MessageMediaClass, limit int64) ([]byte, error)
	ToFile(ctx context.Context, m tg.MessageMediaClass, path string, limit int64) (int64, error)
}

// Quota gates and charges deliveries.
type Quota interface {
	CheckAndReserve(ctx context.Context, userID int64, kind models.ContentKind) (quota.Decision, error)
	Commit(ctx context.Context, userID int64, kind models.ContentKind) error
	Release(userID int64, kind models.ContentKind)
}

// Outgoing is one file to transmit. Exactly one of Data and Path is set.
type Outgoing struct {
	ChatID   int64
	ReplyTo  int
	Kind     models.ContentKind
	Caption  string
	FileName string
	MimeType string
	Data     []byte
	Path     string
	Size     int64
}

// Sender talks to the requesting user.
type Sender interface {
	Send(ctx context.Context, out Outgoing) error
	Reply(ctx context.Context, chatID int64, replyTo int, text string) error
}

// EventPublisher receives task outcomes.
type EventPublisher interface {
	DeliveryCompleted(ctx context.Context, e publisher.DeliveryEvent) error
	DeliveryFailed(ctx context.Context, e publisher.DeliveryEvent) error
}

// Request is an inbound link message.
type Request struct {
	UserID  int64
	ChatID  int64
	ReplyTo int
	Text    string
}

// Item is one delivered artifact.
type Item struct {
	MessageID int
	Kind      models.ContentKind
	Size      int64
	Remaining int
}

// Result is the outcome of Handle.
type Result struct {
	TaskID    string
	Link      links.Link
	Delivered []Item
	Warned    bool
	Failure   *Failure
}

// Options tune size routing and timeouts.
type Options struct {
	TempDir      string
	MaxBytes     int64
	WarnBytes    int64
	CaptionLimit int
	TaskTimeout  time.Duration
}

// OptionsFromConfig builds Options from the media configuration.
func OptionsFromConfig(c config.MediaConfig) Options {
	return Options{
		TempDir:      c.TempDir,
		MaxBytes:     c.MaxFileBytes(),
		WarnBytes:    c.WarnFileBytes(),
		CaptionLimit: c.CaptionLimit,
		TaskTimeout:  c.TaskTimeout,
	}
}

// commitPolicy retries the counter write after a successful send.
var commitPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second}

// Service is the delivery pipeline.
type Service struct {
	access     Access
	fetcher    Fetcher
	downloader Downloader
	quota      Quota
	sender     Sender
	events     EventPublisher
	tracker    *Tracker
	opts       Options
	sleep      retry.Sleeper
	log        *logger.Logger
}

// NewService wires the pipeline.
func NewService(access Access, fetcher Fetcher, downloader Downloader, q Quota, sender Sender, events EventPublisher, opts Options) *Service {
	if opts.CaptionLimit <= 0 {
		opts.CaptionLimit = 1024
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Service{
		access:     access,
		fetcher:    fetcher,
		downloader: downloader,
		quota:      q,
		sender:     sender,
		events:     events,
		tracker:    NewTracker(),
		opts:       opts,
		sleep:      retry.Sleep,
		log:        logger.Component("delivery"),
	}
}

// Tracker exposes the in-flight task registry.
func (s *Service) Tracker() *Tracker { return s.tracker }

// Handle runs one task for req. Every failure produces exactly one reply.
func (s *Service) Handle(ctx context.Context, req Request) Result {
	task, done, ok := s.tracker.TryStart(req.UserID)
	if !ok {
		res := Result{Failure: fail(ReasonBusy, nil)}
		s.reply(ctx, req, UserMessage(res.Failure))
		return res
	}
	defer done()

	if s.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TaskTimeout)
		defer cancel()
	}

	started := time.Now()
	log := s.log.Logger.With().Str("task_id", task.ID.String()).Int64("user_id", req.UserID).Logger()

	res := Result{TaskID: task.ID.String()}
	st := &taskState{req: req, res: &res}
	err := s.run(ctx, st)

	evt := publisher.DeliveryEvent{
		TaskID:     task.ID,
		UserID:     req.UserID,
		Channel:    res.Link.Ref.String(),
		MessageID:  res.Link.MessageID,
		Items:      len(res.Delivered),
		DurationMS: time.Since(started).Milliseconds(),
	}
	for _, it := range res.Delivered {
		evt.Bytes += it.Size
		evt.Kind = string(it.Kind)
	}

	if err == nil {
		metrics.DeliveriesTotal.WithLabelValues(evt.Kind, "ok").Inc()
		metrics.DeliveryDuration.WithLabelValues("ok").Observe(time.Since(started).Seconds())
		log.Info().Int("items", len(res.Delivered)).Int64("bytes", evt.Bytes).Msg("delivery: done")
		if s.events != nil {
			_ = s.events.DeliveryCompleted(ctx, evt)
		}
		return res
	}

	f := classify(err)
	res.Failure = f
	evt.Reason = string(f.Reason)

	metrics.DeliveriesTotal.WithLabelValues(string(st.kind), string(f.Reason)).Inc()
	metrics.DeliveryDuration.WithLabelValues("failed").Observe(time.Since(started).Seconds())
	switch f.Reason {
	case ReasonInternal, ReasonSendFailed:
		log.Error().Err(err).Str("reason", string(f.Reason)).Msg("delivery: failed")
	case ReasonSessionDown, ReasonUnavailable:
		log.Warn().Err(err).Str("reason", string(f.Reason)).Msg("delivery: failed")
	default:
		log.Info().Str("reason", string(f.Reason)).Msg("delivery: rejected")
	}

	// the reply must go out even when the task context expired
	replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	s.reply(replyCtx, req, UserMessage(f))
	if s.events != nil {
		_ = s.events.DeliveryFailed(replyCtx, evt)
	}
	return res
}

type taskState struct {
	req    Request
	res    *Result
	kind   models.ContentKind
	warned bool
}

func (s *Service) run(ctx context.Context, st *taskState) error {
	link, ok := links.Resolve(st.req.Text)
	if !ok {
		return fail(ReasonInvalidLink, nil)
	}
	st.res.Link = link

	ch, err := s.access.EnsureAccess(ctx, link.Ref)
	if err != nil {
		return err
	}

	msgs, err := s.fetch(ctx, ch, link)
	if errors.Is(err, telegram.ErrAccessDenied) {
		// the cached handle may predate losing membership; join again once
		s.access.Forget(ch)
		if ch, err = s.access.EnsureAccess(ctx, link.Ref); err != nil {
			return err
		}
		msgs, err = s.fetch(ctx, ch, link)
	}
	if err != nil {
		return err
	}

	for i := range msgs {
		info := media.Classify(msgs[i].Media)
		if info.Kind == models.KindNone {
			// text-only items inside an album are skipped
			continue
		}
		st.kind = info.Kind
		if err := s.deliver(ctx, st, &msgs[i], info); err != nil {
			return err
		}
	}

	if len(st.res.Delivered) == 0 {
		return fail(ReasonNoMedia, media.ErrNoMedia)
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, ch *telegram.Channel, link links.Link) ([]telegram.Message, error) {
	if !link.HasMessage() {
		return s.fetcher.FetchLatest(ctx, ch)
	}
	msg, err := s.fetcher.FetchMessage(ctx, ch, link.MessageID)
	if err != nil {
		return nil, err
	}
	return []telegram.Message{*msg}, nil
}

// deliver moves one classified message through quota, download, send and
// commit. Any temp directory it creates is gone when it returns.
func (s *Service) deliver(ctx context.Context, st *taskState, msg *telegram.Message, info media.Info) (err error) {
	userID := st.req.UserID

	decision, err := s.quota.CheckAndReserve(ctx, userID, info.Kind)
	if err != nil {
		return fail(ReasonInternal, err)
	}
	if !decision.Granted {
		return &Failure{Reason: ReasonQuotaExceeded, Denial: decision.Denial, Err: decision.Denial}
	}

	committed := false
	defer func() {
		if !committed {
			s.quota.Release(userID, info.Kind)
		}
	}()

	if s.opts.MaxBytes > 0 && info.Size > s.opts.MaxBytes {
		return &Failure{Reason: ReasonTooLarge, Size: info.Size, Limit: s.opts.MaxBytes}
	}
	if s.opts.WarnBytes > 0 && info.Size > s.opts.WarnBytes && !st.warned {
		st.warned = true
		st.res.Warned = true
		s.reply(ctx, st.req, sizeWarning(info.Size))
	}

	out := Outgoing{
		ChatID:   st.req.ChatID,
		ReplyTo:  st.req.ReplyTo,
		Kind:     info.Kind,
		Caption:  TruncateCaption(msg.Text, s.opts.CaptionLimit),
		FileName: info.FileName,
		MimeType: info.MimeType,
		Size:     info.Size,
	}

	if info.Kind == models.KindPhoto {
		data, err := s.downloader.ToBuffer(ctx, msg.Media, s.opts.MaxBytes)
		if err != nil {
			return s.downloadFailure(err)
		}
		out.Data = data
		out.Size = int64(len(data))
	} else {
		dir, err := os.MkdirTemp(s.opts.TempDir, "delivery-*")
		if err != nil {
			return fail(ReasonInternal, fmt.Errorf("create temp dir: %w", err))
		}
		defer func() {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				s.log.Warn().Err(rmErr).Str("dir", dir).Msg("delivery: temp cleanup")
			}
		}()

		out.Path = filepath.Join(dir, safeFileName(info.FileName))
		n, err := s.downloader.ToFile(ctx, msg.Media, out.Path, s.opts.MaxBytes)
		if err != nil {
			return s.downloadFailure(err)
		}
		out.Size = n
	}

	// the cap above already stopped oversized streams; this covers downloaders
	// that report the size only at the end
	if s.opts.MaxBytes > 0 && out.Size > s.opts.MaxBytes {
		return &Failure{Reason: ReasonTooLarge, Size: out.Size, Limit: s.opts.MaxBytes}
	}
	metrics.DownloadedBytesTotal.WithLabelValues(string(info.Kind)).Add(float64(out.Size))

	if err := s.sender.Send(ctx, out); err != nil {
		return fail(ReasonSendFailed, err)
	}

	committed = true
	err = retry.Do(context.WithoutCancel(ctx), commitPolicy, retry.AlwaysRetry, func(ctx context.Context) error {
		return s.quota.Commit(ctx, userID, info.Kind)
	}, retry.WithSleeper(s.sleep))
	if err != nil {
		// delivered but not charged
		s.log.Alert(err, "delivery: commit after send failed")
		s.quota.Release(userID, info.Kind)
	}

	st.res.Delivered = append(st.res.Delivered, Item{
		MessageID: msg.ID,
		Kind:      info.Kind,
		Size:      out.Size,
		Remaining: decision.Remaining,
	})
	return nil
}

func (s *Service) downloadFailure(err error) error {
	if errors.Is(err, telegram.ErrFileTooLarge) {
		return &Failure{Reason: ReasonTooLarge, Limit: s.opts.MaxBytes, Err: err}
	}
	return err
}

func (s *Service) reply(ctx context.Context, req Request, text string) {
	if err := s.sender.Reply(ctx, req.ChatID, req.ReplyTo, text); err != nil {
		s.log.Error().Err(err).Int64("user_id", req.UserID).Msg("delivery: reply failed")
	}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeFileName keeps downloaded names inside the temp directory.
func safeFileName(name string) string {
	name = unsafeName.ReplaceAllString(filepath.Base(name), "_")
	if name == "" || name == "." || name == ".." || name == "_" {
		return "file"
	}
	return name
}

// IsFailure reports whether err carries a delivery Failure with reason.
func IsFailure(err error, reason Reason) bool {
	var f *Failure
	return errors.As(err, &f) && f.Reason == reason
}

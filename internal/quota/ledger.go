// Package quota gates downloads by tier and keeps the per-user counters.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/diegod088/bot-bens11-sub000/internal/logger"
	"github.com/diegod088/bot-bens11-sub000/internal/metrics"
	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

// errors
var (
	ErrNoReservation = errors.New("no pending reservation for this kind")
	ErrInvalidGrant  = errors.New("invalid premium grant")
)

// Store persists user accounts.
type Store interface {
	GetOrCreate(ctx context.Context, id int64) (*models.User, error)
	Save(ctx context.Context, u *models.User) error
}

// reservation is an allowance held between check and commit.
type reservation struct {
	kind     models.ContentKind
	lifetime bool
}

// Ledger applies the tier rules against a Store. Check-and-reserve and
// commit are serialized per user; pending reservations count against the
// allowance until committed or released.
type Ledger struct {
	store    Store
	limits   Limits
	stacking bool
	now      func() time.Time
	log      *logger.Logger

	locks *keyedMutex

	mu      sync.Mutex
	pending map[int64][]reservation
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithStacking controls whether re-grants extend from the current expiry.
func WithStacking(stack bool) Option {
	return func(l *Ledger) { l.stacking = stack }
}

// NewLedger creates a Ledger. Stacking is on unless disabled.
func NewLedger(store Store, limits Limits, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		limits:   limits,
		stacking: true,
		now:      time.Now,
		log:      logger.Component("quota"),
		locks:    newKeyedMutex(),
		pending:  make(map[int64][]reservation),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reconcile zeroes the daily counters when the stored day is behind today.
// It reports whether the user changed; a second call on the same day is a no-op.
func Reconcile(u *models.User, now time.Time) bool {
	today := models.Day(now)
	if !u.DailyResetDate.Before(today) {
		return false
	}
	u.DailyCounters = models.DailyCounters{}
	u.DailyResetDate = today
	return true
}

// load fetches the user and persists a date rollover if one happened.
func (l *Ledger) load(ctx context.Context, userID int64, now time.Time) (*models.User, error) {
	u, err := l.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if u.DailyCounters == nil {
		u.DailyCounters = models.DailyCounters{}
	}
	if Reconcile(u, now) {
		u.UpdatedAt = now
		if err := l.store.Save(ctx, u); err != nil {
			return nil, fmt.Errorf("save daily reset: %w", err)
		}
	}
	return u, nil
}

// CheckAndReserve decides whether userID may download one item of kind and,
// when granted, holds the allowance until Commit or Release.
func (l *Ledger) CheckAndReserve(ctx context.Context, userID int64, kind models.ContentKind) (Decision, error) {
	unlock := l.locks.Lock(userID)
	defer unlock()

	now := l.now()
	u, err := l.load(ctx, userID, now)
	if err != nil {
		return Decision{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	d, res := l.decide(u, kind, now, l.pending[userID])
	if !d.Granted {
		metrics.QuotaDenialsTotal.WithLabelValues(string(d.Denial.Reason)).Inc()
		l.log.Debug().
			Int64("user_id", userID).
			Str("kind", string(kind)).
			Str("reason", string(d.Denial.Reason)).
			Msg("quota: denied")
		return d, nil
	}

	l.pending[userID] = append(l.pending[userID], res)
	return d, nil
}

// decide applies the tier rules. pending is the user's held reservations.
func (l *Ledger) decide(u *models.User, kind models.ContentKind, now time.Time, pending []reservation) (Decision, reservation) {
	res := reservation{kind: kind}
	if kind == models.KindNone || kind == "" {
		return denied(&Denial{Reason: ReasonNotBillable, Kind: kind}), res
	}

	held, heldLifetime := 0, 0
	for _, p := range pending {
		if p.kind == kind {
			held++
		}
		if p.lifetime {
			heldLifetime++
		}
	}

	level := u.ActiveLevel(now)
	if level != models.LevelNone {
		if kind == models.KindPhoto {
			return granted(Unlimited), res
		}
		limit := l.limits.dailyCeiling(kind, level)
		used := u.Daily(kind) + held
		if used >= limit {
			return denied(&Denial{Reason: ReasonDailyLimit, Kind: kind, Limit: limit, Used: u.Daily(kind)}), res
		}
		return granted(limit - used - 1), res
	}

	// free tier
	if kind == models.KindPhoto {
		limit := l.limits.FreeDailyPhotos
		used := u.Daily(kind) + held
		if used >= limit {
			return denied(&Denial{Reason: ReasonDailyLimit, Kind: kind, Limit: limit, Used: u.Daily(kind)}), res
		}
		return granted(limit - used - 1), res
	}
	if premiumOnly(kind) {
		return denied(&Denial{Reason: ReasonPremiumOnly, Kind: kind}), res
	}

	limit := l.limits.FreeLifetime
	used := u.LifetimeDownloads + heldLifetime
	if used >= limit {
		return denied(&Denial{Reason: ReasonLifetimeLimit, Kind: kind, Limit: limit, Used: u.LifetimeDownloads}), res
	}
	res.lifetime = true
	return granted(limit - used - 1), res
}

// take removes one pending reservation of kind.
func (l *Ledger) take(userID int64, kind models.ContentKind) (reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := l.pending[userID]
	for i, r := range list {
		if r.kind != kind {
			continue
		}
		list = append(list[:i], list[i+1:]...)
		if len(list) == 0 {
			delete(l.pending, userID)
		} else {
			l.pending[userID] = list
		}
		return r, true
	}
	return reservation{}, false
}

// Commit charges one delivered item of kind. It must follow a granted
// CheckAndReserve and is the only operation that increments counters.
func (l *Ledger) Commit(ctx context.Context, userID int64, kind models.ContentKind) error {
	unlock := l.locks.Lock(userID)
	defer unlock()

	res, ok := l.take(userID, kind)
	if !ok {
		return fmt.Errorf("commit %s for user %d: %w", kind, userID, ErrNoReservation)
	}

	now := l.now()
	u, err := l.load(ctx, userID, now)
	if err != nil {
		l.restore(userID, res)
		return err
	}

	u.DailyCounters[kind]++
	u.TotalDownloads++
	if res.lifetime {
		u.LifetimeDownloads++
	}
	u.UpdatedAt = now

	if err := l.store.Save(ctx, u); err != nil {
		l.restore(userID, res)
		return fmt.Errorf("save counters: %w", err)
	}
	return nil
}

func (l *Ledger) restore(userID int64, res reservation) {
	l.mu.Lock()
	l.pending[userID] = append(l.pending[userID], res)
	l.mu.Unlock()
}

// Release drops a reservation without charging, e.g. after a failed send.
// Releasing nothing is a no-op.
func (l *Ledger) Release(userID int64, kind models.ContentKind) {
	l.take(userID, kind)
}

// Pending reports the number of held reservations for userID.
func (l *Ledger) Pending(userID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending[userID])
}

// GrantPremium activates level for days. With stacking enabled a grant
// while active extends the current expiry, otherwise it extends from now.
// The active level never drops because of a grant.
func (l *Ledger) GrantPremium(ctx context.Context, userID int64, level models.PremiumLevel, days int) (*models.User, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidGrant, level)
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive, got %d", ErrInvalidGrant, days)
	}

	unlock := l.locks.Lock(userID)
	defer unlock()

	now := l.now()
	u, err := l.load(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	base := now
	current := u.ActiveLevel(now)
	if l.stacking && u.IsPremium(now) {
		base = *u.PremiumUntil
	}
	until := base.Add(time.Duration(days) * 24 * time.Hour)

	if current.Rank() > level.Rank() {
		level = current
	}
	u.PremiumUntil = &until
	u.PremiumLevel = level
	u.UpdatedAt = now

	if err := l.store.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("save premium: %w", err)
	}

	l.log.Info().
		Int64("user_id", userID).
		Str("level", string(level)).
		Int("days", days).
		Time("until", until).
		Msg("quota: premium granted")
	return u, nil
}

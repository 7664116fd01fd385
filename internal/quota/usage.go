package quota

import (
	"context"
	"time"

	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

// Usage is a read-only snapshot of a user's allowance state.
type Usage struct {
	UserID        int64
	Level         models.PremiumLevel
	PremiumUntil  *time.Time
	Lifetime      int
	LifetimeLimit int
	Daily         models.DailyCounters
	// Remaining per billable kind: Unlimited, or the count left (0 when denied).
	Remaining map[models.ContentKind]int
}

// IsPremium reports whether the snapshot was taken on a premium tier.
func (u Usage) IsPremium() bool { return u.Level != models.LevelNone }

// Usage reconciles and returns the user's current allowance state.
func (l *Ledger) Usage(ctx context.Context, userID int64) (*Usage, error) {
	unlock := l.locks.Lock(userID)
	defer unlock()

	now := l.now()
	u, err := l.load(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	pending := append([]reservation(nil), l.pending[userID]...)
	l.mu.Unlock()

	out := &Usage{
		UserID:        u.ID,
		Level:         u.ActiveLevel(now),
		Lifetime:      u.LifetimeDownloads,
		LifetimeLimit: l.limits.FreeLifetime,
		Daily:         models.DailyCounters{},
		Remaining:     make(map[models.ContentKind]int, len(models.BillableKinds)),
	}
	if out.IsPremium() {
		until := *u.PremiumUntil
		out.PremiumUntil = &until
	}
	for k, v := range u.DailyCounters {
		out.Daily[k] = v
	}
	for _, kind := range models.BillableKinds {
		d, _ := l.decide(u, kind, now, pending)
		if d.Granted {
			if d.Remaining == Unlimited {
				out.Remaining[kind] = Unlimited
			} else {
				out.Remaining[kind] = d.Remaining + 1
			}
		} else {
			out.Remaining[kind] = 0
		}
	}
	return out, nil
}

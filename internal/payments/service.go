package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diegod088/bot-bens11-sub000/internal/logger"
	"github.com/diegod088/bot-bens11-sub000/internal/metrics"
	"github.com/diegod088/bot-bens11-sub000/internal/models"
	"github.com/diegod088/bot-bens11-sub000/internal/publisher"
)

// errors
var (
	ErrDuplicatePayment  = errors.New("payment already granted")
	ErrPaymentInProgress = errors.New("payment grant already in progress")
	ErrUnknownPlan       = errors.New("unknown plan")
	ErrAmountMismatch    = errors.New("paid amount does not match plan price")
)

// Receipt is a confirmed purchase reported by a payment integration.
type Receipt struct {
	Provider      models.PaymentProvider
	TransactionID string
	UserID        int64
	PlanID        string
	Amount        int64
	Currency      string
}

// PaymentStore persists payments, unique per provider transaction. Claim is
// the only way from pending to granting and must be atomic.
type PaymentStore interface {
	Record(ctx context.Context, p *models.Payment) (*models.Payment, bool, error)
	Claim(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error)
	Unclaim(ctx context.Context, id uuid.UUID) error
	MarkGranted(ctx context.Context, id uuid.UUID, at time.Time) error
}

// claimTTL is how long a grant may stay in flight before another delivery
// of the same transaction takes it over.
const claimTTL = 10 * time.Minute

// UserStore creates accounts before their first payment row.
type UserStore interface {
	GetOrCreate(ctx context.Context, id int64) (*models.User, error)
}

// Granter applies premium to an account.
type Granter interface {
	GrantPremium(ctx context.Context, userID int64, level models.PremiumLevel, days int) (*models.User, error)
}

// EventPublisher receives grant events.
type EventPublisher interface {
	PremiumGranted(ctx context.Context, e publisher.PremiumEvent) error
}

// Notifier tells the user their premium is active.
type Notifier interface {
	PremiumActivated(ctx context.Context, userID int64, level models.PremiumLevel, until time.Time)
}

// Service confirms payments exactly once per provider transaction.
type Service struct {
	plans    *Catalog
	payments PaymentStore
	users    UserStore
	granter  Granter
	events   EventPublisher
	notifier Notifier
	now      func() time.Time
	log      *logger.Logger
}

// NewService creates a payments Service.
func NewService(plans *Catalog, payments PaymentStore, users UserStore, granter Granter, events EventPublisher) *Service {
	if plans == nil {
		plans = DefaultCatalog()
	}
	return &Service{
		plans:    plans,
		payments: payments,
		users:    users,
		granter:  granter,
		events:   events,
		now:      time.Now,
		log:      logger.Component("payments"),
	}
}

// SetNotifier registers the user notification hook.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Plans returns the catalog.
func (s *Service) Plans() *Catalog {
	return s.plans
}

// CheckStars validates a Stars pre-checkout for planID.
func (s *Service) CheckStars(planID string, amount int64, currency string) error {
	plan, ok := s.plans.Get(planID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}
	if currency != StarsCurrency || amount != plan.Stars {
		return fmt.Errorf("%w: got %d %s, want %d %s", ErrAmountMismatch, amount, currency, plan.Stars, StarsCurrency)
	}
	return nil
}

// Confirm grants the plan behind r. A receipt whose transaction was already
// granted returns ErrDuplicatePayment and grants nothing. One whose grant is
// running elsewhere returns ErrPaymentInProgress. One whose earlier grant
// failed is granted now.
func (s *Service) Confirm(ctx context.Context, r Receipt) (*models.User, error) {
	plan, ok := s.plans.Get(r.PlanID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, r.PlanID)
	}
	if err := checkAmount(plan, r); err != nil {
		return nil, err
	}
	return s.grant(ctx, r, plan.Level, plan.Days)
}

// GrantManual grants premium on an admin's behalf through the same path.
func (s *Service) GrantManual(ctx context.Context, adminID, userID int64, level models.PremiumLevel, days int) (*models.User, error) {
	if !level.Valid() || days <= 0 {
		return nil, fmt.Errorf("invalid manual grant: level %q, %d days", level, days)
	}
	r := Receipt{
		Provider:      models.ProviderAdmin,
		TransactionID: fmt.Sprintf("admin-%d-%s", adminID, uuid.NewString()),
		UserID:        userID,
		PlanID:        "manual",
	}
	return s.grant(ctx, r, level, days)
}

func checkAmount(plan Plan, r Receipt) error {
	switch r.Provider {
	case models.ProviderTelegramStars:
		if r.Currency != StarsCurrency || r.Amount != plan.Stars {
			return fmt.Errorf("%w: got %d %s for %s", ErrAmountMismatch, r.Amount, r.Currency, plan.ID)
		}
	case models.ProviderPayPal:
		if r.Currency != "USD" || r.Amount != plan.PriceCents() {
			return fmt.Errorf("%w: got %d %s for %s", ErrAmountMismatch, r.Amount, r.Currency, plan.ID)
		}
	}
	return nil
}

func (s *Service) grant(ctx context.Context, r Receipt, level models.PremiumLevel, days int) (*models.User, error) {
	if r.TransactionID == "" {
		return nil, errors.New("receipt has no transaction id")
	}

	if _, err := s.users.GetOrCreate(ctx, r.UserID); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	stored, created, err := s.payments.Record(ctx, &models.Payment{
		ID:            uuid.New(),
		Provider:      r.Provider,
		TransactionID: r.TransactionID,
		UserID:        r.UserID,
		PlanID:        r.PlanID,
		Level:         level,
		Days:          days,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Status:        models.PaymentStatusPending,
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !created && stored.Status == models.PaymentStatusGranted {
		s.log.Info().
			Str("provider", string(r.Provider)).
			Str("transaction_id", r.TransactionID).
			Msg("payments: duplicate ignored")
		return nil, fmt.Errorf("%w: %s/%s", ErrDuplicatePayment, r.Provider, r.TransactionID)
	}

	claimedAt := s.now().UTC()
	claimed, err := s.payments.Claim(ctx, stored.ID, claimedAt, claimedAt.Add(-claimTTL))
	if err != nil {
		return nil, err
	}
	if !claimed {
		s.log.Info().
			Str("provider", string(r.Provider)).
			Str("transaction_id", r.TransactionID).
			Msg("payments: grant already in flight")
		return nil, fmt.Errorf("%w: %s/%s", ErrPaymentInProgress, r.Provider, r.TransactionID)
	}

	// a retried pending payment keeps the terms it was recorded with
	u, err := s.granter.GrantPremium(ctx, stored.UserID, stored.Level, stored.Days)
	if err != nil {
		if uerr := s.payments.Unclaim(context.WithoutCancel(ctx), stored.ID); uerr != nil {
			s.log.Alert(uerr, "payments: claim not released, retry after it goes stale")
		}
		return nil, fmt.Errorf("grant premium: %w", err)
	}

	now := s.now().UTC()
	if err := s.payments.MarkGranted(ctx, stored.ID, now); err != nil {
		// premium is active; the row stays granting until the claim goes stale
		s.log.Alert(err, "payments: premium granted but payment not marked")
	}

	metrics.PremiumGrantsTotal.WithLabelValues(string(r.Provider), string(stored.Level)).Inc()
	s.log.Info().
		Int64("user_id", u.ID).
		Str("provider", string(r.Provider)).
		Str("plan", stored.PlanID).
		Time("until", *u.PremiumUntil).
		Msg("payments: premium granted")

	if s.events != nil {
		_ = s.events.PremiumGranted(ctx, publisher.PremiumEvent{
			UserID:   u.ID,
			Level:    string(u.PremiumLevel),
			Days:     stored.Days,
			Provider: string(r.Provider),
			PlanID:   stored.PlanID,
			Until:    *u.PremiumUntil,
			At:       now,
		})
	}
	if s.notifier != nil {
		s.notifier.PremiumActivated(ctx, u.ID, u.PremiumLevel, *u.PremiumUntil)
	}
	return u, nil
}

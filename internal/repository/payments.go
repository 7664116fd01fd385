package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

const paymentColumns = `id, provider, transaction_id, user_id, plan_id, level, days,
		       amount, currency, status, created_at, claimed_at, granted_at`

// PaymentsRepository handles payments table operations
type PaymentsRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentsRepository creates a new payments repository
func NewPaymentsRepository(pool *pgxpool.Pool) *PaymentsRepository {
	return &PaymentsRepository{pool: pool}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID, &p.Provider, &p.TransactionID, &p.UserID, &p.PlanID, &p.Level, &p.Days,
		&p.Amount, &p.Currency, &p.Status, &p.CreatedAt, &p.ClaimedAt, &p.GrantedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Record inserts p unless a payment with the same provider and transaction
// id exists. It returns the stored row and whether it was inserted now.
func (r *PaymentsRepository) Record(ctx context.Context, p *models.Payment) (*models.Payment, bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = models.PaymentStatusPending
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO payments (id, provider, transaction_id, user_id, plan_id, level, days,
		                      amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (provider, transaction_id) DO NOTHING
	`, p.ID, string(p.Provider), p.TransactionID, p.UserID, p.PlanID, string(p.Level), p.Days,
		p.Amount, p.Currency, string(p.Status), p.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("record payment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return p, true, nil
	}

	existing, err := r.GetByTransaction(ctx, p.Provider, p.TransactionID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("payment %s/%s conflicted but was not found", p.Provider, p.TransactionID)
	}
	return existing, false, nil
}

// GetByTransaction returns a payment by provider transaction id or nil
func (r *PaymentsRepository) GetByTransaction(ctx context.Context, provider models.PaymentProvider, txID string) (*models.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE provider = $1 AND transaction_id = $2
	`, string(provider), txID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by transaction: %w", err)
	}
	return p, nil
}

// Claim moves a payment to granting so exactly one caller applies it. A
// granting row claimed before staleBefore is taken over. It reports whether
// the caller now owns the grant.
func (r *PaymentsRepository) Claim(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, claimed_at = $3
		WHERE id = $1
		  AND (status = $4 OR (status = $2 AND claimed_at < $5))
	`, id, string(models.PaymentStatusGranting), at, string(models.PaymentStatusPending), staleBefore)
	if err != nil {
		return false, fmt.Errorf("claim payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Unclaim returns a claimed payment to pending after a failed grant
func (r *PaymentsRepository) Unclaim(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, claimed_at = NULL
		WHERE id = $1 AND status = $3
	`, id, string(models.PaymentStatusPending), string(models.PaymentStatusGranting))
	if err != nil {
		return fmt.Errorf("unclaim payment: %w", err)
	}
	return nil
}

// MarkGranted flips a claimed payment to granted
func (r *PaymentsRepository) MarkGranted(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, granted_at = $3
		WHERE id = $1 AND status = $4
	`, id, string(models.PaymentStatusGranted), at, string(models.PaymentStatusGranting))
	if err != nil {
		return fmt.Errorf("mark payment granted: %w", err)
	}
	return nil
}

// ListByUser returns the user's payments, newest first
func (r *PaymentsRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

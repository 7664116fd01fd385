package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

const userColumns = `id, created_at, updated_at, lifetime_download_count, total_downloads,
		       daily_counters, daily_reset_date, premium_until, premium_level,
		       language, session_credential`

// UsersRepository handles users table operations
type UsersRepository struct {
	pool *pgxpool.Pool
}

// NewUsersRepository creates a new users repository
func NewUsersRepository(pool *pgxpool.Pool) *UsersRepository {
	return &UsersRepository{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.LifetimeDownloads, &u.TotalDownloads,
		&u.DailyCounters, &u.DailyResetDate, &u.PremiumUntil, &u.PremiumLevel,
		&u.Language, &u.SessionCredential,
	)
	if err != nil {
		return nil, err
	}
	if u.DailyCounters == nil {
		u.DailyCounters = models.DailyCounters{}
	}
	return &u, nil
}

// GetByID returns a user or nil when absent
func (r *UsersRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetOrCreate returns the user row, inserting a fresh free-tier row on
// first interaction
func (r *UsersRepository) GetOrCreate(ctx context.Context, id int64) (*models.User, error) {
	fresh := models.NewUser(id, time.Now().UTC())

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, created_at, updated_at, daily_counters, daily_reset_date, language)
		VALUES ($1, $2, $2, '{}'::jsonb, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, fresh.ID, fresh.CreatedAt, fresh.DailyResetDate, fresh.Language)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	u, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %d vanished after insert", id)
	}
	return u, nil
}

// Save writes the mutable fields of u
func (r *UsersRepository) Save(ctx context.Context, u *models.User) error {
	counters := u.DailyCounters
	if counters == nil {
		counters = models.DailyCounters{}
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET
			updated_at = $2,
			lifetime_download_count = $3,
			total_downloads = $4,
			daily_counters = $5,
			daily_reset_date = $6,
			premium_until = $7,
			premium_level = $8,
			language = $9,
			session_credential = $10
		WHERE id = $1
	`, u.ID, u.UpdatedAt, u.LifetimeDownloads, u.TotalDownloads, counters,
		u.DailyResetDate, u.PremiumUntil, string(u.PremiumLevel), u.Language, u.SessionCredential)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save user %d: not found", u.ID)
	}
	return nil
}

// ListPremium returns users whose premium is active at now, soonest expiry first
func (r *UsersRepository) ListPremium(ctx context.Context, now time.Time, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE premium_until > $1
		ORDER BY premium_until
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list premium users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

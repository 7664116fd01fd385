package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Revenue is the granted payment total for one provider and currency.
type Revenue struct {
	Provider string `json:"provider"`
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	Payments int    `json:"payments"`
}

// DashboardStats contains aggregated statistics for the dashboard.
type DashboardStats struct {
	TotalUsers     int       `json:"total_users"`
	NewUsersToday  int       `json:"new_users_today"`
	PremiumUsers   int       `json:"premium_users"`
	ElevatedUsers  int       `json:"elevated_users"`
	TotalDownloads int64     `json:"total_downloads"`
	DownloadsToday int64     `json:"downloads_today"`
	PaymentsToday  int       `json:"payments_today"`
	Revenue        []Revenue `json:"revenue"`
}

// StatsRepository provides access to statistics data in the database.
type StatsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

// GetStats retrieves aggregated statistics for the dashboard.
func (r *StatsRepository) GetStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{Revenue: []Revenue{}}

	// Aggregated query for users
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) as total,
			COUNT(CASE WHEN created_at >= CURRENT_DATE THEN 1 END) as today,
			COUNT(CASE WHEN premium_until > NOW() THEN 1 END) as premium,
			COUNT(CASE WHEN premium_until > NOW() AND premium_level = 'elevated' THEN 1 END) as elevated,
			COALESCE(SUM(total_downloads), 0) as downloads
		FROM users
	`).Scan(&stats.TotalUsers, &stats.NewUsersToday, &stats.PremiumUsers, &stats.ElevatedUsers, &stats.TotalDownloads)
	if err != nil {
		return nil, fmt.Errorf("get user stats: %w", err)
	}

	// daily counters are only valid for today's reset date
	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(c.value::bigint), 0)
		FROM users u, jsonb_each_text(u.daily_counters) c
		WHERE u.daily_reset_date = CURRENT_DATE
	`).Scan(&stats.DownloadsToday)
	if err != nil {
		return nil, fmt.Errorf("get daily stats: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM payments WHERE status = 'granted' AND granted_at >= CURRENT_DATE
	`).Scan(&stats.PaymentsToday)
	if err != nil {
		return nil, fmt.Errorf("get payment stats: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT provider, currency, COALESCE(SUM(amount), 0), COUNT(*)
		FROM payments
		WHERE status = 'granted'
		GROUP BY provider, currency
		ORDER BY provider, currency
	`)
	if err != nil {
		return nil, fmt.Errorf("get revenue: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rev Revenue
		if err := rows.Scan(&rev.Provider, &rev.Currency, &rev.Amount, &rev.Payments); err != nil {
			return nil, fmt.Errorf("scan revenue: %w", err)
		}
		stats.Revenue = append(stats.Revenue, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read revenue: %w", err)
	}

	return stats, nil
}

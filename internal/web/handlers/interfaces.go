package handlers

import (
	"context"

	"github.com/diegod088/bot-bens11-sub000/internal/repository"
)

// StatsRepository defines interface for stats data access
type StatsRepository interface {
	GetStats(ctx context.Context) (*repository.DashboardStats, error)
}

package bot

import (
	"fmt"
	"strings"

	"github.com/diegod088/bot-bens11-sub000/internal/delivery"
	"github.com/diegod088/bot-bens11-sub000/internal/models"
	"github.com/diegod088/bot-bens11-sub000/internal/quota"
	"github.com/diegod088/bot-bens11-sub000/internal/repository"
)

const dateFormat = "2006-01-02"

// kindOrder is the display order of content kinds.
var kindOrder = []models.ContentKind{
	models.KindPhoto,
	models.KindVideo,
	models.KindMusic,
	models.KindVoice,
	models.KindDocument,
	models.KindApk,
}

func formatUsage(u *quota.Usage) string {
	var sb strings.Builder

	if u.IsPremium() && u.PremiumUntil != nil {
		label := "Premium"
		if u.Level == models.LevelElevated {
			label = "Premium Plus"
		}
		fmt.Fprintf(&sb, "Plan: %s until %s UTC\n", label, u.PremiumUntil.UTC().Format(dateFormat))
	} else {
		sb.WriteString("Plan: Free\n")
		fmt.Fprintf(&sb, "Free downloads used: %d/%d\n", u.Lifetime, u.LifetimeLimit)
	}

	sb.WriteString("\nToday:\n")
	for _, kind := range kindOrder {
		left, ok := u.Remaining[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "• %s: %d used, %s\n", delivery.KindName(kind), u.Daily[kind], remainingLabel(left))
	}

	if !u.IsPremium() {
		sb.WriteString("\nUpgrade with /premium.")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func remainingLabel(left int) string {
	switch {
	case left == quota.Unlimited:
		return "unlimited"
	case left <= 0:
		return "none left"
	default:
		return fmt.Sprintf("%d left", left)
	}
}

func formatStats(s *repository.DashboardStats) string {
	var sb strings.Builder

	sb.WriteString("Stats\n\n")
	fmt.Fprintf(&sb, "Users: %d (%d new today)\n", s.TotalUsers, s.NewUsersToday)
	fmt.Fprintf(&sb, "Premium: %d (%d plus)\n", s.PremiumUsers, s.ElevatedUsers)
	fmt.Fprintf(&sb, "Downloads: %d (%d today)\n", s.TotalDownloads, s.DownloadsToday)
	fmt.Fprintf(&sb, "Payments today: %d\n", s.PaymentsToday)

	if len(s.Revenue) > 0 {
		sb.WriteString("\nRevenue:\n")
		for _, r := range s.Revenue {
			fmt.Fprintf(&sb, "• %s: %s (%d payments)\n", r.Provider, formatAmount(r.Amount, r.Currency), r.Payments)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatAmount renders an amount stored in the smallest currency unit.
func formatAmount(amount int64, currency string) string {
	if currency == "XTR" {
		return fmt.Sprintf("%d stars", amount)
	}
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, currency)
}

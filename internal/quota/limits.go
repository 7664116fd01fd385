package quota

import (
	"github.com/diegod088/bot-bens11-sub000/internal/config"
	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

// Unlimited is reported as the remaining allowance when no ceiling applies.
const Unlimited = -1

// Limits holds the allowance ceilings per tier.
type Limits struct {
	FreeLifetime    int
	FreeDailyPhotos int
	PremiumDaily    map[models.ContentKind]int
	ElevatedFactor  int
}

// LimitsFromConfig builds Limits from the quota configuration.
func LimitsFromConfig(c config.QuotaConfig) Limits {
	factor := c.ElevatedFactor
	if factor < 1 {
		factor = 1
	}
	return Limits{
		FreeLifetime:    c.FreeLifetime,
		FreeDailyPhotos: c.FreeDailyPhotos,
		PremiumDaily: map[models.ContentKind]int{
			models.KindVideo:    c.PremiumVideo,
			models.KindMusic:    c.PremiumMusic,
			models.KindVoice:    c.PremiumVoice,
			models.KindDocument: c.PremiumDocument,
			models.KindApk:      c.PremiumApk,
		},
		ElevatedFactor: factor,
	}
}

// DefaultLimits matches the configuration defaults.
func DefaultLimits() Limits {
	return LimitsFromConfig(config.QuotaConfig{
		FreeLifetime:    3,
		FreeDailyPhotos: 10,
		PremiumVideo:    50,
		PremiumMusic:    50,
		PremiumVoice:    50,
		PremiumDocument: 50,
		PremiumApk:      50,
		ElevatedFactor:  3,
	})
}

// premiumOnly kinds are never granted to the free tier.
func premiumOnly(kind models.ContentKind) bool {
	return kind == models.KindMusic || kind == models.KindApk
}

// dailyCeiling returns the premium daily ceiling for kind at level.
func (l Limits) dailyCeiling(kind models.ContentKind, level models.PremiumLevel) int {
	n := l.PremiumDaily[kind]
	if level == models.LevelElevated {
		n *= l.ElevatedFactor
	}
	return n
}

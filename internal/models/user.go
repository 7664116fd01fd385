package models

import (
	"time"
)

// ContentKind classifies the media carried by a message.
type ContentKind string

// ContentKind constants define the media kinds the bot can deliver.
const (
	KindNone     ContentKind = "none"
	KindPhoto    ContentKind = "photo"
	KindVideo    ContentKind = "video"
	KindMusic    ContentKind = "music"
	KindVoice    ContentKind = "voice"
	KindDocument ContentKind = "document"
	KindApk      ContentKind = "apk"
)

// BillableKinds lists every kind that consumes an allowance.
var BillableKinds = []ContentKind{KindPhoto, KindVideo, KindMusic, KindVoice, KindDocument, KindApk}

// PremiumLevel discriminates paid tiers.
type PremiumLevel string

// PremiumLevel constants define the paid tiers.
const (
	LevelNone     PremiumLevel = ""
	LevelStandard PremiumLevel = "standard"
	LevelElevated PremiumLevel = "elevated"
)

// Valid reports whether the level is a grantable tier.
func (l PremiumLevel) Valid() bool {
	return l == LevelStandard || l == LevelElevated
}

// Rank orders levels so grants never downgrade an active tier.
func (l PremiumLevel) Rank() int {
	switch l {
	case LevelElevated:
		return 2
	case LevelStandard:
		return 1
	default:
		return 0
	}
}

// DailyCounters maps a content kind to today's usage.
type DailyCounters map[ContentKind]int

// User represents a bot user account and its allowance state.
type User struct {
	ID        int64     `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// counters
	LifetimeDownloads int           `json:"lifetime_download_count" db:"lifetime_download_count"`
	TotalDownloads    int64         `json:"total_downloads" db:"total_downloads"`
	DailyCounters     DailyCounters `json:"daily_counters" db:"daily_counters"`
	DailyResetDate    time.Time     `json:"daily_reset_date" db:"daily_reset_date"`

	// premium
	PremiumUntil *time.Time   `json:"premium_until,omitempty" db:"premium_until"`
	PremiumLevel PremiumLevel `json:"premium_level" db:"premium_level"`

	Language          string `json:"language" db:"language"`
	SessionCredential []byte `json:"-" db:"session_credential"`
}

// NewUser returns a fresh free-tier account valid for the given day.
func NewUser(id int64, now time.Time) *User {
	return &User{
		ID:             id,
		CreatedAt:      now,
		UpdatedAt:      now,
		DailyCounters:  DailyCounters{},
		DailyResetDate: Day(now),
		Language:       "en",
	}
}

// IsPremium reports whether premium is active at the given instant.
// An expiry in the past is equivalent to no premium at all.
func (u *User) IsPremium(now time.Time) bool {
	return u.PremiumUntil != nil && u.PremiumUntil.After(now)
}

// ActiveLevel returns the premium level in effect at now, or LevelNone.
func (u *User) ActiveLevel(now time.Time) PremiumLevel {
	if !u.IsPremium(now) {
		return LevelNone
	}
	if u.PremiumLevel == LevelNone {
		return LevelStandard
	}
	return u.PremiumLevel
}

// Daily returns today's counter for a kind; stale counters must be
// reconciled before reading.
func (u *User) Daily(kind ContentKind) int {
	if u.DailyCounters == nil {
		return 0
	}
	return u.DailyCounters[kind]
}

// Day truncates a timestamp to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

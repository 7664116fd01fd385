package publisher

import (
	"time"

	"github.com/google/uuid"
)

// stream layout
const (
	StreamName = "MEDIA"

	SubjectDeliveryCompleted = "media.delivery.completed"
	SubjectDeliveryFailed    = "media.delivery.failed"
	SubjectPremiumGranted    = "media.premium.granted"
)

// StreamSubjects are the subjects bound to StreamName.
var StreamSubjects = []string{"media.>"}

// DeliveryEvent reports the outcome of one delivery task.
type DeliveryEvent struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	UserID     int64     `json:"user_id"`
	Channel    string    `json:"channel"`
	MessageID  int       `json:"message_id,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Items      int       `json:"items"`
	Bytes      int64     `json:"bytes"`
	Reason     string    `json:"reason,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

// PremiumEvent reports a premium grant.
type PremiumEvent struct {
	ID       uuid.UUID `json:"id"`
	UserID   int64     `json:"user_id"`
	Level    string    `json:"level"`
	Days     int       `json:"days"`
	Provider string    `json:"provider"`
	PlanID   string    `json:"plan_id,omitempty"`
	Until    time.Time `json:"until"`
	At       time.Time `json:"at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentProvider identifies where a payment was captured.
type PaymentProvider string

// PaymentProvider constants define the supported payment sources.
const (
	ProviderTelegramStars PaymentProvider = "telegram_stars"
	ProviderPayPal        PaymentProvider = "paypal"
	ProviderAdmin         PaymentProvider = "admin"
)

// PaymentStatus tracks whether premium was granted for a payment.
type PaymentStatus string

// PaymentStatus constants define the payment lifecycle.
const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusGranting PaymentStatus = "granting"
	PaymentStatusGranted  PaymentStatus = "granted"
)

// Payment is a captured premium purchase, unique per provider transaction.
type Payment struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Provider      PaymentProvider `json:"provider" db:"provider"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	UserID        int64           `json:"user_id" db:"user_id"`

	// purchased plan
	PlanID string       `json:"plan_id" db:"plan_id"`
	Level  PremiumLevel `json:"level" db:"level"`
	Days   int          `json:"days" db:"days"`

	// amount in the smallest currency unit (stars, cents)
	Amount   int64  `json:"amount" db:"amount"`
	Currency string `json:"currency" db:"currency"`

	Status    PaymentStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	ClaimedAt *time.Time    `json:"claimed_at,omitempty" db:"claimed_at"`
	GrantedAt *time.Time    `json:"granted_at,omitempty" db:"granted_at"`
}

package quota

import (
	"fmt"

	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

// DenialReason tags why a reservation was refused.
type DenialReason string

// DenialReason constants.
const (
	ReasonLifetimeLimit DenialReason = "lifetime_limit_reached"
	ReasonDailyLimit    DenialReason = "daily_limit_reached"
	ReasonPremiumOnly   DenialReason = "premium_only"
	ReasonNotBillable   DenialReason = "not_billable"
)

// Denial describes a refused reservation. It implements error so callers
// can carry it with errors.As.
type Denial struct {
	Reason DenialReason
	Kind   models.ContentKind
	Limit  int
	Used   int
}

func (d *Denial) Error() string {
	switch d.Reason {
	case ReasonLifetimeLimit:
		return fmt.Sprintf("free lifetime limit reached (%d/%d)", d.Used, d.Limit)
	case ReasonDailyLimit:
		return fmt.Sprintf("daily %s limit reached (%d/%d)", d.Kind, d.Used, d.Limit)
	case ReasonPremiumOnly:
		return fmt.Sprintf("%s downloads require premium", d.Kind)
	default:
		return fmt.Sprintf("%s cannot be reserved", d.Kind)
	}
}

// Decision is the outcome of CheckAndReserve. Remaining is the allowance
// left after this reservation, or Unlimited.
type Decision struct {
	Granted   bool
	Remaining int
	Denial    *Denial
}

func granted(remaining int) Decision {
	return Decision{Granted: true, Remaining: remaining}
}

func denied(d *Denial) Decision {
	return Decision{Denial: d}
}

package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/diegod088/bot-bens11-sub000/internal/quota"
	"github.com/diegod088/bot-bens11-sub000/internal/telegram"
)

// Reason tags a terminal task failure.
type Reason string

// Reason constants.
const (
	ReasonInvalidLink     Reason = "invalid_link"
	ReasonNoMedia         Reason = "no_media"
	ReasonMessageNotFound Reason = "message_not_found"
	ReasonChannelNotFound Reason = "channel_not_found"
	ReasonNeedsInvite     Reason = "needs_invite"
	ReasonAccessDenied    Reason = "access_denied"
	ReasonInviteExpired   Reason = "invite_expired"
	ReasonInviteInvalid   Reason = "invite_invalid"
	ReasonQuotaExceeded   Reason = "quota_exceeded"
	ReasonTooLarge        Reason = "too_large"
	ReasonUnavailable     Reason = "unavailable"
	ReasonSessionDown     Reason = "session_down"
	ReasonSendFailed      Reason = "send_failed"
	ReasonBusy            Reason = "busy"
	ReasonInternal        Reason = "internal"
)

// Failure is the typed outcome of a failed task.
type Failure struct {
	Reason Reason
	Denial *quota.Denial // set for ReasonQuotaExceeded
	Size   int64         // set for ReasonTooLarge
	Limit  int64         // set for ReasonTooLarge
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Reason, f.Err)
	}
	return string(f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(reason Reason, err error) *Failure {
	return &Failure{Reason: reason, Err: err}
}

var accessReasons = []struct {
	err    error
	reason Reason
}{
	{telegram.ErrNeedsInvite, ReasonNeedsInvite},
	{telegram.ErrAccessDenied, ReasonAccessDenied},
	{telegram.ErrInviteExpired, ReasonInviteExpired},
	{telegram.ErrInviteInvalid, ReasonInviteInvalid},
	{telegram.ErrChannelNotFound, ReasonChannelNotFound},
	{telegram.ErrMessageNotFound, ReasonMessageNotFound},
	{telegram.ErrUnauthorized, ReasonSessionDown},
	{telegram.ErrSessionRevoked, ReasonSessionDown},
	{telegram.ErrTransientUnavailable, ReasonUnavailable},
	{telegram.ErrConnectionExhausted, ReasonUnavailable},
	{telegram.ErrNotConnected, ReasonUnavailable},
}

// classify maps a component error to a Failure.
func classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	for _, m := range accessReasons {
		if errors.Is(err, m.err) {
			return fail(m.reason, err)
		}
	}
	switch {
	case telegram.IsFatal(err):
		return fail(ReasonSessionDown, err)
	case telegram.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		return fail(ReasonUnavailable, err)
	default:
		return fail(ReasonInternal, err)
	}
}

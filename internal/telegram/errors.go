package telegram

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	protoerrors "github.com/celestix/gotgproto/errors"
	"github.com/gotd/td/pool"
	"github.com/gotd/td/rpc"
	"github.com/gotd/td/tgerr"

	"github.com/diegod088/bot-bens11-sub000/internal/retry"
)

// Session errors.
var (
	ErrUnauthorized        = errors.New("telegram session is not authorized")
	ErrSessionRevoked      = errors.New("telegram session revoked or account deactivated")
	ErrConnectionExhausted = errors.New("telegram connection attempts exhausted")
	ErrNotConnected        = errors.New("telegram session not connected")
)

// Access and fetch errors.
var (
	ErrNeedsInvite          = errors.New("channel requires an invite link")
	ErrAccessDenied         = errors.New("channel is private or access was denied")
	ErrInviteExpired        = errors.New("invite link expired")
	ErrInviteInvalid        = errors.New("invite link invalid")
	ErrChannelNotFound      = errors.New("channel not found")
	ErrTransientUnavailable = errors.New("telegram temporarily unavailable")
	ErrMessageNotFound      = errors.New("message not found")
)

var fatalCodes = []string{
	"AUTH_KEY_UNREGISTERED",
	"AUTH_KEY_INVALID",
	"AUTH_KEY_PERM_EMPTY",
	"SESSION_REVOKED",
	"SESSION_EXPIRED",
	"USER_DEACTIVATED",
	"USER_DEACTIVATED_BAN",
}

// IsFatal reports credential or account errors that never recover by retrying.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionRevoked) || errors.Is(err, protoerrors.ErrSessionUnauthorized) {
		return true
	}
	return tgerr.Is(err, fatalCodes...)
}

// IsNetwork reports connection-level failures. Cancellation is not one.
func IsNetwork(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, pool.ErrConnDead) || errors.Is(err, rpc.ErrEngineClosed) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var retryErr *rpc.RetryLimitReachedErr
	if errors.As(err, &retryErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// FloodWait returns the server-mandated wait carried by err.
func FloodWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	return tgerr.AsFloodWait(err)
}

// IsTransient reports errors that may succeed later without user action:
// rate limits, network trouble or an exhausted retry budget.
func IsTransient(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	if errors.Is(err, ErrConnectionExhausted) || errors.Is(err, ErrNotConnected) || errors.Is(err, ErrTransientUnavailable) {
		return true
	}
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		return true
	}
	if _, ok := FloodWait(err); ok {
		return true
	}
	return IsNetwork(err)
}

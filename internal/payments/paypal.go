package payments

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/diegod088/bot-bens11-sub000/internal/logger"
	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

// PayPal webhook constants.
const (
	PayPalTokenHeader     = "X-Webhook-Token"
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
)

// Confirmer is the payment entrypoint used by webhook handlers.
type Confirmer interface {
	Confirm(ctx context.Context, r Receipt) (*models.User, error)
}

type paypalEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		CustomID string `json:"custom_id"`
		Amount   struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
	} `json:"resource"`
}

// PayPalHandler accepts PayPal capture webhooks.
type PayPalHandler struct {
	svc   Confirmer
	token string
	log   *logger.Logger
}

// NewPayPalHandler creates the webhook handler. An empty token disables it.
func NewPayPalHandler(svc Confirmer, token string) *PayPalHandler {
	return &PayPalHandler{svc: svc, token: token, log: logger.Component("paypal")}
}

// ParseCustomID splits "<user_id>:<plan_id>".
func ParseCustomID(s string) (int64, string, error) {
	user, plan, ok := strings.Cut(s, ":")
	if !ok || plan == "" {
		return 0, "", fmt.Errorf("custom_id %q: want <user_id>:<plan_id>", s)
	}
	id, err := strconv.ParseInt(user, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", fmt.Errorf("custom_id %q: bad user id", s)
	}
	return id, plan, nil
}

// ParseCents converts a decimal amount such as "4.99" to cents.
func ParseCents(v string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("amount %q: not a positive decimal", v)
	}
	return int64(math.Round(f * 100)), nil
}

func (h *PayPalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.token == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "webhook disabled"})
		return
	}
	got := r.Header.Get(PayPalTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return
	}

	var evt paypalEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&evt); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	if evt.EventType != EventCaptureCompleted {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	userID, planID, err := ParseCustomID(evt.Resource.CustomID)
	if err != nil {
		h.log.Warn().Err(err).Str("event_id", evt.ID).Msg("paypal: bad custom id")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	cents, err := ParseCents(evt.Resource.Amount.Value)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	if evt.Resource.ID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "missing capture id"})
		return
	}

	_, err = h.svc.Confirm(r.Context(), Receipt{
		Provider:      models.ProviderPayPal,
		TransactionID: evt.Resource.ID,
		UserID:        userID,
		PlanID:        planID,
		Amount:        cents,
		Currency:      evt.Resource.Amount.CurrencyCode,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
	case errors.Is(err, ErrDuplicatePayment):
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
	case errors.Is(err, ErrPaymentInProgress):
		// non-2xx so PayPal redelivers if the running grant fails
		writeJSON(w, http.StatusConflict, map[string]string{"status": "in_progress"})
	case errors.Is(err, ErrUnknownPlan), errors.Is(err, ErrAmountMismatch):
		h.log.Warn().Err(err).Str("capture_id", evt.Resource.ID).Msg("paypal: rejected capture")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		// 5xx makes PayPal redeliver
		h.log.Error().Err(err).Str("capture_id", evt.Resource.ID).Msg("paypal: confirm failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "temporary failure"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err // Client disconnected
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/diegod088/bot-bens11-sub000/internal/logger"
	"github.com/diegod088/bot-bens11-sub000/internal/telegram"
)

// loginWindow bounds a dashboard QR login. The flow runs detached from the
// request that started it.
const loginWindow = 5 * time.Minute

// Websocket message types sent while a dashboard login runs.
const (
	loginQR     = "tg_qr"
	loginOK     = "tg_auth_success"
	loginFailed = "error"
)

// SecondarySession is the part of telegram.Manager the session routes use.
type SecondarySession interface {
	StartQR(ctx context.Context, onQRCode func(url string)) error
	CancelQR()
	Status() telegram.Status
	IsQRInProgress() bool
}

// Broadcaster pushes a message to every dashboard websocket.
type Broadcaster interface {
	Broadcast(message interface{})
}

// SessionState is the body of GET /session/status.
type SessionState struct {
	Status       telegram.Status `json:"status"`
	Ready        bool            `json:"is_ready"`
	NeedsLogin   bool            `json:"needs_login"`
	QRInProgress bool            `json:"qr_in_progress"`
}

type loginEvent struct {
	Type    string `json:"type"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

// SessionHandler serves the secondary session state and the dashboard QR
// login for it.
type SessionHandler struct {
	session SecondarySession
	out     Broadcaster
	log     *logger.Logger

	// wg tracks detached login goroutines; tests wait on it.
	wg sync.WaitGroup
}

// NewSessionHandler creates a SessionHandler. out may be nil.
func NewSessionHandler(session SecondarySession, out Broadcaster) *SessionHandler {
	return &SessionHandler{session: session, out: out, log: logger.Component("web.session")}
}

func (h *SessionHandler) state() SessionState {
	st := h.session.Status()
	return SessionState{
		Status:       st,
		Ready:        st == telegram.StatusConnected,
		NeedsLogin:   st == telegram.StatusUnauthorized || st == telegram.StatusFatal,
		QRInProgress: h.session.IsQRInProgress(),
	}
}

// GetStatus reports the session state.
func (h *SessionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state())
}

// StartQR begins a QR login and answers 202 at once. The login URL and the
// outcome arrive over the websocket.
func (h *SessionHandler) StartQR(w http.ResponseWriter, r *http.Request) {
	st := h.state()
	switch {
	case st.Ready:
		writeError(w, http.StatusConflict, "session already connected")
		return
	case st.QRInProgress:
		writeJSON(w, http.StatusAccepted, st)
		return
	}

	h.wg.Add(1)
	go h.login()

	st.QRInProgress = true
	writeJSON(w, http.StatusAccepted, st)
}

// CancelQR aborts a running QR login.
func (h *SessionHandler) CancelQR(w http.ResponseWriter, r *http.Request) {
	if !h.session.IsQRInProgress() {
		writeError(w, http.StatusNotFound, "no login in progress")
		return
	}
	h.session.CancelQR()
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) login() {
	defer h.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), loginWindow)
	defer cancel()

	h.log.Info().Msg("session: dashboard QR login started")
	err := h.session.StartQR(ctx, func(url string) {
		h.send(loginEvent{Type: loginQR, URL: url})
	})
	switch {
	case err == nil:
		h.log.Info().Msg("session: dashboard QR login accepted")
		h.send(loginEvent{Type: loginOK})
	case errors.Is(err, context.Canceled):
		h.log.Info().Msg("session: dashboard QR login cancelled")
	default:
		h.log.Warn().Err(err).Msg("session: dashboard QR login failed")
		h.send(loginEvent{Type: loginFailed, Message: err.Error()})
	}
}

func (h *SessionHandler) send(ev loginEvent) {
	if h.out != nil {
		h.out.Broadcast(ev)
	}
}

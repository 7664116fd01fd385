package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/diegod088/bot-bens11-sub000/internal/config"
	"github.com/diegod088/bot-bens11-sub000/internal/delivery"
	"github.com/diegod088/bot-bens11-sub000/internal/models"
	"github.com/diegod088/bot-bens11-sub000/internal/payments"
	"github.com/diegod088/bot-bens11-sub000/internal/quota"
	"github.com/diegod088/bot-bens11-sub000/internal/repository"
	"github.com/diegod088/bot-bens11-sub000/internal/telegram"
)

const adminID = 900

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
	updates  chan tgbotapi.Update
	stopped  bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

// texts returns the text of every plain message sent.
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) invoices() []tgbotapi.InvoiceConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.InvoiceConfig
	for _, c := range f.sent {
		if inv, ok := c.(tgbotapi.InvoiceConfig); ok {
			out = append(out, inv)
		}
	}
	return out
}

type fakeDelivery struct {
	mu       sync.Mutex
	requests []delivery.Request
}

func (d *fakeDelivery) Handle(_ context.Context, req delivery.Request) delivery.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	return delivery.Result{}
}

func (d *fakeDelivery) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) Plans() *payments.Catalog {
	return payments.DefaultCatalog()
}

func (m *MockPayments) CheckStars(planID string, amount int64, currency string) error {
	return m.Called(planID, amount, currency).Error(0)
}

func (m *MockPayments) Confirm(ctx context.Context, r payments.Receipt) (*models.User, error) {
	args := m.Called(ctx, r)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPayments) GrantManual(ctx context.Context, admin, userID int64, level models.PremiumLevel, days int) (*models.User, error) {
	args := m.Called(ctx, admin, userID, level, days)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

type stubStats struct{}

func (stubStats) GetStats(context.Context) (*repository.DashboardStats, error) {
	return &repository.DashboardStats{
		TotalUsers:   12,
		PremiumUsers: 3,
		Revenue:      []repository.Revenue{{Provider: "telegram_stars", Currency: "XTR", Amount: 450, Payments: 3}},
	}, nil
}

type stubSession telegram.Status

func (s stubSession) Status() telegram.Status { return telegram.Status(s) }

type harness struct {
	bot      *Bot
	api      *fakeAPI
	delivery *fakeDelivery
	payments *MockPayments
	ledger   *quota.Ledger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := &config.Config{
		AdminIDs: []int64{adminID},
		Quota:    config.QuotaConfig{FreeLifetime: 3, FreeDailyPhotos: 10, PremiumVideo: 50, ElevatedFactor: 3},
	}
	h := &harness{
		api:      &fakeAPI{updates: make(chan tgbotapi.Update)},
		delivery: &fakeDelivery{},
		payments: &MockPayments{},
		ledger:   quota.NewLedger(quota.NewMemoryStore(nil), quota.DefaultLimits()),
	}
	h.bot = New(cfg, h.api, Deps{
		Delivery: h.delivery,
		Usage:    h.ledger,
		Payments: h.payments,
		Stats:    stubStats{},
		Session:  stubSession(telegram.StatusConnected),
	})
	return h
}

func textMessage(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
		Text:      text,
	}
}

func commandMessage(from int64, text string) *tgbotapi.Message {
	msg := textMessage(from, text)
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}}
	return msg
}

func (h *harness) dispatch(msg *tgbotapi.Message) {
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func TestBot_LinkGoesToDelivery(t *testing.T) {
	h := newHarness(t)

	h.dispatch(textMessage(42, "https://t.me/somechannel/5"))

	require.Equal(t, 1, h.delivery.count())
	assert.Equal(t, delivery.Request{UserID: 42, ChatID: 42, ReplyTo: 10, Text: "https://t.me/somechannel/5"}, h.delivery.requests[0])
}

func TestBot_IgnoresGroupChats(t *testing.T) {
	h := newHarness(t)
	msg := textMessage(42, "https://t.me/somechannel/5")
	msg.Chat = &tgbotapi.Chat{ID: -100, Type: "supergroup"}

	h.dispatch(msg)

	assert.Zero(t, h.delivery.count())
	assert.Empty(t, h.api.texts())
}

func TestBot_Help(t *testing.T) {
	h := newHarness(t)

	h.dispatch(commandMessage(42, "/start"))

	texts := h.api.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Free: 3 downloads")
	assert.Contains(t, texts[0], "10 photos a day")
	assert.Zero(t, h.delivery.count())
}

func TestBot_UnknownCommand(t *testing.T) {
	h := newHarness(t)

	h.dispatch(commandMessage(42, "/nope"))

	assert.Equal(t, []string{"Unknown command. See /help."}, h.api.texts())
}

func TestBot_Status(t *testing.T) {
	h := newHarness(t)

	h.dispatch(commandMessage(42, "/status"))

	texts := h.api.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Plan: Free")
	assert.Contains(t, texts[0], "Free downloads used: 0/3")
	assert.Contains(t, texts[0], "photo: 0 used, 10 left")
	assert.Contains(t, texts[0], "/premium")
}

func TestBot_PremiumSendsStarsInvoices(t *testing.T) {
	h := newHarness(t)

	h.dispatch(commandMessage(42, "/premium"))

	invoices := h.api.invoices()
	require.Len(t, invoices, 2)
	assert.Equal(t, "plan:standard_30", invoices[0].Payload)
	assert.Equal(t, "XTR", invoices[0].Currency)
	assert.Equal(t, []tgbotapi.LabeledPrice{{Label: "Premium 30 days", Amount: 150}}, invoices[0].Prices)
	assert.Equal(t, "plan:elevated_30", invoices[1].Payload)
	assert.Len(t, h.api.texts(), 1, "intro message before the invoices")
}

func TestBot_PreCheckout(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		checkOK bool
		wantOK  bool
	}{
		{"valid plan", "plan:standard_30", true, true},
		{"price mismatch", "plan:standard_30", false, false},
		{"foreign payload", "something", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			var checkErr error
			if !tt.checkOK {
				checkErr = payments.ErrAmountMismatch
			}
			h.payments.On("CheckStars", "standard_30", int64(150), "XTR").Return(checkErr).Maybe()

			h.bot.handleUpdate(context.Background(), tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{
				ID:             "q1",
				From:           &tgbotapi.User{ID: 42},
				Currency:       "XTR",
				TotalAmount:    150,
				InvoicePayload: tt.payload,
			}})

			require.Len(t, h.api.requests, 1)
			answer := h.api.requests[0].(tgbotapi.PreCheckoutConfig)
			assert.Equal(t, "q1", answer.PreCheckoutQueryID)
			assert.Equal(t, tt.wantOK, answer.OK)
			if !tt.wantOK {
				assert.NotEmpty(t, answer.ErrorMessage)
			}
		})
	}
}

func successfulPayment(from int64) *tgbotapi.Message {
	msg := textMessage(from, "")
	msg.SuccessfulPayment = &tgbotapi.SuccessfulPayment{
		Currency:                "XTR",
		TotalAmount:             150,
		InvoicePayload:          "plan:standard_30",
		TelegramPaymentChargeID: "charge-1",
	}
	return msg
}

func TestBot_SuccessfulPaymentConfirms(t *testing.T) {
	h := newHarness(t)
	want := payments.Receipt{
		Provider:      models.ProviderTelegramStars,
		TransactionID: "charge-1",
		UserID:        42,
		PlanID:        "standard_30",
		Amount:        150,
		Currency:      "XTR",
	}
	h.payments.On("Confirm", mock.Anything, want).Return(models.NewUser(42, time.Now()), nil).Once()

	h.dispatch(successfulPayment(42))

	h.payments.AssertExpectations(t)
	assert.Empty(t, h.api.texts(), "the payments notifier announces activation")
	assert.Zero(t, h.delivery.count())
}

func TestBot_SuccessfulPaymentErrors(t *testing.T) {
	t.Run("duplicate is silent", func(t *testing.T) {
		h := newHarness(t)
		h.payments.On("Confirm", mock.Anything, mock.Anything).Return(nil, payments.ErrDuplicatePayment)

		h.dispatch(successfulPayment(42))

		assert.Empty(t, h.api.texts())
	})

	t.Run("grant in flight is silent", func(t *testing.T) {
		h := newHarness(t)
		h.payments.On("Confirm", mock.Anything, mock.Anything).Return(nil, payments.ErrPaymentInProgress)

		h.dispatch(successfulPayment(42))

		assert.Empty(t, h.api.texts())
	})

	t.Run("failure tells the user", func(t *testing.T) {
		h := newHarness(t)
		h.payments.On("Confirm", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		h.dispatch(successfulPayment(42))

		texts := h.api.texts()
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], "charge-1")
	})
}

func TestBot_AdminCommands(t *testing.T) {
	t.Run("stats hidden from users", func(t *testing.T) {
		h := newHarness(t)
		h.dispatch(commandMessage(42, "/stats"))
		assert.Equal(t, []string{"Unknown command. See /help."}, h.api.texts())
	})

	t.Run("stats for admin", func(t *testing.T) {
		h := newHarness(t)
		h.dispatch(commandMessage(adminID, "/stats"))

		texts := h.api.texts()
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], "Users: 12")
		assert.Contains(t, texts[0], "telegram_stars: 450 stars (3 payments)")
		assert.Contains(t, texts[0], "Session: CONNECTED")
	})

	t.Run("grant", func(t *testing.T) {
		h := newHarness(t)
		until := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
		u := models.NewUser(77, time.Now())
		u.PremiumLevel = models.LevelElevated
		u.PremiumUntil = &until
		h.payments.On("GrantManual", mock.Anything, int64(adminID), int64(77), models.LevelElevated, 30).Return(u, nil).Once()

		h.dispatch(commandMessage(adminID, "/grant 77 elevated 30"))

		h.payments.AssertExpectations(t)
		assert.Equal(t, []string{"Granted elevated premium to 77 until 2026-12-01."}, h.api.texts())
	})

	t.Run("grant usage", func(t *testing.T) {
		h := newHarness(t)
		h.dispatch(commandMessage(adminID, "/grant 77 gold 30"))

		texts := h.api.texts()
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], `invalid level "gold"`)
		h.payments.AssertNotCalled(t, "GrantManual")
	})
}

func TestParseGrantArgs(t *testing.T) {
	id, level, days, err := parseGrantArgs("  5 Standard 7 ")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, models.LevelStandard, level)
	assert.Equal(t, 7, days)

	for _, bad := range []string{"", "5 standard", "x standard 7", "5 standard 0", "-1 standard 7"} {
		_, _, _, err := parseGrantArgs(bad)
		assert.Error(t, err, bad)
	}
}

func TestBot_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx) }()

	h.api.updates <- tgbotapi.Update{Message: textMessage(42, "https://t.me/somechannel/1")}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, h.delivery.count())
	assert.True(t, h.api.stopped)
}

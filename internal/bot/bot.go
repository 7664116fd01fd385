// Package bot is the Bot API front end: it long-polls updates, routes
// commands, runs link requests through the delivery pipeline and handles
// Telegram Stars purchases.
package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/diegod088/bot-bens11-sub000/internal/config"
	"github.com/diegod088/bot-bens11-sub000/internal/delivery"
	"github.com/diegod088/bot-bens11-sub000/internal/logger"
	"github.com/diegod088/bot-bens11-sub000/internal/models"
	"github.com/diegod088/bot-bens11-sub000/internal/payments"
	"github.com/diegod088/bot-bens11-sub000/internal/quota"
	"github.com/diegod088/bot-bens11-sub000/internal/repository"
	"github.com/diegod088/bot-bens11-sub000/internal/telegram"
)

// defaultWorkers bounds concurrently handled updates.
const defaultWorkers = 16

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Deliverer runs a link request to completion.
type Deliverer interface {
	Handle(ctx context.Context, req delivery.Request) delivery.Result
}

// UsageReader reads allowance snapshots.
type UsageReader interface {
	Usage(ctx context.Context, userID int64) (*quota.Usage, error)
}

// PaymentService confirms purchases and manual grants.
type PaymentService interface {
	Plans() *payments.Catalog
	CheckStars(planID string, amount int64, currency string) error
	Confirm(ctx context.Context, r payments.Receipt) (*models.User, error)
	GrantManual(ctx context.Context, adminID, userID int64, level models.PremiumLevel, days int) (*models.User, error)
}

// StatsSource provides dashboard numbers.
type StatsSource interface {
	GetStats(ctx context.Context) (*repository.DashboardStats, error)
}

// SessionStatus reports the secondary session state.
type SessionStatus interface {
	Status() telegram.Status
}

// Deps are the collaborators a Bot needs. Stats and Session may be nil.
type Deps struct {
	Delivery Deliverer
	Usage    UsageReader
	Payments PaymentService
	Stats    StatsSource
	Session  SessionStatus
}

// Bot serves Bot API updates.
type Bot struct {
	cfg      *config.Config
	api      API
	deps     Deps
	commands map[string]commandHandler
	workers  int
	log      *logger.Logger
}

// NewAPI connects to the Bot API with token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating bot API: %w", err)
	}
	return api, nil
}

// New creates a Bot.
func New(cfg *config.Config, api API, deps Deps) *Bot {
	b := &Bot{
		cfg:     cfg,
		api:     api,
		deps:    deps,
		workers: defaultWorkers,
		log:     logger.Component("bot"),
	}
	b.commands = b.newCommandRegistry()
	return b
}

// Run long-polls updates until ctx is cancelled, then waits for in-flight
// handlers.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	var g errgroup.Group
	g.SetLimit(b.workers)

	b.log.Info().Int("workers", b.workers).Msg("bot: polling updates")
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				_ = g.Wait()
				return nil
			}
			// must be answered within seconds; never queue behind downloads
			if update.PreCheckoutQuery != nil {
				b.handlePreCheckout(update.PreCheckoutQuery)
				continue
			}
			g.Go(func() error {
				b.handleUpdate(ctx, update)
				return nil
			})
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Int("update_id", update.UpdateID).Msg("bot: handler panic")
		}
	}()

	if update.PreCheckoutQuery != nil {
		b.handlePreCheckout(update.PreCheckoutQuery)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	if msg.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(ctx, msg)
		return
	}

	if !msg.Chat.IsPrivate() {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return
	}

	res := b.deps.Delivery.Handle(ctx, delivery.Request{
		UserID:  msg.From.ID,
		ChatID:  msg.Chat.ID,
		ReplyTo: msg.MessageID,
		Text:    text,
	})
	if res.Failure == nil {
		b.log.Debug().Int64("user_id", msg.From.ID).Int("items", len(res.Delivered)).Msg("bot: link served")
	}
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	out.DisableWebPagePreview = true
	if _, err := b.api.Send(out); err != nil {
		b.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("bot: reply failed")
	}
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/diegod088/bot-bens11-sub000/internal/models"
	"github.com/diegod088/bot-bens11-sub000/internal/payments"
)

// PayloadPrefix marks invoice payloads carrying a plan id.
const PayloadPrefix = "plan:"

func (b *Bot) handlePremium(_ context.Context, msg *tgbotapi.Message) {
	plans := b.deps.Payments.Plans().Plans
	if len(plans) == 0 {
		b.reply(msg, "No premium plans are on sale right now.")
		return
	}

	b.reply(msg, premiumIntro(b.cfg.Quota.PremiumVideo, b.cfg.Quota.ElevatedFactor))

	for _, plan := range plans {
		inv := tgbotapi.NewInvoice(
			msg.Chat.ID,
			plan.Title,
			planDescription(plan),
			PayloadPrefix+plan.ID,
			"", // stars need no provider token
			"",
			payments.StarsCurrency,
			[]tgbotapi.LabeledPrice{{Label: plan.Title, Amount: int(plan.Stars)}},
		)
		inv.SuggestedTipAmounts = []int{}
		if _, err := b.api.Send(inv); err != nil {
			b.log.Error().Err(err).Str("plan_id", plan.ID).Msg("bot: send invoice failed")
		}
	}
}

func premiumIntro(dailyVideo, factor int) string {
	return fmt.Sprintf(`Premium unlocks music and APK downloads and replaces the free lifetime limit with daily allowances (%d videos a day, unlimited photos).
Premium Plus multiplies every daily allowance by %d.

Pay with Telegram Stars below.`, dailyVideo, factor)
}

func planDescription(p payments.Plan) string {
	level := "Premium"
	if p.Level == models.LevelElevated {
		level = "Premium Plus"
	}
	return fmt.Sprintf("%s for %d days", level, p.Days)
}

// planFromPayload extracts the plan id from an invoice payload.
func planFromPayload(payload string) (string, bool) {
	id, ok := strings.CutPrefix(payload, PayloadPrefix)
	return id, ok && id != ""
}

func (b *Bot) handlePreCheckout(q *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}

	planID, ok := planFromPayload(q.InvoicePayload)
	var err error
	if !ok {
		err = fmt.Errorf("%w: payload %q", payments.ErrUnknownPlan, q.InvoicePayload)
	} else {
		err = b.deps.Payments.CheckStars(planID, int64(q.TotalAmount), q.Currency)
	}
	if err != nil {
		b.log.Warn().Err(err).Str("payload", q.InvoicePayload).Int64("user_id", fromID(q.From)).Msg("bot: pre-checkout rejected")
		answer.OK = false
		answer.ErrorMessage = "This plan is no longer available. Please open /premium again."
	}

	if _, err := b.api.Request(answer); err != nil {
		b.log.Error().Err(err).Str("query_id", q.ID).Msg("bot: answer pre-checkout failed")
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	sp := msg.SuccessfulPayment
	planID, _ := planFromPayload(sp.InvoicePayload)

	r := payments.Receipt{
		Provider:      models.ProviderTelegramStars,
		TransactionID: sp.TelegramPaymentChargeID,
		UserID:        msg.From.ID,
		PlanID:        planID,
		Amount:        int64(sp.TotalAmount),
		Currency:      sp.Currency,
	}

	// the charge already happened; do not let a shutdown abort the grant
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	_, err := b.deps.Payments.Confirm(ctx, r)
	switch {
	case err == nil:
		// the payments notifier tells the user
	case errors.Is(err, payments.ErrDuplicatePayment), errors.Is(err, payments.ErrPaymentInProgress):
		b.log.Info().Err(err).Str("charge_id", r.TransactionID).Msg("bot: duplicate payment update")
	default:
		b.log.Alert(err, "bot: stars payment not granted")
		b.reply(msg, fmt.Sprintf("Your payment was received but premium could not be activated yet. We'll fix this; your payment reference is %s.", r.TransactionID))
	}
}

func fromID(u *tgbotapi.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

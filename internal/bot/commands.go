package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

// Command names.
const (
	CmdStart   = "start"
	CmdHelp    = "help"
	CmdStatus  = "status"
	CmdPremium = "premium"
	CmdStats   = "stats"
	CmdGrant   = "grant"
)

// commandHandler is a function that handles a specific bot command.
type commandHandler func(ctx context.Context, msg *tgbotapi.Message)

func (b *Bot) newCommandRegistry() map[string]commandHandler {
	return map[string]commandHandler{
		CmdStart:   b.handleHelp,
		CmdHelp:    b.handleHelp,
		CmdStatus:  b.handleStatus,
		CmdPremium: b.handlePremium,
		"plans":    b.handlePremium,
		CmdStats:   b.adminOnly(b.handleStats),
		CmdGrant:   b.adminOnly(b.handleGrant),
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := strings.ToLower(msg.Command())
	b.log.Info().Str("command", cmd).Int64("user_id", msg.From.ID).Msg("bot: command")

	handler, ok := b.commands[cmd]
	if !ok {
		b.reply(msg, "Unknown command. See /help.")
		return
	}
	handler(ctx, msg)
}

// adminOnly hides h from users outside the allow-list.
func (b *Bot) adminOnly(h commandHandler) commandHandler {
	return func(ctx context.Context, msg *tgbotapi.Message) {
		if !b.cfg.IsAdmin(msg.From.ID) {
			b.log.Warn().Int64("user_id", msg.From.ID).Str("command", msg.Command()).Msg("bot: unauthorized admin command")
			b.reply(msg, "Unknown command. See /help.")
			return
		}
		h(ctx, msg)
	}
}

const helpText = `Send me a link to a Telegram post and I'll send you its media.

Supported links:
• https://t.me/channel/123 (public channel post)
• https://t.me/c/1234567890/45 (private channel post)
• https://t.me/+InviteHash (join a private channel first)
• https://t.me/channel (latest post or album)

Free: %d downloads of videos, documents and voice messages, plus %d photos a day.
Premium unlocks music, APKs and daily allowances. See /premium.

/status shows your usage.`

func (b *Bot) handleHelp(_ context.Context, msg *tgbotapi.Message) {
	q := b.cfg.Quota
	b.reply(msg, fmt.Sprintf(helpText, q.FreeLifetime, q.FreeDailyPhotos))
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	usage, err := b.deps.Usage.Usage(ctx, msg.From.ID)
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("bot: usage lookup failed")
		b.reply(msg, "I couldn't load your usage right now. Please try again.")
		return
	}
	b.reply(msg, formatUsage(usage))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	if b.deps.Stats == nil {
		b.reply(msg, "Stats are not available.")
		return
	}
	stats, err := b.deps.Stats.GetStats(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("bot: stats failed")
		b.reply(msg, "Error: "+err.Error())
		return
	}

	text := formatStats(stats)
	if b.deps.Session != nil {
		text += "\nSession: " + string(b.deps.Session.Status())
	}
	b.reply(msg, text)
}

const grantUsage = "Usage: /grant <user_id> <standard|elevated> <days>"

func (b *Bot) handleGrant(ctx context.Context, msg *tgbotapi.Message) {
	userID, level, days, err := parseGrantArgs(msg.CommandArguments())
	if err != nil {
		b.reply(msg, err.Error()+"\n"+grantUsage)
		return
	}

	u, err := b.deps.Payments.GrantManual(ctx, msg.From.ID, userID, level, days)
	if err != nil {
		b.log.Error().Err(err).Int64("target_id", userID).Msg("bot: manual grant failed")
		b.reply(msg, "Grant failed: "+err.Error())
		return
	}

	b.log.Info().
		Int64("admin_id", msg.From.ID).
		Int64("target_id", userID).
		Str("level", string(level)).
		Int("days", days).
		Msg("bot: manual grant")
	b.reply(msg, fmt.Sprintf("Granted %s premium to %d until %s.", u.PremiumLevel, userID, u.PremiumUntil.UTC().Format(dateFormat)))
}

func parseGrantArgs(args string) (int64, models.PremiumLevel, int, error) {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		return 0, "", 0, fmt.Errorf("expected 3 arguments, got %d", len(fields))
	}

	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || userID <= 0 {
		return 0, "", 0, fmt.Errorf("invalid user id %q", fields[0])
	}

	level := models.PremiumLevel(strings.ToLower(fields[1]))
	if !level.Valid() {
		return 0, "", 0, fmt.Errorf("invalid level %q", fields[1])
	}

	days, err := strconv.Atoi(fields[2])
	if err != nil || days <= 0 {
		return 0, "", 0, fmt.Errorf("invalid days %q", fields[2])
	}
	return userID, level, days, nil
}

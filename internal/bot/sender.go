package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/diegod088/bot-bens11-sub000/internal/delivery"
	"github.com/diegod088/bot-bens11-sub000/internal/logger"
	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

// Sender delivers files and replies through the Bot API.
type Sender struct {
	api API
	log *logger.Logger
}

// NewSender creates a Sender.
func NewSender(api API) *Sender {
	return &Sender{api: api, log: logger.Component("sender")}
}

// Send uploads out with the method matching its kind.
func (s *Sender) Send(ctx context.Context, out delivery.Outgoing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.api.Send(outgoingConfig(out)); err != nil {
		return fmt.Errorf("send %s to %d: %w", out.Kind, out.ChatID, err)
	}
	return nil
}

func outgoingConfig(out delivery.Outgoing) tgbotapi.Chattable {
	var file tgbotapi.RequestFileData
	if out.Data != nil {
		file = tgbotapi.FileBytes{Name: out.FileName, Bytes: out.Data}
	} else {
		file = tgbotapi.FilePath(out.Path)
	}

	switch out.Kind {
	case models.KindPhoto:
		c := tgbotapi.NewPhoto(out.ChatID, file)
		c.Caption = out.Caption
		c.ReplyToMessageID = out.ReplyTo
		return c
	case models.KindVideo:
		c := tgbotapi.NewVideo(out.ChatID, file)
		c.Caption = out.Caption
		c.ReplyToMessageID = out.ReplyTo
		c.SupportsStreaming = true
		return c
	case models.KindMusic:
		c := tgbotapi.NewAudio(out.ChatID, file)
		c.Caption = out.Caption
		c.ReplyToMessageID = out.ReplyTo
		return c
	case models.KindVoice:
		c := tgbotapi.NewVoice(out.ChatID, file)
		c.Caption = out.Caption
		c.ReplyToMessageID = out.ReplyTo
		return c
	default:
		c := tgbotapi.NewDocument(out.ChatID, file)
		c.Caption = out.Caption
		c.ReplyToMessageID = out.ReplyTo
		return c
	}
}

// Reply sends a plain text message.
func (s *Sender) Reply(_ context.Context, chatID int64, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.DisableWebPagePreview = true
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("reply to %d: %w", chatID, err)
	}
	return nil
}

// PremiumActivated tells the user their premium is live.
func (s *Sender) PremiumActivated(_ context.Context, userID int64, level models.PremiumLevel, until time.Time) {
	name := "Premium"
	if level == models.LevelElevated {
		name = "Premium Plus"
	}
	text := fmt.Sprintf("%s is active until %s UTC. Thank you! Send /status to see your allowances.", name, until.UTC().Format("2006-01-02 15:04"))

	// private chats share the user's id
	if _, err := s.api.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("sender: premium notice failed")
	}
}

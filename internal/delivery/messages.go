package delivery

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/diegod088/bot-bens11-sub000/internal/models"
	"github.com/diegod088/bot-bens11-sub000/internal/quota"
)

const ellipsis = "…"

// TruncateCaption cuts s to at most limit runes, marking the cut.
func TruncateCaption(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:limit-1]), " \n") + ellipsis
}

var kindNames = map[models.ContentKind]string{
	models.KindPhoto:    "photo",
	models.KindVideo:    "video",
	models.KindMusic:    "music",
	models.KindVoice:    "voice message",
	models.KindDocument: "document",
	models.KindApk:      "APK",
}

// KindName returns the user-facing name of a content kind.
func KindName(k models.ContentKind) string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return string(k)
}

// UserMessage is the single reply sent for a failure.
func UserMessage(f *Failure) string {
	switch f.Reason {
	case ReasonInvalidLink:
		return "That doesn't look like a Telegram post link. Send a link like https://t.me/channel/123 or https://t.me/c/123456/78."
	case ReasonNoMedia:
		return "That post has no photo, video, audio or file to download."
	case ReasonMessageNotFound:
		return "I couldn't find that post. It may have been deleted, or the link points to the wrong message."
	case ReasonChannelNotFound:
		return "That channel doesn't exist. Check the username in the link."
	case ReasonNeedsInvite:
		return "That channel is private and I'm not a member. Send me an invite link (https://t.me/+...) first, then resend the post link."
	case ReasonAccessDenied:
		return "I can't access that channel. Ask an admin to send you an invite link, or add my account to the channel."
	case ReasonInviteExpired:
		return "That invite link has expired. Ask the channel admin for a new one."
	case ReasonInviteInvalid:
		return "That invite link is invalid. Check it and try again."
	case ReasonQuotaExceeded:
		return quotaMessage(f.Denial)
	case ReasonTooLarge:
		if f.Size <= f.Limit {
			// size was unknown until the download passed the limit
			return fmt.Sprintf("That file is larger than the %s limit I can send.", humanSize(f.Limit))
		}
		return fmt.Sprintf("That file is %s, above the %s limit I can send.", humanSize(f.Size), humanSize(f.Limit))
	case ReasonSessionDown:
		return "Downloads are temporarily unavailable while we fix a connection problem. Your commands and premium still work."
	case ReasonBusy:
		return "I'm still working on your previous link. Please wait for it to finish."
	case ReasonSendFailed:
		return "I downloaded the file but couldn't send it to you. You weren't charged; please try again."
	default:
		return "Telegram is busy right now. Please try again in a few minutes."
	}
}

func quotaMessage(d *quota.Denial) string {
	if d == nil {
		return "You've reached your download limit. Get premium with /premium."
	}
	switch d.Reason {
	case quota.ReasonLifetimeLimit:
		return fmt.Sprintf("You've used all %d free downloads. Photos stay free; get premium with /premium for videos, music and files.", d.Limit)
	case quota.ReasonPremiumOnly:
		return fmt.Sprintf("Downloading %s is a premium feature. See /premium.", KindName(d.Kind))
	case quota.ReasonDailyLimit:
		return fmt.Sprintf("You've reached today's %s limit (%d/%d). It resets at midnight UTC; see /status.", KindName(d.Kind), d.Used, d.Limit)
	default:
		return "That post can't be downloaded."
	}
}

func humanSize(n int64) string {
	const mb = 1 << 20
	if n >= mb {
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	}
	return fmt.Sprintf("%d KB", n>>10)
}

func sizeWarning(size int64) string {
	return fmt.Sprintf("This file is %s; it may take a while to arrive.", humanSize(size))
}

package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/diegod088/bot-bens11-sub000/internal/models"
	"github.com/diegod088/bot-bens11-sub000/internal/quota"
)

func TestTruncateCaption(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 5, "hell…"},
		{"trailing space trimmed", "ab cd", 4, "ab…"},
		{"multibyte", "привет мир", 4, "при…"},
		{"zero limit", "hello", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateCaption(tt.in, tt.limit))
		})
	}
}

func TestUserMessage_Quota(t *testing.T) {
	msg := UserMessage(&Failure{Reason: ReasonQuotaExceeded, Denial: &quota.Denial{
		Reason: quota.ReasonDailyLimit, Kind: models.KindVideo, Limit: 50, Used: 50,
	}})
	assert.Contains(t, msg, "today's video limit (50/50)")

	msg = UserMessage(&Failure{Reason: ReasonQuotaExceeded, Denial: &quota.Denial{
		Reason: quota.ReasonPremiumOnly, Kind: models.KindApk,
	}})
	assert.Contains(t, msg, "APK is a premium feature")

	assert.Contains(t, UserMessage(&Failure{Reason: ReasonQuotaExceeded}), "/premium")
}

func TestUserMessage_TooLarge(t *testing.T) {
	msg := UserMessage(&Failure{Reason: ReasonTooLarge, Size: 3 << 20, Limit: 2 << 20})
	assert.Equal(t, "That file is 3.0 MB, above the 2.0 MB limit I can send.", msg)

	// stopped mid-download, real size unknown
	msg = UserMessage(&Failure{Reason: ReasonTooLarge, Limit: 2 << 20})
	assert.Equal(t, "That file is larger than the 2.0 MB limit I can send.", msg)
}

func TestUserMessage_EveryReasonHasText(t *testing.T) {
	reasons := []Reason{
		ReasonInvalidLink, ReasonNoMedia, ReasonMessageNotFound, ReasonChannelNotFound,
		ReasonNeedsInvite, ReasonAccessDenied, ReasonInviteExpired, ReasonInviteInvalid,
		ReasonTooLarge, ReasonUnavailable, ReasonSessionDown, ReasonSendFailed,
		ReasonBusy, ReasonInternal,
	}
	for _, r := range reasons {
		assert.NotEmpty(t, UserMessage(&Failure{Reason: r}), r)
	}
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 KB", humanSize(512<<10))
	assert.Equal(t, "2.0 MB", humanSize(2<<20))
	assert.Equal(t, "1.5 MB", humanSize(3<<19))
}

func TestKindName(t *testing.T) {
	assert.Equal(t, "voice message", KindName(models.KindVoice))
	assert.Equal(t, "other", KindName(models.ContentKind("other")))
}

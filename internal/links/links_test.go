package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Link
		ok    bool
	}{
		{
			name:  "invite hash",
			input: "https://t.me/+AbC123",
			want:  Link{Ref: ChannelRef{Kind: RefInviteHash, Hash: "AbC123"}},
			ok:    true,
		},
		{
			name:  "invite hash with message",
			input: "https://t.me/+AbC-12_3/77",
			want:  Link{Ref: ChannelRef{Kind: RefInviteHash, Hash: "AbC-12_3"}, MessageID: 77},
			ok:    true,
		},
		{
			name:  "legacy joinchat",
			input: "https://t.me/joinchat/XyZ987",
			want:  Link{Ref: ChannelRef{Kind: RefInviteHash, Hash: "XyZ987"}},
			ok:    true,
		},
		{
			name:  "public username with message",
			input: "https://t.me/news/42",
			want:  Link{Ref: ChannelRef{Kind: RefUsername, Username: "news"}, MessageID: 42},
			ok:    true,
		},
		{
			name:  "public username without scheme",
			input: "t.me/durov",
			want:  Link{Ref: ChannelRef{Kind: RefUsername, Username: "durov"}},
			ok:    true,
		},
		{
			name:  "telegram.me host and query",
			input: "http://telegram.me/some_channel/5?single",
			want:  Link{Ref: ChannelRef{Kind: RefUsername, Username: "some_channel"}, MessageID: 5},
			ok:    true,
		},
		{
			name:  "internal id with message",
			input: "https://t.me/c/555/9",
			want:  Link{Ref: ChannelRef{Kind: RefInternalID, ID: 555}, MessageID: 9},
			ok:    true,
		},
		{
			name:  "internal id topic link",
			input: "https://t.me/c/1234567890/12/345",
			want:  Link{Ref: ChannelRef{Kind: RefInternalID, ID: 1234567890}, MessageID: 345},
			ok:    true,
		},
		{
			name:  "internal id without message",
			input: "https://t.me/c/555",
			want:  Link{Ref: ChannelRef{Kind: RefInternalID, ID: 555}},
			ok:    true,
		},
		{
			name:  "link embedded in text",
			input: "please get this (https://t.me/news/42) thanks",
			want:  Link{Ref: ChannelRef{Kind: RefUsername, Username: "news"}, MessageID: 42},
			ok:    true,
		},
		{name: "plain text", input: "hello world"},
		{name: "empty", input: ""},
		{name: "other host", input: "https://example.com/news/42"},
		{name: "bare plus", input: "https://t.me/+"},
		{name: "joinchat without hash", input: "https://t.me/joinchat"},
		{name: "c without id", input: "https://t.me/c"},
		{name: "c with non numeric id", input: "https://t.me/c/abc/1"},
		{name: "zero message id", input: "https://t.me/news/0"},
		{name: "negative message id", input: "https://t.me/news/-4"},
		{name: "non numeric message", input: "https://t.me/news/latest"},
		{name: "reserved segment", input: "https://t.me/addstickers/Pack"},
		{name: "too short username", input: "https://t.me/abc"},
		{name: "host only", input: "https://t.me/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLink_HasMessage(t *testing.T) {
	l, ok := Resolve("https://t.me/+AbC123")
	assert.True(t, ok)
	assert.False(t, l.HasMessage())

	l, ok = Resolve("https://t.me/news/42")
	assert.True(t, ok)
	assert.True(t, l.HasMessage())
}

func TestChannelRef_String(t *testing.T) {
	assert.Equal(t, "+h", ChannelRef{Kind: RefInviteHash, Hash: "h"}.String())
	assert.Equal(t, "c/7", ChannelRef{Kind: RefInternalID, ID: 7}.String())
	assert.Equal(t, "@news", ChannelRef{Kind: RefUsername, Username: "news"}.String())
}

func FuzzResolve(f *testing.F) {
	f.Add("https://t.me/news/42")
	f.Add("t.me/c/1/2/3/4")
	f.Add("::::")
	f.Fuzz(func(t *testing.T, s string) {
		l, ok := Resolve(s)
		if ok {
			assert.NotZero(t, l.Ref.Kind)
			assert.GreaterOrEqual(t, l.MessageID, 0)
		}
	})
}

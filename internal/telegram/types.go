package telegram

import (
	"time"

	"github.com/gotd/td/tg"
)

// Message is a channel post fetched through the secondary session.
type Message struct {
	ID        int       // message id (unique within channel)
	ChannelID int64     // channel id
	Text      string    // message text or media caption
	Date      time.Time // message creation timestamp
	GroupedID int64     // album id, zero when the post is not part of an album
	Media     tg.MessageMediaClass
}

// HasMedia reports whether the message carries any media at all.
func (m *Message) HasMedia() bool { return m.Media != nil }

// Channel is a usable handle on a channel the session can read.
type Channel struct {
	ID         int64  // channel id
	AccessHash int64  // access hash for api calls
	Username   string // channel username (without @)
	Title      string // channel title
}

// InputChannel returns the channel reference used by channels.* methods.
func (c *Channel) InputChannel() tg.InputChannelClass {
	return &tg.InputChannel{ChannelID: c.ID, AccessHash: c.AccessHash}
}

// InputPeer returns the peer reference used by messages.* methods.
func (c *Channel) InputPeer() tg.InputPeerClass {
	return &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash}
}

func channelFrom(ch *tg.Channel) *Channel {
	return &Channel{
		ID:         ch.ID,
		AccessHash: ch.AccessHash,
		Username:   ch.Username,
		Title:      ch.Title,
	}
}

func messageFrom(m *tg.Message, channelID int64) Message {
	return Message{
		ID:        m.ID,
		ChannelID: channelID,
		Text:      m.Message,
		Date:      time.Unix(int64(m.Date), 0),
		GroupedID: m.GroupedID,
		Media:     m.Media,
	}
}

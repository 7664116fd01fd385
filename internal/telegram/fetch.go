package telegram

import (
	"context"
	"fmt"
	"sort"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// latestWindow covers the largest album (10 items) plus leading service posts.
const latestWindow = 20

// Fetcher retrieves channel posts.
type Fetcher struct {
	calls Caller
}

// NewFetcher creates a Fetcher on top of the session.
func NewFetcher(calls Caller) *Fetcher {
	return &Fetcher{calls: calls}
}

// FetchMessage returns one post by id.
func (f *Fetcher) FetchMessage(ctx context.Context, ch *Channel, id int) (*Message, error) {
	var res tg.MessagesMessagesClass
	err := f.calls.Do(ctx, "get_message", func(ctx context.Context, api API) error {
		var err error
		res, err = api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: ch.InputChannel(),
			ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: id}},
		})
		return err
	})
	if err != nil {
		if tgerr.Is(err, "MESSAGE_IDS_EMPTY", "MSG_ID_INVALID") {
			return nil, fmt.Errorf("%w: %d", ErrMessageNotFound, id)
		}
		return nil, mapAccessError(err)
	}

	for _, m := range messagesOf(res) {
		if msg, ok := m.(*tg.Message); ok && msg.ID == id {
			out := messageFrom(msg, ch.ID)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrMessageNotFound, id)
}

// FetchLatest returns the newest post, or every item of its album in
// chronological order when the newest post belongs to one.
func (f *Fetcher) FetchLatest(ctx context.Context, ch *Channel) ([]Message, error) {
	var res tg.MessagesMessagesClass
	err := f.calls.Do(ctx, "get_history", func(ctx context.Context, api API) error {
		var err error
		res, err = api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:  ch.InputPeer(),
			Limit: latestWindow,
		})
		return err
	})
	if err != nil {
		return nil, mapAccessError(err)
	}

	var (
		out   []Message
		group int64
	)
	// history is newest first; album items are consecutive
	for _, m := range messagesOf(res) {
		msg, ok := m.(*tg.Message)
		if !ok {
			if len(out) > 0 {
				break
			}
			continue
		}
		if len(out) == 0 {
			out = append(out, messageFrom(msg, ch.ID))
			group = msg.GroupedID
			if group == 0 {
				break
			}
			continue
		}
		if msg.GroupedID != group {
			break
		}
		out = append(out, messageFrom(msg, ch.ID))
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: channel has no posts", ErrMessageNotFound)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func messagesOf(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch v := res.(type) {
	case *tg.MessagesMessages:
		return v.Messages
	case *tg.MessagesMessagesSlice:
		return v.Messages
	case *tg.MessagesChannelMessages:
		return v.Messages
	default:
		return nil
	}
}

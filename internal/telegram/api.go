package telegram

import (
	"context"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
)

// API is the subset of the MTProto API used by the bot. *tg.Client
// satisfies it; tests substitute fakes.
type API interface {
	downloader.Client

	ContactsResolveUsername(ctx context.Context, request *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	ChannelsGetMessages(ctx context.Context, request *tg.ChannelsGetMessagesRequest) (tg.MessagesMessagesClass, error)
	MessagesGetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
	MessagesGetDialogs(ctx context.Context, request *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)
	MessagesImportChatInvite(ctx context.Context, hash string) (tg.UpdatesClass, error)
	MessagesCheckChatInvite(ctx context.Context, hash string) (tg.ChatInviteClass, error)
	UpdatesGetState(ctx context.Context) (*tg.UpdatesState, error)
}

var _ API = (*tg.Client)(nil)

// Conn is a live connection of the secondary session.
type Conn interface {
	API() API
	Stop()
}

// Caller runs provider calls through the resilience layer.
type Caller interface {
	Do(ctx context.Context, op string, fn func(ctx context.Context, api API) error, opts ...CallOption) error
}

// CallOption tunes a single wrapped call.
type CallOption func(*callOptions)

type callOptions struct {
	long bool
}

// LongRunning applies the download timeout instead of the regular call timeout.
func LongRunning() CallOption {
	return func(o *callOptions) { o.long = true }
}

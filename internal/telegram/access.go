package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/diegod088/bot-bens11-sub000/internal/links"
	"github.com/diegod088/bot-bens11-sub000/internal/logger"
)

const (
	dialogPageSize = 100
	dialogPages    = 5
)

// AccessManager turns channel references into readable channel handles,
// joining private channels through invite links when needed.
type AccessManager struct {
	calls Caller
	log   *logger.Logger

	mu         sync.RWMutex
	byID       map[int64]*Channel
	byUsername map[string]*Channel
	byHash     map[string]*Channel
}

// NewAccessManager creates an AccessManager on top of the session.
func NewAccessManager(calls Caller) *AccessManager {
	return &AccessManager{
		calls:      calls,
		log:        logger.Component("access"),
		byID:       make(map[int64]*Channel),
		byUsername: make(map[string]*Channel),
		byHash:     make(map[string]*Channel),
	}
}

// EnsureAccess returns a handle for ref. Joining through an invite is
// idempotent: a channel the session already belongs to is a success.
func (a *AccessManager) EnsureAccess(ctx context.Context, ref links.ChannelRef) (*Channel, error) {
	switch ref.Kind {
	case links.RefUsername:
		return a.resolveUsername(ctx, ref.Username)
	case links.RefInternalID:
		return a.resolveInternalID(ctx, ref.ID)
	case links.RefInviteHash:
		return a.join(ctx, ref.Hash)
	default:
		return nil, fmt.Errorf("unsupported channel reference kind %d", ref.Kind)
	}
}

func (a *AccessManager) resolveUsername(ctx context.Context, username string) (*Channel, error) {
	key := strings.ToLower(username)

	a.mu.RLock()
	ch := a.byUsername[key]
	a.mu.RUnlock()
	if ch != nil {
		return ch, nil
	}

	var resolved *tg.ContactsResolvedPeer
	err := a.calls.Do(ctx, "resolve_username", func(ctx context.Context, api API) error {
		var err error
		resolved, err = api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
		return err
	})
	if err != nil {
		return nil, mapAccessError(err)
	}

	peer, ok := resolved.Peer.(*tg.PeerChannel)
	if !ok {
		return nil, fmt.Errorf("%w: @%s is not a channel", ErrChannelNotFound, username)
	}

	for _, c := range resolved.Chats {
		switch v := c.(type) {
		case *tg.Channel:
			if v.ID != peer.ChannelID {
				continue
			}
			ch := channelFrom(v)
			if ch.Username == "" {
				ch.Username = username
			}
			a.remember(ch, "")
			return ch, nil
		case *tg.ChannelForbidden:
			if v.ID == peer.ChannelID {
				return nil, fmt.Errorf("%w: @%s", ErrAccessDenied, username)
			}
		}
	}

	return nil, fmt.Errorf("%w: @%s", ErrChannelNotFound, username)
}

// resolveInternalID finds a channel known only by id. Access hashes are
// per-session, so the channel must already be among the session's dialogs.
func (a *AccessManager) resolveInternalID(ctx context.Context, id int64) (*Channel, error) {
	a.mu.RLock()
	ch := a.byID[id]
	a.mu.RUnlock()
	if ch != nil {
		return ch, nil
	}

	req := &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      dialogPageSize,
	}

	for page := 0; page < dialogPages; page++ {
		var res tg.MessagesDialogsClass
		err := a.calls.Do(ctx, "get_dialogs", func(ctx context.Context, api API) error {
			var err error
			res, err = api.MessagesGetDialogs(ctx, req)
			return err
		})
		if err != nil {
			return nil, mapAccessError(err)
		}

		var (
			dialogs []tg.DialogClass
			chats   []tg.ChatClass
			msgs    []tg.MessageClass
			last    bool
		)
		switch v := res.(type) {
		case *tg.MessagesDialogs:
			dialogs, chats, msgs, last = v.Dialogs, v.Chats, v.Messages, true
		case *tg.MessagesDialogsSlice:
			dialogs, chats, msgs = v.Dialogs, v.Chats, v.Messages
		default:
			last = true
		}

		for _, c := range chats {
			switch v := c.(type) {
			case *tg.Channel:
				found := channelFrom(v)
				a.remember(found, "")
				if v.ID == id {
					ch = found
				}
			case *tg.ChannelForbidden:
				if v.ID == id {
					return nil, fmt.Errorf("%w: channel %d", ErrAccessDenied, id)
				}
			}
		}
		if ch != nil {
			return ch, nil
		}
		if last || len(dialogs) < dialogPageSize {
			break
		}

		// continue below the oldest top message of this page
		date, msgID := oldestMessage(msgs)
		if date == 0 {
			break
		}
		req.OffsetDate, req.OffsetID = date, msgID
	}

	return nil, fmt.Errorf("%w: channel %d", ErrNeedsInvite, id)
}

func oldestMessage(msgs []tg.MessageClass) (date, id int) {
	for _, m := range msgs {
		var d, i int
		switch v := m.(type) {
		case *tg.Message:
			d, i = v.Date, v.ID
		case *tg.MessageService:
			d, i = v.Date, v.ID
		default:
			continue
		}
		if date == 0 || d < date {
			date, id = d, i
		}
	}
	return date, id
}

func (a *AccessManager) join(ctx context.Context, hash string) (*Channel, error) {
	a.mu.RLock()
	ch := a.byHash[hash]
	a.mu.RUnlock()
	if ch != nil {
		return ch, nil
	}

	var updates tg.UpdatesClass
	err := a.calls.Do(ctx, "import_invite", func(ctx context.Context, api API) error {
		var err error
		updates, err = api.MessagesImportChatInvite(ctx, hash)
		return err
	})

	switch {
	case err == nil:
		if ch := channelFromUpdates(updates); ch != nil {
			a.log.Info().Int64("channel_id", ch.ID).Str("title", ch.Title).Msg("access: joined channel via invite")
			a.remember(ch, hash)
			return ch, nil
		}
		return a.checkInvite(ctx, hash)
	case tgerr.Is(err, "USER_ALREADY_PARTICIPANT"):
		return a.checkInvite(ctx, hash)
	default:
		return nil, mapAccessError(err)
	}
}

func (a *AccessManager) checkInvite(ctx context.Context, hash string) (*Channel, error) {
	var invite tg.ChatInviteClass
	err := a.calls.Do(ctx, "check_invite", func(ctx context.Context, api API) error {
		var err error
		invite, err = api.MessagesCheckChatInvite(ctx, hash)
		return err
	})
	if err != nil {
		return nil, mapAccessError(err)
	}

	var chat tg.ChatClass
	switch v := invite.(type) {
	case *tg.ChatInviteAlready:
		chat = v.Chat
	case *tg.ChatInvitePeek:
		chat = v.Chat
	case *tg.ChatInvite:
		// valid invite but not a member, e.g. a pending join request
		return nil, fmt.Errorf("%w: join not approved", ErrAccessDenied)
	}

	c, ok := chat.(*tg.Channel)
	if !ok {
		return nil, fmt.Errorf("%w: invite does not lead to a channel", ErrChannelNotFound)
	}
	ch := channelFrom(c)
	a.remember(ch, hash)
	return ch, nil
}

func channelFromUpdates(u tg.UpdatesClass) *Channel {
	var chats []tg.ChatClass
	switch v := u.(type) {
	case *tg.Updates:
		chats = v.Chats
	case *tg.UpdatesCombined:
		chats = v.Chats
	}
	for _, c := range chats {
		if ch, ok := c.(*tg.Channel); ok {
			return channelFrom(ch)
		}
	}
	return nil
}

func (a *AccessManager) remember(ch *Channel, hash string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.byID[ch.ID] = ch
	if ch.Username != "" {
		a.byUsername[strings.ToLower(ch.Username)] = ch
	}
	if hash != "" {
		a.byHash[hash] = ch
	}
}

// Forget drops every cached handle for ch, so the next EnsureAccess
// resolves or joins again. Callers use it once a channel stops being
// readable, e.g. after the session was removed from it.
func (a *AccessManager) Forget(ch *Channel) {
	if ch == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.byID, ch.ID)
	for k, c := range a.byUsername {
		if c.ID == ch.ID {
			delete(a.byUsername, k)
		}
	}
	for k, c := range a.byHash {
		if c.ID == ch.ID {
			delete(a.byHash, k)
		}
	}
	a.log.Info().Int64("channel_id", ch.ID).Msg("access: forgot channel")
}

// mapAccessError converts provider errors into access sentinels.
func mapAccessError(err error) error {
	switch {
	case tgerr.Is(err, "INVITE_HASH_EXPIRED"):
		return fmt.Errorf("%w: %v", ErrInviteExpired, err)
	case tgerr.Is(err, "INVITE_HASH_INVALID", "INVITE_HASH_EMPTY"):
		return fmt.Errorf("%w: %v", ErrInviteInvalid, err)
	case tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID"):
		return fmt.Errorf("%w: %v", ErrChannelNotFound, err)
	case tgerr.Is(err,
		"CHANNEL_PRIVATE",
		"CHANNEL_INVALID",
		"CHANNEL_PUBLIC_GROUP_NA",
		"INVITE_REQUEST_SENT",
		"CHANNELS_TOO_MUCH",
		"USER_BANNED_IN_CHANNEL",
	):
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	case IsFatal(err), errors.Is(err, ErrUnauthorized), errors.Is(err, context.Canceled):
		return err
	case IsTransient(err):
		return fmt.Errorf("%w: %v", ErrTransientUnavailable, err)
	default:
		return fmt.Errorf("channel access: %w", err)
	}
}

package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/celestix/gotgproto"
	protoerrors "github.com/celestix/gotgproto/errors"
	"github.com/celestix/gotgproto/sessionMaker"
	"gorm.io/gorm"

	"github.com/diegod088/bot-bens11-sub000/internal/config"
)

// protoConn adapts a gotgproto client to Conn.
type protoConn struct {
	client *gotgproto.Client
}

func (c *protoConn) API() API { return c.client.API() }

func (c *protoConn) Stop() { c.client.Stop() }

// NewPersistentClient connects the secondary session stored in the sessions
// table. Auth key refreshes are written back to the same table. An exported
// session string in the config takes precedence and is kept in memory.
//
// A stored session that is no longer authorized fails with ErrSessionRevoked
// instead of falling back to an interactive login.
func NewPersistentClient(ctx context.Context, cfg *config.Config, db *gorm.DB) (Conn, error) {
	opts := &gotgproto.ClientOpts{
		Session:          sessionMaker.SqlSession(db.Dialector),
		DisableCopyright: true,
		NoAutoAuth:       true,
	}
	if cfg.TGSessionStr != "" {
		opts.Session = sessionMaker.StringSession(cfg.TGSessionStr)
		opts.InMemory = true
	}

	return dialWithin(ctx, func() (Conn, error) {
		client, err := gotgproto.NewClient(
			cfg.TGApiID,
			cfg.TGApiHash,
			gotgproto.ClientTypePhone(""), // empty = use session
			opts,
		)
		if err != nil {
			if errors.Is(err, protoerrors.ErrSessionUnauthorized) {
				return nil, fmt.Errorf("%w: %v", ErrSessionRevoked, err)
			}
			return nil, fmt.Errorf("create telegram client: %w", err)
		}
		return &protoConn{client: client}, nil
	})
}

// dialWithin runs dial until it returns or ctx ends. The client outlives
// ctx once connected, so ctx only bounds the wait; a connection that
// arrives after the deadline is stopped.
func dialWithin(ctx context.Context, dial func() (Conn, error)) (Conn, error) {
	type result struct {
		conn Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := dial()
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Stop()
			}
		}()
		return nil, fmt.Errorf("connect telegram: %w", ctx.Err())
	}
}

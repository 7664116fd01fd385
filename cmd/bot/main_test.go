package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diegod088/bot-bens11-sub000/internal/publisher"
	"github.com/diegod088/bot-bens11-sub000/internal/web"
)

type fakeStream struct {
	ensureErr    error
	subscribeErr error
	subscribed   []string
}

func (f *fakeStream) EnsureStream(_ context.Context, name string, subjects []string) error {
	return f.ensureErr
}

func (f *fakeStream) Subscribe(_ context.Context, stream, consumer, subject string, _ func(string, []byte) error) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, stream+"/"+consumer+"/"+subject)
	return nil
}

func TestSetupEvents(t *testing.T) {
	sink := web.NewHubSink(web.NewHub())

	t.Run("stream and consumer", func(t *testing.T) {
		f := &fakeStream{}
		require.NoError(t, setupEvents(context.Background(), f, sink))
		assert.Equal(t, []string{publisher.StreamName + "/dashboard/" + publisher.StreamSubjects[0]}, f.subscribed)
	})

	t.Run("stream failure is reported, not fatal", func(t *testing.T) {
		f := &fakeStream{ensureErr: errors.New("jetstream not enabled")}
		err := setupEvents(context.Background(), f, sink)
		assert.ErrorContains(t, err, "jetstream not enabled")
		assert.Empty(t, f.subscribed)
	})

	t.Run("subscribe failure", func(t *testing.T) {
		f := &fakeStream{subscribeErr: errors.New("consumer limit")}
		assert.ErrorContains(t, setupEvents(context.Background(), f, sink), "consumer limit")
	})
}

func TestConnectEvents_UnreachableFallsBack(t *testing.T) {
	nc := connectEvents(context.Background(), "nats://127.0.0.1:1", web.NewHubSink(web.NewHub()))
	assert.Nil(t, nc)
}

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-auth/internal/queue"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRabbitEvents_DeliversInOrder(t *testing.T) {
	got := make(chan queue.AuthEvent, 3)
	p := (&RabbitEvents{send: func(_ context.Context, ev queue.AuthEvent) error {
		got <- ev
		return nil
	}}).start(8, nil, quietLog())
	defer p.Close()

	for _, typ := range []queue.AuthEventType{queue.EventLoginSucceeded, queue.EventTokenRefreshed, queue.EventLogout} {
		p.Publish(context.Background(), queue.AuthEvent{Type: typ, UserID: "u1"})
	}
	for _, want := range []queue.AuthEventType{queue.EventLoginSucceeded, queue.EventTokenRefreshed, queue.EventLogout} {
		select {
		case ev := <-got:
			assert.Equal(t, want, ev.Type)
			assert.False(t, ev.OccurredAt.IsZero())
		case <-time.After(time.Second):
			t.Fatalf("event %s not delivered", want)
		}
	}
	assert.Zero(t, p.Dropped())
}

func TestRabbitEvents_StuckBrokerDoesNotBlockCallers(t *testing.T) {
	release := make(chan struct{})
	p := (&RabbitEvents{send: func(context.Context, queue.AuthEvent) error {
		<-release
		return errors.New("broker unreachable")
	}}).start(4, nil, quietLog())

	before := runtime.NumGoroutine()
	start := time.Now()
	for i := 0; i < 1000; i++ {
		p.Publish(context.Background(), queue.AuthEvent{Type: queue.EventLoginFailed})
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.LessOrEqual(t, runtime.NumGoroutine(), before+1)
	// four buffered, at most one held by the worker
	assert.GreaterOrEqual(t, p.Dropped(), int64(1000-4-1))

	close(release)
	require.NoError(t, p.Close())
	assert.NotPanics(t, func() {
		p.Publish(context.Background(), queue.AuthEvent{Type: queue.EventLogout})
	})
}

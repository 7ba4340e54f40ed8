package dispatch

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisMirror(t *testing.T) *RedisMirror {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return newRedisMirrorWithClient(client, "acct")
}

func TestRedisMirrorMarkReadyAndGone(t *testing.T) {
	ctx := context.Background()
	m := newTestRedisMirror(t)

	require.NoError(t, m.MarkReady(ctx, "acct-w0"))
	require.NoError(t, m.MarkReady(ctx, "acct-w1"))

	workers, err := m.Workers(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"acct-w0", "acct-w1"}, workers)

	require.NoError(t, m.MarkGone(ctx, "acct-w0"))
	workers, err = m.Workers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"acct-w1"}, workers)
}

func TestBrokerEnableRedisMirrorPublishesRegistrations(t *testing.T) {
	ctx := context.Background()
	mr := newTestRedisMirror(t)

	b := NewBroker(nil, "acct", nil, nil, slog.Default())
	b.EnableRedisMirror(mr)

	b.table.Register("acct-w0")
	b.mirrorReady("acct-w0")

	workers, err := mr.Workers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"acct-w0"}, workers)

	b.mirrorGone("acct-w0")
	workers, err = mr.Workers(ctx)
	require.NoError(t, err)
	require.Empty(t, workers)
}

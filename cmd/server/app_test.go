package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/notevault/internal/config"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load([]string{"--jwt-key", "k", "--dev", "--storage", "memory", "--limiter", "memory"},
		func(string) string { return "" })
	require.NoError(t, err)
	return cfg
}

func TestBuild_MemoryBackends(t *testing.T) {
	t.Parallel()
	a, err := build(memoryConfig(t), nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, a.server)

	tok, _, err := a.tokens.Issue("alice", time.Minute)
	require.NoError(t, err)
	sub, err := a.tokens.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "alice", sub)
}

func TestBuild_PostgresNeedsDB(t *testing.T) {
	t.Parallel()
	cfg := memoryConfig(t)
	cfg.Storage = config.BackendPostgres
	_, err := build(cfg, nil, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestJanitor_StopsWithContext(t *testing.T) {
	t.Parallel()
	a, err := build(memoryConfig(t), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.janitor(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestNewLogger_FallsBackOnBadLevel(t *testing.T) {
	t.Parallel()
	require.NotNil(t, newLogger("loud"))
	require.NotNil(t, newLogger("debug"))
}

package logger

import (
	"context"
	"testing"

	"gitlab.com/timkado/api/message-snapper/pkg/contextkeys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapAdapter_ContextFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewFromZap(zap.New(core))

	ctx := context.WithValue(context.Background(), contextkeys.RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, contextkeys.GroupIDKey, int64(42))
	l.Info(ctx, "hello", "sender_id", int64(7))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, int64(42), fields["group_id"])
	assert.Equal(t, int64(7), fields["sender_id"])
	assert.NotContains(t, fields, "user_id")
}

func TestZapAdapter_MalformedPairs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewFromZap(zap.New(core))

	l.Warn(context.Background(), "odd", 3, "x", "dangling")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "x", fields["invalid_key_0"])
	assert.Equal(t, "dangling", fields["orphan_field_2"])
}

func TestZapAdapter_With(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := NewFromZap(zap.New(core)).With("component", "asset_cache")

	l.Debug(context.Background(), "filtered")
	l.Error(context.Background(), "kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "asset_cache", logs.All()[0].ContextMap()["component"])
}

package notify

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finpulse/finpulse/internal/domain"
	"github.com/finpulse/finpulse/internal/persistence/memory"
)

func TestSend_StampsTTL(t *testing.T) {
	db := memory.NewStore()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	d := NewDispatcher(db, zerolog.Nop()).WithClock(func() time.Time { return now })

	n, err := d.Send(context.Background(), "u1", domain.NotifyNewSuggestion, "New suggestion", "Trim dining out", "sg-1")
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Read)
	assert.Equal(t, now.Add(domain.DefaultNotificationTTL), n.ExpiresAt)

	inbox, err := d.Inbox(context.Background(), "u1", true, 10)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "sg-1", inbox[0].RefID)
}

func TestMarkRead_DropsFromUnreadInbox(t *testing.T) {
	db := memory.NewStore()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	d := NewDispatcher(db, zerolog.Nop()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	n, err := d.Send(ctx, "u1", domain.NotifyWeeklySummary, "Weekly summary", "...", "ws-1")
	require.NoError(t, err)
	require.NoError(t, d.MarkRead(ctx, "u1", n.ID))

	unread, err := d.Inbox(ctx, "u1", true, 10)
	require.NoError(t, err)
	assert.Empty(t, unread)

	all, err := d.Inbox(ctx, "u1", false, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Read)
}

func TestCleanupExpired_RemovesOldNotifications(t *testing.T) {
	db := memory.NewStore()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	d := NewDispatcher(db, zerolog.Nop()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := d.Send(ctx, "u1", domain.NotifyRiskAlert, "Risk alert", "Spending volatility", "sig-1")
	require.NoError(t, err)

	// Advance past the retention window and send a fresh one.
	later := now.Add(domain.DefaultNotificationTTL + time.Hour)
	d.WithClock(func() time.Time { return later })
	_, err = d.Send(ctx, "u1", domain.NotifyNewSuggestion, "New suggestion", "...", "sg-2")
	require.NoError(t, err)

	deleted, err := d.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := d.Inbox(ctx, "u1", false, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "sg-2", remaining[0].RefID)
}

package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zetsu101/PostPal-sub002/internal/domain"
)

func update(userID string, seq int) domain.Update {
	return domain.Update{Topic: domain.TopicTrendUpdate, UserID: userID, Payload: seq}
}

func TestUpdateQueue_PushTakePreservesOrder(t *testing.T) {
	q := newUpdateQueue(10)
	for i := range 3 {
		assert.False(t, q.push(update("alice", i)))
	}
	q.push(update("bob", 9))

	assert.Equal(t, 4, q.total)
	assert.ElementsMatch(t, []string{"alice", "bob"}, q.users())

	batch := q.take("alice")
	require.Len(t, batch, 3)
	for i, u := range batch {
		assert.Equal(t, i, u.Payload)
	}

	assert.Zero(t, q.len("alice"))
	assert.Equal(t, 1, q.total)
	assert.Equal(t, []string{"bob"}, q.users())
	assert.Nil(t, q.take("alice"))
}

func TestUpdateQueue_FullQueueDropsOldest(t *testing.T) {
	q := newUpdateQueue(2)
	q.push(update("alice", 1))
	q.push(update("alice", 2))

	assert.True(t, q.push(update("alice", 3)))
	assert.Equal(t, 2, q.total)

	batch := q.take("alice")
	require.Len(t, batch, 2)
	assert.Equal(t, 2, batch[0].Payload)
	assert.Equal(t, 3, batch[1].Payload)
}

func TestUpdateQueue_ForgetAndClear(t *testing.T) {
	q := newUpdateQueue(10)
	q.push(update("alice", 1))
	q.push(update("bob", 1))

	q.forget("alice")
	assert.Equal(t, 1, q.total)
	assert.NotContains(t, q.pending, "alice")

	q.clear()
	assert.Zero(t, q.total)
	assert.Empty(t, q.users())
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	u := domain.Update{CreatedAt: now.Add(-2 * time.Minute)}

	assert.True(t, expired(u, now, time.Minute))
	assert.False(t, expired(u, now, 5*time.Minute))
	assert.False(t, expired(u, now, -1), "negative TTL disables expiry")
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{SendBuffer: 8, UpdateTTL: -1}.withDefaults()

	d := DefaultConfig()
	assert.Equal(t, 8, cfg.SendBuffer)
	assert.Equal(t, d.DispatchInterval, cfg.DispatchInterval)
	assert.Equal(t, d.HeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, d.MaxQueuePerUser, cfg.MaxQueuePerUser)
	assert.Equal(t, time.Duration(-1), cfg.UpdateTTL)

	assert.Equal(t, d.UpdateTTL, Config{}.withDefaults().UpdateTTL)
}

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zetsu101/PostPal-sub002/internal/adapter/metrics"
	"github.com/zetsu101/PostPal-sub002/internal/domain"
)

func startRelay(t *testing.T, m *metrics.RelayMetrics, local domain.Publisher) {
	t.Helper()
	rdb := setupTestClient(t)
	relay := NewRelay(rdb, local, m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Subscribed) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRelay_DeliversPublishedUpdates(t *testing.T) {
	m := newTestRelayMetrics()
	local := &recordingPublisher{}
	startRelay(t, m, local)

	pub := NewPublisher(setupTestClient(t, NewCircuitBreakerHook(m)), &recordingPublisher{}, m, 0)
	t.Cleanup(pub.Close)
	created := time.UnixMilli(time.Now().UnixMilli())
	pub.Publish(domain.Update{Topic: domain.TopicTrendUpdate, UserID: "u1", Payload: []string{"ai"}, CreatedAt: created, Priority: domain.PriorityHigh})
	pub.Publish(domain.Update{Topic: domain.TopicContentAnalysis, UserID: "u2", Payload: map[string]any{"score": 1}, CreatedAt: created, Priority: domain.PriorityMedium})

	require.Eventually(t, func() bool { return len(local.snapshot()) == 2 }, 5*time.Second, 10*time.Millisecond)

	got := local.snapshot()
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, domain.TopicTrendUpdate, got[0].Topic)
	assert.True(t, created.Equal(got[0].CreatedAt))
	assert.Equal(t, "u2", got[1].UserID)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.MessagesSent.WithLabelValues("ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.MessagesReceived.WithLabelValues("ok")))
}

func TestRelay_DropsInvalidMessages(t *testing.T) {
	m := newTestRelayMetrics()
	local := &recordingPublisher{}
	startRelay(t, m, local)

	rdb := setupTestClient(t)
	ctx := context.Background()
	require.NoError(t, rdb.Publish(ctx, "insights:u1", "garbage").Err())
	require.NoError(t, rdb.Publish(ctx, "insights:u1", `{"type":"trend_update","userId":"u9","data":{},"timestamp":1}`).Err())
	require.NoError(t, rdb.Publish(ctx, "insights:u1", `{"type":"trend_update","userId":"u1","data":{},"timestamp":1}`).Err())

	require.Eventually(t, func() bool { return len(local.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesReceived.WithLabelValues("decode_failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesReceived.WithLabelValues("invalid")))
}

func TestRelay_StopsOnContextCancel(t *testing.T) {
	m := newTestRelayMetrics()
	rdb := setupTestClient(t)
	relay := NewRelay(rdb, &recordingPublisher{}, m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Start(ctx) }()

	require.Eventually(t, func() bool { return testutil.ToFloat64(m.Subscribed) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Subscribed))
}

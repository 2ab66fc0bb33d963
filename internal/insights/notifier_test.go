package insights

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zetsu101/PostPal-sub002/internal/domain"
)

type recordingPublisher struct {
	mu      sync.Mutex
	updates []domain.Update
}

func (r *recordingPublisher) Publish(u domain.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func TestNotifier_Helpers(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	pub := &recordingPublisher{}
	n := NewNotifier(pub, clock)

	n.ContentAnalysis("u1", map[string]any{"score": 0.8}, "")
	n.EngagementPrediction("u1", map[string]any{"likes": 120}, "")
	n.TrendUpdate("u1", []string{"ai"}, "")
	n.AudienceInsight("u1", map[string]any{"segment": "students"}, "")
	n.PerformanceMetric("u1", map[string]any{"ctr": 0.04}, domain.PriorityCritical)

	require.Len(t, pub.updates, 5)

	want := []struct {
		topic    domain.Topic
		priority domain.Priority
	}{
		{domain.TopicContentAnalysis, domain.PriorityMedium},
		{domain.TopicEngagementPrediction, domain.PriorityMedium},
		{domain.TopicTrendUpdate, domain.PriorityHigh},
		{domain.TopicAudienceInsight, domain.PriorityLow},
		{domain.TopicPerformanceMetric, domain.PriorityCritical},
	}
	for i, w := range want {
		got := pub.updates[i]
		assert.Equal(t, w.topic, got.Topic)
		assert.Equal(t, w.priority, got.Priority)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, clock.Now(), got.CreatedAt)
	}
}

func TestDefaultPriority_UnknownTopic(t *testing.T) {
	assert.Equal(t, domain.PriorityMedium, DefaultPriority("weather"))
}

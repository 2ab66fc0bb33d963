package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zetsu101/PostPal-sub002/internal/domain"
)

func newSession(id, userID string) *session {
	return &session{id: id, userID: userID, topics: make(map[domain.Topic]struct{}), alive: true}
}

func TestRegistry_AddAndLookup(t *testing.T) {
	r := newRegistry()

	require.True(t, r.add(newSession("s1", "alice")))
	require.True(t, r.add(newSession("s2", "alice")))
	require.True(t, r.add(newSession("s3", "bob")))

	assert.Equal(t, 3, r.sessionCount())
	assert.Equal(t, 2, r.userCount())
	assert.Equal(t, 2, r.userSessionCount("alice"))
	assert.Len(t, r.sessionsOf("alice"), 2)
	assert.Empty(t, r.sessionsOf("nobody"))
	assert.Equal(t, "bob", r.get("s3").userID)
	assert.Nil(t, r.get("missing"))
}

func TestRegistry_DuplicateAddIgnored(t *testing.T) {
	r := newRegistry()
	first := newSession("s1", "alice")

	require.True(t, r.add(first))
	assert.False(t, r.add(newSession("s1", "mallory")))

	assert.Same(t, first, r.get("s1"))
	assert.Equal(t, 1, r.userCount())
	assert.Zero(t, r.userSessionCount("mallory"))
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := newRegistry()
	r.add(newSession("s1", "alice"))
	r.add(newSession("s2", "alice"))

	require.NotNil(t, r.remove("s1"))
	assert.Nil(t, r.remove("s1"))
	assert.Equal(t, 1, r.userCount())

	require.NotNil(t, r.remove("s2"))
	assert.Zero(t, r.userCount(), "user entry is dropped with its last session")
	assert.Zero(t, r.sessionCount())
}

func TestRegistry_SessionsOfReturnsCopy(t *testing.T) {
	r := newRegistry()
	r.add(newSession("s1", "alice"))
	r.add(newSession("s2", "alice"))

	for _, s := range r.sessionsOf("alice") {
		r.remove(s.id)
	}
	assert.Zero(t, r.sessionCount())
}

func TestSubscriptions_SubscribeUnsubscribe(t *testing.T) {
	r := newRegistry()
	r.add(newSession("s1", "alice"))
	subs := subscriptions{registry: r}

	got := subs.subscribe("s1", []string{"trend_update", "content_analysis", "trend_update"})
	assert.Equal(t, []string{"content_analysis", "trend_update"}, got)

	got = subs.unsubscribe("s1", []string{"trend_update", "audience_insight"})
	assert.Equal(t, []string{"content_analysis"}, got)

	assert.True(t, r.get("s1").subscribed(domain.TopicContentAnalysis))
	assert.False(t, r.get("s1").subscribed(domain.TopicTrendUpdate))
}

func TestSubscriptions_UnknownTopicIgnored(t *testing.T) {
	r := newRegistry()
	r.add(newSession("s1", "alice"))
	subs := subscriptions{registry: r}

	got := subs.subscribe("s1", []string{"weather", "performance_metric"})
	assert.Equal(t, []string{"performance_metric"}, got)
}

func TestSubscriptions_UnknownSessionYieldsEmptySet(t *testing.T) {
	subs := subscriptions{registry: newRegistry()}

	got := subs.subscribe("ghost", []string{"trend_update"})
	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, subs.unsubscribe("ghost", []string{"trend_update"}))
}

func TestSubscriptions_Counts(t *testing.T) {
	r := newRegistry()
	r.add(newSession("s1", "alice"))
	r.add(newSession("s2", "alice"))
	subs := subscriptions{registry: r}

	subs.subscribe("s1", []string{"trend_update", "content_analysis"})
	subs.subscribe("s2", []string{"trend_update"})

	assert.Equal(t, map[domain.Topic]int{
		domain.TopicTrendUpdate:     2,
		domain.TopicContentAnalysis: 1,
	}, subs.counts("alice"))
	assert.Empty(t, subs.counts("bob"))
}

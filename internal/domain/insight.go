package domain

import (
	"fmt"
	"time"
)

// Topic names a category of insight update a session can subscribe to.
type Topic string

const (
	TopicContentAnalysis      Topic = "content_analysis"
	TopicEngagementPrediction Topic = "engagement_prediction"
	TopicTrendUpdate          Topic = "trend_update"
	TopicAudienceInsight      Topic = "audience_insight"
	TopicPerformanceMetric    Topic = "performance_metric"
)

// Topics lists every known topic.
var Topics = []Topic{
	TopicContentAnalysis,
	TopicEngagementPrediction,
	TopicTrendUpdate,
	TopicAudienceInsight,
	TopicPerformanceMetric,
}

func (t Topic) Valid() bool {
	switch t {
	case TopicContentAnalysis, TopicEngagementPrediction, TopicTrendUpdate, TopicAudienceInsight, TopicPerformanceMetric:
		return true
	}
	return false
}

func ParseTopic(s string) (Topic, error) {
	t := Topic(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTopic, s)
	}
	return t, nil
}

// Priority is recorded on every update but does not reorder delivery.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPriority, s)
	}
	return p, nil
}

// Update is one pending insight event for a single user. Payload is opaque to
// the broadcast layer and is serialized as-is.
type Update struct {
	Topic     Topic
	UserID    string
	Payload   any
	CreatedAt time.Time
	Priority  Priority
}

// Stats is a read-only snapshot of the realtime service.
type Stats struct {
	TotalClients  int       `json:"totalClients"`
	TotalUsers    int       `json:"totalUsers"`
	QueuedUpdates int       `json:"queuedUpdates"`
	Timestamp     time.Time `json:"timestamp"`
}

// UserStats describes the live sessions of one user.
type UserStats struct {
	UserID        string        `json:"userId"`
	Sessions      int           `json:"sessions"`
	QueuedUpdates int           `json:"queuedUpdates"`
	Subscriptions map[Topic]int `json:"subscriptions"`
}

// Package insights is the producer-side entry point for insight events. Analysis
// code calls one helper per insight type; the helpers stamp the update and hand
// it to a domain.Publisher.
package insights

import (
	"github.com/jonboulle/clockwork"
	"github.com/zetsu101/PostPal-sub002/internal/domain"
)

var defaultPriority = map[domain.Topic]domain.Priority{
	domain.TopicContentAnalysis:      domain.PriorityMedium,
	domain.TopicEngagementPrediction: domain.PriorityMedium,
	domain.TopicTrendUpdate:          domain.PriorityHigh,
	domain.TopicAudienceInsight:      domain.PriorityLow,
	domain.TopicPerformanceMetric:    domain.PriorityMedium,
}

// DefaultPriority returns the priority used when a producer does not set one.
func DefaultPriority(topic domain.Topic) domain.Priority {
	if p, ok := defaultPriority[topic]; ok {
		return p
	}
	return domain.PriorityMedium
}

type Notifier struct {
	publisher domain.Publisher
	clock     clockwork.Clock
}

func NewNotifier(publisher domain.Publisher, clock clockwork.Clock) *Notifier {
	return &Notifier{publisher: publisher, clock: clock}
}

// Publish emits an update for userID. An empty priority falls back to the
// topic default.
func (n *Notifier) Publish(topic domain.Topic, userID string, payload any, priority domain.Priority) {
	if priority == "" {
		priority = DefaultPriority(topic)
	}
	n.publisher.Publish(domain.Update{
		Topic:     topic,
		UserID:    userID,
		Payload:   payload,
		CreatedAt: n.clock.Now(),
		Priority:  priority,
	})
}

func (n *Notifier) ContentAnalysis(userID string, analysis any, priority domain.Priority) {
	n.Publish(domain.TopicContentAnalysis, userID, analysis, priority)
}

func (n *Notifier) EngagementPrediction(userID string, prediction any, priority domain.Priority) {
	n.Publish(domain.TopicEngagementPrediction, userID, prediction, priority)
}

func (n *Notifier) TrendUpdate(userID string, trends any, priority domain.Priority) {
	n.Publish(domain.TopicTrendUpdate, userID, trends, priority)
}

func (n *Notifier) AudienceInsight(userID string, insight any, priority domain.Priority) {
	n.Publish(domain.TopicAudienceInsight, userID, insight, priority)
}

func (n *Notifier) PerformanceMetric(userID string, metrics any, priority domain.Priority) {
	n.Publish(domain.TopicPerformanceMetric, userID, metrics, priority)
}

package realtime

import (
	"log/slog"
	"slices"

	"github.com/zetsu101/PostPal-sub002/internal/domain"
)

// subscriptions manages the topic set of each registered session.
type subscriptions struct {
	registry *registry
}

// subscribe adds topics to the session and returns its full topic set. An
// unknown session yields an empty set.
func (m subscriptions) subscribe(sessionID string, topics []string) []string {
	s := m.registry.get(sessionID)
	if s == nil {
		return []string{}
	}

	for _, name := range topics {
		topic, err := domain.ParseTopic(name)
		if err != nil {
			slog.Debug("Ignoring subscription to unknown topic", "session_id", sessionID, "topic", name)
			continue
		}
		s.topics[topic] = struct{}{}
	}
	return topicList(s)
}

// unsubscribe removes topics from the session and returns what remains.
func (m subscriptions) unsubscribe(sessionID string, topics []string) []string {
	s := m.registry.get(sessionID)
	if s == nil {
		return []string{}
	}

	for _, name := range topics {
		delete(s.topics, domain.Topic(name))
	}
	return topicList(s)
}

// counts returns how many of the user's sessions subscribe to each topic.
func (m subscriptions) counts(userID string) map[domain.Topic]int {
	out := make(map[domain.Topic]int)
	for _, s := range m.registry.sessionsOf(userID) {
		for topic := range s.topics {
			out[topic]++
		}
	}
	return out
}

func topicList(s *session) []string {
	out := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		out = append(out, string(topic))
	}
	slices.Sort(out)
	return out
}

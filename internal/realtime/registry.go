package realtime

import (
	"log/slog"
	"time"

	"github.com/zetsu101/PostPal-sub002/internal/domain"
)

type session struct {
	id           string
	userID       string
	writer       *sessionWriter
	topics       map[domain.Topic]struct{}
	alive        bool
	connectedAt  time.Time
	lastActivity time.Time
}

func (s *session) subscribed(topic domain.Topic) bool {
	_, ok := s.topics[topic]
	return ok
}

type userSessions map[string]*session

// registry maps session id -> session and user id -> sessions. It is plain
// state owned by the Service goroutine and performs no I/O.
type registry struct {
	sessions map[string]*session
	users    map[string]userSessions
}

func newRegistry() *registry {
	return &registry{
		sessions: make(map[string]*session),
		users:    make(map[string]userSessions),
	}
}

// add registers s. A session id that is already present is logged and ignored.
func (r *registry) add(s *session) bool {
	if _, exists := r.sessions[s.id]; exists {
		slog.Warn("Session already registered", "session_id", s.id, "user_id", s.userID)
		return false
	}

	r.sessions[s.id] = s
	owned, exists := r.users[s.userID]
	if !exists {
		owned = make(userSessions)
		r.users[s.userID] = owned
	}
	owned[s.id] = s
	return true
}

// remove deletes the session and returns it, or nil if it was not registered.
func (r *registry) remove(sessionID string) *session {
	s, exists := r.sessions[sessionID]
	if !exists {
		return nil
	}

	delete(r.sessions, sessionID)
	if owned, ok := r.users[s.userID]; ok {
		delete(owned, sessionID)
		if len(owned) == 0 {
			delete(r.users, s.userID)
		}
	}
	return s
}

func (r *registry) get(sessionID string) *session {
	return r.sessions[sessionID]
}

// sessionsOf returns a copy of the user's sessions, so callers may remove
// sessions while iterating.
func (r *registry) sessionsOf(userID string) []*session {
	owned := r.users[userID]
	out := make([]*session, 0, len(owned))
	for _, s := range owned {
		out = append(out, s)
	}
	return out
}

func (r *registry) all() []*session {
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *registry) sessionCount() int { return len(r.sessions) }

func (r *registry) userCount() int { return len(r.users) }

func (r *registry) userSessionCount(userID string) int { return len(r.users[userID]) }

func (r *registry) clear() {
	r.sessions = make(map[string]*session)
	r.users = make(map[string]userSessions)
}

package realtime

import (
	"time"

	"github.com/zetsu101/PostPal-sub002/internal/domain"
)

// updateQueue holds pending updates per user in publish order.
type updateQueue struct {
	pending    map[string][]domain.Update
	maxPerUser int
	total      int
}

func newUpdateQueue(maxPerUser int) *updateQueue {
	return &updateQueue{
		pending:    make(map[string][]domain.Update),
		maxPerUser: maxPerUser,
	}
}

// push appends u to its user's queue. When the queue is full the oldest
// update is dropped and push reports true.
func (q *updateQueue) push(u domain.Update) (droppedOldest bool) {
	batch := q.pending[u.UserID]
	if q.maxPerUser > 0 && len(batch) >= q.maxPerUser {
		batch = batch[1:]
		q.total--
		droppedOldest = true
	}
	q.pending[u.UserID] = append(batch, u)
	q.total++
	return droppedOldest
}

// users returns the ids of users with at least one pending update.
func (q *updateQueue) users() []string {
	out := make([]string, 0, len(q.pending))
	for userID, batch := range q.pending {
		if len(batch) > 0 {
			out = append(out, userID)
		}
	}
	return out
}

// take pops the full batch for userID, leaving an empty queue behind.
func (q *updateQueue) take(userID string) []domain.Update {
	batch := q.pending[userID]
	if len(batch) == 0 {
		return nil
	}
	q.pending[userID] = nil
	q.total -= len(batch)
	return batch
}

// forget discards the user's queue entirely.
func (q *updateQueue) forget(userID string) {
	q.total -= len(q.pending[userID])
	delete(q.pending, userID)
}

func (q *updateQueue) len(userID string) int { return len(q.pending[userID]) }

func (q *updateQueue) clear() {
	q.pending = make(map[string][]domain.Update)
	q.total = 0
}

func expired(u domain.Update, now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(u.CreatedAt) > ttl
}

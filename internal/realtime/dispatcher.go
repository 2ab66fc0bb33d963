package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/zetsu101/PostPal-sub002/internal/domain"
	"github.com/zetsu101/PostPal-sub002/internal/platform/correlation"
)

const maxTickDuration = 80 * time.Millisecond

func (s *Service) handlePublish(u domain.Update) {
	if s.queue.push(u) {
		s.metrics.UpdatesDropped.WithLabelValues(dropQueueFull).Inc()
		slog.Debug("User queue full, dropped oldest update", "user_id", u.UserID, "max_queue", s.cfg.MaxQueuePerUser)
	}
	s.metrics.UpdatesPublished.WithLabelValues(string(u.Topic)).Inc()
}

// handleDispatchTick drains every non-empty user queue to the user's sessions.
// Runs on the service goroutine, so at most one drain per user is in flight.
func (s *Service) handleDispatchTick() {
	tickStart := s.clock.Now()
	ctx := correlation.WithID(context.Background(), correlation.NewID())

	defer func() {
		tickDuration := s.clock.Since(tickStart)
		s.metrics.DispatchDuration.Observe(tickDuration.Seconds())
		s.metrics.CommandChannelDepth.Set(float64(len(s.cmdCh)))
		s.updateGauges()

		if tickDuration > maxTickDuration {
			slog.WarnContext(ctx, "Dispatch tick exceeded budget", "duration", tickDuration, "budget", maxTickDuration)
		}
	}()

	for _, userID := range s.queue.users() {
		batch := s.queue.take(userID)

		sessions := s.registry.sessionsOf(userID)
		if len(sessions) == 0 {
			s.queue.forget(userID)
			s.metrics.UpdatesDropped.WithLabelValues(dropNoSessions).Add(float64(len(batch)))
			slog.DebugContext(ctx, "Discarding updates for user without sessions", "user_id", userID, "updates", len(batch))
			continue
		}

		delivered := s.deliver(ctx, sessions, batch, tickStart)
		slog.DebugContext(ctx, "Dispatched updates", "user_id", userID, "updates", len(batch), "sessions", len(sessions), "delivered", delivered)
	}
}

// deliver sends each update of batch, in publish order, to every session
// subscribed to its topic. A failed send evicts that session only.
func (s *Service) deliver(ctx context.Context, sessions []*session, batch []domain.Update, now time.Time) int {
	delivered := 0
	for _, u := range batch {
		if expired(u, now, s.cfg.UpdateTTL) {
			s.metrics.UpdatesDropped.WithLabelValues(dropExpired).Inc()
			continue
		}

		var data []byte
		for _, sess := range sessions {
			if s.registry.get(sess.id) != sess || !sess.subscribed(u.Topic) {
				continue
			}

			if data == nil {
				encoded, err := encodeInsight(u, now)
				if err != nil {
					slog.ErrorContext(ctx, "Failed to encode insight update", "user_id", u.UserID, "topic", u.Topic, "error", err)
					s.metrics.UpdatesDropped.WithLabelValues(dropEncodeFailed).Inc()
					break
				}
				data = encoded
			}

			if s.sendFrame(sess, frame{kind: frameText, data: data}) {
				delivered++
			}
		}
	}
	s.metrics.UpdatesDelivered.Add(float64(delivered))
	return delivered
}

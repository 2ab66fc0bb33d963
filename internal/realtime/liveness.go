package realtime

import (
	"log/slog"
)

// handleHeartbeatTick evicts every session that did not answer the previous
// ping and pings the rest. A session therefore survives at most one missed
// ping cycle.
func (s *Service) handleHeartbeatTick() {
	var dead []*session
	for _, sess := range s.registry.all() {
		if !sess.alive {
			dead = append(dead, sess)
			continue
		}

		sess.alive = false
		if !sess.writer.enqueue(frame{kind: framePing}) {
			dead = append(dead, sess)
			continue
		}
		s.metrics.PingsSent.Inc()
	}

	for _, sess := range dead {
		slog.Info("Evicting unresponsive session",
			"session_id", sess.id,
			"user_id", sess.userID,
			"idle", s.clock.Since(sess.lastActivity),
		)
		s.removeSession(sess, reasonLivenessTimeout)
	}
}

// handleAlive marks a session alive after a pong. A client-level ping also
// proves liveness and is answered with a pong envelope.
func (s *Service) handleAlive(c aliveCmd) {
	sess := s.registry.get(c.sessionID)
	if sess == nil {
		return
	}

	now := s.clock.Now()
	sess.alive = true
	sess.lastActivity = now

	if !c.replyPong {
		return
	}

	data, err := encodePong(now)
	if err != nil {
		slog.Error("Failed to encode pong", "session_id", c.sessionID, "error", err)
		return
	}
	s.sendFrame(sess, frame{kind: frameText, data: data})
}

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zetsu101/PostPal-sub002/internal/adapter/metrics"
	"github.com/zetsu101/PostPal-sub002/internal/domain"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	commandBuffer  = 256
)

// Reasons a session leaves the registry. Also used as metric labels.
const (
	reasonClientClosed      = "client_closed"
	reasonSendBufferFull    = "send_buffer_full"
	reasonWriteFailed       = "write_failed"
	reasonLivenessTimeout   = "liveness_timeout"
	reasonShutdown          = "shutdown"
	reasonRegisterAbandoned = "register_abandoned"
)

// Reasons an update is dropped before delivery.
const (
	dropPublishBufferFull = "publish_buffer_full"
	dropQueueFull         = "queue_full"
	dropNoSessions        = "no_sessions"
	dropExpired           = "expired"
	dropStopped           = "stopped"
	dropEncodeFailed      = "encode_failed"
)

type serviceCmd interface{ isServiceCmd() }

type baseServiceCmd struct{}

func (baseServiceCmd) isServiceCmd() {}

type registerCmd struct {
	baseServiceCmd
	sessionID    string
	userID       string
	transport    Transport
	errorChannel chan error
}

type removeCmd struct {
	baseServiceCmd
	sessionID string
	reason    string
	// writer and transport, when set, only remove the session if it still
	// owns them.
	writer    *sessionWriter
	transport Transport
}

type subscribeCmd struct {
	baseServiceCmd
	sessionID    string
	topics       []string
	unsubscribe  bool
	confirm      bool
	replyChannel chan []string
}

type aliveCmd struct {
	baseServiceCmd
	sessionID string
	replyPong bool
}

type sendCmd struct {
	baseServiceCmd
	userID       string
	everyone     bool
	data         []byte
	replyChannel chan int
}

type statsCmd struct {
	baseServiceCmd
	replyChannel chan domain.Stats
}

type userStatsCmd struct {
	baseServiceCmd
	userID       string
	replyChannel chan domain.UserStats
}

type stopCmd struct {
	baseServiceCmd
}

// Service fans insight updates out to live client sessions. All state is
// owned by one goroutine; the exported methods are safe for concurrent use.
type Service struct {
	cfg       Config
	clock     clockwork.Clock
	metrics   *metrics.RealtimeMetrics
	cmdCh     chan serviceCmd
	publishCh chan domain.Update
	done      chan struct{}
	stopOnce  sync.Once
	stopped   atomic.Bool

	registry      *registry
	subscriptions subscriptions
	queue         *updateQueue
}

// New starts a service. A nil metrics value registers on a private registry.
func New(cfg Config, clock clockwork.Clock, m *metrics.RealtimeMetrics) *Service {
	cfg = cfg.withDefaults()
	if m == nil {
		m = metrics.NewRealtimeMetrics(prometheus.NewRegistry())
	}

	reg := newRegistry()
	s := &Service{
		cfg:           cfg,
		clock:         clock,
		metrics:       m,
		cmdCh:         make(chan serviceCmd, commandBuffer),
		publishCh:     make(chan domain.Update, cfg.PublishBuffer),
		done:          make(chan struct{}),
		registry:      reg,
		subscriptions: subscriptions{registry: reg},
		queue:         newUpdateQueue(cfg.MaxQueuePerUser),
	}
	go s.run()
	return s
}

// Register adds a session for userID backed by transport. The transport is
// closed if the registration is rejected.
func (s *Service) Register(ctx context.Context, sessionID, userID string, transport Transport) error {
	err, callErr := roundTrip(ctx, s, func(reply chan error) serviceCmd {
		return registerCmd{sessionID: sessionID, userID: userID, transport: transport, errorChannel: reply}
	})
	if callErr != nil {
		_ = transport.Close("service unavailable")
		// The command may already be queued and still be applied.
		s.post(removeCmd{sessionID: sessionID, reason: reasonRegisterAbandoned, transport: transport})
		return callErr
	}
	return err
}

// Remove unregisters a session and closes its transport. Removing an unknown
// session is a no-op.
func (s *Service) Remove(sessionID string) {
	s.post(removeCmd{sessionID: sessionID, reason: reasonClientClosed})
}

// Subscribe adds topics to a session and returns its full topic set.
func (s *Service) Subscribe(ctx context.Context, sessionID string, topics []string) ([]string, error) {
	return roundTrip(ctx, s, func(reply chan []string) serviceCmd {
		return subscribeCmd{sessionID: sessionID, topics: topics, replyChannel: reply}
	})
}

// Unsubscribe removes topics from a session and returns the remaining set.
func (s *Service) Unsubscribe(ctx context.Context, sessionID string, topics []string) ([]string, error) {
	return roundTrip(ctx, s, func(reply chan []string) serviceCmd {
		return subscribeCmd{sessionID: sessionID, topics: topics, unsubscribe: true, replyChannel: reply}
	})
}

// MarkAlive records a transport-level pong for the session.
func (s *Service) MarkAlive(sessionID string) {
	s.post(aliveCmd{sessionID: sessionID})
}

// HandleMessage routes one inbound client message. Malformed messages and
// unknown types are counted and returned as errors; the session stays open.
func (s *Service) HandleMessage(sessionID string, raw []byte) error {
	msg, err := decodeInbound(raw)
	if err != nil {
		s.metrics.MalformedMessages.Inc()
		return err
	}

	switch msg.Type {
	case msgSubscribe:
		s.post(subscribeCmd{sessionID: sessionID, topics: msg.Topics, confirm: true})
	case msgUnsubscribe:
		s.post(subscribeCmd{sessionID: sessionID, topics: msg.Topics, unsubscribe: true, confirm: true})
	case msgPing:
		s.post(aliveCmd{sessionID: sessionID, replyPong: true})
	}
	return nil
}

// Publish queues an update for its user. It never blocks and never fails;
// the update is dropped if the publish buffer is full or the service stopped.
func (s *Service) Publish(update domain.Update) {
	if s.stopped.Load() {
		s.metrics.UpdatesDropped.WithLabelValues(dropStopped).Inc()
		return
	}
	if update.CreatedAt.IsZero() {
		update.CreatedAt = s.clock.Now()
	}
	if update.Priority == "" {
		update.Priority = domain.PriorityMedium
	}

	select {
	case s.publishCh <- update:
	default:
		s.metrics.UpdatesDropped.WithLabelValues(dropPublishBufferFull).Inc()
		slog.Warn("Publish buffer full, dropping update", "user_id", update.UserID, "topic", update.Topic, "capacity", cap(s.publishCh))
	}
}

// SendToUser sends message to every session of userID, bypassing the queue and
// subscription filters. It returns the number of sessions the message was handed to.
func (s *Service) SendToUser(ctx context.Context, userID string, message any) (int, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return 0, fmt.Errorf("marshal message: %w", err)
	}
	return roundTrip(ctx, s, func(reply chan int) serviceCmd {
		return sendCmd{userID: userID, data: data, replyChannel: reply}
	})
}

// Broadcast sends message to every registered session, bypassing filters.
func (s *Service) Broadcast(ctx context.Context, message any) (int, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return 0, fmt.Errorf("marshal message: %w", err)
	}
	return roundTrip(ctx, s, func(reply chan int) serviceCmd {
		return sendCmd{everyone: true, data: data, replyChannel: reply}
	})
}

// Stats returns a snapshot of session, user and queue counts.
func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	return roundTrip(ctx, s, func(reply chan domain.Stats) serviceCmd {
		return statsCmd{replyChannel: reply}
	})
}

// UserStats returns session and subscription counts for one user.
func (s *Service) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	return roundTrip(ctx, s, func(reply chan domain.UserStats) serviceCmd {
		return userStatsCmd{userID: userID, replyChannel: reply}
	})
}

// Stop stops both tickers, closes every transport and clears all state.
// Blocks until the service goroutine has exited or the stop timeout is reached.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)

		timeout := s.clock.NewTimer(stopTimeout)
		defer timeout.Stop()

		select {
		case s.cmdCh <- stopCmd{}:
		case <-s.done:
			return
		case <-timeout.Chan():
			slog.Warn("Realtime service stop timed out sending stop command", "timeout", stopTimeout)
			return
		}

		select {
		case <-s.done:
			slog.Info("Realtime service stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Realtime service stop timeout exceeded", "timeout", stopTimeout)
		}
	})
}

// post delivers a fire-and-forget command; it is dropped once the service stopped.
func (s *Service) post(cmd serviceCmd) {
	select {
	case s.cmdCh <- cmd:
	case <-s.done:
	}
}

func roundTrip[T any](ctx context.Context, s *Service, build func(chan T) serviceCmd) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	reply := make(chan T, 1)
	select {
	case s.cmdCh <- build(reply):
	case <-s.done:
		return zero, domain.ErrServiceStopped
	case <-ctx.Done():
		return zero, commandError(ctx)
	}

	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		return zero, domain.ErrServiceStopped
	case <-ctx.Done():
		return zero, commandError(ctx)
	}
}

func commandError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrCommandTimeout, ctx.Err())
	}
	return ctx.Err()
}

func (s *Service) run() {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Realtime service panic recovered", "panic", r)
			s.closeAll("internal error")
		}
	}()

	dispatch := s.clock.NewTicker(s.cfg.DispatchInterval)
	defer dispatch.Stop()

	heartbeat := s.clock.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case u := <-s.publishCh:
			s.handlePublish(u)
		case cmd := <-s.cmdCh:
			s.drainPublishes()
			if s.handleCommand(cmd) {
				return
			}
		case <-dispatch.Chan():
			s.drainPublishes()
			s.handleDispatchTick()
		case <-heartbeat.Chan():
			s.handleHeartbeatTick()
		}
	}
}

// drainPublishes moves every buffered publish into the queues, so a command
// sent after a Publish call observes that update.
func (s *Service) drainPublishes() {
	for {
		select {
		case u := <-s.publishCh:
			s.handlePublish(u)
		default:
			return
		}
	}
}

func (s *Service) handleCommand(cmd serviceCmd) (stop bool) {
	switch c := cmd.(type) {
	case registerCmd:
		s.handleRegister(c)
	case removeCmd:
		s.handleRemove(c)
	case subscribeCmd:
		s.handleSubscribe(c)
	case aliveCmd:
		s.handleAlive(c)
	case sendCmd:
		s.handleSend(c)
	case statsCmd:
		c.replyChannel <- s.snapshot()
	case userStatsCmd:
		c.replyChannel <- domain.UserStats{
			UserID:        c.userID,
			Sessions:      s.registry.userSessionCount(c.userID),
			QueuedUpdates: s.queue.len(c.userID),
			Subscriptions: s.subscriptions.counts(c.userID),
		}
	case stopCmd:
		s.handleStop()
		return true
	default:
		slog.Warn("Realtime service received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
	}
	return false
}

func (s *Service) handleRegister(c registerCmd) {
	if s.registry.get(c.sessionID) != nil {
		slog.Warn("Rejecting duplicate session", "session_id", c.sessionID, "user_id", c.userID)
		go closeRejected(c.transport, "duplicate session")
		c.errorChannel <- fmt.Errorf("%w: %s", domain.ErrSessionExists, c.sessionID)
		return
	}
	if s.registry.userSessionCount(c.userID) >= s.cfg.MaxSessionsPerUser {
		slog.Warn("Rejecting session: max sessions reached", "user_id", c.userID, "max_sessions", s.cfg.MaxSessionsPerUser)
		go closeRejected(c.transport, "too many sessions")
		c.errorChannel <- fmt.Errorf("%w (%d)", domain.ErrTooManySessions, s.cfg.MaxSessionsPerUser)
		return
	}

	sessionID := c.sessionID
	onFailure := func(w *sessionWriter, err error) {
		slog.Debug("Session write failed", "session_id", sessionID, "error", err)
		s.post(removeCmd{sessionID: sessionID, reason: reasonWriteFailed, writer: w})
	}

	now := s.clock.Now()
	s.registry.add(&session{
		id:           c.sessionID,
		userID:       c.userID,
		writer:       newSessionWriter(c.transport, s.clock, s.metrics, s.cfg.SendBuffer, s.cfg.WriteTimeout, onFailure),
		topics:       make(map[domain.Topic]struct{}),
		alive:        true,
		connectedAt:  now,
		lastActivity: now,
	})
	s.updateGauges()

	slog.Debug("Session registered", "session_id", c.sessionID, "user_id", c.userID, "user_sessions", s.registry.userSessionCount(c.userID))
	c.errorChannel <- nil
}

// closeRejected runs off the service goroutine; Close may block on the network.
func closeRejected(transport Transport, reason string) {
	_ = transport.Close(reason)
}

func (s *Service) handleRemove(c removeCmd) {
	sess := s.registry.get(c.sessionID)
	if sess == nil {
		return
	}
	if c.writer != nil && sess.writer != c.writer {
		return
	}
	if c.transport != nil && sess.writer.transport != c.transport {
		return
	}
	s.removeSession(sess, c.reason)
}

// removeSession evicts sess from the registry and closes its transport.
func (s *Service) removeSession(sess *session, reason string) {
	if s.registry.remove(sess.id) == nil {
		return
	}
	sess.writer.stopAsync(reason)
	s.metrics.SessionsEvicted.WithLabelValues(reason).Inc()

	if s.registry.userSessionCount(sess.userID) == 0 && s.queue.len(sess.userID) == 0 {
		s.queue.forget(sess.userID)
	}
	s.updateGauges()

	slog.Debug("Session removed",
		"session_id", sess.id,
		"user_id", sess.userID,
		"reason", reason,
		"connected_for", s.clock.Since(sess.connectedAt),
	)
}

func (s *Service) handleSubscribe(c subscribeCmd) {
	var topics []string
	msgType := msgSubscriptionConfirmed
	if c.unsubscribe {
		topics = s.subscriptions.unsubscribe(c.sessionID, c.topics)
		msgType = msgUnsubscriptionConfirmed
	} else {
		topics = s.subscriptions.subscribe(c.sessionID, c.topics)
	}

	if c.replyChannel != nil {
		c.replyChannel <- topics
	}
	if !c.confirm {
		return
	}

	sess := s.registry.get(c.sessionID)
	if sess == nil {
		return
	}
	sess.lastActivity = s.clock.Now()

	data, err := encodeTopics(msgType, topics, s.clock.Now())
	if err != nil {
		slog.Error("Failed to encode subscription confirmation", "session_id", c.sessionID, "error", err)
		return
	}
	s.sendFrame(sess, frame{kind: frameText, data: data})
}

func (s *Service) handleSend(c sendCmd) {
	var targets []*session
	if c.everyone {
		targets = s.registry.all()
	} else {
		targets = s.registry.sessionsOf(c.userID)
	}

	sent := 0
	for _, sess := range targets {
		if s.sendFrame(sess, frame{kind: frameText, data: c.data}) {
			sent++
		}
	}
	c.replyChannel <- sent
}

// sendFrame enqueues f on the session writer. A full buffer counts as a send
// failure and evicts the session immediately.
func (s *Service) sendFrame(sess *session, f frame) bool {
	if sess.writer.enqueue(f) {
		return true
	}
	slog.Warn("Evicting slow session", "session_id", sess.id, "user_id", sess.userID)
	s.removeSession(sess, reasonSendBufferFull)
	return false
}

func (s *Service) snapshot() domain.Stats {
	return domain.Stats{
		TotalClients:  s.registry.sessionCount(),
		TotalUsers:    s.registry.userCount(),
		QueuedUpdates: s.queue.total + len(s.publishCh),
		Timestamp:     s.clock.Now(),
	}
}

func (s *Service) updateGauges() {
	s.metrics.ActiveSessions.Set(float64(s.registry.sessionCount()))
	s.metrics.ActiveUsers.Set(float64(s.registry.userCount()))
	s.metrics.QueuedUpdates.Set(float64(s.queue.total))
}

func (s *Service) handleStop() {
	total := s.registry.sessionCount()
	slog.Info("Realtime service shutting down", "users", s.registry.userCount(), "sessions", total, "queued_updates", s.queue.total)

	s.closeAll("server shutting down")

	slog.Info("Realtime service shutdown complete", "disconnected_sessions", total)
}

// closeAll closes every transport in parallel, waits for all of them and clears
// registry, subscriptions and queues. Used during panic recovery and graceful
// shutdown.
func (s *Service) closeAll(reason string) {
	sessions := s.registry.all()
	closing := make([]<-chan struct{}, 0, len(sessions))
	for _, sess := range sessions {
		closing = append(closing, sess.writer.stopAsync(reason))
		s.metrics.SessionsEvicted.WithLabelValues(reasonShutdown).Inc()
	}
	for _, done := range closing {
		<-done
	}
	s.registry.clear()
	s.queue.clear()
	s.updateGauges()
}

package redis

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/zetsu101/PostPal-sub002/internal/adapter/metrics"
	"github.com/zetsu101/PostPal-sub002/internal/domain"
)

const (
	defaultPublishTimeout = 500 * time.Millisecond
	defaultPublishBuffer  = 1024
)

type queuedUpdate struct {
	update domain.Update
	data   []byte
}

// Publisher implements domain.Publisher by publishing to insights:<userId>.
// Every instance, this one included, receives the update through its Relay.
//
// Publish never waits on Redis. Updates are queued and sent in order by a
// single goroutine; a full queue drops the update. The update is handed to
// fallback only when Redis provably never saw it, so a slow or lost reply
// cannot deliver it twice.
type Publisher struct {
	rdb      *goredis.Client
	fallback domain.Publisher
	metrics  *metrics.RelayMetrics
	timeout  time.Duration

	queue     chan queuedUpdate
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ domain.Publisher = (*Publisher)(nil)

// NewPublisher starts the sending goroutine. buffer <= 0 selects the default
// queue size. Call Close to stop it.
func NewPublisher(rdb *goredis.Client, fallback domain.Publisher, m *metrics.RelayMetrics, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = defaultPublishBuffer
	}
	p := &Publisher{
		rdb:      rdb,
		fallback: fallback,
		metrics:  m,
		timeout:  defaultPublishTimeout,
		queue:    make(chan queuedUpdate, buffer),
		done:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Publisher) Publish(u domain.Update) {
	data, err := encode(u)
	if err != nil {
		p.metrics.MessagesSent.WithLabelValues("failed").Inc()
		slog.Error("Dropping unencodable update", "topic", u.Topic, "user_id", u.UserID, "error", err)
		return
	}

	select {
	case <-p.done:
		p.drop(u, "publisher closed")
		return
	default:
	}

	select {
	case p.queue <- queuedUpdate{update: u, data: data}:
	default:
		p.drop(u, "publish queue full")
	}
}

func (p *Publisher) drop(u domain.Update, why string) {
	p.metrics.MessagesSent.WithLabelValues("dropped").Inc()
	slog.Warn("Dropping update", "reason", why, "topic", u.Topic, "user_id", u.UserID)
}

// Close stops the sending goroutine once the queued updates are sent. Updates
// published afterwards are dropped.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case q := <-p.queue:
			p.send(q)
		case <-p.done:
			for {
				select {
				case q := <-p.queue:
					p.send(q)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) send(q queuedUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := p.rdb.Publish(ctx, channel(q.update.UserID), q.data).Err()
	switch {
	case err == nil:
		p.metrics.MessagesSent.WithLabelValues("ok").Inc()
	case notDelivered(err):
		p.metrics.MessagesSent.WithLabelValues("fallback").Inc()
		slog.Warn("Redis unavailable, delivering locally", "topic", q.update.Topic, "user_id", q.update.UserID, "error", err)
		p.fallback.Publish(q.update)
	default:
		// Redis may have fanned the update out already.
		p.metrics.MessagesSent.WithLabelValues("failed").Inc()
		slog.Error("Redis publish outcome unknown, dropping update", "topic", q.update.Topic, "user_id", q.update.UserID, "error", err)
	}
}

// notDelivered reports whether err proves the command never left this process:
// the breaker rejected it, the client is closed or no connection could be
// dialed.
func notDelivered(err error) bool {
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, goredis.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

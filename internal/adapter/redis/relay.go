package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/zetsu101/PostPal-sub002/internal/adapter/metrics"
	"github.com/zetsu101/PostPal-sub002/internal/domain"
	"github.com/zetsu101/PostPal-sub002/internal/platform/correlation"
)

const (
	channelPrefix  = "insights:"
	channelPattern = channelPrefix + "*"
)

var (
	errMalformed = errors.New("malformed relay message")
	errInvalid   = errors.New("invalid relay message")
)

// relayMessage is the JSON payload carried on insights:<userId>.
type relayMessage struct {
	Type      domain.Topic    `json:"type"`
	UserID    string          `json:"userId"`
	Data      json.RawMessage `json:"data"`
	Priority  domain.Priority `json:"priority,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func channel(userID string) string {
	return channelPrefix + userID
}

func encode(u domain.Update) ([]byte, error) {
	data, err := json.Marshal(u.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(relayMessage{
		Type:      u.Topic,
		UserID:    u.UserID,
		Data:      data,
		Priority:  u.Priority,
		Timestamp: u.CreatedAt.UnixMilli(),
	})
}

func decode(msg *goredis.Message) (domain.Update, error) {
	var m relayMessage
	if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
		return domain.Update{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if !m.Type.Valid() {
		return domain.Update{}, fmt.Errorf("%w: unknown type %q", errInvalid, m.Type)
	}
	if m.UserID == "" {
		return domain.Update{}, fmt.Errorf("%w: missing userId", errInvalid)
	}
	if msg.Channel != channel(m.UserID) {
		return domain.Update{}, fmt.Errorf("%w: userId %q does not match channel %q", errInvalid, m.UserID, msg.Channel)
	}
	if len(m.Data) == 0 {
		return domain.Update{}, fmt.Errorf("%w: missing data", errInvalid)
	}
	if m.Priority == "" {
		m.Priority = domain.PriorityMedium
	} else if !m.Priority.Valid() {
		return domain.Update{}, fmt.Errorf("%w: unknown priority %q", errInvalid, m.Priority)
	}
	if m.Timestamp <= 0 {
		return domain.Update{}, fmt.Errorf("%w: missing timestamp", errInvalid)
	}

	return domain.Update{
		Topic:     m.Type,
		UserID:    m.UserID,
		Payload:   m.Data,
		CreatedAt: time.UnixMilli(m.Timestamp),
		Priority:  m.Priority,
	}, nil
}

// Relay feeds updates published on Redis into the local dispatcher.
type Relay struct {
	rdb     *goredis.Client
	local   domain.Publisher
	metrics *metrics.RelayMetrics
}

func NewRelay(rdb *goredis.Client, local domain.Publisher, m *metrics.RelayMetrics) *Relay {
	return &Relay{rdb: rdb, local: local, metrics: m}
}

// Start subscribes to every insight channel and relays messages until ctx is
// cancelled or the subscription closes. It returns once the loop exits; a nil
// error means ctx was cancelled.
func (r *Relay) Start(ctx context.Context) error {
	sub := r.rdb.PSubscribe(ctx, channelPattern)
	defer func() { _ = sub.Close() }()

	// Wait for the subscription confirmation so messages published after Start
	// reports ready are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", channelPattern, err)
	}

	r.metrics.Subscribed.Set(1)
	defer r.metrics.Subscribed.Set(0)
	slog.Info("Insight relay subscribed", "pattern", channelPattern)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok || msg == nil {
				return errors.New("relay subscription closed")
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *Relay) handle(ctx context.Context, msg *goredis.Message) {
	update, err := decode(msg)
	if err != nil {
		result := "invalid"
		if errors.Is(err, errMalformed) {
			result = "decode_failed"
		}
		r.metrics.MessagesReceived.WithLabelValues(result).Inc()
		slog.WarnContext(correlation.WithID(ctx, correlation.NewID()), "Dropping relay message",
			"channel", msg.Channel,
			"user_id", strings.TrimPrefix(msg.Channel, channelPrefix),
			"error", err,
		)
		return
	}

	r.metrics.MessagesReceived.WithLabelValues("ok").Inc()
	r.local.Publish(update)
}

package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zetsu101/PostPal-sub002/internal/domain"
)

// Inbound message types (client -> service).
const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgPing        = "ping"
)

// Outbound message types (service -> client).
const (
	msgSubscriptionConfirmed   = "subscription_confirmed"
	msgUnsubscriptionConfirmed = "unsubscription_confirmed"
	msgPong                    = "pong"
	msgInsightUpdate           = "insight_update"
)

type inboundMessage struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

type topicsEnvelope struct {
	Type      string   `json:"type"`
	Topics    []string `json:"topics"`
	Timestamp int64    `json:"timestamp"`
}

type pongEnvelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type insightData struct {
	Type      domain.Topic    `json:"type"`
	UserID    string          `json:"userId"`
	Data      any             `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Priority  domain.Priority `json:"priority"`
}

type insightEnvelope struct {
	Type      string      `json:"type"`
	Data      insightData `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

func encodeInsight(u domain.Update, now time.Time) ([]byte, error) {
	data, err := json.Marshal(insightEnvelope{
		Type: msgInsightUpdate,
		Data: insightData{
			Type:      u.Topic,
			UserID:    u.UserID,
			Data:      u.Payload,
			Timestamp: u.CreatedAt.UnixMilli(),
			Priority:  u.Priority,
		},
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal insight update: %w", err)
	}
	return data, nil
}

func encodeTopics(msgType string, topics []string, now time.Time) ([]byte, error) {
	data, err := json.Marshal(topicsEnvelope{Type: msgType, Topics: topics, Timestamp: now.UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msgType, err)
	}
	return data, nil
}

func encodePong(now time.Time) ([]byte, error) {
	data, err := json.Marshal(pongEnvelope{Type: msgPong, Timestamp: now.UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("marshal pong: %w", err)
	}
	return data, nil
}

func decodeInbound(raw []byte) (inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return inboundMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	switch msg.Type {
	case msgSubscribe, msgUnsubscribe, msgPing:
		return msg, nil
	default:
		return inboundMessage{}, fmt.Errorf("%w: %q", domain.ErrUnknownMessageType, msg.Type)
	}
}

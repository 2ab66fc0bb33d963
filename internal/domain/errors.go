package domain

import "errors"

var (
	ErrSessionExists      = errors.New("session already registered")
	ErrSessionNotFound    = errors.New("session not found")
	ErrTooManySessions    = errors.New("max sessions per user reached")
	ErrServiceStopped     = errors.New("realtime service stopped")
	ErrCommandTimeout     = errors.New("realtime command timed out")
	ErrUnknownTopic       = errors.New("unknown topic")
	ErrUnknownPriority    = errors.New("unknown priority")
	ErrUnknownMessageType = errors.New("unknown message type")
)

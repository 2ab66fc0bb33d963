package realtime

import "time"

// Config tunes the service. Zero fields fall back to DefaultConfig values;
// a negative UpdateTTL disables expiry of queued updates.
type Config struct {
	DispatchInterval   time.Duration
	HeartbeatInterval  time.Duration
	WriteTimeout       time.Duration
	SendBuffer         int
	PublishBuffer      int
	MaxQueuePerUser    int
	UpdateTTL          time.Duration
	MaxSessionsPerUser int
}

func DefaultConfig() Config {
	return Config{
		DispatchInterval:   100 * time.Millisecond,
		HeartbeatInterval:  30 * time.Second,
		WriteTimeout:       5 * time.Second,
		SendBuffer:         64,
		PublishBuffer:      4096,
		MaxQueuePerUser:    1000,
		UpdateTTL:          time.Minute,
		MaxSessionsPerUser: 50,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = d.DispatchInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.PublishBuffer <= 0 {
		c.PublishBuffer = d.PublishBuffer
	}
	if c.MaxQueuePerUser <= 0 {
		c.MaxQueuePerUser = d.MaxQueuePerUser
	}
	if c.UpdateTTL == 0 {
		c.UpdateTTL = d.UpdateTTL
	}
	if c.MaxSessionsPerUser <= 0 {
		c.MaxSessionsPerUser = d.MaxSessionsPerUser
	}
	return c
}

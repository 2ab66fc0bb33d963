// Package realtime implements the insight fan-out service using the actor pattern.
//
// A single goroutine owns the connection registry, per-session subscriptions and per-user
// update queues. Producers hand updates over a buffered channel; a 100ms dispatch tick drains
// each user's queue to every matching session and a slower heartbeat tick pings sessions and
// evicts the ones that never answered. Per-session writer goroutines keep slow transports from
// stalling the loop.
package realtime

package realtime

import "context"

// Transport is the send/close capability of one client connection. A session
// exclusively owns its transport; removing the session always closes it.
//
// WriteText and WritePing are only ever called from the session's writer
// goroutine. Close may be called concurrently with either.
type Transport interface {
	WriteText(ctx context.Context, data []byte) error
	WritePing(ctx context.Context) error
	Close(reason string) error
}

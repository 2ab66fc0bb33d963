package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var errTransportClosed = errors.New("transport closed")

// fakeTransport records frames written by a session writer.
type fakeTransport struct {
	texts     chan []byte
	pings     atomic.Int32
	closed    chan struct{}
	closeOnce sync.Once
	reason    atomic.Value
	writeErr  error
	// block, when set, holds every text write until it is closed.
	block chan struct{}
	// blocked counts writes currently held by block.
	blocked atomic.Int32
	// closeGate, when set, holds Close until it is closed, like a close
	// frame waiting behind a stuck write. closeDelay slows Close down.
	closeGate  chan struct{}
	closeDelay time.Duration
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		texts:  make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) WriteText(ctx context.Context, data []byte) error {
	if f.block != nil {
		f.blocked.Add(1)
		defer f.blocked.Add(-1)
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		case <-f.closed:
			return errTransportClosed
		}
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	select {
	case f.texts <- data:
		return nil
	case <-f.closed:
		return errTransportClosed
	}
}

func (f *fakeTransport) WritePing(context.Context) error {
	f.pings.Add(1)
	return nil
}

func (f *fakeTransport) Close(reason string) error {
	if f.closeGate != nil {
		<-f.closeGate
	}
	time.Sleep(f.closeDelay)
	f.closeOnce.Do(func() {
		f.reason.Store(reason)
		close(f.closed)
	})
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) closeReason() string {
	r, _ := f.reason.Load().(string)
	return r
}

// next waits for the next text frame and decodes it.
func (f *fakeTransport) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-f.texts:
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// assertQuiet fails if a text frame arrives within a short window.
func (f *fakeTransport) assertQuiet(t *testing.T) {
	t.Helper()
	select {
	case data := <-f.texts:
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

// newTestService starts a service on a fake clock and waits until both tickers exist.
func newTestService(t *testing.T, cfg Config) (*Service, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	svc := New(cfg, clock, nil)
	t.Cleanup(svc.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 2))

	return svc, clock
}

// register adds a session subscribed to topics.
func register(t *testing.T, svc *Service, sessionID, userID string, topics ...string) *fakeTransport {
	t.Helper()

	tr := newFakeTransport()
	require.NoError(t, svc.Register(context.Background(), sessionID, userID, tr))
	if len(topics) > 0 {
		_, err := svc.Subscribe(context.Background(), sessionID, topics)
		require.NoError(t, err)
	}
	return tr
}

func stats(t *testing.T, svc *Service) (clients, users, queued int) {
	t.Helper()
	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	return st.TotalClients, st.TotalUsers, st.QueuedUpdates
}

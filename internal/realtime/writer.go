package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/zetsu101/PostPal-sub002/internal/adapter/metrics"
)

type frameKind int

const (
	frameText frameKind = iota
	framePing
)

type frame struct {
	kind frameKind
	data []byte
}

// sessionWriter serializes all writes to one transport on its own goroutine.
type sessionWriter struct {
	transport    Transport
	clock        clockwork.Clock
	metrics      *metrics.RealtimeMetrics
	sendChannel  chan frame
	doneChannel  chan struct{}
	stopped      chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	writeTimeout time.Duration
	onFailure    func(w *sessionWriter, err error)
}

func newSessionWriter(transport Transport, clock clockwork.Clock, m *metrics.RealtimeMetrics, bufferSize int, writeTimeout time.Duration, onFailure func(*sessionWriter, error)) *sessionWriter {
	w := &sessionWriter{
		transport:    transport,
		clock:        clock,
		metrics:      m,
		sendChannel:  make(chan frame, bufferSize),
		doneChannel:  make(chan struct{}),
		stopped:      make(chan struct{}),
		writeTimeout: writeTimeout,
		onFailure:    onFailure,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// enqueue hands f to the writer without blocking. It returns false if the
// buffer is full or the writer has stopped.
func (w *sessionWriter) enqueue(f frame) bool {
	select {
	case <-w.doneChannel:
		return false
	default:
	}

	select {
	case w.sendChannel <- f:
		return true
	default:
		return false
	}
}

func (w *sessionWriter) run() {
	defer w.wg.Done()

	for {
		select {
		case f := <-w.sendChannel:
			if err := w.write(f); err != nil {
				w.fail(err)
				return
			}
		case <-w.doneChannel:
			return
		}
	}
}

func (w *sessionWriter) write(f frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()

	if f.kind == framePing {
		return w.transport.WritePing(ctx)
	}

	start := w.clock.Now()
	if err := w.transport.WriteText(ctx, f.data); err != nil {
		return err
	}
	w.metrics.SendDuration.Observe(w.clock.Since(start).Seconds())
	return nil
}

// fail reports a write error unless the writer is already being stopped.
// The callback runs on its own goroutine so it may block on the service.
func (w *sessionWriter) fail(err error) {
	select {
	case <-w.doneChannel:
		return
	default:
	}
	if w.onFailure != nil {
		go w.onFailure(w, err)
	}
}

// stop closes the transport with the given reason and waits for the writer
// goroutine to exit. Safe to call more than once.
func (w *sessionWriter) stop(reason string) {
	<-w.stopAsync(reason)
}

// stopAsync rejects further frames immediately and closes the transport on
// another goroutine. Transport.Close may wait behind a write in progress, so
// the service loop never calls it directly. The returned channel is closed
// once the transport is closed and the writer goroutine has exited.
func (w *sessionWriter) stopAsync(reason string) <-chan struct{} {
	w.stopOnce.Do(func() {
		close(w.doneChannel)
		go func() {
			_ = w.transport.Close(reason)
			w.wg.Wait()
			close(w.stopped)
		}()
	})
	return w.stopped
}

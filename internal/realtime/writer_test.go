package realtime

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zetsu101/PostPal-sub002/internal/adapter/metrics"
)

func newTestWriter(t *testing.T, tr *fakeTransport, buffer int, onFailure func(*sessionWriter, error)) *sessionWriter {
	t.Helper()
	m := metrics.NewRealtimeMetrics(prometheus.NewRegistry())
	w := newSessionWriter(tr, clockwork.NewFakeClock(), m, buffer, 50*time.Millisecond, onFailure)
	t.Cleanup(func() { w.stop("test done") })
	return w
}

func TestSessionWriter_WritesInOrder(t *testing.T) {
	tr := newFakeTransport()
	w := newTestWriter(t, tr, 8, nil)

	require.True(t, w.enqueue(frame{kind: frameText, data: []byte(`{"n":1}`)}))
	require.True(t, w.enqueue(frame{kind: framePing}))
	require.True(t, w.enqueue(frame{kind: frameText, data: []byte(`{"n":2}`)}))

	assert.EqualValues(t, 1, tr.next(t)["n"])
	assert.EqualValues(t, 2, tr.next(t)["n"])
	assert.EqualValues(t, 1, tr.pings.Load())
}

func TestSessionWriter_EnqueueFailsWhenFull(t *testing.T) {
	tr := newFakeTransport()
	tr.block = make(chan struct{})
	w := newTestWriter(t, tr, 1, nil)

	accepted := 0
	for range 3 {
		if w.enqueue(frame{kind: frameText, data: []byte(`{}`)}) {
			accepted++
		}
	}
	assert.Less(t, accepted, 3)
}

func TestSessionWriter_ReportsWriteFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.writeErr = errors.New("connection reset")

	failures := make(chan error, 1)
	w := newTestWriter(t, tr, 4, func(_ *sessionWriter, err error) { failures <- err })

	require.True(t, w.enqueue(frame{kind: frameText, data: []byte(`{}`)}))

	select {
	case err := <-failures:
		assert.ErrorIs(t, err, tr.writeErr)
	case <-time.After(time.Second):
		t.Fatal("write failure not reported")
	}
}

func TestSessionWriter_WriteTimeout(t *testing.T) {
	tr := newFakeTransport()
	tr.block = make(chan struct{})

	failures := make(chan error, 1)
	w := newTestWriter(t, tr, 4, func(_ *sessionWriter, err error) { failures <- err })
	require.True(t, w.enqueue(frame{kind: frameText, data: []byte(`{}`)}))

	select {
	case err := <-failures:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("write timeout not reported")
	}
}

func TestSessionWriter_StopIsIdempotentAndSilencesFailures(t *testing.T) {
	tr := newFakeTransport()
	tr.block = make(chan struct{})

	failures := make(chan error, 1)
	w := newTestWriter(t, tr, 4, func(_ *sessionWriter, err error) { failures <- err })
	require.True(t, w.enqueue(frame{kind: frameText, data: []byte(`{}`)}))

	w.stop("bye")
	w.stop("again")

	assert.Equal(t, "bye", tr.closeReason())
	assert.False(t, w.enqueue(frame{kind: framePing}))

	select {
	case err := <-failures:
		t.Fatalf("unexpected failure after stop: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

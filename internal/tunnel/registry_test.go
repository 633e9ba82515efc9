package tunnel

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel is an in-memory Channel for exercising the registry without
// a real WebSocket connection.
type fakeChannel struct {
	mu       sync.Mutex
	sent     []*Message
	closed   bool
	closeErr error
	onSend   func(msg *Message) error
}

func (f *fakeChannel) Send(msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSend != nil {
		if err := f.onSend(msg); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) Close(statusCode int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

func (f *fakeChannel) lastSent() *Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.Nop(), nil)
}

func TestRegisterAndGet(t *testing.T) {
	r := newTestRegistry()
	ch := &fakeChannel{}

	tun := r.Register("a", 3000, ch)
	require.NotNil(t, tun)
	assert.Equal(t, "a", tun.Subdomain)
	assert.Same(t, tun, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
}

func TestRegisterEvictsPriorHolder(t *testing.T) {
	r := newTestRegistry()
	oldCh := &fakeChannel{}
	first := r.Register("a", 3000, oldCh)

	w := newWaiter(time.Minute, func() {})
	first.addWaiter("req-1", w)

	newCh := &fakeChannel{}
	second := r.Register("a", 4000, newCh)

	assert.True(t, oldCh.closed)
	assert.Same(t, second, r.Get("a"))

	select {
	case <-w.done:
		assert.ErrorIs(t, w.err, ErrTunnelDisconnected)
	case <-time.After(time.Second):
		t.Fatal("expected prior waiter to be completed on eviction")
	}
}

func TestForwardSuccess(t *testing.T) {
	r := newTestRegistry()
	ch := &fakeChannel{}
	r.Register("a", 3000, ch)

	ch.onSend = func(msg *Message) error {
		req, err := msg.DecodeRequest()
		require.NoError(t, err)
		go func() {
			r.HandleResponse(ch, Response{ID: req.ID, StatusCode: 200, Headers: map[string]string{"content-type": "text/plain"}, Body: "T0s="})
		}()
		return nil
	}

	resp, err := r.Forward("a", Request{ID: "req-1", Method: "GET", Path: "/health", Headers: map[string]string{}}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, int64(1), r.Get("a").RequestCount())
}

func TestForwardTunnelNotFound(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Forward("missing", Request{ID: "req-1"}, time.Second)
	assert.ErrorIs(t, err, ErrTunnelNotFound)
}

func TestForwardTimeout(t *testing.T) {
	r := newTestRegistry()
	ch := &fakeChannel{}
	r.Register("a", 3000, ch)

	_, err := r.Forward("a", Request{ID: "req-1"}, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Equal(t, 0, r.Get("a").pendingCount())
}

func TestForwardTunnelNotOpen(t *testing.T) {
	r := newTestRegistry()
	ch := &fakeChannel{onSend: func(msg *Message) error { return assert.AnError }}
	r.Register("a", 3000, ch)

	_, err := r.Forward("a", Request{ID: "req-1"}, time.Second)
	assert.ErrorIs(t, err, ErrTunnelNotOpen)
	assert.Nil(t, r.Get("a"))
}

// TestForwardSendFailureDoesNotEvictReplacement pins invariant 4: a
// send failure on a stale tunnel handle must never evict whatever
// tunnel a concurrent re-registration has since installed under the
// same subdomain.
func TestForwardSendFailureDoesNotEvictReplacement(t *testing.T) {
	r := newTestRegistry()
	staleCh := &fakeChannel{onSend: func(msg *Message) error { return assert.AnError }}
	stale := r.Register("a", 3000, staleCh)

	// Simulate a concurrent re-registration landing between Forward's
	// Get("a") and its t.send(msg): by the time send fails, "a" already
	// names a different, healthy tunnel.
	freshCh := &fakeChannel{}
	fresh := r.Register("a", 4000, freshCh)

	err := stale.send(&Message{Type: FrameRequest})
	assert.Error(t, err)
	r.removeTunnel(stale)

	assert.Same(t, fresh, r.Get("a"))
	assert.False(t, freshCh.closed)
}

func TestHandleResponseUnknownIDDropped(t *testing.T) {
	r := newTestRegistry()
	ch := &fakeChannel{}
	r.Register("a", 3000, ch)

	assert.NotPanics(t, func() {
		r.HandleResponse(ch, Response{ID: "nonexistent"})
	})
}

func TestHandleResponseScopedToOwningChannel(t *testing.T) {
	r := newTestRegistry()
	chA := &fakeChannel{}
	chB := &fakeChannel{}
	r.Register("a", 3000, chA)
	r.Register("b", 3000, chB)

	tunA := r.Get("a")
	w := newWaiter(time.Minute, func() {})
	tunA.addWaiter("req-1", w)

	// A response for req-1 arriving on B's channel must not satisfy A's waiter.
	r.HandleResponse(chB, Response{ID: "req-1"})

	select {
	case <-w.done:
		t.Fatal("waiter should not be completed by a response on a different channel")
	default:
	}
}

func TestRemoveCompletesAllWaiters(t *testing.T) {
	r := newTestRegistry()
	ch := &fakeChannel{}
	tun := r.Register("a", 3000, ch)

	w1 := newWaiter(time.Minute, func() {})
	w2 := newWaiter(time.Minute, func() {})
	tun.addWaiter("req-1", w1)
	tun.addWaiter("req-2", w2)

	r.Remove("a")

	assert.Nil(t, r.Get("a"))
	assert.True(t, ch.closed)
	for _, w := range []*waiter{w1, w2} {
		select {
		case <-w.done:
			assert.ErrorIs(t, w.err, ErrTunnelDisconnected)
		case <-time.After(time.Second):
			t.Fatal("expected waiter to be completed by Remove")
		}
	}
}

func TestRemoveByChannel(t *testing.T) {
	r := newTestRegistry()
	ch := &fakeChannel{}
	r.Register("a", 3000, ch)

	r.RemoveByChannel(ch)
	assert.Nil(t, r.Get("a"))

	// Idempotent.
	assert.NotPanics(t, func() { r.RemoveByChannel(ch) })
}

func TestStats(t *testing.T) {
	r := newTestRegistry()
	r.Register("a", 3000, &fakeChannel{})
	r.Register("b", 4000, &fakeChannel{})

	stats := r.Stats()
	assert.Equal(t, 2, stats.ActiveTunnels)
	assert.Len(t, stats.Tunnels, 2)
}

func TestConcurrentForward(t *testing.T) {
	r := newTestRegistry()
	ch := &fakeChannel{}
	ch.onSend = func(msg *Message) error {
		req, _ := msg.DecodeRequest()
		go r.HandleResponse(ch, Response{ID: req.ID, StatusCode: 200})
		return nil
	}
	r.Register("a", 3000, ch)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Forward("a", Request{ID: fakeID(i), Method: "GET", Path: "/"}, 2*time.Second)
		}(i)
	}
	wg.Wait()

	// at most one entry per subdomain holds throughout; registry still
	// consistent after concurrent traffic.
	assert.Equal(t, 1, r.Stats().ActiveTunnels)
}

func fakeID(i int) string {
	return "req-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

package tunnel

import (
	"sync"
	"sync/atomic"
	"time"
)

// Channel is the abstract duplex handle a Tunnel writes frames to and is
// closed through. wsgateway is its only implementation; the registry and
// correlator never see a concrete transport.
type Channel interface {
	Send(msg *Message) error
	Close(statusCode int, reason string) error
}

// waiter is a one-shot completion sink paired with a deadline timer,
// parked in a Tunnel's pending table while Forward awaits a response.
type waiter struct {
	done  chan struct{}
	once  sync.Once
	resp  Response
	err   error
	timer *time.Timer
}

func newWaiter(deadline time.Duration, onExpire func()) *waiter {
	w := &waiter{done: make(chan struct{})}
	w.timer = time.AfterFunc(deadline, onExpire)
	return w
}

// complete satisfies the waiter exactly once; later calls are no-ops.
func (w *waiter) complete(resp Response, err error) {
	w.once.Do(func() {
		w.resp = resp
		w.err = err
		close(w.done)
	})
}

// Tunnel is one registered developer session: identity, control channel,
// and the pending-request table the correlator drives.
type Tunnel struct {
	ID          string
	Subdomain   string
	LocalPort   int
	Channel     Channel
	ConnectedAt time.Time

	requestCount int64

	mu      sync.Mutex
	pending map[string]*waiter
	writeMu sync.Mutex
}

func newTunnel(id, subdomain string, localPort int, ch Channel) *Tunnel {
	return &Tunnel{
		ID:          id,
		Subdomain:   subdomain,
		LocalPort:   localPort,
		Channel:     ch,
		ConnectedAt: time.Now(),
		pending:     make(map[string]*waiter),
	}
}

// send serializes writes to the tunnel's channel.
func (t *Tunnel) send(msg *Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.Channel.Send(msg)
}

func (t *Tunnel) addWaiter(id string, w *waiter) {
	t.mu.Lock()
	t.pending[id] = w
	t.mu.Unlock()
}

func (t *Tunnel) popWaiter(id string) (*waiter, bool) {
	t.mu.Lock()
	w, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	return w, ok
}

// drainWaiters removes and returns every pending waiter, for Remove's
// "complete all with tunnel-disconnected" step.
func (t *Tunnel) drainWaiters() []*waiter {
	t.mu.Lock()
	waiters := make([]*waiter, 0, len(t.pending))
	for id, w := range t.pending {
		waiters = append(waiters, w)
		delete(t.pending, id)
	}
	t.mu.Unlock()
	return waiters
}

func (t *Tunnel) pendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Tunnel) incrementRequestCount() {
	atomic.AddInt64(&t.requestCount, 1)
}

func (t *Tunnel) RequestCount() int64 {
	return atomic.LoadInt64(&t.requestCount)
}

func (t *Tunnel) stat() TunnelStat {
	return TunnelStat{
		Subdomain:    t.Subdomain,
		LocalPort:    t.LocalPort,
		ConnectedAt:  t.ConnectedAt.Format(time.RFC3339),
		RequestCount: t.RequestCount(),
		Pending:      t.pendingCount(),
	}
}

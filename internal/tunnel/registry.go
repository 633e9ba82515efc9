package tunnel

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultRequestTimeout is the per-request correlator deadline used when
// the caller does not override it.
const DefaultRequestTimeout = 30 * time.Second

// Metrics receives registry lifecycle and forwarding events. Implemented
// by internal/monitoring; nil is a valid Registry field (no-op).
type Metrics interface {
	TunnelRegistered()
	TunnelEvicted()
	RequestOutcome(outcome string)
	RequestDuration(seconds float64)
}

// Registry is the concurrent subdomain→Tunnel map plus the correlator
// that rides each tunnel's channel.
type Registry struct {
	mu      sync.Mutex
	tunnels map[string]*Tunnel

	log     zerolog.Logger
	metrics Metrics
}

// NewRegistry builds an empty registry. metrics may be nil.
func NewRegistry(log zerolog.Logger, metrics Metrics) *Registry {
	return &Registry{
		tunnels: make(map[string]*Tunnel),
		log:     log,
		metrics: metrics,
	}
}

// Register inserts a new Tunnel under subdomain, evicting any prior
// occupant first (invariant 4). Returns the new Tunnel.
func (r *Registry) Register(subdomain string, localPort int, ch Channel) *Tunnel {
	r.Remove(subdomain)

	t := newTunnel(uuid.NewString(), subdomain, localPort, ch)

	r.mu.Lock()
	r.tunnels[subdomain] = t
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.TunnelRegistered()
	}
	r.log.Info().Str("subdomain", subdomain).Str("tunnel_id", t.ID).Int("local_port", localPort).Msg("tunnel registered")
	return t
}

// Get returns the Tunnel for subdomain, or nil.
func (r *Registry) Get(subdomain string) *Tunnel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tunnels[subdomain]
}

// Remove deletes the tunnel at subdomain from the map, then completes
// every pending waiter with tunnel-disconnected and closes its channel
// with a normal-closure status (invariant 3). A no-op if subdomain is
// unoccupied.
func (r *Registry) Remove(subdomain string) {
	r.mu.Lock()
	t, ok := r.tunnels[subdomain]
	if ok {
		delete(r.tunnels, subdomain)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.evict(t, 1000, "tunnel replaced or removed")
}

// removeTunnel evicts t only if it is still the occupant of its own
// subdomain slot — unlike Remove, it never acts on whatever tunnel a
// concurrent re-registration may since have installed there. A no-op if
// t has already been replaced or removed.
func (r *Registry) removeTunnel(t *Tunnel) {
	r.mu.Lock()
	current, ok := r.tunnels[t.Subdomain]
	if !ok || current != t {
		r.mu.Unlock()
		return
	}
	delete(r.tunnels, t.Subdomain)
	r.mu.Unlock()

	r.evict(t, 1000, "tunnel replaced or removed")
}

// RemoveByChannel locates the tunnel owning ch via a linear scan
// and removes it.
func (r *Registry) RemoveByChannel(ch Channel) {
	r.mu.Lock()
	var subdomain string
	var t *Tunnel
	for sd, candidate := range r.tunnels {
		if candidate.Channel == ch {
			subdomain, t = sd, candidate
			break
		}
	}
	if t != nil {
		delete(r.tunnels, subdomain)
	}
	r.mu.Unlock()

	if t == nil {
		return
	}
	r.evict(t, 1000, "tunnel disconnected")
}

// evict fails every pending waiter on t and closes its channel. Called
// with t already removed from the map, so no new waiter can be parked.
func (r *Registry) evict(t *Tunnel, closeCode int, reason string) {
	for _, w := range t.drainWaiters() {
		w.timer.Stop()
		w.complete(Response{}, ErrTunnelDisconnected)
	}
	_ = t.Channel.Close(closeCode, reason)

	if r.metrics != nil {
		r.metrics.TunnelEvicted()
	}
	r.log.Info().Str("subdomain", t.Subdomain).Str("tunnel_id", t.ID).Msg("tunnel removed")
}

// Forward is the correlator: it transmits req on the
// subdomain's tunnel and parks until a matching response arrives, the
// deadline elapses, or the tunnel is removed.
func (r *Registry) Forward(subdomain string, req Request, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	t := r.Get(subdomain)
	if t == nil {
		r.outcome("not_found", 0)
		return Response{}, ErrTunnelNotFound
	}

	start := time.Now()
	w := newWaiter(timeout, func() {
		if expired, ok := t.popWaiter(req.ID); ok {
			expired.complete(Response{}, ErrRequestTimeout)
		}
	})

	// Insert before transmitting: a fast response must never arrive
	// before the waiter is installed.
	t.addWaiter(req.ID, w)

	// A concurrent Remove may have drained t between Get and addWaiter;
	// never park a waiter on a tunnel that has left the map.
	if r.Get(subdomain) != t {
		t.popWaiter(req.ID)
		w.timer.Stop()
		r.outcome("not_open", time.Since(start).Seconds())
		return Response{}, ErrTunnelNotOpen
	}

	msg := &Message{Type: FrameRequest}
	data, err := encodeRequest(req)
	if err != nil {
		t.popWaiter(req.ID)
		w.timer.Stop()
		r.outcome("error", time.Since(start).Seconds())
		return Response{}, ErrFrameSendFailed
	}
	msg.Data = data

	if err := t.send(msg); err != nil {
		t.popWaiter(req.ID)
		w.timer.Stop()
		r.removeTunnel(t)
		r.outcome("not_open", time.Since(start).Seconds())
		return Response{}, ErrTunnelNotOpen
	}

	t.incrementRequestCount()

	<-w.done
	w.timer.Stop()
	elapsed := time.Since(start).Seconds()

	if w.err != nil {
		switch w.err {
		case ErrRequestTimeout:
			r.outcome("timeout", elapsed)
		case ErrTunnelDisconnected:
			r.outcome("disconnected", elapsed)
		default:
			r.outcome("error", elapsed)
		}
		return Response{}, w.err
	}
	r.outcome("ok", elapsed)
	return w.resp, nil
}

// HandleResponse locates the tunnel owning ch and satisfies the waiter
// named by resp.ID, if any. Unknown ids, or a response
// arriving on a channel that does not own the waiter, are silently
// dropped — satisfied automatically since lookup is scoped to ch's own
// tunnel.
func (r *Registry) HandleResponse(ch Channel, resp Response) {
	r.mu.Lock()
	var t *Tunnel
	for _, candidate := range r.tunnels {
		if candidate.Channel == ch {
			t = candidate
			break
		}
	}
	r.mu.Unlock()

	if t == nil {
		return
	}
	w, ok := t.popWaiter(resp.ID)
	if !ok {
		return
	}
	w.timer.Stop()
	w.complete(resp, nil)
}

// Shutdown closes every registered tunnel's channel with a going-away
// status, failing their pending waiters with tunnel-disconnected.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	tunnels := make([]*Tunnel, 0, len(r.tunnels))
	for subdomain, t := range r.tunnels {
		tunnels = append(tunnels, t)
		delete(r.tunnels, subdomain)
	}
	r.mu.Unlock()

	for _, t := range tunnels {
		r.evict(t, 1001, "relay shutting down")
	}
}

// Stats snapshots active tunnel count and per-tunnel counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Stats{ActiveTunnels: len(r.tunnels), Tunnels: make([]TunnelStat, 0, len(r.tunnels))}
	for _, t := range r.tunnels {
		out.Tunnels = append(out.Tunnels, t.stat())
	}
	return out
}

func (r *Registry) outcome(outcome string, seconds float64) {
	if r.metrics == nil {
		return
	}
	r.metrics.RequestOutcome(outcome)
	r.metrics.RequestDuration(seconds)
}

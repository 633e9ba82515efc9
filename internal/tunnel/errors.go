package tunnel

import "errors"

// Error kinds from the forwarding path. Each maps to a fixed
// public HTTP status and body shape in httpgateway.
var (
	ErrSubdomainMissing   = errors.New("subdomain missing")
	ErrTunnelNotFound     = errors.New("tunnel not found")
	ErrTunnelNotOpen      = errors.New("tunnel not open")
	ErrTunnelDisconnected = errors.New("tunnel disconnected")
	ErrRequestTimeout     = errors.New("request timeout")
	ErrFrameSendFailed    = errors.New("frame send failed")
)

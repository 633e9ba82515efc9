package wsgateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nexustunnel/relay/internal/subdomain"
	"github.com/nexustunnel/relay/internal/tunnel"
)

// Config controls the session handler's timing and limits.
type Config struct {
	RootDomain    string
	PingInterval  time.Duration
	MaxFrameBytes int64
	DefaultPort   int
}

// Handler upgrades incoming /tunnel requests to the control channel and
// runs one session per connection.
type Handler struct {
	registry *tunnel.Registry
	cfg      Config
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(registry *tunnel.Registry, cfg Config, log zerolog.Logger) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 50 * 1024 * 1024
	}
	if cfg.DefaultPort <= 0 {
		cfg.DefaultPort = 3000
	}
	return &Handler{
		registry: registry,
		cfg:      cfg,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("tunnel upgrade failed")
		return
	}
	conn.SetReadLimit(h.cfg.MaxFrameBytes)

	localPort := h.cfg.DefaultPort
	if hint := r.Header.Get("X-Local-Port"); hint != "" {
		if p, err := strconv.Atoi(hint); err == nil {
			localPort = p
		}
	}
	subdomainHint := subdomain.Sanitize(r.Header.Get("X-Subdomain"))

	h.runSession(conn, localPort, subdomainHint)
}

// session is the per-connection state a tunnel handler tracks between
// frames: which subdomain, if any, this channel has registered.
type session struct {
	ch                  *wsChannel
	registry            *tunnel.Registry
	log                 zerolog.Logger
	rootDomain          string
	defaultLocalPort    int
	subdomainHint       string
	registeredSubdomain string
}

func (h *Handler) runSession(conn *websocket.Conn, localPort int, subdomainHint string) {
	ch := newChannel(conn)
	s := &session{
		ch:               ch,
		registry:         h.registry,
		log:              h.log,
		rootDomain:       h.cfg.RootDomain,
		defaultLocalPort: localPort,
		subdomainHint:    subdomainHint,
	}

	stopHeartbeat := make(chan struct{})
	go s.heartbeat(h.cfg.PingInterval, stopHeartbeat)

	defer func() {
		close(stopHeartbeat)
		h.registry.RemoveByChannel(ch)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg tunnel.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Warn().Err(err).Msg("malformed tunnel frame")
			_ = ch.Send(&tunnel.Message{Type: tunnel.FrameError, Message: "malformed JSON"})
			continue
		}

		s.dispatch(&msg)
	}
}

func (s *session) heartbeat(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.ch.Send(&tunnel.Message{Type: tunnel.FramePing}); err != nil {
				return
			}
		}
	}
}

func (s *session) dispatch(msg *tunnel.Message) {
	switch msg.Type {
	case tunnel.FrameRegister:
		s.handleRegister(msg)
	case tunnel.FrameResponse:
		s.handleResponse(msg)
	case tunnel.FramePong:
		// liveness is implicit; nothing to do.
	default:
		s.log.Info().Str("type", msg.Type).Msg("ignoring unknown tunnel frame type")
	}
}

func (s *session) handleRegister(msg *tunnel.Message) {
	label := subdomain.Sanitize(msg.Subdomain)
	if label == "" {
		label = s.subdomainHint
	}
	if label == "" {
		label = subdomain.Generate()
	}
	label = subdomain.Sanitize(label)

	t := s.registry.Register(label, s.defaultLocalPort, s.ch)
	s.registeredSubdomain = label

	ready := &tunnel.Message{
		Type:      tunnel.FrameTunnelReady,
		URL:       "https://" + label + "." + s.rootDomain,
		Subdomain: label,
		ID:        t.ID,
	}
	if err := s.ch.Send(ready); err != nil {
		s.log.Warn().Err(err).Str("subdomain", label).Msg("failed to send tunnel-ready")
	}
}

func (s *session) handleResponse(msg *tunnel.Message) {
	resp, err := msg.DecodeResponse()
	if err != nil || resp.ID == "" {
		return
	}
	s.registry.HandleResponse(s.ch, resp)
}

package wsgateway

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nexustunnel/relay/internal/tunnel"
)

func TestHandlerRegisterTunnelReady(t *testing.T) {
	registry := tunnel.NewRegistry(zerolog.Nop(), nil)
	handler := NewHandler(registry, Config{RootDomain: "example.com", PingInterval: time.Hour}, zerolog.Nop())

	server := httptest.NewServer(handler)
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] + ""
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(tunnel.Message{Type: tunnel.FrameRegister, Subdomain: "a"}))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var reply tunnel.Message
	require.NoError(t, json.Unmarshal(data, &reply))
	require.Equal(t, tunnel.FrameTunnelReady, reply.Type)
	require.Equal(t, "a", reply.Subdomain)
	require.Equal(t, "https://a.example.com", reply.URL)
	require.NotNil(t, registry.Get("a"))
}

func TestHandlerDisconnectRemovesTunnel(t *testing.T) {
	registry := tunnel.NewRegistry(zerolog.Nop(), nil)
	handler := NewHandler(registry, Config{RootDomain: "example.com", PingInterval: time.Hour}, zerolog.Nop())

	server := httptest.NewServer(handler)
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] + ""
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(tunnel.Message{Type: tunnel.FrameRegister, Subdomain: "a"}))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NotNil(t, registry.Get("a"))

	conn.Close()

	require.Eventually(t, func() bool {
		return registry.Get("a") == nil
	}, time.Second, 10*time.Millisecond)
}

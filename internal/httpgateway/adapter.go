package httpgateway

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexustunnel/relay/internal/tunnel"
)

// hopByHop is the fixed drop-list, matched case-insensitively.
var hopByHop = map[string]struct{}{
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailer":             {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

func isHopByHop(name string) bool {
	_, ok := hopByHop[strings.ToLower(name)]
	return ok
}

// forward runs the common flow once a subdomain has been chosen: look up
// the tunnel, build the framed request, call Forward, and write the
// public HTTP response (or the mapped error).
func (rt *Router) forward(c *gin.Context, subdomainLabel, path string) {
	if rt.registry.Get(subdomainLabel) == nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "Tunnel Not Found",
			"subdomain": subdomainLabel,
			"message":   "no tunnel is registered for this subdomain",
		})
		return
	}

	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Bad Gateway", "message": err.Error()})
		return
	}

	var body string
	if len(bodyBytes) > 0 {
		body = base64.StdEncoding.EncodeToString(bodyBytes)
	}

	headers := make(map[string]string, len(c.Request.Header))
	for name, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		headers[name] = strings.Join(values, ", ")
	}

	req := tunnel.Request{
		ID:      uuid.NewString(),
		Method:  c.Request.Method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}

	resp, err := rt.registry.Forward(subdomainLabel, req, rt.requestTimeout)
	if err != nil {
		rt.writeError(c, subdomainLabel, err)
		return
	}
	rt.writeResponse(c, subdomainLabel, resp)
}

func (rt *Router) writeResponse(c *gin.Context, subdomainLabel string, resp tunnel.Response) {
	for name, value := range resp.Headers {
		if isHopByHop(name) {
			continue
		}
		c.Header(name, value)
	}
	c.Header("X-Powered-By", "LocalHosted")
	c.Header("X-Tunnel-Subdomain", subdomainLabel)

	var body []byte
	if resp.Body != "" {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err == nil {
			body = decoded
		}
	}
	c.Data(resp.StatusCode, "", body)
}

func (rt *Router) writeError(c *gin.Context, subdomainLabel string, err error) {
	switch err {
	case tunnel.ErrSubdomainMissing:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing-subdomain",
			"message": "no subdomain segment in path",
		})
	case tunnel.ErrTunnelNotFound:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "Tunnel Not Found",
			"subdomain": subdomainLabel,
			"message":   "no tunnel is registered for this subdomain",
		})
	case tunnel.ErrRequestTimeout:
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":     "Gateway Timeout",
			"subdomain": subdomainLabel,
			"message":   "the tunnel did not respond in time",
		})
	case tunnel.ErrTunnelNotOpen, tunnel.ErrTunnelDisconnected:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "Bad Gateway",
			"subdomain": subdomainLabel,
			"message":   "the tunnel connection is not available",
		})
	default:
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "Bad Gateway",
			"subdomain": subdomainLabel,
			"message":   err.Error(),
		})
	}
}

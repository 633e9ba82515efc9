// Package httpgateway wires the public HTTP surface:
// the landing page, health/stats/metrics endpoints, and the two tunnel
// adapters (host-based and path-based).
package httpgateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nexustunnel/relay/internal/subdomain"
	"github.com/nexustunnel/relay/internal/tunnel"
)

// Router owns the gin engine and the state needed to answer /health,
// /stats, and the tunnel adapters.
type Router struct {
	registry       *tunnel.Registry
	rootDomain     string
	env            string
	requestTimeout time.Duration
	startedAt      time.Time
	log            zerolog.Logger
}

// NewEngine builds and wires the public gin.Engine. requestTimeout bounds
// how long a forwarded public request waits for the tunnel's response;
// zero falls back to tunnel.DefaultRequestTimeout.
func NewEngine(registry *tunnel.Registry, rootDomain, env string, requestTimeout time.Duration, log zerolog.Logger) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	rt := &Router{
		registry:       registry,
		rootDomain:     rootDomain,
		env:            env,
		requestTimeout: requestTimeout,
		startedAt:      time.Now(),
		log:            log,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(securityHeaders())
	engine.Use(corsMiddleware())
	engine.Use(rt.hostBasedTunnel())

	engine.GET("/health", rt.handleHealth)
	engine.GET("/stats", rt.handleStats)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/", rt.handleLanding)
	engine.Any("/t/:subdomain", rt.handlePathBased)
	engine.Any("/t/:subdomain/*rest", rt.handlePathBased)
	engine.NoRoute(rt.handleNotFound)

	return engine
}

// hostBasedTunnel relinquishes non-tunnel hosts to the rest of the
// router.
func (rt *Router) hostBasedTunnel() gin.HandlerFunc {
	return func(c *gin.Context) {
		label := subdomain.Extract(c.Request.Host, rt.rootDomain)
		if label == "" {
			c.Next()
			return
		}
		rt.forward(c, label, c.Request.URL.RequestURI())
		c.Abort()
	}
}

func (rt *Router) handlePathBased(c *gin.Context) {
	label := c.Param("subdomain")
	if label == "" {
		rt.writeError(c, "", tunnel.ErrSubdomainMissing)
		return
	}

	rest := strings.TrimPrefix(c.Param("rest"), "/")
	path := "/" + rest
	if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
		path += "?" + rawQuery
	}

	rt.forward(c, label, path)
}

func (rt *Router) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"uptime":    time.Since(rt.startedAt).Seconds(),
		"domain":    rt.rootDomain,
		"env":       rt.env,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (rt *Router) handleStats(c *gin.Context) {
	stats := rt.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"activeTunnels": stats.ActiveTunnels,
		"tunnels":       stats.Tunnels,
		"domain":        rt.rootDomain,
		"uptime":        time.Since(rt.startedAt).Seconds(),
	})
}

func (rt *Router) handleLanding(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(landingPage))
}

func (rt *Router) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "Not Found",
		"message": "no route matches this request",
		"domain":  rt.rootDomain,
	})
}

const landingPage = `<!DOCTYPE html>
<html>
<head><title>relay</title></head>
<body>
<h1>relay</h1>
<p>Reverse tunnel relay. Connect your local server via the control channel at <code>/tunnel</code>.</p>
</body>
</html>
`

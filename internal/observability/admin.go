package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const adminVersion = "0.1.0"

// AdminStatus is what the admin endpoint needs from the process it reports on.
type AdminStatus interface {
	NodeID() string
	Ready() bool
	Status() any
}

// NewAdminRouter serves /health, /ready, /status and /metrics for one node.
func NewAdminRouter(node AdminStatus) *gin.Engine {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	started := time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Logger, node.NodeID()))
	r.Use(RequestMetricsMiddleware(node.NodeID()))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(started).String(),
			"node":    node.NodeID(),
			"version": adminVersion,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !node.Ready() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   node.Ready(),
			"uptime":  time.Since(started).String(),
			"node":    node.NodeID(),
			"version": adminVersion,
		})
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, node.Status())
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// ServeAdmin runs handler on addr until ctx is done.
func ServeAdmin(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

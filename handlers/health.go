package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// RegisterHealth mounts GET /health (liveness) and GET /ready, which runs
// every check and answers 503 when one fails.
func RegisterHealth(r gin.IRouter, checks map[string]Check) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		ready := true
		deps := make(map[string]bool, len(names))
		for _, name := range names {
			err := checks[name](ctx)
			deps[name] = err == nil
			if err != nil {
				ready = false
				logger.Warnf("readiness check %s failed: %v", name, err)
			}
		}

		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).Round(time.Second).String()})
	})
}

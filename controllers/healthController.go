package controllers

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// Check pings one backing service.
type Check func(ctx context.Context) error

// HealthController reports whether the backing services answer.
type HealthController struct {
	checks map[string]Check
}

func NewHealthController(checks map[string]Check) *HealthController {
	return &HealthController{checks: checks}
}

func (hc *HealthController) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (hc *HealthController) Healthz(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := gin.H{}
	for _, name := range names {
		if err := hc.checks[name](ctx); err != nil {
			log.WithError(err).Errorf("Health check %s failed", name)
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "errors": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

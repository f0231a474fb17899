package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{
		"database": "ok",
		"cache":    "ok",
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx).Err(); err != nil {
			checks["cache"] = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	if status != http.StatusOK {
		c.JSON(status, envelope{
			StatusCode: status,
			Data:       checks,
			Message:    "degraded",
			Success:    false,
		})
		return
	}

	respond(c, http.StatusOK, checks, "healthy")
}

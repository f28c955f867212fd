package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Environment string `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	resp := healthResponse{Status: "ok", Database: "ok", Cache: "ok", Environment: h.cfg.Environment}

	if err := h.db.Ping(ctx); err != nil {
		resp.Database = "error"
		h.log.Error().Err(err).Msg("database ping failed")
	}
	if err := h.cache.Ping(ctx).Err(); err != nil {
		resp.Cache = "error"
		h.log.Error().Err(err).Msg("redis ping failed")
	}
	if resp.Database != "ok" || resp.Cache != "ok" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, resp)
}

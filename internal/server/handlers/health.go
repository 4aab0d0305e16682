package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/mem"
)

var startTime = time.Now()

// Health reports service liveness, database reachability and basic host
// memory pressure.
func (h *Handlers) Health(c *gin.Context) {
	status := gin.H{
		"status":  "ok",
		"service": "cinedex",
		"uptime":  time.Since(startTime).Round(time.Second).String(),
	}

	sqlDB, err := h.catalog.DB().DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable: " + err.Error()
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	status["database"] = "connected"

	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory"] = gin.H{
			"used_percent": vm.UsedPercent,
			"total":        vm.Total,
			"available":    vm.Available,
		}
	}

	c.JSON(http.StatusOK, status)
}

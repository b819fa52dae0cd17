package handlers

import (
	"context"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

type PingFunc func(ctx context.Context) error

type HealthOptions struct {
	Env     string
	Version string
	Store   string

	// StorePing is required. CachePing is nil when no shared cache is configured.
	StorePing PingFunc
	CachePing PingFunc
	CountUsers func(ctx context.Context) (int, error)
}

type HealthHandler struct {
	opts    HealthOptions
	started time.Time

	shuttingDown atomic.Bool
}

func NewHealthHandler(opts HealthOptions) *HealthHandler {
	return &HealthHandler{opts: opts, started: time.Now()}
}

// MarkShuttingDown makes /readyz fail so load balancers drain this
// instance before the server stops accepting connections.
func (h *HealthHandler) MarkShuttingDown() {
	h.shuttingDown.Store(true)
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.shuttingDown.Load() {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "shutting_down"})
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true

	if err := h.opts.StorePing(cctx); err != nil {
		checks["store"] = "down"
		ready = false
	} else {
		checks["store"] = "up"
	}

	// cache outages degrade to store reads, so they do not fail readiness
	if h.opts.CachePing != nil {
		if err := h.opts.CachePing(cctx); err != nil {
			checks["cache"] = "degraded"
		} else {
			checks["cache"] = "up"
		}
	}

	if !ready {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "not_ready", "checks": checks})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "status": "ready", "checks": checks})
}

func (h *HealthHandler) Server(ctx *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	RespondOK(ctx, gin.H{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
		"memory": gin.H{
			"allocBytes": mem.Alloc,
			"sysBytes":   mem.Sys,
			"heapInUse":  mem.HeapInuse,
			"numGC":      mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
		"version":    h.opts.Version,
		"goVersion":  runtime.Version(),
		"env":        h.opts.Env,
		"timestamp":  time.Now().UTC(),
	})
}

func (h *HealthHandler) DB(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.opts.StorePing(cctx); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"code":    "store_unavailable",
			"data": gin.H{
				"status":    "disconnected",
				"connected": false,
				"store":     h.opts.Store,
			},
		})
		return
	}

	data := gin.H{
		"status":    "connected",
		"connected": true,
		"store":     h.opts.Store,
	}

	if h.opts.CountUsers != nil {
		n, err := h.opts.CountUsers(cctx)
		if err != nil {
			RespondDomainError(ctx, err, "Could not count users.")
			return
		}
		data["userCount"] = n
	}

	RespondOK(ctx, data)
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loiht2/getaround-pricing/backend/dashboard"
)

// DashboardLoader loads the rental dataset on first use and keeps it for the
// lifetime of the process. A failed load is retried on the next request.
// Concurrent callers share one in-flight load and stop waiting when their own
// context is done.
type DashboardLoader struct {
	load func(ctx context.Context) ([]dashboard.Rental, error)

	mu       sync.Mutex
	analysis *dashboard.Analysis
	inflight *loadCall
}

type loadCall struct {
	done     chan struct{}
	analysis *dashboard.Analysis
	err      error
}

// NewDashboardLoader creates a loader around load
func NewDashboardLoader(load func(ctx context.Context) ([]dashboard.Rental, error)) *DashboardLoader {
	return &DashboardLoader{load: load}
}

// Analysis returns the enriched dataset, loading it if needed
func (l *DashboardLoader) Analysis(ctx context.Context) (*dashboard.Analysis, error) {
	l.mu.Lock()
	if l.analysis != nil {
		a := l.analysis
		l.mu.Unlock()
		return a, nil
	}
	if call := l.inflight; call != nil {
		l.mu.Unlock()
		select {
		case <-call.done:
			return call.analysis, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &loadCall{done: make(chan struct{})}
	l.inflight = call
	l.mu.Unlock()

	rentals, err := l.load(ctx)

	l.mu.Lock()
	if err == nil {
		l.analysis = dashboard.NewAnalysis(rentals)
	}
	call.analysis, call.err = l.analysis, err
	l.inflight = nil
	l.mu.Unlock()
	close(call.done)
	return call.analysis, call.err
}

func (h *Handler) analysis(c *gin.Context) (*dashboard.Analysis, bool) {
	if h.dashboard == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Dashboard is not configured"})
		return nil, false
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	a, err := h.dashboard.Analysis(ctx)
	if err != nil {
		h.logger.Error("failed to load dashboard data", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Dashboard data is unavailable",
			"details": err.Error(),
		})
		return nil, false
	}
	return a, true
}

func (h *Handler) filterError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dashboard.ErrUnknownChart):
		status = http.StatusNotFound
	case errors.Is(err, dashboard.ErrInvalidFilter):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// DashboardSummary handles GET /api/v1/dashboard/summary
func (h *Handler) DashboardSummary(c *gin.Context) {
	a, ok := h.analysis(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a.Summary())
}

// DashboardShares handles GET /api/v1/dashboard/shares?checkin_type=
func (h *Handler) DashboardShares(c *gin.Context) {
	a, ok := h.analysis(c)
	if !ok {
		return
	}
	shares, err := a.Shares(c.Query("checkin_type"))
	if err != nil {
		h.filterError(c, err)
		return
	}
	c.JSON(http.StatusOK, shares)
}

// DashboardDelays handles GET /api/v1/dashboard/delays?checkin_type=&bins=
func (h *Handler) DashboardDelays(c *gin.Context) {
	a, ok := h.analysis(c)
	if !ok {
		return
	}
	bins := 0
	if raw := c.Query("bins"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > dashboard.MaxBins {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("bins must be an integer in [1, %d]", dashboard.MaxBins)})
			return
		}
		bins = n
	}
	delays, err := a.Delays(c.Query("checkin_type"), bins)
	if err != nil {
		h.filterError(c, err)
		return
	}
	c.JSON(http.StatusOK, delays)
}

// DashboardThreshold handles GET /api/v1/dashboard/threshold?minutes=&checkin_type=
func (h *Handler) DashboardThreshold(c *gin.Context) {
	minutes, err := strconv.Atoi(c.Query("minutes"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minutes must be an integer"})
		return
	}
	a, ok := h.analysis(c)
	if !ok {
		return
	}
	sim, err := a.Simulate(minutes, c.Query("checkin_type"))
	if err != nil {
		h.filterError(c, err)
		return
	}
	c.JSON(http.StatusOK, sim)
}

// DashboardChart handles GET /api/v1/dashboard/charts/:chart, e.g. delays.png
func (h *Handler) DashboardChart(c *gin.Context) {
	a, ok := h.analysis(c)
	if !ok {
		return
	}
	name := strings.TrimSuffix(c.Param("chart"), ".png")
	png, err := a.Chart(name, c.Query("checkin_type"))
	if err != nil {
		h.filterError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Package health provides health checking functionality for the highlights API.
package health

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/pharmaboard/highlights-api/interfaces"
)

// pingTimeout bounds the storage reachability probe so a hung table
// cannot stall the health endpoint.
const pingTimeout = 3 * time.Second

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	index           interfaces.HighlightIndex
	store           interfaces.HighlightStore
	refreshInterval time.Duration
}

// NewHealthChecker creates a new health checker with injected dependencies
func NewHealthChecker(index interfaces.HighlightIndex, store interfaces.HighlightStore, refreshMinutes int) interfaces.HealthChecker {
	return &HealthCheckerImpl{
		index:           index,
		store:           store,
		refreshInterval: time.Duration(refreshMinutes) * time.Minute,
	}
}

// HealthCheck reports index freshness and storage reachability. The
// staleness thresholds scale with the configured refresh cadence rather
// than using fixed hours. An empty board is a legitimate state for a new
// deployment, so day count never factors into the status.
func (h *HealthCheckerImpl) HealthCheck(ctx context.Context) (status string, data map[string]any, httpStatus int) {
	lastRefresh := h.index.GetLastRefreshed()
	isRefreshing := h.index.IsRefreshing()
	refreshAge := time.Since(lastRefresh)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	storeErr := h.store.Ping(pingCtx)

	switch {
	case lastRefresh.IsZero():
		// The initial load has not landed yet
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case refreshAge > 12*h.refreshInterval:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case storeErr != nil:
		// Reads still serve from the index, writes would fail
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case refreshAge > 4*h.refreshInterval:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case isRefreshing && refreshAge > 2*h.refreshInterval:
		// A refresh this old is stuck, not in progress
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"last_refresh":        lastRefresh.Format(time.RFC3339),
		"refresh_age_minutes": math.Round(refreshAge.Minutes()*10) / 10,
		"next_refresh":        h.NextRefresh().Format(time.RFC3339),
		"days":                h.index.DayCount(),
		"drugs":               h.index.DrugCount(),
		"is_refreshing":       isRefreshing,
		"store_reachable":     storeErr == nil,
	}

	return status, data, httpStatus
}

// NextRefresh returns the next scheduled index re-sync time, projected
// forward from the last refresh in whole intervals.
func (h *HealthCheckerImpl) NextRefresh() time.Time {
	lastRefresh := h.index.GetLastRefreshed()
	if lastRefresh.IsZero() {
		return time.Now().Add(h.refreshInterval)
	}

	elapsed := time.Since(lastRefresh)
	periods := elapsed/h.refreshInterval + 1
	return lastRefresh.Add(periods * h.refreshInterval)
}

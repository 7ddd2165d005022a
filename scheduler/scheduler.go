// Package scheduler keeps the in-memory highlight index in sync with the
// day record store. It performs the initial full load at startup, re-syncs
// on a fixed cadence and watches for refreshes falling behind schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/pharmaboard/highlights-api/highlights"
	"github.com/pharmaboard/highlights-api/interfaces"
	"github.com/pharmaboard/highlights-api/logging"
	"github.com/pharmaboard/highlights-api/metrics"
)

// refreshTimeout bounds one full store scan. A department's archive is a
// few thousand small items, so anything slower means storage trouble.
const refreshTimeout = 2 * time.Minute

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// Scheduler handles index refreshes and staleness monitoring using dependency injection
type Scheduler struct {
	index     interfaces.HighlightIndex
	store     interfaces.HighlightStore
	interval  time.Duration
	scheduler *gocron.Scheduler
}

// NewScheduler creates a new scheduler instance with injected dependencies
func NewScheduler(index interfaces.HighlightIndex, store interfaces.HighlightStore, refreshMinutes int) *Scheduler {
	return &Scheduler{
		index:     index,
		store:     store,
		interval:  time.Duration(refreshMinutes) * time.Minute,
		scheduler: gocron.NewScheduler(time.Local),
	}
}

// Start loads the index once and schedules the periodic re-sync
func (s *Scheduler) Start() error {
	// Initial load
	if err := s.refreshIndex(); err != nil {
		logging.Error("Failed to perform initial index load", "error", err)
		return fmt.Errorf("initial index load failed: %w", err)
	}

	_, err := s.scheduler.Every(int(s.interval.Minutes())).Minutes().Do(func() {
		if err := s.refreshIndex(); err != nil {
			logging.Error("Failed to refresh the highlight index", "error", err)
		}
	})

	if err != nil {
		logging.Error("Failed to schedule index refreshes", "error", err)
		return fmt.Errorf("failed to schedule index refreshes: %w", err)
	}

	s.scheduler.StartAsync()

	// Start staleness monitoring
	s.startStalenessMonitoring()

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// refreshIndex rebuilds the full index snapshot from the store
func (s *Scheduler) refreshIndex() error {
	// Prevent concurrent refreshes
	if !s.index.BeginRefresh() {
		logging.Info("Refresh already in progress, skipping...")
		return nil
	}
	defer s.index.EndRefresh()

	logging.Info(fmt.Sprintf("Starting index refresh at: %s", time.Now().Format(time.RFC3339)))
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	rawDays, err := s.store.LoadAll(ctx)
	if err != nil {
		metrics.IndexRefreshesTotal.WithLabelValues("error").Inc()
		logging.Error("Failed to load day records", "error", err)
		return fmt.Errorf("failed to load day records: %w", err)
	}

	days, skipped := normalizeAll(rawDays)
	if skipped > 0 {
		logging.Warn("Skipped day records with no usable drugs", "count", skipped)
	}

	// Atomic swap using the injected index
	s.index.ReplaceAll(days)
	metrics.IndexRefreshesTotal.WithLabelValues("ok").Inc()
	metrics.IndexDays.Set(float64(len(days)))

	elapsed := time.Since(start)
	logging.Info("Index refresh completed",
		"duration", elapsed.String(),
		"days", s.index.DayCount(),
		"drugs", s.index.DrugCount())

	return nil
}

// normalizeAll converts every stored item, whatever its vintage, into the
// canonical day form. Items that normalize to zero drugs are dropped so
// malformed records cannot surface as phantom rows in ranges or reports.
func normalizeAll(rawDays map[string]any) (map[string]highlights.DailyHighlight, int) {
	days := make(map[string]highlights.DailyHighlight, len(rawDays))
	skipped := 0

	for date, raw := range rawDays {
		day := highlights.NormalizeDay(date, highlights.LiftLegacyDay(raw))
		if len(day.Drugs) == 0 {
			skipped++
			continue
		}
		days[date] = day
	}

	return days, skipped
}

// startStalenessMonitoring warns when refreshes stop landing
func (s *Scheduler) startStalenessMonitoring() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for range ticker.C {
			lastRefreshed := s.index.GetLastRefreshed()
			if time.Since(lastRefreshed) > 3*s.interval {
				logging.Warn("Index has not refreshed on schedule",
					"last_refreshed", lastRefreshed.Format(time.RFC3339))
			}
		}
	}()
}

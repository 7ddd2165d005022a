// Package data provides thread-safe storage for the in-memory day-record
// index of the highlights API. It includes the Index struct with atomic
// snapshot swaps for zero-downtime refreshes, the duplicate-name scan used
// by the edit flow, and diacritic-insensitive name search.
package data

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pharmaboard/highlights-api/highlights"
	"github.com/pharmaboard/highlights-api/interfaces"
	"github.com/pharmaboard/highlights-api/logging"
)

// Compile-time check to ensure Index implements HighlightIndex
var _ interfaces.HighlightIndex = (*Index)(nil)

// Index holds the all-records map with atomic pointers for zero-downtime
// refreshes. Snapshots handed out by the getters are read-only; writers
// copy-on-write and swap.
type Index struct {
	days            atomic.Value // map[string]highlights.DailyHighlight
	lastRefreshed   atomic.Value // time.Time
	refreshing      atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewIndex creates a new Index with empty data
func NewIndex() *Index {
	ix := &Index{}
	ix.days.Store(make(map[string]highlights.DailyHighlight))
	ix.lastRefreshed.Store(time.Time{})
	ix.serverStartTime.Store(time.Time{})
	return ix
}

// Thread-safe getters with type check

// All returns the current day-record snapshot keyed by date
func (ix *Index) All() map[string]highlights.DailyHighlight {
	if v := ix.days.Load(); v != nil {
		if days, ok := v.(map[string]highlights.DailyHighlight); ok {
			return days
		}
	}

	logging.Warn("Day index is empty or invalid")
	return make(map[string]highlights.DailyHighlight)
}

// Get returns one day record from the snapshot
func (ix *Index) Get(date string) (highlights.DailyHighlight, bool) {
	day, ok := ix.All()[date]
	return day, ok
}

// Dates returns all stored dates in ascending order
func (ix *Index) Dates() []string {
	return sortedDates(ix.All())
}

// DayCount returns the number of stored days
func (ix *Index) DayCount() int {
	return len(ix.All())
}

// DrugCount returns the number of drugs across all stored days
func (ix *Index) DrugCount() int {
	count := 0
	for _, day := range ix.All() {
		count += len(day.Drugs)
	}
	return count
}

// GetLastRefreshed returns the timestamp of the last full index refresh
func (ix *Index) GetLastRefreshed() time.Time {
	if v := ix.lastRefreshed.Load(); v != nil {
		if lastRefreshed, ok := v.(time.Time); ok {
			return lastRefreshed
		}
	}

	logging.Warn("Could not get the last refreshed value")
	return time.Time{}
}

// IsRefreshing returns true if a full refresh is currently in progress
func (ix *Index) IsRefreshing() bool {
	return ix.refreshing.Load()
}

// SetServerStartTime sets the server start time
func (ix *Index) SetServerStartTime(startTime time.Time) {
	ix.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (ix *Index) GetServerStartTime() time.Time {
	if v := ix.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// FindDuplicate scans all stored days for a drug with the given name,
// comparing case-insensitively. Dates are visited in ascending order and the
// first match wins; the (excludeDate, excludeID) pair is skipped so a record
// never matches itself while being edited.
func (ix *Index) FindDuplicate(name, excludeDate, excludeID string) (interfaces.DrugEntry, bool) {
	days := ix.All()

	for _, date := range sortedDates(days) {
		for _, drug := range days[date].Drugs {
			if !strings.EqualFold(drug.DrugName, name) {
				continue
			}
			if date == excludeDate && drug.ID == excludeID {
				continue
			}
			return interfaces.DrugEntry{Date: date, Drug: drug}, true
		}
	}

	return interfaces.DrugEntry{}, false
}

// SearchByName returns every drug whose name contains the term, ignoring
// case and diacritics, in ascending date order.
func (ix *Index) SearchByName(term string) []interfaces.DrugEntry {
	days := ix.All()
	folded := foldName(term)
	results := []interfaces.DrugEntry{}

	for _, date := range sortedDates(days) {
		for _, drug := range days[date].Drugs {
			if strings.Contains(foldName(drug.DrugName), folded) {
				results = append(results, interfaces.DrugEntry{Date: date, Drug: drug})
			}
		}
	}

	return results
}

// ReplaceAll atomically swaps in a full snapshot built from the store
func (ix *Index) ReplaceAll(days map[string]highlights.DailyHighlight) {
	// Atomic swap (zero downtime replacement)
	ix.days.Store(days)
	ix.lastRefreshed.Store(time.Now())
}

// SetDay merges one day record into the snapshot. Last write wins; the
// periodic full refresh reconciles anything lost to a concurrent save.
func (ix *Index) SetDay(day highlights.DailyHighlight) {
	current := ix.All()
	next := make(map[string]highlights.DailyHighlight, len(current)+1)
	for date, d := range current {
		next[date] = d
	}
	next[day.Date] = day
	ix.days.Store(next)
}

// RemoveDay removes one day record from the snapshot
func (ix *Index) RemoveDay(date string) {
	current := ix.All()
	next := make(map[string]highlights.DailyHighlight, len(current))
	for d, day := range current {
		if d != date {
			next[d] = day
		}
	}
	ix.days.Store(next)
}

// BeginRefresh marks the start of a full refresh operation
// Returns true if the refresh can proceed, false if another is in progress
func (ix *Index) BeginRefresh() bool {
	return ix.refreshing.CompareAndSwap(false, true)
}

// EndRefresh marks the end of a full refresh operation
func (ix *Index) EndRefresh() {
	ix.refreshing.Store(false)
}

// sortedDates returns the keys of one snapshot in ascending order. Ascending
// date order matters: duplicate probes must return the earliest occurrence.
func sortedDates(days map[string]highlights.DailyHighlight) []string {
	dates := make([]string, 0, len(days))
	for date := range days {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// foldName lowercases a drug name and strips diacritics so that accented
// spellings compare equal in searches.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(folded)
}

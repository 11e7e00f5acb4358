package models

import "time"

// CycleStatus is the terminal state of one target within a cycle.
type CycleStatus string

const (
	StatusOK      CycleStatus = "ok"
	StatusBlocked CycleStatus = "blocked"
	StatusFailed  CycleStatus = "failed"
)

// CycleResult is the per-target outcome of a cycle.
type CycleResult struct {
	URL        string
	Status     CycleStatus
	FoundCount int
	NewCount   int
	Attempts   int
	Error      string
}

// CycleSummary aggregates every CycleResult of one pass. Results correspond
// 1:1 to targets, in target order.
type CycleSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	TotalNew   int
	Results    []CycleResult

	// Unique is how many distinct listing ids passed the price filter.
	Unique int
	// Restarts counts browser session restarts during the cycle.
	Restarts int64
}

// Add appends a result and keeps TotalNew in step.
func (s *CycleSummary) Add(r CycleResult) {
	s.Results = append(s.Results, r)
	s.TotalNew += r.NewCount
}

// Count returns how many results ended in the given status.
func (s *CycleSummary) Count(status CycleStatus) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// SiteStats is the store-level overview served by the control API.
type SiteStats struct {
	Total  int            `json:"total_properties"`
	BySite map[string]int `json:"by_site"`
}

// SchedulerStatus is the control API view of the cycle loop.
type SchedulerStatus struct {
	Running     bool      `json:"running"`
	Cycles      int       `json:"cycles"`
	LastCycleID string    `json:"last_cycle_id"`
	LastRun     time.Time `json:"last_run"`
	LastNew     int       `json:"last_new"`
	NextRun     time.Time `json:"next_run"`
}

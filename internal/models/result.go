package models

import "time"

// SourceStatus classifies the outcome of a single source fetch.
type SourceStatus string

const (
	StatusSuccess SourceStatus = "success"
	StatusEmpty   SourceStatus = "empty" // upstream answered, no matching data
	StatusError   SourceStatus = "error"
	StatusTimeout SourceStatus = "timeout"
)

// RecordStatus classifies the aggregate outcome of a full run.
type RecordStatus string

const (
	RecordComplete RecordStatus = "complete"
	RecordDegraded RecordStatus = "degraded" // at least one source failed
	RecordFailed   RecordStatus = "failed"   // every source failed
)

// SourceResult is the uniform envelope every source agent returns.
// Exactly one exists per (source, query) per run; a failed fetch still
// produces one with Status Error or Timeout, never a nil.
type SourceResult struct {
	SourceID     string         `json:"source_id"`
	Status       SourceStatus   `json:"status"`
	Payload      map[string]any `json:"payload,omitempty"`
	FetchedAt    time.Time      `json:"fetched_at"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Failed reports whether the fetch counts against the aggregate status.
// Empty does not: the upstream answered, it just had nothing to say.
func (r SourceResult) Failed() bool {
	return r.Status == StatusError || r.Status == StatusTimeout
}

// AnalysisRecord is the assembled output of one orchestration run.
// It is immutable once constructed; a re-fetch replaces the record.
type AnalysisRecord struct {
	Query         Query                   `json:"query"`
	Results       map[string]SourceResult `json:"results"`
	OverallStatus RecordStatus            `json:"overall_status"`
	CacheKey      string                  `json:"cache_key"`
	CreatedAt     time.Time               `json:"created_at"`

	// Note carries a top-level error description for failures outside the
	// per-source contract. Empty on normal runs.
	Note string `json:"note,omitempty"`
}

// NewAnalysisRecord assembles a record from per-source results and computes
// the aggregate status: Failed only when every source failed, Degraded when
// at least one did, Complete otherwise.
func NewAnalysisRecord(q Query, results map[string]SourceResult) *AnalysisRecord {
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}

	status := RecordComplete
	switch {
	case len(results) > 0 && failed == len(results):
		status = RecordFailed
	case failed > 0:
		status = RecordDegraded
	}

	return &AnalysisRecord{
		Query:         q,
		Results:       results,
		OverallStatus: status,
		CacheKey:      q.CacheKey(),
		CreatedAt:     time.Now().UTC(),
	}
}

// Result returns the result for a source id, reporting whether one exists.
func (a *AnalysisRecord) Result(sourceID string) (SourceResult, bool) {
	r, ok := a.Results[sourceID]
	return r, ok
}

// SuccessCount returns how many sources returned data.
func (a *AnalysisRecord) SuccessCount() int {
	n := 0
	for _, r := range a.Results {
		if r.Status == StatusSuccess {
			n++
		}
	}
	return n
}

func (a *AnalysisRecord) IsComplete() bool { return a.OverallStatus == RecordComplete }
func (a *AnalysisRecord) IsDegraded() bool { return a.OverallStatus == RecordDegraded }
func (a *AnalysisRecord) IsFailed() bool   { return a.OverallStatus == RecordFailed }

package batch

import (
	"math"
	"time"
)

// TimeoutError is the exact error text recorded for an item that exceeded
// the per-file time limit.
const TimeoutError = "Timeout"

// ItemError is one entry of the statistics error list.
type ItemError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// RunStatistics accumulates the outcome of a batch run. It is owned by the
// orchestrator and handed by pointer to each phase; only one goroutine ever
// touches it.
//
// Successful+Failed never exceeds Total and equals it once a run completes
// without interruption.
type RunStatistics struct {
	Total           int         `json:"total"`
	Successful      int         `json:"successful"`
	Failed          int         `json:"failed"`
	Errors          []ItemError `json:"errors"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         *time.Time  `json:"end_time"`
	DurationMinutes float64     `json:"duration_minutes"`
	Interrupted     bool        `json:"interrupted,omitempty"`

	processingStart time.Time
}

func NewRunStatistics(start time.Time) *RunStatistics {
	return &RunStatistics{
		Errors:    []ItemError{},
		StartTime: start,
	}
}

// SetTotal records the number of discovered files.
func (s *RunStatistics) SetTotal(n int) {
	s.Total = n
}

func (s *RunStatistics) RecordSuccess() {
	s.Successful++
}

func (s *RunStatistics) RecordFailure(file, reason string) {
	s.Failed++
	s.Errors = append(s.Errors, ItemError{File: file, Error: reason})
}

// BeginProcessing marks the start of the per-file loop. Validation and
// installation before it are not part of the reported duration.
func (s *RunStatistics) BeginProcessing(t time.Time) {
	s.processingStart = t
}

// Finish stamps the end time and the processing duration in minutes, rounded
// to one decimal place. Without BeginProcessing the duration runs from
// StartTime.
func (s *RunStatistics) Finish(end time.Time) {
	s.EndTime = &end
	from := s.StartTime
	if !s.processingStart.IsZero() {
		from = s.processingStart
	}
	s.DurationMinutes = math.Round(end.Sub(from).Minutes()*10) / 10
}

// Done is the number of items attempted so far.
func (s *RunStatistics) Done() int {
	return s.Successful + s.Failed
}

// SuccessRate returns successful/total as a percentage, 0 when nothing was
// discovered.
func (s *RunStatistics) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Total) * 100
}

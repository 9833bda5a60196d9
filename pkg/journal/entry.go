package journal

import (
	"time"
)

// Outcome is the recorded result of one item.
type Outcome string

const (
	// OutcomeExported means the archive was triggered and the proof was saved.
	OutcomeExported Outcome = "exported"

	// OutcomeSkipped means the message page never became ready.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeNoProof means a proof window was expected but nothing was saved.
	OutcomeNoProof Outcome = "no_proof"

	// OutcomeFallback means no proof affordance existed.
	OutcomeFallback Outcome = "fallback"

	// OutcomeFailed means the item ended on an unexpected error.
	OutcomeFailed Outcome = "failed"
)

// Outcomes lists all outcomes in report order.
var Outcomes = []Outcome{OutcomeExported, OutcomeFallback, OutcomeNoProof, OutcomeSkipped, OutcomeFailed}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	for _, known := range Outcomes {
		if o == known {
			return true
		}
	}
	return false
}

// Run status values.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusAborted  = "aborted"
)

// Run is the header of one export run.
type Run struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
	Total      int             `json:"total"`
	Status     string          `json:"status"`
	Counts     map[Outcome]int `json:"counts"`
}

// NewRun creates a running run header.
func NewRun(id string, total int) *Run {
	return &Run{
		ID:        id,
		StartedAt: time.Now(),
		Total:     total,
		Status:    StatusRunning,
		Counts:    make(map[Outcome]int),
	}
}

// Add counts one item outcome.
func (r *Run) Add(o Outcome) {
	if r.Counts == nil {
		r.Counts = make(map[Outcome]int)
	}
	r.Counts[o]++
}

// Processed returns the number of counted items.
func (r *Run) Processed() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Finish marks the run as finished or aborted.
func (r *Run) Finish(aborted bool) {
	r.FinishedAt = time.Now()
	r.Status = StatusFinished
	if aborted {
		r.Status = StatusAborted
	}
}

// ItemRecord is the recorded result of one item.
type ItemRecord struct {
	Position   int           `json:"position"`
	ID         string        `json:"id"`
	Direction  string        `json:"direction"`
	Outcome    Outcome       `json:"outcome"`
	Completed  bool          `json:"completed"`
	Artifacts  []string      `json:"artifacts,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	RecordedAt time.Time     `json:"recorded_at"`
}

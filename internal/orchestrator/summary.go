package orchestrator

import (
	"fmt"
	"time"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
)

// Failure reasons recorded on items that did not complete.
const (
	ReasonFetch   = "fetch"
	ReasonParse   = "parse"
	ReasonGallery = "gallery"
	ReasonRead    = "record_read"
	ReasonPersist = "persist"
)

// Failure describes one item that ended in the failed state.
type Failure struct {
	URL    string       `json:"url"`
	Kind   crawler.Kind `json:"kind"`
	Reason string       `json:"reason"`
	Error  string       `json:"error"`
	At     time.Time    `json:"at"`
}

// Summary reports the outcome of a run. Done counts every item checkpointed
// during the run, including records rejected by validation.
type Summary struct {
	RunID              string    `json:"run_id"`
	Discovered         int       `json:"discovered"`
	Done               int       `json:"done"`
	Skipped            int       `json:"skipped"`
	Failed             int       `json:"failed"`
	ValidationWarnings int       `json:"validation_warnings"`
	Persisted          int       `json:"persisted"`
	Failures           []Failure `json:"failures,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at,omitzero"`
	Interrupted        bool      `json:"interrupted"`
}

// Completeness renders finished items over discovered items as a percentage.
func (s Summary) Completeness() string {
	if s.Discovered == 0 {
		return "0/0 (100.0%)"
	}
	finished := s.Done + s.Skipped
	return fmt.Sprintf("%d/%d (%.1f%%)", finished, s.Discovered, 100*float64(finished)/float64(s.Discovered))
}

// OK reports whether every discovered item finished without failure.
func (s Summary) OK() bool {
	return s.Failed == 0 && !s.Interrupted
}

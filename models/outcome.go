package models

// SinkKind identifies a submission destination.
type SinkKind string

const (
	SinkForm  SinkKind = "form"
	SinkSheet SinkKind = "sheet"
)

// SubmissionStatus is the terminal disposition of one (record, sink) pair.
type SubmissionStatus string

const (
	StatusSuccess        SubmissionStatus = "success"
	StatusRetriedSuccess SubmissionStatus = "retried_success"
	StatusFailed         SubmissionStatus = "failed"
)

// SubmissionOutcome records the result of submitting one record to one sink.
// Seq is the record's discovery position within the run so the outcome list
// can be restored to document order after concurrent submission.
type SubmissionOutcome struct {
	Seq      int
	Record   ListingRecord
	Sink     SinkKind
	Status   SubmissionStatus
	Attempts int
	Err      error
}

// RunSummary is the aggregate result of one scrape run. It is the sole
// structured output returned to the caller; rendering is the caller's job.
type RunSummary struct {
	ConfigName string

	Pages        int // listing pages processed
	Scraped      int // raw listings discovered across all pages
	Skipped      int // listings dropped as invalid (missing address or link)
	Deduplicated int // listings dropped as repeat sightings
	Eligible     int // normalized unique records handed to the dispatcher
	Submitted    int // outcomes with a success status
	Failed       int // outcomes with a failed status

	// Outcomes in document discovery order, one per (record, sink) pair.
	Outcomes []SubmissionOutcome
}

// Count folds one outcome into the aggregate counters.
func (s *RunSummary) Count(o SubmissionOutcome) {
	switch o.Status {
	case StatusSuccess, StatusRetriedSuccess:
		s.Submitted++
	case StatusFailed:
		s.Failed++
	}
	s.Outcomes = append(s.Outcomes, o)
}

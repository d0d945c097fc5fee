package constants

// JobStatus is the canonical status for rows in invoice_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued     JobStatus = "queued"     // accepted, waiting for the OCR step
	JobStatusProcessing JobStatus = "processing" // a pipeline step is running (see JobPhase)
	JobStatusCompleted  JobStatus = "completed"  // terminal success
	JobStatusFailed     JobStatus = "failed"     // terminal failure
)

// JobPhase refines JobStatusProcessing; it must be empty for any other status.
type JobPhase string

const (
	PhaseAnalyzingInvoice JobPhase = "analyzing_invoice"
	PhaseExtractingData   JobPhase = "extracting_data"
	PhaseVerifyingData    JobPhase = "verifying_data"
)

// AllStatuses in lifecycle order.
var AllStatuses = []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}

// AllPhases in pipeline order.
var AllPhases = []JobPhase{PhaseAnalyzingInvoice, PhaseExtractingData, PhaseVerifyingData}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is absorbing. Reprocessing a terminal job means
// creating a fresh job, never transitioning out of the old one.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (p JobPhase) Valid() bool {
	switch p {
	case PhaseAnalyzingInvoice, PhaseExtractingData, PhaseVerifyingData:
		return true
	}
	return false
}

// transitions is the closed edge set of the job state machine.
var transitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusProcessing, JobStatusCompleted, JobStatusFailed},
	JobStatusCompleted:  {},
	JobStatusFailed:     {},
}

// CanTransition reports whether from -> to is a legal edge.
// processing -> processing is allowed so independent steps can each claim the
// job without knowing whether an earlier step already did.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

package constants

// JobStatus tracks a watched-folder document through the pipeline.
type JobStatus string

// Stable values (stored as-is in the analyses table).
const (
	JobStatusQueued  JobStatus = "QUEUED"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusOCROK   JobStatus = "OCR_OK"  // text extracted
	JobStatusLLMOK   JobStatus = "LLM_OK"  // analysis produced
	JobStatusFailed  JobStatus = "FAILED"  // terminal failure
)

// ReportStatusSuccess is the status string returned with every completed analysis.
const ReportStatusSuccess = "success"

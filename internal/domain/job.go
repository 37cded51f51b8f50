package domain

// Job state constants
const (
	JobStateIdle        = "idle"
	JobStateActive      = "active"
	JobStateInterrupted = "interrupted"
	JobStateCompleted   = "completed"
	JobStateFailed      = "failed"
)

// DownloadJob represents the single logical download owned by the engine.
// While a transfer is in flight the job is mutated only through the engine's
// serialized event handling; between runs its durable fields live in the
// state store.
type DownloadJob struct {
	// URL is the source being downloaded.
	URL string

	// Token is the opaque resume token captured at the last resumable
	// interruption. Empty when the job cannot be resumed.
	Token []byte

	// Progress counters. TotalBytes is zero until response headers arrive.
	DownloadedBytes int64
	TotalBytes      int64

	// State
	State     string
	LastError string

	// FinalPath is the destination the payload was moved to on completion.
	FinalPath string
}

// NewJob returns an idle job with zeroed counters.
func NewJob() DownloadJob {
	return DownloadJob{State: JobStateIdle}
}

// Resumable returns true if the job carries a resume token.
func (j *DownloadJob) Resumable() bool {
	return len(j.Token) > 0
}

// Progress returns the download ratio in [0,1]. The denominator is clamped
// to at least 1 so an unknown total never divides by zero.
func (j *DownloadJob) Progress() float64 {
	total := j.TotalBytes
	if total < 1 {
		total = 1
	}
	p := float64(j.DownloadedBytes) / float64(total)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// UpdateProgress applies a byte-count event from the live transfer.
func (j *DownloadJob) UpdateProgress(received, expected int64) {
	j.DownloadedBytes = received
	if expected > 0 {
		j.TotalBytes = expected
	}
}

// MarkActive transitions the job to the active state for a new transfer.
func (j *DownloadJob) MarkActive() {
	j.State = JobStateActive
	j.LastError = ""
	j.FinalPath = ""
}

// MarkInterrupted records a resumable interruption. A nil token still moves
// the job out of the active state so callers never believe partial data is
// safe when no token could be produced.
func (j *DownloadJob) MarkInterrupted(token []byte) {
	j.State = JobStateInterrupted
	j.Token = token
}

// MarkFailed records a non-resumable failure. The job is intentionally not
// reset; the caller must re-initiate.
func (j *DownloadJob) MarkFailed(msg string) {
	j.State = JobStateFailed
	j.LastError = msg
	j.Token = nil
}

// MarkCompleted records successful completion and discards resume state.
func (j *DownloadJob) MarkCompleted(finalPath string) {
	j.State = JobStateCompleted
	j.FinalPath = finalPath
	j.Token = nil
	if j.TotalBytes == 0 {
		j.TotalBytes = j.DownloadedBytes
	}
}

// Reset returns the job to a fresh idle state with zero progress.
func (j *DownloadJob) Reset() {
	*j = NewJob()
}

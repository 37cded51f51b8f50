package domain

import (
	"testing"
)

func TestDownloadJob_Progress(t *testing.T) {
	tests := []struct {
		name       string
		downloaded int64
		total      int64
		want       float64
	}{
		{
			name:       "zero of zero",
			downloaded: 0,
			total:      0,
			want:       0,
		},
		{
			name:       "half way",
			downloaded: 50,
			total:      100,
			want:       0.5,
		},
		{
			name:       "complete",
			downloaded: 100,
			total:      100,
			want:       1,
		},
		{
			name:       "unknown total clamps denominator to one",
			downloaded: 1024,
			total:      0,
			want:       1,
		},
		{
			name:       "overshoot clamps to one",
			downloaded: 150,
			total:      100,
			want:       1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := NewJob()
			j.DownloadedBytes = tt.downloaded
			j.TotalBytes = tt.total
			if got := j.Progress(); got != tt.want {
				t.Errorf("Progress() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDownloadJob_Lifecycle(t *testing.T) {
	j := NewJob()
	if j.State != JobStateIdle {
		t.Fatalf("new job state = %q, want %q", j.State, JobStateIdle)
	}

	j.URL = "http://example.com/file.bin"
	j.MarkActive()
	if j.State != JobStateActive {
		t.Fatalf("after MarkActive state = %q, want %q", j.State, JobStateActive)
	}

	j.UpdateProgress(50, 100)
	if j.DownloadedBytes != 50 || j.TotalBytes != 100 {
		t.Errorf("UpdateProgress = (%d, %d), want (50, 100)", j.DownloadedBytes, j.TotalBytes)
	}

	j.MarkInterrupted([]byte("token"))
	if j.State != JobStateInterrupted {
		t.Errorf("after MarkInterrupted state = %q, want %q", j.State, JobStateInterrupted)
	}
	if !j.Resumable() {
		t.Error("expected job to be resumable after interruption with token")
	}

	j.MarkActive()
	j.UpdateProgress(100, 100)
	j.MarkCompleted("/downloads/file.bin")
	if j.State != JobStateCompleted {
		t.Errorf("after MarkCompleted state = %q, want %q", j.State, JobStateCompleted)
	}
	if j.Resumable() {
		t.Error("completed job must not retain a resume token")
	}
	if j.Progress() != 1 {
		t.Errorf("completed progress = %v, want 1", j.Progress())
	}
}

func TestDownloadJob_InterruptedWithoutToken(t *testing.T) {
	j := NewJob()
	j.MarkActive()
	j.UpdateProgress(10, 100)

	// No token could be produced: the job still leaves the active state so
	// the caller never believes partial data is safe.
	j.MarkInterrupted(nil)
	if j.State != JobStateInterrupted {
		t.Errorf("state = %q, want %q", j.State, JobStateInterrupted)
	}
	if j.Resumable() {
		t.Error("job without token must not report resumable")
	}
}

func TestDownloadJob_UpdateProgressKeepsKnownTotal(t *testing.T) {
	j := NewJob()
	j.MarkActive()
	j.UpdateProgress(10, 100)
	j.UpdateProgress(20, 0)
	if j.TotalBytes != 100 {
		t.Errorf("TotalBytes = %d, want 100 (unknown expected must not clobber)", j.TotalBytes)
	}
}

func TestDownloadJob_Reset(t *testing.T) {
	j := NewJob()
	j.URL = "http://example.com/file.bin"
	j.MarkActive()
	j.UpdateProgress(50, 100)
	j.MarkInterrupted([]byte("token"))

	j.Reset()

	if j.State != JobStateIdle {
		t.Errorf("state = %q, want %q", j.State, JobStateIdle)
	}
	if j.DownloadedBytes != 0 || j.TotalBytes != 0 {
		t.Errorf("byte counts = (%d, %d), want zero", j.DownloadedBytes, j.TotalBytes)
	}
	if j.Resumable() || j.URL != "" {
		t.Error("reset must discard token and url")
	}
}

func TestDownloadJob_MarkFailed(t *testing.T) {
	j := NewJob()
	j.MarkActive()
	j.UpdateProgress(30, 100)
	j.MarkFailed("download failed: connection reset")

	if j.State != JobStateFailed {
		t.Errorf("state = %q, want %q", j.State, JobStateFailed)
	}
	if j.LastError == "" {
		t.Error("failed job must expose an error description")
	}
	if j.Resumable() {
		t.Error("non-resumable failure must not retain a token")
	}
	// Job is not reset automatically; the caller must re-initiate.
	if j.DownloadedBytes != 30 {
		t.Errorf("DownloadedBytes = %d, want 30", j.DownloadedBytes)
	}
}

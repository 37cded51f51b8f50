package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/wrenware/resume-fetch/internal/domain"
)

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   []string
	}{
		{
			name: "active includes percentage and MB counts",
			status: Status{
				State:           domain.JobStateActive,
				Progress:        0.5,
				DownloadedBytes: 5 * 1048576,
				TotalBytes:      10 * 1048576,
			},
			want: []string{"downloading", "50.0%", "5.0 MB", "10.0 MB"},
		},
		{
			name: "interrupted resumable",
			status: Status{
				State:           domain.JobStateInterrupted,
				Progress:        0.25,
				DownloadedBytes: 1048576,
				Resumable:       true,
			},
			want: []string{"interrupted", "1.0 MB", "resumable"},
		},
		{
			name: "interrupted without token omits resumable",
			status: Status{
				State:    domain.JobStateInterrupted,
				Progress: 0.25,
			},
			want: []string{"interrupted"},
		},
		{
			name: "completed",
			status: Status{
				State:           domain.JobStateCompleted,
				Progress:        1,
				DownloadedBytes: 2 * 1048576,
			},
			want: []string{"completed", "100.0%", "2.0 MB"},
		},
		{
			name:   "failed includes error text",
			status: Status{State: domain.JobStateFailed, Error: "download failed: boom"},
			want:   []string{"failed", "boom"},
		},
		{
			name:   "idle",
			status: Status{State: domain.JobStateIdle},
			want:   []string{"idle"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatStatus(tt.status)
			for _, fragment := range tt.want {
				if !strings.Contains(got, fragment) {
					t.Errorf("formatStatus() = %q, want it to contain %q", got, fragment)
				}
			}
		})
	}

	// resumable must not leak into the non-resumable message
	msg := formatStatus(Status{State: domain.JobStateInterrupted})
	if strings.Contains(msg, "resumable") {
		t.Errorf("non-resumable interruption message %q must not claim resumable", msg)
	}
}

func TestToMB(t *testing.T) {
	if got := toMB(1048576); got != 1.0 {
		t.Errorf("toMB(1048576) = %v, want 1.0", got)
	}
	if got := toMB(0); got != 0.0 {
		t.Errorf("toMB(0) = %v, want 0", got)
	}
}

func TestPublisher_DeliversToSubscribers(t *testing.T) {
	p := NewPublisher(5 * time.Millisecond)
	defer p.Close()

	sub := p.Subscribe()
	p.Publish(Status{State: domain.JobStateActive, Downloading: true, Progress: 0.5})

	select {
	case s := <-sub:
		if s.State != domain.JobStateActive {
			t.Errorf("received state %q, want active", s.State)
		}
		if s.Message == "" {
			t.Error("published status must carry a formatted message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the status")
	}
}

func TestPublisher_NeverBlocksPublisher(t *testing.T) {
	p := NewPublisher(time.Hour) // ticker effectively disabled
	defer p.Close()

	// Subscriber that never reads.
	p.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			state := domain.JobStateActive
			if i%2 == 0 {
				state = domain.JobStateInterrupted
			}
			p.Publish(Status{State: state, Progress: float64(i) / 1000})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestPublisher_StateTransitionFlushesImmediately(t *testing.T) {
	p := NewPublisher(time.Hour) // ticker effectively disabled
	defer p.Close()

	sub := p.Subscribe()
	p.Publish(Status{State: domain.JobStateActive})
	p.Publish(Status{State: domain.JobStateCompleted, Progress: 1})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-sub:
			if s.State == domain.JobStateCompleted {
				return
			}
		case <-deadline:
			t.Fatal("completed status never flushed despite the transition")
		}
	}
}

func TestPublisher_LatestAfterClose(t *testing.T) {
	p := NewPublisher(time.Hour)
	p.Publish(Status{State: domain.JobStateCompleted, Progress: 1})
	p.Close()

	if got := p.Latest(); got.State != domain.JobStateCompleted {
		t.Errorf("Latest() state = %q, want completed (close must flush)", got.State)
	}

	// Subscribing after close yields a closed channel, not a hang.
	sub := p.Subscribe()
	select {
	case _, ok := <-sub:
		if ok {
			t.Error("subscription after close should be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription after close should not block")
	}
}

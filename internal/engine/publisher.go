package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/wrenware/resume-fetch/internal/domain"
)

const (
	defaultPublishInterval = 200 * time.Millisecond
	subscriberBuffer       = 16
)

// Status is the observable surface exposed to the presentation layer.
type Status struct {
	State           string
	Progress        float64
	Message         string
	Downloading     bool
	DownloadedBytes int64
	TotalBytes      int64
	Resumable       bool
	Error           string
}

// Publisher converts raw status snapshots into a throttled stream for
// subscribers. Publication happens on the publisher's own goroutine; the
// context delivering network events is never blocked by observers. That
// decoupling is a hard boundary, not a performance tweak.
type Publisher struct {
	interval time.Duration

	mu         sync.Mutex
	pending    Status
	hasPending bool
	lastSeen   Status
	latest     Status
	subs       []chan Status
	closed     bool

	kick chan struct{}
	quit chan struct{}
	done chan struct{}
}

// NewPublisher creates a publisher flushing at most once per interval,
// except that state transitions flush immediately.
func NewPublisher(interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = defaultPublishInterval
	}
	p := &Publisher{
		interval: interval,
		kick:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish hands a status snapshot to the publisher. It never blocks: a
// newer snapshot simply replaces an unflushed older one.
func (p *Publisher) Publish(s Status) {
	p.mu.Lock()
	transition := s.State != p.lastSeen.State || s.Downloading != p.lastSeen.Downloading
	p.pending = s
	p.hasPending = true
	p.lastSeen = s
	p.mu.Unlock()

	if transition {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers an observer. Slow subscribers lose the oldest pending
// update rather than blocking the publisher.
func (p *Publisher) Subscribe() <-chan Status {
	ch := make(chan Status, subscriberBuffer)
	p.mu.Lock()
	if p.closed {
		close(ch)
	} else {
		p.subs = append(p.subs, ch)
	}
	p.mu.Unlock()
	return ch
}

// Latest returns the most recently flushed status.
func (p *Publisher) Latest() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Close flushes any pending status and closes subscriber channels.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.quit)
	<-p.done

	p.mu.Lock()
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

func (p *Publisher) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			// final state reaches subscribers before shutdown
			p.flush()
			return
		case <-ticker.C:
			p.flush()
		case <-p.kick:
			p.flush()
		}
	}
}

func (p *Publisher) flush() {
	p.mu.Lock()
	if !p.hasPending {
		p.mu.Unlock()
		return
	}
	s := p.pending
	p.hasPending = false
	if s.Message == "" {
		s.Message = formatStatus(s)
	}
	p.latest = s
	subs := append([]chan Status(nil), p.subs...)
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
			// drop the oldest pending update, never block the sender
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// formatStatus renders the display string with percentage and byte counts.
func formatStatus(s Status) string {
	switch s.State {
	case domain.JobStateActive:
		return fmt.Sprintf("downloading %.1f%% (%.1f MB / %.1f MB)",
			s.Progress*100, toMB(s.DownloadedBytes), toMB(s.TotalBytes))
	case domain.JobStateInterrupted:
		if s.Resumable {
			return fmt.Sprintf("interrupted at %.1f MB (%.1f%%), resumable",
				toMB(s.DownloadedBytes), s.Progress*100)
		}
		return fmt.Sprintf("interrupted at %.1f MB (%.1f%%)",
			toMB(s.DownloadedBytes), s.Progress*100)
	case domain.JobStateCompleted:
		return fmt.Sprintf("completed 100.0%% (%.1f MB)", toMB(s.DownloadedBytes))
	case domain.JobStateFailed:
		if s.Error != "" {
			return "failed: " + s.Error
		}
		return "failed"
	default:
		return "idle"
	}
}

// toMB converts bytes to megabytes (1 MB = 1,048,576 bytes).
func toMB(b int64) float64 {
	return float64(b) / (1 << 20)
}

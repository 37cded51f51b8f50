package engine

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wrenware/resume-fetch/internal/domain"
	"github.com/wrenware/resume-fetch/internal/port"
)

// State store keys forming the persisted resume record.
const (
	stateKeyURL   = "download.url"
	stateKeyToken = "download.token"
)

// Options configures the engine
type Options struct {
	// DownloadDir is the final destination directory for completed
	// payloads.
	DownloadDir string

	// PublishInterval throttles raw progress publication. State
	// transitions always publish immediately.
	PublishInterval time.Duration
}

// Engine owns the single logical download: it issues transfers through the
// transport, serializes all job mutations behind one mutex, persists resume
// state across restarts, and publishes observable status.
//
// Construct once per process with New; Close flushes a pending resume token
// before teardown.
type Engine struct {
	transport port.Transport
	store     port.StateStore
	logger    *zap.Logger
	publisher *Publisher
	finalizer *Finalizer

	mu  sync.Mutex
	job domain.DownloadJob

	// current identifies the one authorized live transfer; events bearing
	// any other identity are dropped. generation counts bindings for
	// logging.
	current    port.TransferID
	generation uint64

	quit      chan struct{}
	pumpDone  chan struct{}
	closeOnce sync.Once
}

// New constructs the engine. Any persisted resume record is loaded so a
// restarted process can offer "resume" instead of re-prompting for a URL.
func New(transport port.Transport, store port.StateStore, logger *zap.Logger, opts Options) (*Engine, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("download dir is required")
	}

	e := &Engine{
		transport: transport,
		store:     store,
		logger:    logger,
		publisher: NewPublisher(opts.PublishInterval),
		finalizer: NewFinalizer(opts.DownloadDir, logger),
		job:       domain.NewJob(),
		quit:      make(chan struct{}),
		pumpDone:  make(chan struct{}),
	}

	if err := e.loadPersisted(); err != nil {
		logger.Warn("failed to load persisted resume record", zap.Error(err))
	}

	go e.pump()

	e.mu.Lock()
	e.publishLocked()
	e.mu.Unlock()

	return e, nil
}

// Start begins downloading url. An empty url resumes or restarts the job's
// stored URL. When a resume token exists the persisted download takes
// precedence over a newly supplied url: the engine finishes what it started
// before accepting a new target. A start while a transfer is already active
// is a no-op.
func (e *Engine) Start(rawURL string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.State == domain.JobStateActive {
		// guard against duplicate starts from rapid repeated triggers
		return nil
	}

	if e.job.Resumable() {
		if rawURL != "" && rawURL != e.job.URL {
			e.logger.Info("resume pending, ignoring new url",
				zap.String("pending", e.job.URL),
				zap.String("ignored", rawURL))
		}
		id, err := e.transport.IssueResumed(e.job.Token)
		if err == nil {
			e.bindTransfer(id)
			return nil
		}
		e.logger.Warn("resume failed, starting fresh", zap.Error(err))
		e.job.Token = nil
		if derr := e.store.Delete(stateKeyToken); derr != nil {
			e.logger.Warn("failed to delete stale resume token", zap.Error(derr))
		}
		rawURL = e.job.URL
	}

	if rawURL == "" {
		rawURL = e.job.URL
	}
	if rawURL == "" {
		return domain.ErrNothingToStart
	}

	if err := validateSource(rawURL); err != nil {
		e.job.MarkFailed("invalid source URL")
		e.publishLocked()
		return err
	}

	id, err := e.transport.IssueNew(rawURL)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSource) {
			e.job.MarkFailed("invalid source URL")
		} else {
			e.job.MarkFailed("could not start download: " + err.Error())
		}
		e.publishLocked()
		return err
	}

	e.job.URL = rawURL
	e.job.DownloadedBytes = 0
	e.job.TotalBytes = 0
	e.bindTransfer(id)

	if werr := e.store.Write(stateKeyURL, []byte(rawURL)); werr != nil {
		e.logger.Warn("failed to persist source url", zap.Error(werr))
	}
	return nil
}

// Pause cancels the live transfer while asking the transport to capture a
// resume token, which is persisted on success. A nil token still leaves the
// job interrupted so the caller never believes partial data is safe.
func (e *Engine) Pause() ([]byte, error) {
	e.mu.Lock()
	if e.job.State != domain.JobStateActive || e.current == "" {
		e.mu.Unlock()
		return nil, domain.ErrNoActiveTransfer
	}
	id := e.current
	e.current = ""
	e.mu.Unlock()

	// The lock is released here: the transport may deliver one trailing
	// event for the outgoing identity while Cancel waits, and the pump must
	// stay free to drain (and drop) it.
	token, err := e.transport.Cancel(id, true)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.logger.Warn("pause could not capture resume token", zap.Error(err))
		token = nil
	}
	e.job.MarkInterrupted(token)
	if token != nil {
		e.persistRecordLocked()
	}
	e.publishLocked()
	return token, nil
}

// Cancel unconditionally tears down the transfer, discards any resume
// token, removes the persisted record, and resets the job to a fresh idle
// state with zero progress.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	id := e.current
	e.current = ""
	e.job.Reset()
	e.mu.Unlock()

	if id != "" {
		if _, err := e.transport.Cancel(id, false); err != nil {
			e.logger.Warn("transfer teardown failed", zap.Error(err))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.purgeRecordLocked()
	e.publishLocked()
	return nil
}

// Reconnect reconciles the engine with transfers that kept running while
// the process was suspended. If a live transfer exists it is bound as the
// current identity. onReady is invoked once reconciliation completes so the
// host environment knows it may suspend the process again.
func (e *Engine) Reconnect(onReady func()) {
	e.mu.Lock()
	live := e.transport.Live()
	if len(live) > 0 && e.current == "" {
		e.generation++
		e.current = live[0]
		e.job.MarkActive()
		e.logger.Info("rebound live transfer",
			zap.String("transfer", string(live[0])),
			zap.Uint64("generation", e.generation))
		e.publishLocked()
	}
	e.mu.Unlock()

	if onReady != nil {
		onReady()
	}
}

// Status returns the current observable snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// Subscribe registers an observer for status updates.
func (e *Engine) Subscribe() <-chan Status {
	return e.publisher.Subscribe()
}

// Close flushes a pending resume token for an active transfer, then stops
// the event pump and the publisher.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		active := e.job.State == domain.JobStateActive && e.current != ""
		e.mu.Unlock()

		if active {
			if _, perr := e.Pause(); perr != nil && !errors.Is(perr, domain.ErrNoActiveTransfer) {
				err = perr
			}
		}

		close(e.quit)
		<-e.pumpDone
		e.publisher.Close()
	})
	return err
}

// pump applies transport events to the job on the engine's serialized
// context.
func (e *Engine) pump() {
	defer close(e.pumpDone)

	events := e.transport.Events()
	for {
		select {
		case <-e.quit:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handleEvent(ev)
		}
	}
}

// handleEvent applies one transfer event. Events whose identity does not
// match the current transfer are dropped; the underlying task may have been
// cancelled or resurrected independently of the caller's own request.
func (e *Engine) handleEvent(ev port.TransferEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ev.ID != e.current {
		e.logger.Debug("dropping event for stale transfer",
			zap.String("transfer", string(ev.ID)))
		return
	}

	switch ev.Kind {
	case port.EventProgress:
		e.job.UpdateProgress(ev.BytesReceived, ev.BytesExpected)
		e.publishLocked()

	case port.EventCompleted:
		e.current = ""
		if ev.BytesReceived > 0 {
			e.job.DownloadedBytes = ev.BytesReceived
		}
		final, err := e.finalizer.Finalize(ev.TempPath, e.job.URL)
		if err != nil {
			// Bytes were fully received; the finalize failure is logged and
			// the job still completes. Documented trade-off.
			e.logger.Error("finalize failed",
				zap.String("temp", ev.TempPath),
				zap.Error(err))
		}
		e.job.MarkCompleted(final)
		e.purgeRecordLocked()
		e.publishLocked()

	case port.EventFailed:
		e.current = ""
		ferr := classifyFailure(ev)
		switch {
		case domain.IsCancelled(ferr):
			// User-initiated teardown is never surfaced as an error; the
			// job silently returns to idle.
			e.job.Reset()

		case domain.IsResumable(ferr):
			e.job.MarkInterrupted(ev.Token)
			e.persistRecordLocked()
			e.logger.Info("transfer interrupted, resume token stored",
				zap.Int64("downloaded", e.job.DownloadedBytes),
				zap.Error(ferr))

		default:
			msg := "download failed"
			if ev.Err != nil {
				msg = "download failed: " + ev.Err.Error()
			}
			e.job.MarkFailed(msg)
			e.logger.Error("transfer failed", zap.Error(ferr))
		}
		e.publishLocked()
	}
}

// classifyFailure folds a failed transfer event into the failure taxonomy:
// cancellations are silent, a captured token marks the failure resumable,
// anything else is unrecoverable.
func classifyFailure(ev port.TransferEvent) *domain.TransferError {
	switch {
	case ev.Cancelled:
		return domain.NewTransferError(domain.FailureCancelled, ev.Err)
	case len(ev.Token) > 0:
		return domain.NewTransferError(domain.FailureResumable, ev.Err)
	default:
		return domain.NewTransferError(domain.FailureUnrecoverable, ev.Err)
	}
}

// bindTransfer records id as the one authorized live transfer.
func (e *Engine) bindTransfer(id port.TransferID) {
	e.generation++
	e.current = id
	e.job.MarkActive()
	e.logger.Info("transfer started",
		zap.String("url", e.job.URL),
		zap.String("transfer", string(id)),
		zap.Uint64("generation", e.generation))
	e.publishLocked()
}

func (e *Engine) loadPersisted() error {
	urlBytes, urlOK, err := e.store.Read(stateKeyURL)
	if err != nil {
		return err
	}
	token, tokenOK, err := e.store.Read(stateKeyToken)
	if err != nil {
		return err
	}

	if urlOK {
		e.job.URL = string(urlBytes)
	}
	if tokenOK && len(token) > 0 {
		e.job.Token = token
		e.job.State = domain.JobStateInterrupted
		e.logger.Info("loaded persisted resume record", zap.String("url", e.job.URL))
	}
	return nil
}

func (e *Engine) persistRecordLocked() {
	if err := e.store.Write(stateKeyURL, []byte(e.job.URL)); err != nil {
		e.logger.Error("failed to persist source url", zap.Error(err))
	}
	if err := e.store.Write(stateKeyToken, e.job.Token); err != nil {
		e.logger.Error("failed to persist resume token", zap.Error(err))
	}
}

func (e *Engine) purgeRecordLocked() {
	for _, key := range []string{stateKeyToken, stateKeyURL} {
		if err := e.store.Delete(key); err != nil {
			e.logger.Warn("failed to delete state key",
				zap.String("key", key), zap.Error(err))
		}
	}
}

func (e *Engine) statusLocked() Status {
	s := Status{
		State:           e.job.State,
		Progress:        e.job.Progress(),
		Downloading:     e.job.State == domain.JobStateActive,
		DownloadedBytes: e.job.DownloadedBytes,
		TotalBytes:      e.job.TotalBytes,
		Resumable:       e.job.Resumable(),
		Error:           e.job.LastError,
	}
	s.Message = formatStatus(s)
	return s
}

func (e *Engine) publishLocked() {
	e.publisher.Publish(e.statusLocked())
}

// validateSource rejects URLs the transport could never fetch.
func validateSource(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSource, raw)
	}
	return nil
}

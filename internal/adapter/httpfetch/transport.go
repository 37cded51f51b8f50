package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wrenware/resume-fetch/internal/domain"
	"github.com/wrenware/resume-fetch/internal/port"
)

const (
	defaultBufferSize = 256 * 1024
	eventBuffer       = 64
	spoolSuffix       = ".part"
)

// Config configures the HTTP transport
type Config struct {
	// SpoolDir is where partial payloads are written.
	SpoolDir string

	// BufferSize is the copy buffer size in bytes.
	BufferSize int

	// UserAgent is sent with every request when non-empty.
	UserAgent string

	// Client overrides the HTTP client. Timeouts for stalled transfers are
	// left to the client's own defaults.
	Client *http.Client
}

// Transport downloads files over HTTP(S) with range-based resume. It
// implements port.Transport.
type Transport struct {
	client     *http.Client
	spoolDir   string
	bufferSize int
	userAgent  string
	logger     *zap.Logger
	events     chan port.TransferEvent

	mu    sync.Mutex
	tasks map[port.TransferID]*task
}

// Ensure Transport implements port.Transport
var _ port.Transport = (*Transport)(nil)

// task tracks one live transfer goroutine.
type task struct {
	id       port.TransferID
	url      string
	tempPath string

	// Written only by the run goroutine; read by Cancel after done closes.
	etag         string
	lastModified string
	total        int64
	written      int64

	userCancel atomic.Bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates an HTTP transport spooling partial payloads under
// cfg.SpoolDir.
func New(cfg Config, logger *zap.Logger) (*Transport, error) {
	if cfg.SpoolDir == "" {
		return nil, fmt.Errorf("spool dir is required")
	}
	if err := os.MkdirAll(cfg.SpoolDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool dir: %w", err)
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &Transport{
		client:     client,
		spoolDir:   cfg.SpoolDir,
		bufferSize: bufferSize,
		userAgent:  cfg.UserAgent,
		logger:     logger,
		events:     make(chan port.TransferEvent, eventBuffer),
		tasks:      make(map[port.TransferID]*task),
	}, nil
}

// Events returns the transfer event delivery channel
func (t *Transport) Events() <-chan port.TransferEvent {
	return t.events
}

// Live enumerates transfers that are still running
func (t *Transport) Live() []port.TransferID {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]port.TransferID, 0, len(t.tasks))
	for id := range t.tasks {
		ids = append(ids, id)
	}
	return ids
}

// IssueNew starts a fresh transfer for rawURL
func (t *Transport) IssueNew(rawURL string) (port.TransferID, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidSource, rawURL)
	}

	id := port.TransferID(uuid.NewString())
	tk := &task{
		id:       id,
		url:      rawURL,
		tempPath: filepath.Join(t.spoolDir, spoolName(u, id)),
		done:     make(chan struct{}),
	}
	t.launch(tk, 0)
	return id, nil
}

// IssueResumed continues a partial transfer from a resume token
func (t *Transport) IssueResumed(raw []byte) (port.TransferID, error) {
	tok, err := decodeToken(raw)
	if err != nil {
		return "", err
	}

	// The temp file is the source of truth for the offset; a vanished file
	// falls back to a fresh transfer of the token's URL.
	var offset int64
	if info, statErr := os.Stat(tok.TempPath); statErr == nil {
		offset = info.Size()
	}

	id := port.TransferID(uuid.NewString())
	tk := &task{
		id:           id,
		url:          tok.URL,
		tempPath:     tok.TempPath,
		etag:         tok.ETag,
		lastModified: tok.LastModified,
		total:        tok.TotalBytes,
		done:         make(chan struct{}),
	}
	t.launch(tk, offset)
	return id, nil
}

// Cancel tears down a live transfer, optionally capturing a resume token
func (t *Transport) Cancel(id port.TransferID, produceToken bool) ([]byte, error) {
	t.mu.Lock()
	tk := t.tasks[id]
	t.mu.Unlock()

	if tk == nil {
		// Already terminal; there is nothing left to capture.
		return nil, nil
	}

	tk.userCancel.Store(true)
	tk.cancel()
	<-tk.done

	if !produceToken {
		if err := os.Remove(tk.tempPath); err != nil && !os.IsNotExist(err) {
			t.logger.Warn("failed to remove spool file", zap.String("path", tk.tempPath), zap.Error(err))
		}
		return nil, nil
	}
	return t.captureToken(tk), nil
}

// Close cancels all live transfers and waits for their goroutines to exit
func (t *Transport) Close() {
	t.mu.Lock()
	tasks := make([]*task, 0, len(t.tasks))
	for _, tk := range t.tasks {
		tasks = append(tasks, tk)
	}
	t.mu.Unlock()

	for _, tk := range tasks {
		tk.userCancel.Store(true)
		tk.cancel()
		<-tk.done
	}
}

// CleanSpool removes partial payloads older than the specified duration.
// Returns the number of files deleted.
func (t *Transport) CleanSpool(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(t.spoolDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(p, spoolSuffix) && info.ModTime().Before(threshold) {
			if removeErr := os.Remove(p); removeErr == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (t *Transport) launch(tk *task, offset int64) {
	ctx, cancel := context.WithCancel(context.Background())
	tk.cancel = cancel

	t.mu.Lock()
	t.tasks[tk.id] = tk
	t.mu.Unlock()

	go t.run(ctx, tk, offset)
}

func (t *Transport) unregister(id port.TransferID) {
	t.mu.Lock()
	delete(t.tasks, id)
	t.mu.Unlock()
}

// run executes one transfer and emits exactly one terminal event. No
// progress event follows the terminal one for the same identity.
func (t *Transport) run(ctx context.Context, tk *task, offset int64) {
	defer close(tk.done)

	err := t.fetch(ctx, tk, offset)
	t.unregister(tk.id)

	if err == nil {
		t.events <- port.TransferEvent{
			ID:            tk.id,
			Kind:          port.EventCompleted,
			TempPath:      tk.tempPath,
			BytesReceived: tk.written,
			BytesExpected: tk.total,
		}
		return
	}

	if tk.userCancel.Load() {
		// Teardown came through Cancel, which already holds the outcome.
		// The trailing event is dropped by the engine's identity check.
		t.events <- port.TransferEvent{
			ID:        tk.id,
			Kind:      port.EventFailed,
			Err:       domain.ErrCancelled,
			Cancelled: true,
		}
		return
	}

	t.logger.Warn("transfer failed",
		zap.String("url", tk.url),
		zap.Int64("written", tk.written),
		zap.Error(err))

	t.events <- port.TransferEvent{
		ID:    tk.id,
		Kind:  port.EventFailed,
		Err:   err,
		Token: t.captureToken(tk),
	}
}

// fetch streams the response body into the spool file, resuming from offset
// when the server honors the range request.
func (t *Transport) fetch(ctx context.Context, tk *task, offset int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tk.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		if v := tk.validator(); v != "" {
			req.Header.Set("If-Range", v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var f *os.File
	switch {
	case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		f, err = os.OpenFile(tk.tempPath, os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open spool file for resume: %w", err)
		}
		tk.written = offset
		if total, ok := contentRangeTotal(resp.Header.Get("Content-Range")); ok {
			tk.total = total
		} else if resp.ContentLength > 0 {
			tk.total = offset + resp.ContentLength
		}

	case resp.StatusCode == http.StatusOK:
		// A resumed request landing here means the remote object changed
		// (If-Range mismatch) or the server ignored the range; the transfer
		// restarts from byte zero.
		f, err = os.Create(tk.tempPath)
		if err != nil {
			return fmt.Errorf("create spool file: %w", err)
		}
		tk.written = 0
		tk.total = 0
		if resp.ContentLength > 0 {
			tk.total = resp.ContentLength
		}

	default:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if et := resp.Header.Get("ETag"); et != "" {
		tk.etag = et
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		tk.lastModified = lm
	}

	buf := make([]byte, t.bufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				return fmt.Errorf("spool write: %w", werr)
			}
			tk.written += int64(n)
			t.emitProgress(ctx, tk)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			return rerr
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("spool close: %w", err)
	}
	return nil
}

// emitProgress sends a progress event without wedging a cancelled transfer
// on a full channel.
func (t *Transport) emitProgress(ctx context.Context, tk *task) {
	ev := port.TransferEvent{
		ID:            tk.id,
		Kind:          port.EventProgress,
		BytesReceived: tk.written,
		BytesExpected: tk.total,
	}
	select {
	case t.events <- ev:
	case <-ctx.Done():
	}
}

// captureToken builds a resume token from whatever landed in the spool
// file. Returns nil when no recoverable data exists.
func (t *Transport) captureToken(tk *task) []byte {
	info, err := os.Stat(tk.tempPath)
	if err != nil || info.Size() == 0 {
		return nil
	}

	raw, err := encodeToken(&resumeToken{
		URL:          tk.url,
		TempPath:     tk.tempPath,
		Offset:       info.Size(),
		ETag:         tk.etag,
		LastModified: tk.lastModified,
		TotalBytes:   tk.total,
	})
	if err != nil {
		t.logger.Error("failed to encode resume token", zap.Error(err))
		return nil
	}
	return raw
}

func (tk *task) validator() string {
	if tk.etag != "" {
		return tk.etag
	}
	return tk.lastModified
}

// spoolName derives a spool file name from the URL's trailing path segment
// plus a short identity suffix so stale parts never collide.
func spoolName(u *url.URL, id port.TransferID) string {
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		base = "download"
	}
	suffix := string(id)
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return base + "." + suffix + spoolSuffix
}

// contentRangeTotal parses the total size out of a Content-Range header
// such as "bytes 100-199/1000". Returns false when the total is unknown.
func contentRangeTotal(header string) (int64, bool) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return 0, false
	}
	totalPart := header[idx+1:]
	if totalPart == "*" || totalPart == "" {
		return 0, false
	}
	total, err := strconv.ParseInt(totalPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

package engine

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wrenware/resume-fetch/internal/domain"
)

// DefaultFileName is used when the source URL has no trailing path segment.
const DefaultFileName = "download"

// Finalizer atomically relocates a fully received payload into the
// download directory.
type Finalizer struct {
	downloadDir string
	logger      *zap.Logger
}

// NewFinalizer creates a finalizer placing payloads under downloadDir.
func NewFinalizer(downloadDir string, logger *zap.Logger) *Finalizer {
	return &Finalizer{downloadDir: downloadDir, logger: logger}
}

// Finalize moves tempPath to its final destination, named from the source
// URL's trailing path segment and overwriting any prior file of the same
// name. The destination directory is created when missing.
func (f *Finalizer) Finalize(tempPath, sourceURL string) (string, error) {
	dest := filepath.Join(f.downloadDir, destinationName(sourceURL))

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return dest, fmt.Errorf("%w: %v", domain.ErrFinalizeFailed, err)
	}
	if err := os.Rename(tempPath, dest); err != nil {
		return dest, fmt.Errorf("%w: %v", domain.ErrFinalizeFailed, err)
	}

	f.logger.Info("payload finalized", zap.String("dest", dest))
	return dest, nil
}

// destinationName derives the final file name from the source URL.
func destinationName(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return DefaultFileName
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return DefaultFileName
	}
	return base
}

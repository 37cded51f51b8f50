package httpfetch

import (
	"encoding/json"
	"fmt"
)

// resumeToken captures enough transport state to continue an interrupted
// transfer without restarting from byte zero. It is opaque to the engine;
// only this transport reads it back.
type resumeToken struct {
	URL          string `json:"url"`
	TempPath     string `json:"temp_path"`
	Offset       int64  `json:"offset"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	TotalBytes   int64  `json:"total_bytes,omitempty"`
}

func encodeToken(t *resumeToken) ([]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resume token: %w", err)
	}
	return raw, nil
}

func decodeToken(raw []byte) (*resumeToken, error) {
	var t resumeToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to decode resume token: %w", err)
	}
	if t.URL == "" || t.TempPath == "" {
		return nil, fmt.Errorf("resume token missing url or temp path")
	}
	return &t, nil
}

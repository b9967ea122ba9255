// Package decisionlog writes one JSON line per replacement decision.
package decisionlog

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Verdict string

const (
	VerdictReplaced Verdict = "replaced"
	VerdictNotAd    Verdict = "not_ad"
	VerdictSkipped  Verdict = "skipped"
	VerdictNoText   Verdict = "no_content"
	VerdictFailed   Verdict = "publish_failed"
)

type Entry struct {
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"request_id,omitempty"`
	CorrelationID   string    `json:"correlation_id"`
	OriginContextID string    `json:"origin_context_id"`
	Selector        string    `json:"selector"`
	RuleMatch       bool      `json:"rule_match"`
	Available       bool      `json:"classifier_available"`
	Confidence      *float64  `json:"confidence,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Verdict         Verdict   `json:"verdict"`
	LatencyMs       int64     `json:"latency_ms"`
}

type Logger struct {
	writer io.Writer
	mu     sync.Mutex
}

func New(w io.Writer) *Logger {
	return &Logger{writer: w}
}

// NewFile appends to path, creating it and its directory as needed.
func NewFile(path string) (*Logger, io.Closer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, err
	}

	cleanPath := filepath.Clean(path)
	f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, nil, err
	}
	return New(f), f, nil
}

// Log is safe for concurrent use and a no-op on a nil Logger.
func (l *Logger) Log(entry Entry) {
	if l == nil {
		return
	}
	entry.Timestamp = time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := json.NewEncoder(l.writer).Encode(entry); err != nil {
		slog.Error("failed to write decision log entry", "error", err)
	}
}

package logging

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/goccy/go-json"
)

var safeThreadID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`) //nolint:gochecknoglobals // Compiled once

// ThreadLogWriter passes every entry to its target and additionally appends
// entries that carry a thread_id field to <dir>/<thread_id>.log, so a single
// session's trace can be read without grepping the global log.
type ThreadLogWriter struct {
	dir    string
	target io.Writer
	mu     sync.Mutex
}

// NewThreadLogWriter creates a ThreadLogWriter.
func NewThreadLogWriter(dir string, target io.Writer) *ThreadLogWriter {
	return &ThreadLogWriter{dir: dir, target: target}
}

type threadFields struct {
	ThreadID string `json:"thread_id"`
}

// Write implements io.Writer. Persistence failures are ignored so logging never
// breaks the caller.
func (w *ThreadLogWriter) Write(p []byte) (int, error) {
	w.persist(p)
	return w.target.Write(p)
}

func (w *ThreadLogWriter) persist(p []byte) {
	var fields threadFields
	if err := json.Unmarshal(p, &fields); err != nil || fields.ThreadID == "" {
		return
	}
	if !safeThreadID.MatchString(fields.ThreadID) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(w.dir, fields.ThreadID+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //#nosec G304 -- thread id validated above
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = f.Write([]byte(FilterSensitiveValue(string(p))))
}

// ThreadLogPath returns where a thread's log entries are written.
func ThreadLogPath(dir, threadID string) string {
	return filepath.Join(dir, threadID+".log")
}

// Package logging holds zerolog helpers: secret redaction for anything that
// reaches disk and per-thread log files for workflow sessions.
package logging

import (
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// RedactedValue is the replacement string for sensitive data.
const RedactedValue = "[REDACTED]"

// Generated code and sandbox commands routinely carry credentials, so the
// patterns cover env-style assignments as well as well-known key formats.
var sensitivePatterns = []*regexp.Regexp{ //nolint:gochecknoglobals // Compiled once
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{8,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{30,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?[a-zA-Z0-9_-]{16,}["']?`),
	regexp.MustCompile(`(?i)authorization\s*[:=]\s*["']?[a-zA-Z0-9._-]{20,}["']?`),
	regexp.MustCompile(`(?i)\b[A-Z0-9_]*(SECRET|PASSWORD|TOKEN|PRIVATE_KEY)[A-Z0-9_]*=\S{6,}`),
	regexp.MustCompile(`(?i)(secret|password|passwd|credential)\s*[:=]\s*["']?[^\s"']{8,}["']?`),
	regexp.MustCompile(`-----BEGIN[A-Z ]+PRIVATE KEY-----`),
}

var sensitiveFieldNames = []string{ //nolint:gochecknoglobals // Lookup table
	"api_key", "apikey", "api-key",
	"token", "secret", "password", "passwd",
	"credential", "private_key", "authorization", "bearer",
}

// SensitiveDataHook flags log events whose message looks like it carries a secret.
// zerolog hooks cannot rewrite the message, so the file writer does the redaction.
type SensitiveDataHook struct{}

// NewSensitiveDataHook creates a new SensitiveDataHook.
func NewSensitiveDataHook() *SensitiveDataHook {
	return &SensitiveDataHook{}
}

// Run implements zerolog.Hook.
func (h *SensitiveDataHook) Run(e *zerolog.Event, _ zerolog.Level, msg string) {
	if ContainsSensitiveData(msg) {
		e.Bool("contains_filtered_data", true)
	}
}

// ContainsSensitiveData reports whether s matches any sensitive pattern.
func ContainsSensitiveData(s string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	return false
}

// FilterSensitiveValue replaces every sensitive match in value with RedactedValue.
func FilterSensitiveValue(value string) string {
	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// IsSensitiveFieldName reports whether a field name implies a secret value.
func IsSensitiveFieldName(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, sensitive := range sensitiveFieldNames {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

// SafeValue returns value with secrets removed, or RedactedValue entirely when
// the field name itself is sensitive.
//
//	log.Info().Str("command", logging.SafeValue("command", cmd)).Msg("running")
func SafeValue(fieldName, value string) string {
	if IsSensitiveFieldName(fieldName) {
		return RedactedValue
	}
	return FilterSensitiveValue(value)
}

// FilteringWriter redacts sensitive data before passing bytes to the wrapped writer.
type FilteringWriter struct {
	w io.Writer
}

// NewFilteringWriter wraps w.
func NewFilteringWriter(w io.Writer) *FilteringWriter {
	return &FilteringWriter{w: w}
}

// Write implements io.Writer. It reports the original length so callers never
// see a short write caused by redaction.
func (fw *FilteringWriter) Write(p []byte) (int, error) {
	if _, err := fw.w.Write([]byte(FilterSensitiveValue(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// FilteringWriteCloser is a FilteringWriter that also closes the underlying writer.
type FilteringWriteCloser struct {
	*FilteringWriter
	closer io.Closer
}

// NewFilteringWriteCloser wraps wc.
func NewFilteringWriteCloser(wc io.WriteCloser) *FilteringWriteCloser {
	return &FilteringWriteCloser{FilteringWriter: NewFilteringWriter(wc), closer: wc}
}

// Close closes the underlying writer.
func (f *FilteringWriteCloser) Close() error {
	return f.closer.Close()
}

package sandbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// HealthChecker probes the application server of a sandbox.
type HealthChecker interface {
	Check(ctx context.Context, url string) error
}

// HTTPChecker treats any HTTP response below 500 as healthy: the server is
// listening and did not crash handling the request.
type HTTPChecker struct {
	Client *http.Client
}

// NewHTTPChecker creates an HTTPChecker with a short per-request timeout.
func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{Client: &http.Client{Timeout: 5 * time.Second}}
}

// Check implements HealthChecker.
func (c *HTTPChecker) Check(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", forgeerrors.ErrHealthCheckFailed, err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", forgeerrors.ErrHealthCheckFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s returned %d", forgeerrors.ErrHealthCheckFailed, url, resp.StatusCode)
	}
	return nil
}

// HealthURL builds the probe URL for a published port.
func HealthURL(host string, port int, path string) string {
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return "http://" + host + ":" + strconv.Itoa(port) + path
}

// Package upstream holds the HTTP plumbing shared by the hosted service
// clients: bounded response reads, status checks and call metrics.
package upstream

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trashtalkers/trashtalkers/internal/metrics"
)

// maxBody bounds the bytes read from an upstream response.
const maxBody = 4 << 20

// Error is a non-success response from a hosted service.
type Error struct {
	Service    string
	Status     int
	StatusText string
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Service, e.Status, e.Text())
}

// Text returns the response body, or the status text when the body is empty.
func (e *Error) Text() string {
	if strings.TrimSpace(e.Body) != "" {
		return e.Body
	}
	return e.StatusText
}

// NewHTTPClient returns a client with the given overall request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Do sends req and returns the response body. Non-2xx responses yield an
// *Error carrying the status and body. Every call is recorded under service.
func Do(client *http.Client, service string, req *http.Request) ([]byte, error) {
	start := time.Now()
	body, err := do(client, service, req)
	metrics.UpstreamDurationSeconds.WithLabelValues(service).Observe(time.Since(start).Seconds())
	metrics.UpstreamRequestsTotal.WithLabelValues(service, result(err)).Inc()
	return body, err
}

func do(client *http.Client, service string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Service:    service,
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}

func result(err error) string {
	switch err.(type) {
	case nil:
		return "ok"
	case *Error:
		return "http_error"
	default:
		return "transport_error"
	}
}

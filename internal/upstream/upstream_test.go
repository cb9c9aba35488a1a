package upstream

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	body, err := Do(srv.Client(), "test", req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestDoWrapsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := Do(srv.Client(), "test", req)

	var upErr *Error
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusServiceUnavailable, upErr.Status)
	assert.Equal(t, "model loading", upErr.Text())
}

func TestErrorTextFallsBackToStatus(t *testing.T) {
	e := &Error{Service: "test", Status: 502, StatusText: "Bad Gateway"}
	assert.Equal(t, "Bad Gateway", e.Text())
	assert.Contains(t, e.Error(), "http 502")
}

func TestNewHTTPClientDefaultTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, NewHTTPClient(0).Timeout)
	assert.Equal(t, 5*time.Second, NewHTTPClient(5*time.Second).Timeout)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Use a tiny delay so tests finish quickly.
	RetryDelay = 1 * time.Millisecond
}

func TestGetWithRetry_ImmediateSuccess(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("payload"))
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	body, err := GetWithRetry(context.Background(), ts.Client(), req, 2, nil)
	require.NoError(t, err)

	assert.Equal(t, "payload", string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetWithRetry_RetriesThen200(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	body, err := GetWithRetry(context.Background(), ts.Client(), req, 2, nil)
	require.NoError(t, err)

	assert.Equal(t, "payload", string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetWithRetry_RetriesOnRejectedBody(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			// HTTP 200, but a body the caller will reject.
			w.Write([]byte("interstitial"))
			return
		}
		w.Write([]byte("good"))
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	errBad := errors.New("bad body")
	body, err := GetWithRetry(context.Background(), ts.Client(), req, 2, func(b []byte) error {
		if string(b) != "good" {
			return errBad
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "good", string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetWithRetry_ExhaustsAttempts(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	_, err = GetWithRetry(context.Background(), ts.Client(), req, 3, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetWithRetry_ContextCancelledDuringWait(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	old := RetryDelay
	RetryDelay = 500 * time.Millisecond
	defer func() { RetryDelay = old }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	_, err = GetWithRetry(ctx, ts.Client(), req, 3, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClientProxy(t *testing.T) {
	proxyURL, err := url.Parse("http://127.0.0.1:3128")
	require.NoError(t, err)

	client := NewClient(10*time.Second, proxyURL)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)

	req, err := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	require.NoError(t, err)
	got, err := transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, proxyURL, got)
}

func TestNewClientDirect(t *testing.T) {
	client := NewClient(10*time.Second, nil)
	assert.Equal(t, 10*time.Second, client.Timeout)
}

func TestNewRequestSetsUserAgent(t *testing.T) {
	req, err := NewRequest(context.Background(), "https://example.com/x", "harvester-test/0.1")
	require.NoError(t, err)
	assert.Equal(t, "harvester-test/0.1", req.Header.Get("User-Agent"))
}

func TestWaitReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Wait(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

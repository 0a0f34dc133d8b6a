package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetcher_GetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{MaxRetries: 1}, nil, nil)
	host := mustHost(t, srv.URL)

	body, err := f.Get(context.Background(), host, srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q, want %q", body, "ok")
	}
}

func TestFetcher_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f := New(Config{MaxRetries: 3, BackoffBase: time.Millisecond}, nil, nil)
	host := mustHost(t, srv.URL)

	body, err := f.Get(context.Background(), host, srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "recovered" {
		t.Fatalf("body = %q, want %q", body, "recovered")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestFetcher_FailsFastOn404(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{MaxRetries: 3, BackoffBase: time.Millisecond}, nil, nil)
	host := mustHost(t, srv.URL)

	if _, err := f.Get(context.Background(), host, srv.URL); err == nil {
		t.Fatalf("expected an error for a 404 response")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry on permanent upstream errors)", attempts)
	}
}

func TestFetcher_ExhaustsRetriesOnPersistent5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Config{MaxRetries: 2, BackoffBase: time.Millisecond}, nil, nil)
	host := mustHost(t, srv.URL)

	if _, err := f.Get(context.Background(), host, srv.URL); err == nil {
		t.Fatalf("expected an error once retries are exhausted")
	}
}

func TestFetcher_GlobalConcurrencyIsBounded(t *testing.T) {
	var inFlight int32
	var maxObserved int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxObserved)
			if n <= max || atomic.CompareAndSwapInt32(&maxObserved, max, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{GlobalConcurrency: 2, HostInterval: time.Microsecond}, nil, nil)
	host := mustHost(t, srv.URL)

	done := make(chan struct{}, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, _ = f.Get(context.Background(), host, srv.URL)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}

	if atomic.LoadInt32(&maxObserved) > 2 {
		t.Fatalf("observed %d concurrent requests, want at most 2", maxObserved)
	}
}

func mustHost(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u.Host
}

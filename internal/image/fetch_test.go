package image

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchSuccess(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		w.Write([]byte("jpegdata"))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Client: srv.Client(), Logger: quietLogger()})
	res, err := f.Fetch(context.Background(), srv.URL+"/a.jpg", time.Second)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(res.Data) != "jpegdata" {
		t.Errorf("data = %q", res.Data)
	}
	if res.MimeType != "image/jpeg" {
		t.Errorf("mime = %q, want image/jpeg", res.MimeType)
	}
	if gotUA != "gemchat" || gotAccept != "image/*" {
		t.Errorf("headers = %q, %q", gotUA, gotAccept)
	}
}

func TestFetchDefaultsMimeType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.Write([]byte{0x00, 0x01})
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Client: srv.Client(), Logger: quietLogger()})
	res, err := f.Fetch(context.Background(), srv.URL+"/a.png", time.Second)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.MimeType != "image/png" {
		t.Errorf("mime = %q, want image/png", res.MimeType)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Client: srv.Client(), Logger: quietLogger()})
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.png", time.Second)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", httpErr.StatusCode)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := NewFetcher(FetcherConfig{Client: srv.Client(), Logger: quietLogger()})
	_, err := f.Fetch(context.Background(), srv.URL+"/slow.png", 50*time.Millisecond)
	if !errors.Is(err, ErrFetchTimeout) {
		t.Fatalf("expected ErrFetchTimeout, got %v", err)
	}
}

func TestFetchBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Client: srv.Client(), MaxBytes: 16, Logger: quietLogger()})
	_, err := f.Fetch(context.Background(), srv.URL+"/big.png", time.Second)

	var netErr *NetworkError
	if !errors.As(err, &netErr) || !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected NetworkError wrapping ErrBodyTooLarge, got %v", err)
	}
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL + "/gone.png"
	srv.Close()

	f := NewFetcher(FetcherConfig{Logger: quietLogger()})
	_, err := f.Fetch(context.Background(), url, time.Second)

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected *NetworkError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), url) {
		t.Errorf("error %q does not mention url", err)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"":                         "image/png",
		"  ":                       "image/png",
		"image/webp":               "image/webp",
		"image/svg+xml; charset=x": "image/svg+xml",
		"text/html; charset=utf-8": "text/html",
		";;;":                      "image/png",
	}
	for header, want := range tests {
		if got := contentType(header); got != want {
			t.Errorf("contentType(%q) = %q, want %q", header, got, want)
		}
	}
}

package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bobarin/directorscut/internal/safety"
)

func TestFetchVideoRejectsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := fetchVideo(context.Background(), srv.Client(), srv.URL, nil)
	if !errors.Is(err, safety.ErrEmptyDownload) {
		t.Fatalf("expected ErrEmptyDownload, got %v", err)
	}
	if !safety.IsRetryable(err) {
		t.Error("empty download should be retryable")
	}
}

func TestFetchVideoNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := fetchVideo(context.Background(), srv.Client(), srv.URL, nil)
	if !errors.Is(err, safety.ErrDownloadStatus) {
		t.Fatalf("expected ErrDownloadStatus, got %v", err)
	}
}

func TestVeoDownloadAppendsKey(t *testing.T) {
	var gotKey, gotAlt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotAlt = r.URL.Query().Get("alt")
		w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()

	s := &VeoService{apiKey: "secret", httpClient: srv.Client()}
	data, err := s.DownloadVideo(context.Background(), srv.URL+"/files/abc:download?alt=media")
	if err != nil {
		t.Fatalf("DownloadVideo: %v", err)
	}
	if string(data) != "mp4-bytes" {
		t.Errorf("unexpected body %q", data)
	}
	if gotKey != "secret" {
		t.Errorf("expected key=secret, got %q", gotKey)
	}
	if gotAlt != "media" {
		t.Errorf("existing query parameters should be kept, alt=%q", gotAlt)
	}
}

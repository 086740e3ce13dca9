package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testS3Config(endpoint string) S3Config {
	return S3Config{
		Bucket:          "clips-bucket",
		Region:          "eu-west-1",
		Endpoint:        endpoint,
		Prefix:          "/speech/",
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}
}

func TestNewS3Storage(t *testing.T) {
	storage, err := NewS3Storage(t.TempDir(), testS3Config("http://localhost:4566/"))
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	if storage.bucket != "clips-bucket" || storage.region != "eu-west-1" {
		t.Errorf("unexpected bucket/region %s/%s", storage.bucket, storage.region)
	}
	if storage.Prefix() != "speech" {
		t.Errorf("Prefix() = %q, want %q", storage.Prefix(), "speech")
	}
	if !storage.CanPublish() {
		t.Error("S3 storage must report publishing support")
	}
}

func TestS3Storage_ObjectURL(t *testing.T) {
	withEndpoint, err := NewS3Storage(t.TempDir(), testS3Config("http://minio:9000/"))
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}
	if got := withEndpoint.objectURL("speech/audio_1/clip_1.wav"); got != "http://minio:9000/clips-bucket/speech/audio_1/clip_1.wav" {
		t.Errorf("objectURL() = %s", got)
	}

	hosted, err := NewS3Storage(t.TempDir(), testS3Config(""))
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}
	if got := hosted.objectURL("k.wav"); got != "https://clips-bucket.s3.eu-west-1.amazonaws.com/k.wav" {
		t.Errorf("objectURL() = %s", got)
	}
}

func TestS3Storage_Publish_MockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/clips-bucket/speech/audio_9/clip_1.wav") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "audio/wav" {
			t.Errorf("unexpected content type: %s", ct)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if string(body) != "clip content" {
			t.Errorf("unexpected body: %s", string(body))
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	storage, err := NewS3Storage(t.TempDir(), testS3Config(server.URL))
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	key := ClipKey(storage.Prefix(), "9", "clip_1.wav")
	url, err := storage.Publish(context.Background(), key, bytes.NewReader([]byte("clip content")))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if want := server.URL + "/clips-bucket/speech/audio_9/clip_1.wav"; url != want {
		t.Errorf("url = %v, want %v", url, want)
	}
}

func TestS3Storage_Publish_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	storage, err := NewS3Storage(t.TempDir(), testS3Config(server.URL))
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	if _, err := storage.Publish(context.Background(), "k.wav", bytes.NewReader([]byte("x"))); err == nil {
		t.Error("expected error for forbidden response")
	}
}

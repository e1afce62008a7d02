package gdrive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("drive service: %v", err)
	}
	return NewClient(svc, "folder-1")
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestDeleteMissingIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || !strings.HasSuffix(r.URL.Path, "/files/file-1") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusNotFound, `{"error":{"code":404,"message":"File not found: file-1"}}`)
	})

	if err := c.DeleteObject(context.Background(), "file-1"); err != nil {
		t.Errorf("expected nil for missing file, got %v", err)
	}
}

func TestDeleteForbidden(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"error":{"code":403,"message":"insufficient permissions"}}`)
	})

	if err := c.DeleteObject(context.Background(), "file-1"); err == nil {
		t.Error("expected error for 403")
	}
}

func TestCheck(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/about") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, `{"user":{"displayName":"avatar-archive"}}`)
	})

	if err := c.Check(context.Background()); err != nil {
		t.Errorf("check: %v", err)
	}
	if c.Provider() != "gdrive" {
		t.Errorf("expected gdrive, got %s", c.Provider())
	}
}

func TestGetObject(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "media" {
			t.Errorf("expected media download, got alt=%q", r.URL.Query().Get("alt"))
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4"))
	})

	rc, ct, _, err := c.GetObject(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()

	if ct != "video/mp4" {
		t.Errorf("expected video/mp4, got %q", ct)
	}
}

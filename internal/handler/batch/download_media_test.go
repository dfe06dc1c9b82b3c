package batch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"lime/internal/pkg/storage"
)

// stubArchive 只读归档替身
type stubArchive struct {
	objects map[string][]byte
}

func (a *stubArchive) Upload(_ context.Context, key string, data io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	a.objects[key] = b
	return "https://archive.test/" + key, nil
}

func (a *stubArchive) Download(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := a.objects[key]
	if !ok {
		return nil, errors.New("归档不存在")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (a *stubArchive) GetPresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://archive.test/" + key, nil
}

func (a *stubArchive) Delete(_ context.Context, key string) error { return nil }

func (a *stubArchive) Exists(_ context.Context, key string) (bool, error) {
	_, ok := a.objects[key]
	return ok, nil
}

func (a *stubArchive) GetFileInfo(_ context.Context, key string) (*storage.FileInfo, error) {
	b, ok := a.objects[key]
	if !ok {
		return nil, errors.New("归档不存在")
	}
	return &storage.FileInfo{Key: key, Size: int64(len(b)), ContentType: "video/mp4"}, nil
}

func (a *stubArchive) GetStorageType() string { return "stub" }

func newMediaRouter(archive storage.Storage) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewHandler(nil, archive)
	router.GET("/api/v1/batches/:id/items/:item_id/media", h.DownloadMedia)
	return router
}

func TestDownloadMedia(t *testing.T) {
	archive := &stubArchive{objects: map[string][]byte{
		"shorts/item-7.mp4": []byte("fake mp4 payload"),
	}}
	router := newMediaRouter(archive)

	t.Run("streams archived media", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/b1/items/item-7/media", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Header().Get("Content-Type"); got != "video/mp4" {
			t.Errorf("Content-Type = %q, want %q", got, "video/mp4")
		}
		if w.Body.String() != "fake mp4 payload" {
			t.Errorf("body = %q, want archived payload", w.Body.String())
		}
	})

	t.Run("missing media returns 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/b1/items/no-such/media", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("archive disabled returns 404", func(t *testing.T) {
		router := newMediaRouter(nil)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/b1/items/item-7/media", nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

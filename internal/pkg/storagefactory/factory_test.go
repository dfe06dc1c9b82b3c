package storagefactory

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"lime/internal/config"
)

func TestNewStorage_Local(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.StorageConfig
		wantErr bool
	}{
		{
			name: "valid local storage config",
			cfg: &config.StorageConfig{
				Type: "local",
				Local: &config.LocalConfig{
					BasePath:      t.TempDir(),
					BaseURL:       "http://localhost:8080/storage",
					PresignExpiry: 3600,
				},
			},
			wantErr: false,
		},
		{
			name: "missing local config",
			cfg: &config.StorageConfig{
				Type:  "local",
				Local: nil,
			},
			wantErr: true,
		},
		{
			name: "missing oss config",
			cfg: &config.StorageConfig{
				Type: "oss",
				OSS:  nil,
			},
			wantErr: true,
		},
		{
			name: "unsupported storage type",
			cfg: &config.StorageConfig{
				Type: "invalid",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, err := NewStorage(ctx, tt.cfg)

			if tt.wantErr {
				if err == nil {
					t.Errorf("NewStorage() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("NewStorage() unexpected error: %v", err)
				return
			}
			if store == nil {
				t.Errorf("NewStorage() expected storage instance, got nil")
			}
		})
	}
}

// TestLocalStorage_ArchiveRoundtrip 本地存储归档成片的读写往返
func TestLocalStorage_ArchiveRoundtrip(t *testing.T) {
	baseURL := "http://localhost:8080/storage"
	cfg := &config.StorageConfig{
		Type: "local",
		Local: &config.LocalConfig{
			BasePath:      t.TempDir(),
			BaseURL:       baseURL,
			PresignExpiry: 3600,
		},
	}

	ctx := context.Background()
	store, err := NewStorage(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	key := "shorts/item-42.mp4"
	payload := "fake mp4 payload"

	url, err := store.Upload(ctx, key, strings.NewReader(payload), "video/mp4")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if want := baseURL + "/" + key; url != want {
		t.Errorf("Upload() url = %v, want %v", url, want)
	}

	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Errorf("Exists() = false, want true")
	}

	signedURL, err := store.GetPresignedDownloadURL(ctx, key, time.Hour)
	if err != nil {
		t.Fatalf("GetPresignedDownloadURL() error = %v", err)
	}
	if !strings.HasPrefix(signedURL, baseURL+"/"+key) {
		t.Errorf("GetPresignedDownloadURL() = %v, want prefix %v", signedURL, baseURL+"/"+key)
	}
	if !strings.Contains(signedURL, "expires=") || !strings.Contains(signedURL, "sig=") {
		t.Errorf("GetPresignedDownloadURL() = %v, missing expiry or signature params", signedURL)
	}

	reader, err := store.Download(ctx, key)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer reader.Close()

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != payload {
		t.Errorf("Download() content = %q, want %q", got, payload)
	}

	info, err := store.GetFileInfo(ctx, key)
	if err != nil {
		t.Fatalf("GetFileInfo() error = %v", err)
	}
	if info.Size != int64(len(payload)) {
		t.Errorf("GetFileInfo() size = %d, want %d", info.Size, len(payload))
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	exists, err = store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists() after delete error = %v", err)
	}
	if exists {
		t.Errorf("Exists() after delete = true, want false")
	}
}

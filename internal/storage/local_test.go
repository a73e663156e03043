package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorageUpload(t *testing.T) {
	spool := t.TempDir()
	src := filepath.Join(spool, "avatar.PNG")
	if err := os.WriteFile(src, []byte("image-bytes"), 0o600); err != nil {
		t.Fatalf("write spool file: %v", err)
	}

	store, err := NewLocalStorage(filepath.Join(t.TempDir(), "media"), "/media/")
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}

	url, err := store.Upload(context.Background(), src)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(url, "/media/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected url %q", url)
	}

	contents, err := os.ReadFile(filepath.Join(store.Dir(), strings.TrimPrefix(url, "/media/")))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(contents) != "image-bytes" {
		t.Fatalf("unexpected contents %q", contents)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected spooled file to be removed, stat err=%v", err)
	}
}

func TestLocalStorageUploadMissingFile(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}
	if _, err := store.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLocalStorageDelete(t *testing.T) {
	spool := t.TempDir()
	src := filepath.Join(spool, "cover.png")
	if err := os.WriteFile(src, []byte("cover"), 0o600); err != nil {
		t.Fatalf("write spool file: %v", err)
	}
	store, err := NewLocalStorage(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("new local storage: %v", err)
	}
	url, err := store.Upload(context.Background(), src)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if err := store.Delete(context.Background(), url); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), strings.TrimPrefix(url, "/media/"))); !os.IsNotExist(err) {
		t.Fatalf("expected stored file to be gone, stat err=%v", err)
	}
	if err := store.Delete(context.Background(), url); err != nil {
		t.Fatalf("deleting twice should succeed, got %v", err)
	}

	for _, bad := range []string{"/elsewhere/x.png", "/media/", "/media/../secret", "/media/nested/x.png"} {
		if err := store.Delete(context.Background(), bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestObjectKey(t *testing.T) {
	key := objectKey("avatars", "/tmp/upload-123.JPG")
	if !strings.HasPrefix(key, "avatars/") || !strings.HasSuffix(key, ".jpg") {
		t.Fatalf("unexpected key %q", key)
	}
	if objectKey("", "x.png") == objectKey("", "x.png") {
		t.Fatal("expected random keys")
	}
}

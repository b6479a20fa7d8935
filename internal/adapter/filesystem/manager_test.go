package filesystem

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManager_WriteReadBlob(t *testing.T) {
	random := make([]byte, 4096)
	if _, err := rand.Read(random); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name           string
		data           []byte
		wantCompressed bool
	}{
		{name: "compressible", data: []byte(strings.Repeat("ambient ", 2048)), wantCompressed: true},
		{name: "incompressible", data: random, wantCompressed: false},
		{name: "empty", data: []byte{}, wantCompressed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			key := "http://cdn.test/" + tt.name + ".mp3"

			path, stored, err := m.WriteBlob(key, tt.data)
			if err != nil {
				t.Fatalf("WriteBlob() error = %v", err)
			}
			if path != m.BlobPath(key) {
				t.Errorf("path = %s, want %s", path, m.BlobPath(key))
			}
			if compressed := stored < int64(len(tt.data)); compressed != tt.wantCompressed {
				t.Errorf("stored %d of %d bytes, wantCompressed %v", stored, len(tt.data), tt.wantCompressed)
			}

			got, err := m.ReadBlob(path)
			if err != nil {
				t.Fatalf("ReadBlob() error = %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("ReadBlob() returned %d bytes, want %d", len(got), len(tt.data))
			}
			if m.FileExists(path + tempExt) {
				t.Error("temp file left behind")
			}
		})
	}
}

func TestManager_DeleteAndSize(t *testing.T) {
	m := newTestManager(t)

	path, stored, err := m.WriteBlob("k", []byte(strings.Repeat("a", 1000)))
	if err != nil {
		t.Fatalf("WriteBlob() error = %v", err)
	}
	size, err := m.GetCacheSize()
	if err != nil || size != stored {
		t.Errorf("GetCacheSize() = %d, %v; want %d", size, err, stored)
	}

	if err := m.DeleteFile(path); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if err := m.DeleteFile(path); err != nil {
		t.Errorf("DeleteFile() on missing file error = %v", err)
	}
	if m.FileExists(path) {
		t.Error("file still exists after delete")
	}
}

func TestManager_CleanOldTempFiles(t *testing.T) {
	m := newTestManager(t)

	old := filepath.Join(m.RootDir(), "old"+tempExt)
	fresh := filepath.Join(m.RootDir(), "fresh"+tempExt)
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	n, err := m.CleanOldTempFiles(time.Hour)
	if err != nil {
		t.Fatalf("CleanOldTempFiles() error = %v", err)
	}
	if n != 1 || m.FileExists(old) || !m.FileExists(fresh) {
		t.Errorf("CleanOldTempFiles() removed %d, old exists %v, fresh exists %v", n, m.FileExists(old), m.FileExists(fresh))
	}
}

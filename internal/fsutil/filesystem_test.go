package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryFileSystem_CreateAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/out/clean.csv")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("vendor_id\nCMT\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := mfs.Open("/out/clean.csv")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "vendor_id\nCMT\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestMemoryFileSystem_Missing(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if _, err := mfs.Open("/nope.csv"); err == nil {
		t.Error("expected Open error for missing file")
	}
	if _, err := mfs.ReadFile("/nope.csv"); err == nil {
		t.Error("expected ReadFile error for missing file")
	}
	if _, err := mfs.Stat("/nope.csv"); err == nil {
		t.Error("expected Stat error for missing file")
	}
	if err := mfs.Rename("/nope.csv", "/other.csv"); err == nil {
		t.Error("expected Rename error for missing file")
	}
}

func TestMemoryFileSystem_MkdirAllAndStat(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/runs/2024/01", 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, p := range []string{"/runs", "/runs/2024", "/runs/2024/01"} {
		info, err := mfs.Stat(p)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s, got %v, %v", p, info, err)
		}
	}
}

func TestMemoryFileSystem_PathCleaning(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.WriteFile("./dirty/../report.json", []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !mfs.Exists("report.json") {
		t.Error("expected cleaned path to exist")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.WriteFile("/reports/run.json", []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := WriteFileAtomic(mfs, "/reports/run.json", []byte("new"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	data, err := mfs.ReadFile("/reports/run.json")
	if err != nil || string(data) != "new" {
		t.Errorf("ReadFile = %q, %v; want new", data, err)
	}
	if mfs.Exists("/reports/run.json.tmp") {
		t.Error("temp file left behind")
	}
	if !mfs.Exists("/reports") {
		t.Error("parent directory not created")
	}
	if got := mfs.Files(); len(got) != 1 {
		t.Errorf("Files() = %v, want one file", got)
	}
}

func TestWriteFileAtomic_RenameFailureRemovesTemp(t *testing.T) {
	tests := []struct {
		name string
		fsys func(t *testing.T) (FileSystem, string)
	}{
		{"memory", func(t *testing.T) (FileSystem, string) {
			mfs := NewMemoryFileSystem()
			if err := mfs.MkdirAll("/reports/run.json", 0o755); err != nil {
				t.Fatal(err)
			}
			return mfs, "/reports/run.json"
		}},
		{"os", func(t *testing.T) (FileSystem, string) {
			path := filepath.Join(t.TempDir(), "run.json")
			if err := os.MkdirAll(filepath.Join(path, "keep"), 0o755); err != nil {
				t.Fatal(err)
			}
			return OSFileSystem{}, path
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys, path := tt.fsys(t)
			if err := WriteFileAtomic(fsys, path, []byte("new"), 0o644); err == nil {
				t.Fatal("expected rename over a directory to fail")
			}
			if fsys.Exists(path + ".tmp") {
				t.Error("temp file left behind")
			}
		})
	}
}

func TestMemoryFileSystem_Remove(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.WriteFile("/a.csv", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := mfs.Remove("/a.csv"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if mfs.Exists("/a.csv") {
		t.Error("file still exists")
	}
	if err := mfs.Remove("/a.csv"); err == nil {
		t.Error("expected error removing a missing file")
	}
}

func TestOSFileSystem_WriteFileAtomic(t *testing.T) {
	osfs := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "nested", "report.json")

	if err := WriteFileAtomic(osfs, path, []byte(`{"total_in": 1}`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if !osfs.Exists(path) {
		t.Fatal("expected report to exist")
	}
	data, err := osfs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != `{"total_in": 1}` {
		t.Errorf("unexpected content %q", data)
	}
	if osfs.Exists(path + ".tmp") {
		t.Error("temp file left behind")
	}
}

package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinRoot(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "runs")
	elsewhere := filepath.Join(tmp, "elsewhere")
	for _, d := range []string{root, elsewhere} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(elsewhere, filepath.Join(root, "link")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in root", filepath.Join(root, "clean.csv"), false},
		{"nested new dir", filepath.Join(root, "2024-01", "report.json"), false},
		{"root itself", root, false},
		{"dot-dot escape", filepath.Join(root, "..", "clean.csv"), true},
		{"sibling dir", filepath.Join(elsewhere, "clean.csv"), true},
		{"symlink escape", filepath.Join(root, "link", "clean.csv"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinRoot(tt.path, root)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathWithinRoot(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathWithinRoot_MissingRoot(t *testing.T) {
	if err := ValidatePathWithinRoot("a.csv", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestValidateOutputs(t *testing.T) {
	root := t.TempDir()
	if err := ValidateOutputs(root, filepath.Join(root, "a.csv"), "", filepath.Join(root, "b.json")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateOutputs(root, filepath.Join(root, "a.csv"), filepath.Join(root, "..", "b.json")); err == nil {
		t.Error("expected error for escaping output")
	}
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"yellow_tripdata_2024-01.csv", "yellow_tripdata_2024-01.csv"},
		{"s3://bucket/yellow 2024/01.csv", "s3_bucket_yellow_2024_01.csv"},
		{"../../etc", "etc"},
		{"", "unknown"},
		{"///", "unknown"},
		{"a__b", "a__b"},
	}
	for _, tt := range tests {
		if got := SanitizeLabel(tt.in); got != tt.want {
			t.Errorf("SanitizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"MJP_2024-01-01Kanzlei Müller_abc.html", "MJP_2024-01-01Kanzlei Müller_abc.html"},
		{"MJP_2024-01-01A/B_abc.html", "MJP_2024-01-01A-B_abc.html"},
		{"..\\..\\evil.html", "..-..-evil.html"},
		{"a\nb.zip", "ab.zip"},
		{"Gericht: Berlin.html", "Gericht- Berlin.html"},
		// Decomposed u + combining diaeresis becomes the precomposed ü.
		{"Mu\u0308ller.zip", "M\u00fcller.zip"},
		{"..", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDir_Save(t *testing.T) {
	root := t.TempDir()
	d, err := NewDir(root)
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}

	path, err := d.Save(context.Background(), Artifact{
		Content:  []byte("<html></html>"),
		Filename: "Nachweis_2024-05-01_abc123.html",
		MIMEType: "text/html",
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != filepath.Join(root, "Nachweis_2024-05-01_abc123.html") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "<html></html>" {
		t.Errorf("content = %q", data)
	}

	// Saving again replaces the file.
	if _, err := d.Save(context.Background(), Artifact{Content: []byte("v2"), Filename: "Nachweis_2024-05-01_abc123.html"}); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "v2" {
		t.Errorf("content after overwrite = %q", data)
	}
}

func TestDir_SaveEmptyName(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}
	if _, err := d.Save(context.Background(), Artifact{Content: []byte("x")}); !errors.Is(err, ErrEmptyFilename) {
		t.Errorf("Save() error = %v, want ErrEmptyFilename", err)
	}
}

func TestDir_Place(t *testing.T) {
	root := t.TempDir()
	staging := t.TempDir()
	d, err := NewDir(root)
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}

	src := filepath.Join(staging, "6b1f0c7e-guid")
	if err := os.WriteFile(src, []byte("PK\x03\x04"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	path, err := d.Place(context.Background(), src, "Report_abc123.zip")
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if filepath.Base(path) != "Report_abc123.zip" {
		t.Errorf("placed as %q", path)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source still exists: %v", err)
	}
}

func TestDir_Lock(t *testing.T) {
	root := t.TempDir()
	first, err := NewDir(root)
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}
	second, err := NewDir(root)
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}

	if err := first.Lock(); err != nil {
		t.Fatalf("first Lock() error = %v", err)
	}
	if err := second.Lock(); !errors.Is(err, ErrLocked) {
		t.Errorf("second Lock() error = %v, want ErrLocked", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := second.Lock(); err != nil {
		t.Errorf("Lock() after release error = %v", err)
	}
	second.Unlock()
}

func TestDir_SaveCancelled(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Save(ctx, Artifact{Content: []byte("x"), Filename: "a.html"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want context.Canceled", err)
	}
}

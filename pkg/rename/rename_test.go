package rename

import (
	"errors"
	"testing"
)

func TestTag(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		token    string
		want     string
	}{
		{
			name:     "trailing separator stripped once",
			filename: "Report_.zip",
			token:    "abc123",
			want:     "Report_abc123.zip",
		},
		{
			name:     "plain stem",
			filename: "Nachricht.zip",
			token:    "abc123",
			want:     "Nachricht_abc123.zip",
		},
		{
			name:     "only one separator stripped",
			filename: "Report__.zip",
			token:    "abc123",
			want:     "Report__abc123.zip",
		},
		{
			name:     "upper case extension preserved",
			filename: "Export.ZIP",
			token:    "abc123",
			want:     "Export_abc123.ZIP",
		},
		{
			name:     "other extension passes through",
			filename: "Nachweis.html",
			token:    "abc123",
			want:     "Nachweis.html",
		},
		{
			name:     "already tagged",
			filename: "Report_abc123.zip",
			token:    "abc123",
			want:     "Report_abc123.zip",
		},
		{
			name:     "no active token",
			filename: "Report_.zip",
			token:    "",
			want:     "Report_.zip",
		},
		{
			name:     "empty filename",
			filename: "",
			token:    "abc123",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tag(tt.filename, tt.token, DefaultExtension)
			if got != tt.want {
				t.Errorf("Tag(%q, %q) = %q, want %q", tt.filename, tt.token, got, tt.want)
			}
		})
	}
}

func TestTag_Idempotent(t *testing.T) {
	names := []string{"Report_.zip", "a.zip", "_.zip", "MJP_2024-01-01Kanzlei_.zip", "x.Zip"}
	tokens := []string{"abc123", "0c1f6d2e-8a8b-4d55-9b07-2f7e5f1f0b11"}

	for _, name := range names {
		for _, token := range tokens {
			once := Tag(name, token, DefaultExtension)
			twice := Tag(once, token, DefaultExtension)
			if once != twice {
				t.Errorf("Tag not idempotent for %q/%q: %q then %q", name, token, once, twice)
			}
		}
	}
}

func TestPolicy_Lifecycle(t *testing.T) {
	p := NewPolicy("")

	if got := p.Rename("Report_.zip"); got != "Report_.zip" {
		t.Errorf("Rename while idle = %q, want unchanged", got)
	}

	if err := p.Activate("abc123"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if got := p.Rename("Report_.zip"); got != "Report_abc123.zip" {
		t.Errorf("Rename while active = %q", got)
	}

	// Re-activating the same token is allowed.
	if err := p.Activate("abc123"); err != nil {
		t.Errorf("Activate(same token) error = %v", err)
	}

	p.Deactivate()
	if p.Active() != "" {
		t.Errorf("Active() after Deactivate = %q", p.Active())
	}
}

func TestPolicy_SecondTokenRejected(t *testing.T) {
	p := NewPolicy("zip")

	if err := p.Activate("first"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	err := p.Activate("second")
	if !errors.Is(err, ErrTokenActive) {
		t.Fatalf("Activate(second) error = %v, want ErrTokenActive", err)
	}
	if p.Active() != "first" {
		t.Errorf("Active() = %q, want first", p.Active())
	}
}

func TestPolicy_EmptyToken(t *testing.T) {
	p := NewPolicy("")
	if err := p.Activate(""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("Activate(\"\") error = %v, want ErrEmptyToken", err)
	}
}

func TestNewPolicy_Extension(t *testing.T) {
	if got := NewPolicy("ZIP").Extension(); got != ".zip" {
		t.Errorf("Extension() = %q, want .zip", got)
	}
}

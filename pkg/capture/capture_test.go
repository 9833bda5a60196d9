package capture_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/mjp-export/internal/testutil"
	"github.com/Sternrassler/mjp-export/pkg/capture"
	"github.com/Sternrassler/mjp-export/pkg/queue"
	"github.com/Sternrassler/mjp-export/pkg/sink"
)

const proofMarkup = `<html><body><h1>Prüfvermerk</h1><p>` +
	`Die Nachricht wurde erfolgreich übermittelt und vom Empfänger abgerufen.</p></body></html>`

func fastConfig() capture.Config {
	return capture.Config{
		PollInterval:  5 * time.Millisecond,
		WindowTimeout: 200 * time.Millisecond,
	}
}

func newSink(t *testing.T) *sink.Dir {
	t.Helper()
	dir, err := sink.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}
	return dir
}

func htmlFiles(t *testing.T, root string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(root, "*.html"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	return matches
}

func mustItem(t *testing.T, id string, dir queue.Direction) queue.WorkItem {
	t.Helper()
	item, err := queue.NewWorkItem(id, dir)
	if err != nil {
		t.Fatalf("NewWorkItem failed: %v", err)
	}
	return item
}

func noopTrigger(context.Context) error { return nil }

func TestCapture(t *testing.T) {
	tests := []struct {
		name        string
		window      *testutil.FakeWindow
		wantOutcome capture.Outcome
		wantFiles   int
	}{
		{
			name:        "ready immediately",
			window:      testutil.NewFakeWindow(proofMarkup, 0),
			wantOutcome: capture.OutcomeCaptured,
			wantFiles:   1,
		},
		{
			name:        "ready after polling",
			window:      testutil.NewFakeWindow(proofMarkup, 3),
			wantOutcome: capture.OutcomeCaptured,
			wantFiles:   1,
		},
		{
			name:        "closed before ready",
			window:      testutil.NewFakeWindow(proofMarkup, 100).CloseOnCheck(2),
			wantOutcome: capture.OutcomeWindowClosed,
			wantFiles:   0,
		},
		{
			name:        "never ready",
			window:      testutil.NewFakeWindow(proofMarkup, 1<<20),
			wantOutcome: capture.OutcomeNotReady,
			wantFiles:   0,
		},
		{
			name:        "no window",
			window:      nil,
			wantOutcome: capture.OutcomeNoWindow,
			wantFiles:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newSink(t)
			opener := testutil.NewFakeOpener()
			c := capture.New(opener, out, fastConfig())

			trigger := func(context.Context) error {
				if tt.window != nil {
					opener.Push(tt.window)
				}
				return nil
			}

			res, err := c.Capture(context.Background(), trigger, "MJP_2024-01-01_abc.html")
			if err != nil {
				t.Fatalf("Capture() error = %v", err)
			}
			if res.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %q, want %q", res.Outcome, tt.wantOutcome)
			}
			if got := len(htmlFiles(t, out.Root())); got != tt.wantFiles {
				t.Errorf("html files = %d, want %d", got, tt.wantFiles)
			}

			intercepts, releases := opener.Counts()
			if intercepts != 1 || releases != 1 {
				t.Errorf("intercepts/releases = %d/%d, want 1/1", intercepts, releases)
			}

			if tt.window != nil && tt.window.Closes() != 1 {
				t.Errorf("window closed %d times, want 1", tt.window.Closes())
			}

			if tt.wantOutcome == capture.OutcomeCaptured {
				data, err := os.ReadFile(res.Path)
				if err != nil {
					t.Fatalf("ReadFile failed: %v", err)
				}
				if string(data) != proofMarkup {
					t.Errorf("saved markup = %q, want window markup", data)
				}
				if filepath.Base(res.Path) != "MJP_2024-01-01_abc.html" {
					t.Errorf("filename = %q", filepath.Base(res.Path))
				}
			}
		})
	}
}

func TestCapture_TriggerError(t *testing.T) {
	opener := testutil.NewFakeOpener()
	c := capture.New(opener, newSink(t), fastConfig())

	boom := errors.New("click failed")
	_, err := c.Capture(context.Background(), func(context.Context) error { return boom }, "x.html")
	if !errors.Is(err, boom) {
		t.Fatalf("Capture() error = %v, want %v", err, boom)
	}
	if _, releases := opener.Counts(); releases != 1 {
		t.Errorf("releases = %d, want 1", releases)
	}
}

func TestCapture_InterceptError(t *testing.T) {
	opener := testutil.NewFakeOpener()
	opener.Err = errors.New("no browser")
	c := capture.New(opener, newSink(t), fastConfig())

	triggered := false
	_, err := c.Capture(context.Background(), func(context.Context) error {
		triggered = true
		return nil
	}, "x.html")
	if err == nil {
		t.Fatal("Capture() should fail when interception cannot be armed")
	}
	if triggered {
		t.Error("trigger ran without interception")
	}
}

func TestCapture_ContextCancelled(t *testing.T) {
	opener := testutil.NewFakeOpener()
	cfg := fastConfig()
	cfg.WindowTimeout = 0
	c := capture.New(opener, newSink(t), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Capture(ctx, noopTrigger, "x.html")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Capture() error = %v, want deadline exceeded", err)
	}
	if _, releases := opener.Counts(); releases != 1 {
		t.Errorf("releases = %d, want 1", releases)
	}
}

func TestFallback_OutgoingPlaceholder(t *testing.T) {
	out := newSink(t)
	c := capture.New(testutil.NewFakeOpener(), out, fastConfig())
	item := mustItem(t, "abc123", queue.Outgoing)

	res, err := c.Fallback(context.Background(), item, "Nachweis_2024-05-01_abc123.html")
	if err != nil {
		t.Fatalf("Fallback() error = %v", err)
	}
	if res.Outcome != capture.OutcomePlaceholder {
		t.Errorf("Outcome = %q, want %q", res.Outcome, capture.OutcomePlaceholder)
	}

	files := htmlFiles(t, out.Root())
	if len(files) != 1 {
		t.Fatalf("html files = %d, want 1", len(files))
	}
	if !strings.HasSuffix(files[0], "_abc123.html") {
		t.Errorf("filename %q does not end with _abc123.html", files[0])
	}
	data, _ := os.ReadFile(files[0])
	for _, want := range []string{"abc123", "Versand fehlgeschlagen"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("placeholder missing %q: %s", want, data)
		}
	}
}

func TestFallback_IncomingSkips(t *testing.T) {
	out := newSink(t)
	c := capture.New(testutil.NewFakeOpener(), out, fastConfig())
	item := mustItem(t, "def456", queue.Incoming)

	res, err := c.Fallback(context.Background(), item, "Nachweis_2024-05-01_def456.html")
	if err != nil {
		t.Fatalf("Fallback() error = %v", err)
	}
	if res.Outcome != capture.OutcomeSkipped || res.Outcome.Saved() {
		t.Errorf("Outcome = %q, want skipped", res.Outcome)
	}
	if got := len(htmlFiles(t, out.Root())); got != 0 {
		t.Errorf("html files = %d, want 0", got)
	}
}

func TestPlaceholderHTML_EscapesID(t *testing.T) {
	got := capture.PlaceholderHTML(`<script>`)
	if strings.Contains(got, "<script>") {
		t.Errorf("PlaceholderHTML did not escape id: %s", got)
	}
	want := "<html><body><h1>Versand fehlgeschlagen</h1><p>Message UUID: abc</p></body></html>"
	if got := capture.PlaceholderHTML("abc"); got != want {
		t.Errorf("PlaceholderHTML() = %q, want %q", got, want)
	}
}

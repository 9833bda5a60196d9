package processor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/mjp-export/internal/testutil"
	"github.com/Sternrassler/mjp-export/pkg/capture"
	"github.com/Sternrassler/mjp-export/pkg/processor"
	"github.com/Sternrassler/mjp-export/pkg/queue"
	"github.com/Sternrassler/mjp-export/pkg/rename"
	"github.com/Sternrassler/mjp-export/pkg/sink"
)

const proofMarkup = `<html><body><h1>Prüfvermerk</h1><p>` +
	`Die Nachricht wurde erfolgreich übermittelt und vom Empfänger abgerufen.</p></body></html>`

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type harness struct {
	page   *testutil.FakePage
	opener *testutil.FakeOpener
	policy *rename.Policy
	out    *sink.Dir
	proc   *processor.Processor
}

func fastConfig() processor.Config {
	return processor.Config{
		LoadTimeout:       300 * time.Millisecond,
		CompletionTimeout: 300 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
		SettleDelay:       time.Millisecond,
		DownloadTimeout:   500 * time.Millisecond,
		Now:               func() time.Time { return fixedNow },
	}
}

func newHarness(t *testing.T, items map[string]testutil.FakeItem, downloads processor.Downloads) *harness {
	t.Helper()
	out, err := sink.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}

	h := &harness{
		page:   testutil.NewFakePage("#/postausgang", items),
		opener: testutil.NewFakeOpener(),
		policy: rename.NewPolicy(rename.DefaultExtension),
		out:    out,
	}
	h.page.Opener = h.opener
	h.page.Windows = make(map[string]capture.Window)

	capturer := capture.New(h.opener, out, capture.Config{
		PollInterval:  5 * time.Millisecond,
		WindowTimeout: 200 * time.Millisecond,
	})
	h.proc = processor.New(h.page, h.policy, capturer, downloads, fastConfig())
	return h
}

// open navigates to item like the batch driver does and processes it.
func (h *harness) open(t *testing.T, ctx context.Context, id string, dir queue.Direction) processor.Report {
	t.Helper()
	item, err := queue.NewWorkItem(id, dir)
	if err != nil {
		t.Fatalf("NewWorkItem failed: %v", err)
	}
	if err := h.page.Navigate(ctx, item.DetailLocation); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	return h.proc.Process(ctx, item)
}

func (h *harness) files(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(h.out.Root(), "*.html"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	return matches
}

func TestProcess_Exported(t *testing.T) {
	var activeAtTrigger string
	var h *harness
	h = newHarness(t, map[string]testutil.FakeItem{
		"abc": {
			ReadyAfter: 20 * time.Millisecond,
			Info:       &processor.RecordInfo{CreationTime: "2024-01-01T08:00:00Z", Transmitter: "Amtsgericht_"},
			ProofLabel: "Prüfvermerk",
			OnTrigger:  func(string) { activeAtTrigger = h.policy.Active() },
		},
	}, nil)
	h.page.Windows["abc"] = testutil.NewFakeWindow(proofMarkup, 1)

	report := h.open(t, context.Background(), "abc", queue.Outgoing)

	if report.Err != nil {
		t.Fatalf("Report.Err = %v", report.Err)
	}
	if report.Outcome != processor.OutcomeExported {
		t.Errorf("Outcome = %q, want %q", report.Outcome, processor.OutcomeExported)
	}
	if !report.Completed {
		t.Error("Completed = false, want true")
	}
	if report.Capture.Outcome != capture.OutcomeCaptured {
		t.Errorf("Capture.Outcome = %q, want captured", report.Capture.Outcome)
	}
	if want := "MJP_2024-01-01Amtsgericht_abc.html"; report.Filename != want {
		t.Errorf("Filename = %q, want %q", report.Filename, want)
	}
	if activeAtTrigger != "abc" {
		t.Errorf("active token at trigger = %q, want abc", activeAtTrigger)
	}
	if got := h.policy.Active(); got != "" {
		t.Errorf("token still active after exit: %q", got)
	}

	wantStates := []processor.State{
		processor.StateIdle,
		processor.StateAwaitingLoad,
		processor.StateTriggering,
		processor.StateAwaitingCompletion,
		processor.StateCapturingArtifact,
		processor.StateDone,
	}
	if len(report.States) != len(wantStates) {
		t.Fatalf("States = %v, want %v", report.States, wantStates)
	}
	for i := range wantStates {
		if report.States[i] != wantStates[i] {
			t.Errorf("States[%d] = %q, want %q", i, report.States[i], wantStates[i])
		}
	}

	data, err := os.ReadFile(report.Capture.Path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != proofMarkup {
		t.Errorf("saved proof = %q", data)
	}
}

func TestProcess_LoadTimeoutSkips(t *testing.T) {
	h := newHarness(t, map[string]testutil.FakeItem{
		"slow": {NeverReady: true, ProofLabel: "Prüfvermerk"},
	}, nil)

	report := h.open(t, context.Background(), "slow", queue.Outgoing)

	if report.Outcome != processor.OutcomeSkipped {
		t.Errorf("Outcome = %q, want %q", report.Outcome, processor.OutcomeSkipped)
	}
	if report.Err != nil {
		t.Errorf("Report.Err = %v, want nil", report.Err)
	}
	if got := h.page.Triggers(); len(got) != 0 {
		t.Errorf("Triggers = %v, want none", got)
	}
	if got := h.policy.Active(); got != "" {
		t.Errorf("token still active after skip: %q", got)
	}
	if open, detached := h.page.Subscriptions(); open != 0 || detached != 1 {
		t.Errorf("subscriptions open/detached = %d/%d, want 0/1", open, detached)
	}
	if got := len(h.files(t)); got != 0 {
		t.Errorf("html files = %d, want 0", got)
	}
}

func TestProcess_CompletionTimeoutContinues(t *testing.T) {
	h := newHarness(t, map[string]testutil.FakeItem{
		"stuck": {NeverComplete: true},
	}, nil)

	report := h.open(t, context.Background(), "stuck", queue.Outgoing)

	if report.Outcome != processor.OutcomeExported {
		t.Errorf("Outcome = %q, want %q", report.Outcome, processor.OutcomeExported)
	}
	if report.Completed {
		t.Error("Completed = true, want false")
	}
	if report.Capture.Outcome != capture.OutcomePlaceholder {
		t.Errorf("Capture.Outcome = %q, want placeholder", report.Capture.Outcome)
	}
}

func TestProcess_MissingProof(t *testing.T) {
	tests := []struct {
		name      string
		direction queue.Direction
		wantFiles int
		want      capture.Outcome
	}{
		{"outgoing saves placeholder", queue.Outgoing, 1, capture.OutcomePlaceholder},
		{"incoming saves nothing", queue.Incoming, 0, capture.OutcomeSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, map[string]testutil.FakeItem{"m1": {}}, nil)

			report := h.open(t, context.Background(), "m1", tt.direction)

			if report.Capture.Outcome != tt.want {
				t.Errorf("Capture.Outcome = %q, want %q", report.Capture.Outcome, tt.want)
			}
			files := h.files(t)
			if len(files) != tt.wantFiles {
				t.Fatalf("html files = %d, want %d", len(files), tt.wantFiles)
			}
			if tt.wantFiles == 1 {
				if want := "Nachweis_2024-05-01_m1.html"; filepath.Base(files[0]) != want {
					t.Errorf("filename = %q, want %q", filepath.Base(files[0]), want)
				}
				data, _ := os.ReadFile(files[0])
				if !strings.Contains(string(data), "Versand fehlgeschlagen") || !strings.Contains(string(data), "m1") {
					t.Errorf("placeholder content = %s", data)
				}
			}
			if intercepts, _ := h.opener.Counts(); intercepts != 0 {
				t.Errorf("intercepts = %d, want 0 without proof affordance", intercepts)
			}
		})
	}
}

func TestProcess_ProofLabelPriority(t *testing.T) {
	h := newHarness(t, map[string]testutil.FakeItem{
		"in1": {ProofLabel: "Eingangsbestätigung"},
	}, nil)
	h.page.Windows["in1"] = testutil.NewFakeWindow(proofMarkup, 0)

	report := h.open(t, context.Background(), "in1", queue.Incoming)

	if got := h.page.Proofs(); len(got) != 1 || got[0] != "in1:Eingangsbestätigung" {
		t.Errorf("Proofs = %v, want [in1:Eingangsbestätigung]", got)
	}
	if report.Capture.Outcome != capture.OutcomeCaptured {
		t.Errorf("Capture.Outcome = %q, want captured", report.Capture.Outcome)
	}
}

func TestProcess_TokenAlreadyActive(t *testing.T) {
	h := newHarness(t, map[string]testutil.FakeItem{"second": {}}, nil)
	if err := h.policy.Activate("first"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	report := h.open(t, context.Background(), "second", queue.Outgoing)

	if report.Outcome != processor.OutcomeFailed {
		t.Errorf("Outcome = %q, want failed", report.Outcome)
	}
	if !errors.Is(report.Err, rename.ErrTokenActive) {
		t.Errorf("Report.Err = %v, want ErrTokenActive", report.Err)
	}
	if got := h.policy.Active(); got != "first" {
		t.Errorf("Active() = %q, want the foreign token untouched", got)
	}
	if got := h.page.Triggers(); len(got) != 0 {
		t.Errorf("Triggers = %v, want none", got)
	}
}

func TestProcess_CancelledClearsToken(t *testing.T) {
	h := newHarness(t, map[string]testutil.FakeItem{"c1": {NeverReady: true}}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	report := h.open(t, ctx, "c1", queue.Outgoing)

	if !processor.IsCancelled(report.Err) {
		t.Errorf("Report.Err = %v, want cancellation", report.Err)
	}
	if report.Outcome != processor.OutcomeFailed {
		t.Errorf("Outcome = %q, want failed", report.Outcome)
	}
	if got := h.policy.Active(); got != "" {
		t.Errorf("token still active after cancel: %q", got)
	}
}

type fakeDownloads struct {
	pending atomic.Int32
}

func (d *fakeDownloads) Pending() int { return int(d.pending.Load()) }

func TestProcess_WaitsForDownloads(t *testing.T) {
	downloads := &fakeDownloads{}
	h := newHarness(t, map[string]testutil.FakeItem{
		"z1": {OnTrigger: func(string) {
			downloads.pending.Store(1)
			time.AfterFunc(40*time.Millisecond, func() { downloads.pending.Store(0) })
		}},
	}, downloads)

	report := h.open(t, context.Background(), "z1", queue.Outgoing)

	if report.Outcome != processor.OutcomeExported {
		t.Fatalf("Outcome = %q, want exported", report.Outcome)
	}
	if got := downloads.Pending(); got != 0 {
		t.Errorf("Process returned with %d downloads in flight", got)
	}
}

//go:build integration

package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/mjp-export/pkg/capture"
	"github.com/Sternrassler/mjp-export/pkg/download"
	"github.com/Sternrassler/mjp-export/pkg/processor"
	"github.com/Sternrassler/mjp-export/pkg/rename"
	"github.com/Sternrassler/mjp-export/pkg/sink"
	"github.com/Sternrassler/mjp-export/pkg/wait"
	"github.com/chromedp/chromedp"
)

const appHTML = `<!doctype html><html><body><div id="app"></div>
<script>
function show(id) {
	document.getElementById('app').innerHTML =
		'<div data-uuid="' + id + '"><button class="btn save-all-action">Alle speichern</button>' +
		'<ozg-popupwindow data-pagetitle="Prüfvermerk">Prüfvermerk</ozg-popupwindow></div>';
	const comp = document.querySelector('[data-uuid="' + id + '"]');
	comp.messageData = {ozgppCreationTime: '2024-01-15T09:00:00Z'};
	comp.getTransmitter = () => 'AG_';
	comp.querySelector('.save-all-action').addEventListener('click', () => {
		const a = document.createElement('a');
		a.href = '/archive.zip';
		a.download = 'Akte_.zip';
		document.body.appendChild(a);
		a.click();
		a.remove();
		setTimeout(() => document.body.insertAdjacentHTML('beforeend',
			'<ozg-alert data-message="Ihre Dateien sind erfolgreich heruntergeladen worden"></ozg-alert>'), 100);
	});
	comp.querySelector('ozg-popupwindow').addEventListener('click', () => window.open('/proof', '_blank'));
}
window.addEventListener('hashchange', () => {
	const m = location.hash.match(/detail\/(.+)$/);
	if (m) setTimeout(() => show(m[1]), 150);
});
</script></body></html>`

const proofHTML = `<!doctype html><html><body><h1>Prüfvermerk</h1>
<p>Die Nachricht wurde am 15.01.2024 um 09:00 Uhr erfolgreich an das Amtsgericht übermittelt.</p></body></html>`

func newFixture(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, appHTML)
	})
	mux.HandleFunc("/proof", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, proofHTML)
	})
	mux.HandleFunc("/archive.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="Akte_.zip"`)
		w.Write([]byte("PK\x05\x06" + string(make([]byte, 18))))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIntegration_ExportOneMessage(t *testing.T) {
	srv := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s, err := Start(ctx, Config{AppURL: srv.URL + "/", Headless: true})
	if err != nil {
		t.Skipf("Chrome not available: %v", err)
	}
	defer s.Close()

	page, err := s.Page()
	if err != nil {
		t.Fatalf("Page() failed: %v", err)
	}

	out, err := sink.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}
	policy := rename.NewPolicy(rename.DefaultExtension)
	tracker := download.NewTracker(policy, out, filepath.Join(t.TempDir(), "staging"))
	hook := s.DownloadHook(tracker)
	if err := hook.Install(ctx); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	defer hook.Restore(context.Background())

	const id = "abc123"
	if err := page.Navigate(ctx, "#/postausgang/detail/"+id); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}

	_, ready, err := wait.Await(ctx, wait.Condition[struct{}]{
		Name: "test_ready",
		Check: func(ctx context.Context) (struct{}, bool) {
			ok, _ := page.ActionReady(ctx, id)
			return struct{}{}, ok
		},
		Source:  wait.Events(page.Changes),
		Timeout: 10 * time.Second,
	})
	if err != nil || !ready {
		t.Fatalf("save-all never became ready (err=%v)", err)
	}

	info, ok, err := page.RecordInfo(ctx, id)
	if err != nil || !ok {
		t.Fatalf("RecordInfo() = %v, %v, %v", info, ok, err)
	}
	if got := processor.BaseName(info, ok, time.Now()); got != "MJP_2024-01-15AG" {
		t.Errorf("BaseName() = %q, want MJP_2024-01-15AG", got)
	}

	if err := policy.Activate(id); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	defer policy.Deactivate()

	if err := page.TriggerAction(ctx, id); err != nil {
		t.Fatalf("TriggerAction failed: %v", err)
	}
	_, done, err := wait.Await(ctx, wait.Condition[struct{}]{
		Name: "test_complete",
		Check: func(ctx context.Context) (struct{}, bool) {
			ok, _ := page.CompletionVisible(ctx)
			return struct{}{}, ok && tracker.Pending() == 0
		},
		Source:  wait.Poll(100 * time.Millisecond),
		Timeout: 10 * time.Second,
	})
	if err != nil || !done {
		t.Fatalf("archive never completed (err=%v)", err)
	}
	if _, err := os.Stat(filepath.Join(out.Root(), "Akte_abc123.zip")); err != nil {
		t.Errorf("renamed archive missing: %v", err)
	}

	label, found, err := page.ProofAffordance(ctx, id, processor.DefaultProofLabels)
	if err != nil || !found {
		t.Fatalf("ProofAffordance() = %q, %v, %v", label, found, err)
	}

	capturer := capture.New(s.Opener(), out, capture.Config{PollInterval: 200 * time.Millisecond, WindowTimeout: 10 * time.Second})
	res, err := capturer.Capture(ctx, func(ctx context.Context) error {
		return page.TriggerProof(ctx, id, label)
	}, processor.ProofFilename("MJP_2024-01-15AG", id))
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if res.Outcome != capture.OutcomeCaptured {
		t.Fatalf("Capture outcome = %q, want captured", res.Outcome)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(data) < 100 {
		t.Errorf("captured markup too short: %s", data)
	}

	if err := page.Close(ctx); err != nil {
		t.Fatalf("Page.Close failed: %v", err)
	}
	var observing bool
	if err := chromedp.Run(s.Context(), chromedp.Evaluate(`!!window.__mjpExportObserver`, &observing)); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if observing {
		t.Error("mutation observer still attached after Page.Close")
	}
}

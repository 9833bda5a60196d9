package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/mjp-export/pkg/capture"
	"github.com/Sternrassler/mjp-export/pkg/processor"
)

// FakeWindow is a scripted proof window.
type FakeWindow struct {
	mu         sync.Mutex
	markup     string
	readyAfter int
	readyCalls int
	closeAt    int
	closes     int
	closed     chan struct{}
	closeOnce  sync.Once
}

// NewFakeWindow returns a window that reports ready on the readyAfter+1-th check.
func NewFakeWindow(markup string, readyAfter int) *FakeWindow {
	return &FakeWindow{
		markup:     markup,
		readyAfter: readyAfter,
		closeAt:    -1,
		closed:     make(chan struct{}),
	}
}

// CloseOnCheck makes the window go away during the n-th readiness check.
func (w *FakeWindow) CloseOnCheck(n int) *FakeWindow {
	w.mu.Lock()
	w.closeAt = n
	w.mu.Unlock()
	return w
}

func (w *FakeWindow) Ready(ctx context.Context) (bool, error) {
	w.mu.Lock()
	w.readyCalls++
	calls := w.readyCalls
	closeAt := w.closeAt
	w.mu.Unlock()

	if closeAt >= 0 && calls >= closeAt {
		w.vanish()
		return false, errors.New("target closed")
	}
	return calls > w.readyAfter, nil
}

func (w *FakeWindow) HTML(ctx context.Context) (string, error) {
	return w.markup, nil
}

func (w *FakeWindow) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closes++
	w.mu.Unlock()
	w.vanish()
	return nil
}

func (w *FakeWindow) Closed() <-chan struct{} {
	return w.closed
}

// Closes returns how often Close was called.
func (w *FakeWindow) Closes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closes
}

func (w *FakeWindow) vanish() {
	w.closeOnce.Do(func() { close(w.closed) })
}

// FakeOpener hands out queued windows, one per interception.
type FakeOpener struct {
	mu         sync.Mutex
	windows    []capture.Window
	active     chan capture.Window
	intercepts int
	releases   int

	// Err fails Intercept.
	Err error
}

// NewFakeOpener creates an opener with queued windows.
func NewFakeOpener(windows ...capture.Window) *FakeOpener {
	return &FakeOpener{windows: windows}
}

// Push opens w: it is delivered to the armed interception, or queued for the next one.
func (o *FakeOpener) Push(w capture.Window) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		select {
		case o.active <- w:
			return
		default:
		}
	}
	o.windows = append(o.windows, w)
}

func (o *FakeOpener) Intercept(ctx context.Context) (<-chan capture.Window, func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, nil, o.Err
	}
	o.intercepts++

	ch := make(chan capture.Window, 1)
	if len(o.windows) > 0 {
		ch <- o.windows[0]
		o.windows = o.windows[1:]
	}
	o.active = ch

	var once sync.Once
	release := func() {
		once.Do(func() {
			o.mu.Lock()
			o.releases++
			if o.active == ch {
				o.active = nil
			}
			o.mu.Unlock()
		})
	}
	return ch, release, nil
}

// Counts returns the number of interceptions and releases.
func (o *FakeOpener) Counts() (intercepts, releases int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.intercepts, o.releases
}

// FakeItem scripts the detail page of one message.
type FakeItem struct {
	// ReadyAfter delays the save-all affordance after navigation.
	ReadyAfter time.Duration
	NeverReady bool

	NeverComplete bool

	// Info enriches the filename when non-nil.
	Info *processor.RecordInfo

	// ProofLabel is the label of the available proof affordance; empty means none.
	ProofLabel string

	// OnTrigger runs inside TriggerAction.
	OnTrigger func(id string)
}

// FakePage is a scripted MJP tab.
type FakePage struct {
	mu          sync.Mutex
	location    string
	loadedAt    time.Time
	items       map[string]FakeItem
	triggered   map[string]bool
	subs        map[int]chan struct{}
	nextSub     int
	detaches    int
	navigations []string
	triggers    []string
	proofs      []string

	// Opener receives Push calls when a proof is triggered for items in Windows.
	Opener  *FakeOpener
	Windows map[string]capture.Window

	// NavigateErr fails every navigation.
	NavigateErr error
}

// NewFakePage creates a page at location start.
func NewFakePage(start string, items map[string]FakeItem) *FakePage {
	if items == nil {
		items = make(map[string]FakeItem)
	}
	return &FakePage{
		location:  start,
		items:     items,
		triggered: make(map[string]bool),
		subs:      make(map[int]chan struct{}),
	}
}

func (p *FakePage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

func (p *FakePage) Navigate(ctx context.Context, location string) error {
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.mu.Lock()
	p.location = location
	p.loadedAt = time.Now()
	p.navigations = append(p.navigations, location)
	item, ok := p.items[itemID(location)]
	p.mu.Unlock()

	if ok && !item.NeverReady && item.ReadyAfter > 0 {
		time.AfterFunc(item.ReadyAfter, p.notify)
	}
	return nil
}

func (p *FakePage) ActionReady(ctx context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[id]
	if !ok || item.NeverReady || itemID(p.location) != id {
		return false, nil
	}
	return time.Since(p.loadedAt) >= item.ReadyAfter, nil
}

func (p *FakePage) Changes(ctx context.Context) (<-chan struct{}, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan struct{}, 1)
	n := p.nextSub
	p.nextSub++
	p.subs[n] = ch

	var once sync.Once
	detach := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, n)
			p.detaches++
			p.mu.Unlock()
		})
	}
	return ch, detach, nil
}

func (p *FakePage) notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (p *FakePage) TriggerAction(ctx context.Context, id string) error {
	p.mu.Lock()
	p.triggered[id] = true
	p.triggers = append(p.triggers, id)
	item := p.items[id]
	p.mu.Unlock()

	if item.OnTrigger != nil {
		item.OnTrigger(id)
	}
	return nil
}

func (p *FakePage) CompletionVisible(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := itemID(p.location)
	return p.triggered[id] && !p.items[id].NeverComplete, nil
}

func (p *FakePage) RecordInfo(ctx context.Context, id string) (processor.RecordInfo, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item := p.items[id]
	if item.Info == nil {
		return processor.RecordInfo{}, false, errors.New("record not bound")
	}
	return *item.Info, true, nil
}

func (p *FakePage) ProofAffordance(ctx context.Context, id string, labels []string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	have := p.items[id].ProofLabel
	for _, label := range labels {
		if have != "" && label == have {
			return label, true, nil
		}
	}
	return "", false, nil
}

func (p *FakePage) TriggerProof(ctx context.Context, id, label string) error {
	p.mu.Lock()
	p.proofs = append(p.proofs, id+":"+label)
	win := p.Windows[id]
	p.mu.Unlock()

	if win != nil && p.Opener != nil {
		p.Opener.Push(win)
	}
	return nil
}

// Navigations returns every location navigated to.
func (p *FakePage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Triggers returns the ids whose archive action was triggered.
func (p *FakePage) Triggers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.triggers...)
}

// Proofs returns "<id>:<label>" for every proof click.
func (p *FakePage) Proofs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.proofs...)
}

// Subscriptions returns the number of open and detached mutation feeds.
func (p *FakePage) Subscriptions() (open, detached int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs), p.detaches
}

func itemID(location string) string {
	_, id, ok := strings.Cut(location, "/detail/")
	if !ok {
		return ""
	}
	return id
}

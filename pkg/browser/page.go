package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/mjp-export/pkg/processor"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// detachTimeout bounds the in-page cleanup run when a watch is released.
const detachTimeout = 2 * time.Second

// Page drives the MJP single-page application in one tab.
type Page struct {
	tab    context.Context
	logger zerolog.Logger

	// evaluate runs an expression in the tab; replaced in tests.
	evaluate func(ctx context.Context, expr string, res interface{}) error

	listenCancel context.CancelFunc
	scriptID     page.ScriptIdentifier

	mu      sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
	closed  bool
}

func newPage(tab context.Context) (*Page, error) {
	listenCtx, listenCancel := context.WithCancel(tab)
	p := &Page{
		tab:          tab,
		logger:       log.With().Str("component", "browser").Str("surface", "page").Logger(),
		listenCancel: listenCancel,
		subs:         make(map[int]chan struct{}),
	}
	p.evaluate = p.evalTab

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if e, ok := ev.(*runtime.EventBindingCalled); ok && e.Name == mutationBinding {
			p.broadcast()
		}
	})

	err := chromedp.Run(tab,
		runtime.AddBinding(mutationBinding),
		chromedp.ActionFunc(func(ctx context.Context) error {
			id, err := page.AddScriptToEvaluateOnNewDocument(
				`document.addEventListener('DOMContentLoaded', () => ` + observerScript + `)`,
			).Do(ctx)
			p.scriptID = id
			return err
		}),
	)
	if err != nil {
		listenCancel()
		return nil, fmt.Errorf("install mutation observer: %w", err)
	}
	return p, nil
}

// Close removes everything the page installed in the tab: the mutation
// observer, the new-document script and the binding. The tab stays open.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.subs = make(map[int]chan struct{})
	p.mu.Unlock()
	defer p.listenCancel()

	var errs []error
	if err := p.evaluate(ctx, observerDetachScript, nil); err != nil {
		errs = append(errs, fmt.Errorf("disconnect mutation observer: %w", err))
	}

	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if p.scriptID != "" {
			if err := page.RemoveScriptToEvaluateOnNewDocument(p.scriptID).Do(ctx); err != nil {
				return fmt.Errorf("remove observer script: %w", err)
			}
		}
		if err := runtime.RemoveBinding(mutationBinding).Do(ctx); err != nil {
			return fmt.Errorf("remove binding: %w", err)
		}
		return nil
	}))
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *Page) eval(ctx context.Context, expr string, res interface{}) error {
	return p.evaluate(ctx, expr, res)
}

// evalTab runs expr in the tab; ctx bounds the call. A nil res discards the result.
func (p *Page) evalTab(ctx context.Context, expr string, res interface{}) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, res)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Location returns the current hash route.
func (p *Page) Location(ctx context.Context) (string, error) {
	var hash string
	if err := p.eval(ctx, locationExpr, &hash); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return hash, nil
}

// Navigate switches the hash route.
func (p *Page) Navigate(ctx context.Context, location string) error {
	if err := p.eval(ctx, navigateExpr(location), nil); err != nil {
		return fmt.Errorf("navigate to %s: %w", location, err)
	}
	p.logger.Debug().Str("location", location).Msg("Navigated")
	return nil
}

func (p *Page) exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	if err := p.eval(ctx, existsExpr(selector), &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (p *Page) click(ctx context.Context, selector string) error {
	var clicked bool
	if err := p.eval(ctx, clickExpr(selector), &clicked); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("element %s not found", selector)
	}
	return nil
}

func (p *Page) ActionReady(ctx context.Context, id string) (bool, error) {
	return p.exists(ctx, saveAllSelector(id))
}

// Changes attaches the mutation observer and streams its notifications.
// The subscriber is registered before the observer is attached so mutations
// during the attach are delivered. Detaching the last subscriber disconnects
// the observer.
func (p *Page) Changes(ctx context.Context) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil, fmt.Errorf("attach mutation observer: page closed")
	}
	n := p.nextSub
	p.nextSub++
	p.subs[n] = ch
	p.mu.Unlock()

	if err := p.eval(ctx, observerScript, nil); err != nil {
		p.unsubscribe(n)
		return nil, nil, fmt.Errorf("attach mutation observer: %w", err)
	}

	var once sync.Once
	detach := func() {
		once.Do(func() {
			if !p.unsubscribe(n) {
				return
			}
			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachTimeout)
			defer cancel()
			if err := p.eval(dctx, observerDetachScript, nil); err != nil {
				p.logger.Debug().Err(err).Msg("Disconnecting mutation observer failed")
			}
		})
	}
	return ch, detach, nil
}

// unsubscribe drops subscriber n and reports whether it was the last one.
func (p *Page) unsubscribe(n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[n]; !ok {
		return false
	}
	delete(p.subs, n)
	return len(p.subs) == 0 && !p.closed
}

func (p *Page) broadcast() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (p *Page) TriggerAction(ctx context.Context, id string) error {
	if err := p.click(ctx, saveAllSelector(id)); err != nil {
		return fmt.Errorf("click save-all: %w", err)
	}
	return nil
}

func (p *Page) CompletionVisible(ctx context.Context) (bool, error) {
	var ok bool
	if err := p.eval(ctx, completionExpr(), &ok); err != nil {
		return false, err
	}
	return ok, nil
}

type recordInfoResult struct {
	OK           bool   `json:"ok"`
	CreationTime string `json:"creationTime"`
	Transmitter  string `json:"transmitter"`
}

func (p *Page) RecordInfo(ctx context.Context, id string) (processor.RecordInfo, bool, error) {
	var res recordInfoResult
	if err := p.eval(ctx, recordInfoExpr(id), &res); err != nil {
		return processor.RecordInfo{}, false, fmt.Errorf("inspect record: %w", err)
	}
	if !res.OK || strings.TrimSpace(res.CreationTime) == "" {
		return processor.RecordInfo{}, false, nil
	}
	return processor.RecordInfo{CreationTime: res.CreationTime, Transmitter: res.Transmitter}, true, nil
}

func (p *Page) ProofAffordance(ctx context.Context, id string, labels []string) (string, bool, error) {
	for _, label := range labels {
		ok, err := p.exists(ctx, proofSelector(id, label))
		if err != nil {
			return "", false, fmt.Errorf("look up %s: %w", label, err)
		}
		if ok {
			return label, true, nil
		}
	}
	return "", false, nil
}

func (p *Page) TriggerProof(ctx context.Context, id, label string) error {
	if err := p.click(ctx, proofSelector(id, label)); err != nil {
		return fmt.Errorf("click %s: %w", label, err)
	}
	return nil
}

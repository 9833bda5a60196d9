package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sternrassler/mjp-export/pkg/capture"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// Opener intercepts windows opened by the application tab.
type Opener struct {
	tab context.Context
}

// Intercept watches for new page targets whose opener is the application tab.
// The first one is delivered on opened; later ones are left alone.
func (o *Opener) Intercept(ctx context.Context) (<-chan capture.Window, func(), error) {
	c := chromedp.FromContext(o.tab)
	if c == nil || c.Target == nil {
		return nil, nil, fmt.Errorf("intercept windows: tab not attached")
	}
	openerID := c.Target.TargetID

	listenCtx, cancel := context.WithCancel(o.tab)
	opened := make(chan capture.Window, 1)
	var once sync.Once

	chromedp.ListenBrowser(listenCtx, func(ev interface{}) {
		e, ok := ev.(*target.EventTargetCreated)
		if !ok || e.TargetInfo == nil {
			return
		}
		info := e.TargetInfo
		if info.Type != "page" || info.OpenerID != openerID {
			return
		}
		once.Do(func() {
			if listenCtx.Err() != nil {
				return
			}
			log.Debug().
				Str("component", "browser").
				Str("target_id", string(info.TargetID)).
				Str("url", info.URL).
				Msg("Proof window opened")
			// Attaching runs CDP commands; keep the event loop free.
			go func() {
				deliver(listenCtx, opened, newWindow(o.tab, info.TargetID))
			}()
		})
	})

	return opened, cancel, nil
}

// deliver hands w to the capturer unless the interception was released
// meanwhile; an undelivered window is detached so nothing keeps it attached.
func deliver(listenCtx context.Context, opened chan<- capture.Window, w *window) {
	if listenCtx.Err() != nil {
		w.cancel()
		return
	}
	opened <- w
}

// window is a proof popup attached as its own chromedp target.
type window struct {
	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
}

func newWindow(tab context.Context, id target.ID) *window {
	ctx, cancel := chromedp.NewContext(tab, chromedp.WithTargetID(id))
	w := &window{
		ctx:    ctx,
		cancel: cancel,
		closed: make(chan struct{}),
	}

	chromedp.ListenBrowser(ctx, func(ev interface{}) {
		if e, ok := ev.(*target.EventTargetDestroyed); ok && e.TargetID == id {
			w.markClosed()
		}
	})
	return w
}

func (w *window) markClosed() {
	w.closeOnce.Do(func() { close(w.closed) })
}

func (w *window) eval(ctx context.Context, expr string, res interface{}) error {
	runCtx, cancel := context.WithCancel(w.ctx)
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

func (w *window) Ready(ctx context.Context) (bool, error) {
	var ready bool
	if err := w.eval(ctx, windowReadyExpr, &ready); err != nil {
		return false, err
	}
	return ready, nil
}

func (w *window) HTML(ctx context.Context) (string, error) {
	var markup string
	if err := w.eval(ctx, documentHTMLExpr, &markup); err != nil {
		return "", err
	}
	return markup, nil
}

func (w *window) Close(ctx context.Context) error {
	select {
	case <-w.closed:
		w.cancel()
		return nil
	default:
	}

	err := chromedp.Run(w.ctx, page.Close())
	w.cancel()
	w.markClosed()
	if err != nil {
		return fmt.Errorf("close window: %w", err)
	}
	return nil
}

func (w *window) Closed() <-chan struct{} {
	return w.closed
}

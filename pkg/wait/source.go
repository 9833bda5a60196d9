package wait

import (
	"context"
	"sync"
	"time"
)

// Poll returns a Source that signals on a fixed interval.
func Poll(interval time.Duration) Source {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return pollSource{interval: interval}
}

type pollSource struct {
	interval time.Duration
}

func (p pollSource) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan struct{}, 1)
	ticker := time.NewTicker(p.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				notify(out)
			}
		}
	}()

	return out, cancel, nil
}

// SubscribeFunc attaches to an external change feed. It must stop sending
// once the returned detach function has been called.
type SubscribeFunc func(ctx context.Context) (changes <-chan struct{}, detach func(), err error)

// Events returns a Source backed by a change-notification feed such as DOM
// mutation events. Bursts of changes are coalesced into a single signal.
func Events(subscribe SubscribeFunc) Source {
	return eventSource{subscribe: subscribe}
}

type eventSource struct {
	subscribe SubscribeFunc
}

func (e eventSource) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	changes, detach, err := e.subscribe(ctx)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				notify(out)
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			if detach != nil {
				detach()
			}
		})
	}
	return out, release, nil
}

// notify performs a non-blocking send; a pending signal already covers this change.
func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

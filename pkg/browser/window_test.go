package browser

import (
	"context"
	"testing"

	"github.com/Sternrassler/mjp-export/pkg/capture"
)

func TestDeliver(t *testing.T) {
	tests := []struct {
		name          string
		released      bool
		wantDelivered bool
		wantDetached  bool
	}{
		{name: "armed interception", released: false, wantDelivered: true},
		{name: "released before attach finished", released: true, wantDetached: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listenCtx, release := context.WithCancel(context.Background())
			defer release()
			if tt.released {
				release()
			}

			detached := false
			w := &window{cancel: func() { detached = true }, closed: make(chan struct{})}
			opened := make(chan capture.Window, 1)

			deliver(listenCtx, opened, w)

			delivered := len(opened) == 1
			if delivered != tt.wantDelivered {
				t.Errorf("delivered = %v, want %v", delivered, tt.wantDelivered)
			}
			if detached != tt.wantDetached {
				t.Errorf("detached = %v, want %v", detached, tt.wantDetached)
			}
		})
	}
}

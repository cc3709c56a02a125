// internal/browser/netwatch.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

const networkIdleCheckFrequency = 100 * time.Millisecond

// netWatch tracks in-flight requests and main-document responses of one page.
type netWatch struct {
	mu        sync.Mutex
	inflight  map[network.RequestID]struct{}
	documents map[cdp.FrameID]Response
}

func newNetWatch() *netWatch {
	return &netWatch{
		inflight:  make(map[network.RequestID]struct{}),
		documents: make(map[cdp.FrameID]Response),
	}
}

func (w *netWatch) requestStarted(ev *network.EventRequestWillBeSent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// A redirect reuses the request ID, so it is already counted.
	w.inflight[ev.RequestID] = struct{}{}
}

func (w *netWatch) requestDone(id network.RequestID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, id)
}

func (w *netWatch) responseReceived(ev *network.EventResponseReceived) {
	if ev.Type != network.ResourceTypeDocument || ev.Response == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.documents[ev.FrameID] = Response{Status: int(ev.Response.Status), URL: ev.Response.URL}
}

// resetDocuments forgets responses of previous navigations. In-flight requests are cleared
// too since a navigation aborts whatever the previous document had pending.
func (w *netWatch) resetDocuments() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.documents = make(map[cdp.FrameID]Response)
	w.inflight = make(map[network.RequestID]struct{})
}

func (w *netWatch) documentResponse(frame cdp.FrameID) (Response, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.documents[frame]
	return r, ok
}

func (w *netWatch) active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

// waitIdle blocks until no request has been in flight for quietPeriod.
func (w *netWatch) waitIdle(ctx context.Context, quietPeriod time.Duration) error {
	timer := time.NewTimer(quietPeriod)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	defer timer.Stop()

	idle := false
	ticker := time.NewTicker(networkIdleCheckFrequency)
	defer ticker.Stop()

	check := func() {
		if w.active() > 0 {
			if idle {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				idle = false
			}
			return
		}
		if !idle {
			timer.Reset(quietPeriod)
			idle = true
		}
	}
	check()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			check()
		case <-timer.C:
			return nil
		}
	}
}

// Package wspush broadcasts notifications to websocket subscribers,
// serving the router's event-stream tier for out-of-process consumers.
package wspush

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"

	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/app/router"
)

const writeTimeout = 5 * time.Second

// Adapter accepts websocket subscribers over HTTP and fans committed
// transition notifications out to them. Slow or dead subscribers are
// dropped; the at-least-once contract is carried by the event log, not by
// individual sockets.
type Adapter struct {
	name    string
	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	healthy atomic.Bool
	closed  atomic.Bool
}

// New constructs a websocket push adapter.
func New(name string) *Adapter {
	a := &Adapter{name: name, conns: make(map[*websocket.Conn]struct{})}
	a.healthy.Store(true)
	return a
}

func (a *Adapter) Name() string  { return a.name }
func (a *Adapter) Healthy() bool { return a.healthy.Load() }

// SetHealthy toggles the adapter's reported health.
func (a *Adapter) SetHealthy(ok bool) { a.healthy.Store(ok) }

// ServeHTTP upgrades the request and registers the subscriber until the
// client disconnects.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	a.mu.Lock()
	a.conns[conn] = struct{}{}
	a.mu.Unlock()

	// Reads are discarded; the feed is push-only. Returning on error
	// unregisters the subscriber.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}
	a.drop(conn)
}

// Deliver broadcasts the notification to every connected subscriber.
func (a *Adapter) Deliver(ctx context.Context, n router.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return errs.New("adapter/"+a.name, errs.CodeRouting,
			errs.WithBasket(n.BasketID), errs.WithMessage("encode notification"), errs.WithCause(err))
	}

	a.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(a.conns))
	for c := range a.conns {
		conns = append(conns, c)
	}
	a.mu.Unlock()

	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := conn.Write(writeCtx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			a.drop(conn)
		}
	}
	return nil
}

// SubscriberCount reports the number of connected subscribers.
func (a *Adapter) SubscriberCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

// Close disconnects every subscriber and stops accepting new ones.
func (a *Adapter) Close() {
	a.closed.Store(true)
	a.healthy.Store(false)
	a.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(a.conns))
	for c := range a.conns {
		conns = append(conns, c)
	}
	a.conns = make(map[*websocket.Conn]struct{})
	a.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutdown")
	}
}

func (a *Adapter) drop(conn *websocket.Conn) {
	a.mu.Lock()
	delete(a.conns, conn)
	a.mu.Unlock()
	_ = conn.CloseNow()
}

var _ router.Adapter = (*Adapter)(nil)

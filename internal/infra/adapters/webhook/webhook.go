// Package webhook delivers notifications to external consumers over HTTP
// request/response, backing the router's externally-facing tier.
package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/app/router"
)

// Adapter posts notification JSON to a configured endpoint.
type Adapter struct {
	name     string
	endpoint string
	client   *http.Client
	healthy  atomic.Bool
}

// New constructs a webhook adapter targeting endpoint. A nil client gets a
// default with a 10s timeout.
func New(name, endpoint string, client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	a := &Adapter{name: name, endpoint: endpoint, client: client}
	a.healthy.Store(true)
	return a
}

// SetHealthy toggles the adapter's reported health.
func (a *Adapter) SetHealthy(ok bool) { a.healthy.Store(ok) }

func (a *Adapter) Name() string  { return a.name }
func (a *Adapter) Healthy() bool { return a.healthy.Load() }

// Deliver posts the notification; non-2xx responses fail the delivery.
func (a *Adapter) Deliver(ctx context.Context, n router.Notification) error {
	if a.endpoint == "" {
		return errs.New("adapter/"+a.name, errs.CodeRouting, errs.WithMessage("no endpoint configured"))
	}
	body, err := json.Marshal(n)
	if err != nil {
		return errs.New("adapter/"+a.name, errs.CodeRouting,
			errs.WithBasket(n.BasketID), errs.WithMessage("encode notification"), errs.WithCause(err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return errs.New("adapter/"+a.name, errs.CodeRouting,
			errs.WithBasket(n.BasketID), errs.WithCause(err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Basketcore-Event-Id", n.EventID)

	resp, err := a.client.Do(req)
	if err != nil {
		return errs.New("adapter/"+a.name, errs.CodeRouting,
			errs.WithBasket(n.BasketID), errs.WithCause(err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.New("adapter/"+a.name, errs.CodeRouting,
			errs.WithBasket(n.BasketID),
			errs.WithMessage("endpoint returned status "+strconv.Itoa(resp.StatusCode)))
	}
	return nil
}

var _ router.Adapter = (*Adapter)(nil)

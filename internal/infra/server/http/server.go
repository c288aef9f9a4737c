// Package httpserver exposes the HTTP command and query surface for basket
// lifecycle orchestration.
package httpserver

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/indexbasket/basketcore/errs"
	"github.com/indexbasket/basketcore/internal/app/coordinator"
	"github.com/indexbasket/basketcore/internal/app/router"
	"github.com/indexbasket/basketcore/internal/domain/basket"
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
)

const (
	maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

	basketsPath        = "/baskets"
	basketDetailPrefix = basketsPath + "/"

	channelsPath    = "/channels"
	deadlettersPath = "/deadletters"
	healthPath      = "/healthz"
	streamPath      = "/stream"
)

type handlerFunc func(http.ResponseWriter, *http.Request)

// ChannelStatus reports one delivery channel's adapter health.
type ChannelStatus struct {
	Channel string `json:"channel"`
	Adapter string `json:"adapter"`
	Healthy bool   `json:"healthy"`
}

type httpServer struct {
	coordinator *coordinator.Coordinator
	adapters    map[router.Channel]router.Adapter
	deadletter  *router.MemoryDeadLetter
}

// StreamHandler serves websocket subscriptions for the event-stream tier.
type StreamHandler interface {
	ServeHTTP(http.ResponseWriter, *http.Request)
}

// NewHandler creates the HTTP handler over the coordinator and the routing
// surfaces. deadletter and stream may be nil.
func NewHandler(coord *coordinator.Coordinator, adapters map[router.Channel]router.Adapter, deadletter *router.MemoryDeadLetter, stream StreamHandler) http.Handler {
	server := &httpServer{coordinator: coord, adapters: adapters, deadletter: deadletter}
	mux := http.NewServeMux()

	mux.Handle(basketsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.createBasket,
	}))
	mux.Handle(basketDetailPrefix, http.HandlerFunc(server.handleBasket))

	mux.Handle(channelsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listChannels,
	}))
	mux.Handle(deadlettersPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listDeadLetters,
	}))
	mux.Handle(healthPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.health,
	}))
	if stream != nil {
		mux.Handle(streamPath, stream)
	}

	return mux
}

type identityPayload struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

func (p identityPayload) identity() basket.Identity {
	roles := make([]basket.Role, 0, len(p.Roles))
	for _, r := range p.Roles {
		roles = append(roles, basket.Role(strings.ToLower(strings.TrimSpace(r))))
	}
	return basket.Identity{ID: strings.TrimSpace(p.ID), Roles: roles}
}

type commandPayload struct {
	Operation     string                 `json:"operation"`
	Requester     identityPayload        `json:"requester"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	Metadata      map[string]string      `json:"metadata,omitempty"`
	Definition    *basket.Definition     `json:"definition,omitempty"`
	Backtest      *basket.BacktestReport `json:"backtest,omitempty"`
}

type createPayload struct {
	Requester     identityPayload    `json:"requester"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Definition    *basket.Definition `json:"definition"`
}

func (s *httpServer) createBasket(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	resp := s.coordinator.Execute(r.Context(), coordinator.Command{
		Operation:     lifecycle.TriggerCreateBasket,
		Requester:     payload.Requester.identity(),
		CorrelationID: payload.CorrelationID,
		Definition:    payload.Definition,
	})
	writeCommandResponse(w, resp, http.StatusCreated)
}

func (s *httpServer) handleBasket(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, basketDetailPrefix), "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "basket id required")
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	basketID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.getBasket(w, r, basketID)
		return
	}

	switch parts[1] {
	case "history":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.getHistory(w, r, basketID)
	case "commands":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.submitCommand(w, r, basketID)
	default:
		writeError(w, http.StatusNotFound, "unknown basket resource")
	}
}

func (s *httpServer) getBasket(w http.ResponseWriter, r *http.Request, basketID string) {
	snap, err := s.coordinator.Get(r.Context(), basketID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *httpServer) getHistory(w http.ResponseWriter, r *http.Request, basketID string) {
	events, err := s.coordinator.History(r.Context(), basketID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"basket_id": basketID, "events": events})
}

func (s *httpServer) submitCommand(w http.ResponseWriter, r *http.Request, basketID string) {
	var payload commandPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	resp := s.coordinator.Execute(r.Context(), coordinator.Command{
		Operation:     lifecycle.Trigger(strings.ToUpper(strings.TrimSpace(payload.Operation))),
		BasketID:      basketID,
		Requester:     payload.Requester.identity(),
		CorrelationID: payload.CorrelationID,
		Reason:        payload.Reason,
		Metadata:      payload.Metadata,
		Definition:    payload.Definition,
		Backtest:      payload.Backtest,
	})
	writeCommandResponse(w, resp, http.StatusOK)
}

func (s *httpServer) listChannels(w http.ResponseWriter, _ *http.Request) {
	statuses := make([]ChannelStatus, 0, len(s.adapters))
	for channel, adapter := range s.adapters {
		if adapter == nil {
			continue
		}
		statuses = append(statuses, ChannelStatus{
			Channel: string(channel),
			Adapter: adapter.Name(),
			Healthy: adapter.Healthy(),
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Channel < statuses[j].Channel })
	writeJSON(w, http.StatusOK, map[string]any{"channels": statuses})
}

func (s *httpServer) listDeadLetters(w http.ResponseWriter, _ *http.Request) {
	if s.deadletter == nil {
		writeJSON(w, http.StatusOK, map[string]any{"deadletters": []router.DeadLetterEntry{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deadletters": s.deadletter.List()})
}

func (s *httpServer) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeCommandResponse(w http.ResponseWriter, resp coordinator.Response, okStatus int) {
	if resp.Status == coordinator.StatusAccepted {
		writeJSON(w, okStatus, resp)
		return
	}
	writeJSON(w, statusForCode(resp.ErrorCode), resp)
}

func statusForError(err error) int {
	var e *errs.E
	if errors.As(err, &e) {
		return statusForCode(e.Code)
	}
	return http.StatusInternalServerError
}

func statusForCode(code errs.Code) int {
	switch code {
	case errs.CodeInvalid:
		return http.StatusBadRequest
	case errs.CodeGuardRejected:
		return http.StatusForbidden
	case errs.CodeInvalidTransition:
		return http.StatusConflict
	case errs.CodeConflict:
		return http.StatusConflict
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeTimeout:
		return http.StatusGatewayTimeout
	case errs.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

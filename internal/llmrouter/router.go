// Package llmrouter implements the fallback routing client described
// in spec §4.10 (C10): given an ordered list of provider routes, try
// them in order, falling through to the next route only on a
// retryable error. A non-retryable error short-circuits — later
// routes are never called, which callers can observe directly since
// Route.Client.Complete simply never runs for them.
package llmrouter

import (
	"context"
	"errors"
	"net"

	"github.com/njfio/tau-agent/pkg/llm"
)

// Route is one provider/model pair and the client that serves it.
type Route struct {
	Provider string
	Model    string
	Client   llm.Client
}

// Event is emitted once per fallback, matching spec §4.10's
// provider_fallback record.
type Event struct {
	Type          string `json:"type"`
	FromModel     string `json:"from_model"`
	ToModel       string `json:"to_model"`
	ErrorKind     string `json:"error_kind"`
	Status        int    `json:"status,omitempty"`
	FallbackIndex int    `json:"fallback_index"`
}

// Sink receives fallback events as they occur.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

// Emit implements Sink.
func (f SinkFunc) Emit(e Event) { f(e) }

// Router tries an ordered list of routes, falling forward on retryable
// errors only.
type Router struct {
	routes []Route
	sink   Sink
}

// New returns a Router over routes, tried in the given order. sink may
// be nil to discard fallback events.
func New(routes []Route, sink Sink) *Router {
	return &Router{routes: routes, sink: sink}
}

// Complete attempts route 0, then each subsequent route in turn after
// a retryable failure, until one succeeds or every route has been
// tried. It returns the response from whichever route succeeded along
// with that route's provider name.
func (r *Router) Complete(ctx context.Context, req llm.ChatRequest, deltaSink llm.DeltaSink) (resp llm.ChatResponse, provider string, err error) {
	if len(r.routes) == 0 {
		return llm.ChatResponse{}, "", errors.New("llmrouter: no routes configured")
	}

	for i, route := range r.routes {
		attemptReq := req
		attemptReq.Model = route.Model

		resp, err = route.Client.Complete(ctx, attemptReq, deltaSink)
		if err == nil {
			return resp, route.Provider, nil
		}

		if !llm.Retryable(err) || i == len(r.routes)-1 {
			return llm.ChatResponse{}, route.Provider, err
		}

		next := r.routes[i+1]
		r.emit(Event{
			Type:          "provider_fallback",
			FromModel:     route.Model,
			ToModel:       next.Model,
			ErrorKind:     errorKind(err),
			Status:        statusCode(err),
			FallbackIndex: i + 1,
		})
	}

	// Unreachable: the loop above always returns by its final iteration.
	return llm.ChatResponse{}, "", err
}

func (r *Router) emit(e Event) {
	if r.sink != nil {
		r.sink.Emit(e)
	}
}

// FallbackModel is one (provider, model) pair a Router may fall through
// to after the primary route fails (spec §8 testable properties).
type FallbackModel struct {
	Provider string
	Model    string
}

// ResolveFallbackModels returns the routes after the primary (routes[0])
// as (provider, model) pairs, deduplicated by that pair and excluding
// the primary itself wherever it reappears later in the list. Mirrors
// the teacher's FailoverOrchestrator.Models() dedup-via-seen-map
// pattern, generalized from a single id key to the (provider, model)
// pair this router keys routes by.
func (r *Router) ResolveFallbackModels() []FallbackModel {
	if len(r.routes) == 0 {
		return nil
	}
	primary := FallbackModel{Provider: r.routes[0].Provider, Model: r.routes[0].Model}

	seen := map[FallbackModel]bool{primary: true}
	var fallbacks []FallbackModel
	for _, route := range r.routes[1:] {
		candidate := FallbackModel{Provider: route.Provider, Model: route.Model}
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		fallbacks = append(fallbacks, candidate)
	}
	return fallbacks
}

// errorKind classifies err into the spec §7 error-kind taxonomy used
// by provider_fallback events.
func errorKind(err error) string {
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return "HttpStatus"
	}
	var timeoutErr *llm.RequestTimeoutError
	if errors.As(err, &timeoutErr) {
		return "RequestTimeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "RequestTimeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return "TransportError"
	}
	return "TransportError"
}

func statusCode(err error) int {
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return 0
}

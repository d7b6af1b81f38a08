package events

import (
	"context"
	"errors"
	"fmt"
)

// Router dispatches entries to the handlers registered for their type.
// Handlers registered with Any receive every entry. Delivery is at least
// once: when one handler fails the whole entry is retried, so handlers must
// tolerate repeats.
type Router struct {
	byType map[string][]Handler
	any    []Handler
}

func NewRouter() *Router {
	return &Router{byType: make(map[string][]Handler)}
}

// On registers h for eventType.
func (r *Router) On(eventType string, h Handler) *Router {
	if h != nil {
		r.byType[eventType] = append(r.byType[eventType], h)
	}
	return r
}

// Any registers h for every event type.
func (r *Router) Any(h Handler) *Router {
	if h != nil {
		r.any = append(r.any, h)
	}
	return r
}

func (r *Router) Handle(ctx context.Context, entry Entry) error {
	var errs []error
	for _, h := range append(append([]Handler(nil), r.byType[entry.Type]...), r.any...) {
		if err := h.Handle(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("events: %s: %w", entry.Type, errors.Join(errs...))
	}
	return nil
}

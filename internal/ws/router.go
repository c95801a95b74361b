package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"groupchat/internal/domain"
	"groupchat/internal/logger"
	"groupchat/internal/metrics"
	"groupchat/internal/realtime"
)

// HandlerFunc handles one client event. A non-nil result is acknowledged to
// the sending connection as "<type>.success"; an error becomes
// "<type>.error". Handlers that return (nil, nil) send no acknowledgement.
type HandlerFunc func(ctx context.Context, conn realtime.Conn, ev *realtime.Event) (any, error)

// ErrorPayload is the body of every "<type>.error" event.
type ErrorPayload struct {
	Kind     domain.Kind `json:"kind"`
	Describe string      `json:"describe"`
}

// Router maps event types to handlers. Feature areas register their own
// handlers with Handle.
type Router struct {
	hub      *realtime.Hub
	limiter  *limiterPool
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRouter(hub *realtime.Hub, eventsPerSecond float64, burst int) *Router {
	return &Router{
		hub:      hub,
		limiter:  &limiterPool{rps: eventsPerSecond, burst: burst},
		handlers: make(map[string]HandlerFunc),
	}
}

func (r *Router) Handle(eventType string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = h
}

// Dispatch runs the handler for ev on behalf of conn. Errors are reported
// to conn only.
func (r *Router) Dispatch(ctx context.Context, conn realtime.Conn, ev *realtime.Event) {
	r.mu.RLock()
	h, ok := r.handlers[ev.Type]
	r.mu.RUnlock()
	if !ok {
		metrics.EventsReceived.WithLabelValues("unknown", "error").Inc()
		r.fail(conn, ev, fmt.Errorf("unknown event %q: %w", ev.Type, domain.ErrInvalidRequest))
		return
	}
	if !r.limiter.Allow(conn.UserID()) {
		metrics.EventsReceived.WithLabelValues(ev.Type, "limited").Inc()
		r.hub.EmitToConn(conn, realtime.ErrorEvent(ev.Type), ev.Ref, ErrorPayload{
			Kind:     domain.KindInvalidRequest,
			Describe: "too many events",
		})
		return
	}

	result, err := h(realtime.WithOrigin(ctx, conn), conn, ev)
	if err != nil {
		metrics.EventsReceived.WithLabelValues(ev.Type, "error").Inc()
		r.fail(conn, ev, err)
		return
	}
	metrics.EventsReceived.WithLabelValues(ev.Type, "ok").Inc()
	if result != nil {
		r.hub.EmitToConn(conn, realtime.SuccessEvent(ev.Type), ev.Ref, result)
	}
}

func (r *Router) fail(conn realtime.Conn, ev *realtime.Event, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindStoreUnavailable {
		logger.Log.Error("ws_event_failed",
			zap.String("type", ev.Type),
			zap.String("user_id", conn.UserID()),
			zap.Error(err))
	}
	r.hub.EmitToConn(conn, realtime.ErrorEvent(ev.Type), ev.Ref, ErrorPayload{
		Kind:     kind,
		Describe: domain.Describe(err),
	})
}

// decode unmarshals the event payload into T.
func decode[T any](ev *realtime.Event) (T, error) {
	var v T
	if len(ev.Payload) == 0 {
		return v, fmt.Errorf("missing payload: %w", domain.ErrInvalidRequest)
	}
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", ev.Type, domain.ErrInvalidRequest)
	}
	return v, nil
}

// limiterPool holds one token bucket per user, shared by all of the user's
// connections.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	rps := p.rps
	if rps <= 0 {
		rps = 20
	}
	burst := p.burst
	if burst <= 0 {
		burst = 40
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = l
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// forget drops the user's bucket once they are fully offline.
func (p *limiterPool) forget(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
}

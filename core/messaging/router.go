package messaging

import (
	"log/slog"
	"sync"
	"time"
)

// Handler processes an inbound envelope and returns a response, or nil when
// no response is warranted.
type Handler func(*Envelope) *Envelope

// LineageHop is one recorded hop of a delegation chain.
type LineageHop struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	Intent    string         `json:"intent"`
	Payload   map[string]any `json:"payload,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Router owns the handler registry and message dispatch. Routing never
// raises; an unknown receiver is logged and produces a nil response.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	lineage  map[string][]LineageHop
	logger   *slog.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[string]Handler),
		lineage:  make(map[string][]LineageHop),
		logger:   logger,
	}
}

// RegisterAgent binds a handler to an agent id, replacing any existing
// binding.
func (r *Router) RegisterAgent(id string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[id]; exists {
		r.logger.Warn("replacing registered handler", "agent_id", id)
	}
	r.handlers[id] = handler
	r.logger.Info("agent registered", "agent_id", id)
}

// UnregisterAgent removes an agent's handler binding. Returns whether the
// agent was registered.
func (r *Router) UnregisterAgent(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[id]; !exists {
		return false
	}
	delete(r.handlers, id)
	r.logger.Info("agent unregistered", "agent_id", id)
	return true
}

// RegisteredAgents returns the ids of all registered agents.
func (r *Router) RegisteredAgents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	return ids
}

// RouteMessage dispatches an envelope to its receiver's handler. An unknown
// receiver logs a route failure and returns nil.
func (r *Router) RouteMessage(msg *Envelope) *Envelope {
	r.mu.RLock()
	handler, ok := r.handlers[msg.Receiver]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("route failed, receiver not registered",
			"receiver", msg.Receiver,
			"sender", msg.Sender,
			"intent", msg.Intent,
			"trace_id", msg.TraceID())
		return nil
	}

	r.logger.Info("routing message",
		"sender", msg.Sender,
		"receiver", msg.Receiver,
		"intent", msg.Intent,
		"trace_id", msg.TraceID())

	response := handler(msg)
	if response != nil {
		r.logger.Info("message response",
			"sender", response.Sender,
			"receiver", response.Receiver,
			"intent", response.Intent,
			"trace_id", response.TraceID())
	}
	return response
}

// DelegateTask constructs an envelope from the given parts, records a
// lineage hop under its trace id, and routes it.
func (r *Router) DelegateTask(from, to, intent string, payload, metadata map[string]any) *Envelope {
	msg := New(from, to, intent, payload, metadata)

	if traceID := msg.TraceID(); traceID != "" {
		r.mu.Lock()
		r.lineage[traceID] = append(r.lineage[traceID], LineageHop{
			From:      from,
			To:        to,
			Intent:    intent,
			Payload:   payload,
			Metadata:  msg.Metadata,
			Timestamp: time.Now(),
		})
		r.mu.Unlock()
	}

	return r.RouteMessage(msg)
}

// TaskLineage returns the recorded delegation hops for a trace id, in send
// order.
func (r *Router) TaskLineage(traceID string) []LineageHop {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hops := r.lineage[traceID]
	out := make([]LineageHop, len(hops))
	copy(out, hops)
	return out
}

// Broadcast sends an envelope to every registered agent except the sender,
// collecting the non-nil responses keyed by receiver id.
func (r *Router) Broadcast(from, intent string, payload, metadata map[string]any) map[string]*Envelope {
	r.mu.RLock()
	receivers := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		if id != from {
			receivers = append(receivers, id)
		}
	}
	r.mu.RUnlock()

	responses := make(map[string]*Envelope)
	for _, id := range receivers {
		if resp := r.RouteMessage(New(from, id, intent, payload, metadata)); resp != nil {
			responses[id] = resp
		}
	}
	return responses
}

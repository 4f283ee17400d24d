// Package messaging provides the agent-to-agent message substrate: an
// envelope type with auto-stamped trace ids and a router that dispatches
// messages to registered handlers, tracking delegation lineage per trace.
package messaging

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message intents. The set is open; these are the intents the core engines
// send and understand.
const (
	IntentRequest         = "request"
	IntentResponse        = "response"
	IntentDelegate        = "delegate"
	IntentStatusUpdate    = "status_update"
	IntentProduce         = "produce"
	IntentCritiqueRequest = "critique_request"
	IntentRefine          = "refine"
	IntentDebateTurn      = "debate_turn"
	IntentExecuteFragment = "execute_fragment"
	IntentError           = "error"
)

// MaxDelegationDepth is the ceiling on agent-to-agent delegation hops for a
// single logical request. Handlers must refuse to delegate past it.
const MaxDelegationDepth = 5

// Metadata keys stamped or read by the core.
const (
	MetaTimestamp       = "timestamp"
	MetaTraceID         = "trace_id"
	MetaDelegationDepth = "delegation_depth"
	MetaParallelGroupID = "parallel_group_id"
)

// Envelope is a single agent-to-agent message. Construct through New so the
// timestamp and trace id are always stamped.
type Envelope struct {
	ID       string         `json:"id"`
	Sender   string         `json:"sender"`
	Receiver string         `json:"receiver"`
	Intent   string         `json:"intent"`
	Payload  map[string]any `json:"payload,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// New constructs an envelope. Metadata is copied; a timestamp is always
// stamped, and a trace id of the form sender->receiver:unixMilli is derived
// unless the caller supplied one.
func New(sender, receiver, intent string, payload, metadata map[string]any) *Envelope {
	now := time.Now()

	meta := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[MetaTimestamp] = now.Format(time.RFC3339Nano)
	if _, ok := meta[MetaTraceID]; !ok {
		meta[MetaTraceID] = fmt.Sprintf("%s->%s:%d", sender, receiver, now.UnixMilli())
	}

	return &Envelope{
		ID:       uuid.New().String(),
		Sender:   sender,
		Receiver: receiver,
		Intent:   intent,
		Payload:  payload,
		Metadata: meta,
	}
}

// Reply constructs a response envelope back to the sender, carrying the
// original trace id and delegation depth forward.
func (e *Envelope) Reply(intent string, payload map[string]any) *Envelope {
	meta := map[string]any{
		MetaTraceID: e.TraceID(),
	}
	if depth, ok := e.Metadata[MetaDelegationDepth]; ok {
		meta[MetaDelegationDepth] = depth
	}
	return New(e.Receiver, e.Sender, intent, payload, meta)
}

// TraceID returns the envelope's trace id, or "" when absent.
func (e *Envelope) TraceID() string {
	if v, ok := e.Metadata[MetaTraceID].(string); ok {
		return v
	}
	return ""
}

// DelegationDepth returns the delegation hop count, defaulting to 0.
func (e *Envelope) DelegationDepth() int {
	switch v := e.Metadata[MetaDelegationDepth].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// PayloadString returns the first non-empty string found in the payload
// under the given keys. Response payloads name their primary field
// inconsistently across agents, so extraction scans a preference order.
func (e *Envelope) PayloadString(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := e.Payload[k].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

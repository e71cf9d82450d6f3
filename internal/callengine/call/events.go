package call

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/relaycall/internal/callengine/media"
)

// EventType identifies the kind of a call engine event.
type EventType string

const (
	// EventCallInitiated - the first peer of an outbound call was created.
	EventCallInitiated EventType = "call.initiated"
	// EventCallReceived - the first peer of an inbound call was created.
	EventCallReceived EventType = "call.received"
	// EventCallEnded - the call left the registry.
	EventCallEnded EventType = "call.ended"
	// EventPeerState - a peer changed signaling state.
	EventPeerState EventType = "peer.state"
)

// Event is one call engine notification. Consumers read them from
// Events.C; producers never block on a slow consumer.
type Event struct {
	EventID     string            `json:"event_id"`
	EventType   EventType         `json:"event_type"`
	EventTime   time.Time         `json:"event_time"`
	CallID      string            `json:"call_id"`
	PeerSID     string            `json:"peer_sid,omitempty"`
	PeerAddress string            `json:"peer_address,omitempty"`
	PeerState   string            `json:"peer_state,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Directions  map[string]string `json:"directions,omitempty"`
}

// Events is the engine's event stream: a bounded channel that drops,
// with a warning, when the consumer falls behind.
type Events struct {
	ch chan Event
}

// NewEvents creates an event stream with the given buffer capacity.
func NewEvents(buffer int) *Events {
	if buffer <= 0 {
		buffer = 64
	}
	return &Events{ch: make(chan Event, buffer)}
}

// C returns the channel events are delivered on.
func (e *Events) C() <-chan Event {
	return e.ch
}

func (e *Events) publish(ev Event) {
	ev.EventID = uuid.New().String()
	ev.EventTime = time.Now().UTC()

	select {
	case e.ch <- ev:
	default:
		slog.Warn("Event channel full, dropping event",
			"event_type", string(ev.EventType), "call_id", ev.CallID)
	}
}

func (e *Events) callInitiated(callID string) {
	e.publish(Event{EventType: EventCallInitiated, CallID: callID})
}

func (e *Events) callReceived(callID string, directions map[media.Type]media.Direction) {
	dirs := make(map[string]string, len(directions))
	for t, d := range directions {
		dirs[t.String()] = d.String()
	}
	e.publish(Event{EventType: EventCallReceived, CallID: callID, Directions: dirs})
}

func (e *Events) callEnded(callID, reason string) {
	e.publish(Event{EventType: EventCallEnded, CallID: callID, Reason: reason})
}

func (e *Events) peerStateChanged(callID, sid, address string, state PeerState, reason string) {
	e.publish(Event{
		EventType:   EventPeerState,
		CallID:      callID,
		PeerSID:     sid,
		PeerAddress: address,
		PeerState:   state.String(),
		Reason:      reason,
	})
}

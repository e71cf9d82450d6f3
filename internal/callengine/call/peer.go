package call

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/sebas/relaycall/internal/callengine/colibri"
	"github.com/sebas/relaycall/internal/callengine/media"
)

// PeerState represents the signaling lifecycle state of a call peer.
type PeerState int

const (
	// PeerStateInitiating is the initial state of a freshly created peer.
	PeerStateInitiating PeerState = iota
	// PeerStateConnecting is entered once the user-visible ringing state
	// begins, before potentially slow network work.
	PeerStateConnecting
	// PeerStateIncoming is an inbound session awaiting a local answer.
	PeerStateIncoming
	// PeerStateConnected is an established session.
	PeerStateConnected
	// PeerStateDisconnected is a cleanly terminated session.
	PeerStateDisconnected
	// PeerStateFailed is a session that ended in error.
	PeerStateFailed
)

// String returns the string representation of the state.
func (s PeerState) String() string {
	switch s {
	case PeerStateInitiating:
		return "Initiating"
	case PeerStateConnecting:
		return "Connecting"
	case PeerStateIncoming:
		return "Incoming"
	case PeerStateConnected:
		return "Connected"
	case PeerStateDisconnected:
		return "Disconnected"
	case PeerStateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// IsTerminal returns true for terminal states.
func (s PeerState) IsTerminal() bool {
	return s == PeerStateDisconnected || s == PeerStateFailed
}

// validPeerTransitions defines which state transitions are allowed.
// Failed is reachable from every non-terminal state.
var validPeerTransitions = map[PeerState][]PeerState{
	PeerStateInitiating:   {PeerStateConnecting, PeerStateIncoming, PeerStateFailed},
	PeerStateConnecting:   {PeerStateConnected, PeerStateDisconnected, PeerStateFailed},
	PeerStateIncoming:     {PeerStateConnected, PeerStateDisconnected, PeerStateFailed},
	PeerStateConnected:    {PeerStateDisconnected, PeerStateFailed},
	PeerStateDisconnected: {},
	PeerStateFailed:       {},
}

// CanTransitionTo checks whether the transition is allowed.
func (s PeerState) CanTransitionTo(next PeerState) bool {
	for _, allowed := range validPeerTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Peer is one remote party of a Call: its session identifier, signaling
// state and per-peer media handler.
type Peer struct {
	call *Call

	mu          sync.RWMutex
	sid         string
	address     string
	state       PeerState
	stateReason string
	inbound     bool
	focus       bool
	offer       []media.Description
	handler     *media.PeerHandler

	// remoteChannels tracks how many remote relay channels the last
	// conference update advertised for this peer.
	remoteChannels int
}

func newPeer(call *Call, address, sid string, inbound bool) *Peer {
	return &Peer{
		call:    call,
		sid:     sid,
		address: address,
		state:   PeerStateInitiating,
		inbound: inbound,
		handler: media.NewPeerHandler(),
	}
}

// SID returns the peer's session identifier.
func (p *Peer) SID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sid
}

// Address returns the remote party's address.
func (p *Peer) Address() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.address
}

// Call returns the call owning this peer.
func (p *Peer) Call() *Call {
	return p.call
}

// State returns the current signaling state.
func (p *Peer) State() PeerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// StateReason returns the human-readable reason of the last transition.
func (p *Peer) StateReason() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stateReason
}

// Inbound reports whether the remote party initiated the session.
func (p *Peer) Inbound() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inbound
}

// MediaHandler returns the peer's media handler.
func (p *Peer) MediaHandler() *media.PeerHandler {
	return p.handler
}

// SetConferenceFocus records whether the remote party acts as a
// conference focus.
func (p *Peer) SetConferenceFocus(focus bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.focus = focus
}

// IsConferenceFocus reports whether the remote party is a conference
// focus.
func (p *Peer) IsConferenceFocus() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.focus
}

// Offer returns the remote party's processed stream descriptions.
func (p *Peer) Offer() []media.Description {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.offer
}

// setState transitions to a new state, emitting a peer-state event.
// Invalid transitions are rejected.
func (p *Peer) setState(next PeerState, reason string) error {
	p.mu.Lock()
	if !p.state.CanTransitionTo(next) {
		cur := p.state
		p.mu.Unlock()
		return fmt.Errorf("invalid peer state transition: %s -> %s", cur, next)
	}
	p.state = next
	p.stateReason = reason
	p.mu.Unlock()

	p.call.engine.events.peerStateChanged(p.call.ID(), p.SID(), p.Address(), next, reason)
	return nil
}

// forceState transitions unconditionally; used for failure paths where
// the peer must never be left stuck in a transient state.
func (p *Peer) forceState(next PeerState, reason string) {
	p.mu.Lock()
	if p.state == next {
		p.mu.Unlock()
		return
	}
	p.state = next
	p.stateReason = reason
	p.mu.Unlock()

	p.call.engine.events.peerStateChanged(p.call.ID(), p.SID(), p.Address(), next, reason)
}

// processOffer validates and records the remote party's offer. An offer
// without any usable stream description is malformed.
func (p *Peer) processOffer(contents []media.Description) error {
	if len(contents) == 0 {
		return fmt.Errorf("offer carries no usable stream descriptions")
	}

	var encryption []string
	for _, desc := range contents {
		encryption = append(encryption, desc.Encryption...)
	}

	p.mu.Lock()
	p.offer = contents
	p.mu.Unlock()

	p.handler.SetAdvertisedEncryption(encryption)
	return nil
}

// RemoteChannelCount returns the number of remote relay channels the
// last conference update advertised for this peer.
func (p *Peer) RemoteChannelCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.remoteChannels
}

// processConferenceUpdate handles the peer-scoped remainder of a relay
// conference update (the call's uplink channels have already been
// stripped by the owning Call).
func (p *Peer) processConferenceUpdate(update *colibri.Conference) {
	remote := 0
	for _, content := range update.Contents {
		remote += content.ChannelCount()
	}

	p.mu.Lock()
	p.remoteChannels = remote
	p.mu.Unlock()

	slog.Debug("Peer received conference update",
		"peer", p.Address(), "conference_id", update.ID, "remote_channels", remote)
}

package call

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sebas/relaycall/internal/callengine/colibri"
	"github.com/sebas/relaycall/internal/callengine/media"
	"github.com/sebas/relaycall/internal/callengine/signal"
)

// Call groups the peers of one logical call together with the shared
// relay conference state. All conference mutation (allocation, expiry,
// inbound updates) is serialized on confMu.
type Call struct {
	id     string
	engine *Engine

	confMu        sync.Mutex
	conference    *colibri.Conference
	sharedHandler *media.Handler

	peersMu sync.RWMutex
	peers   []*Peer

	flagsMu            sync.RWMutex
	relayMediated      bool
	focus              bool
	localVideoAllowed  bool
	localInputEvtAware bool

	connectors connectorCache
}

// ID returns the call identifier.
func (c *Call) ID() string {
	return c.id
}

// RelayMediated reports whether media for this call flows through the
// conference relay.
func (c *Call) RelayMediated() bool {
	c.flagsMu.RLock()
	defer c.flagsMu.RUnlock()
	return c.relayMediated
}

// Peers returns a snapshot of the call's peers.
func (c *Call) Peers() []*Peer {
	c.peersMu.RLock()
	defer c.peersMu.RUnlock()
	out := make([]*Peer, len(c.peers))
	copy(out, c.peers)
	return out
}

// PeerCount returns the number of peers currently on the call.
func (c *Call) PeerCount() int {
	c.peersMu.RLock()
	defer c.peersMu.RUnlock()
	return len(c.peers)
}

// PeerBySID finds a peer by session identifier.
func (c *Call) PeerBySID(sid string) *Peer {
	c.peersMu.RLock()
	defer c.peersMu.RUnlock()
	for _, p := range c.peers {
		if p.SID() == sid {
			return p
		}
	}
	return nil
}

func (c *Call) addPeer(p *Peer) {
	c.peersMu.Lock()
	defer c.peersMu.Unlock()
	c.peers = append(c.peers, p)
}

// activePeerCount returns the number of peers in a non-terminal state.
func (c *Call) activePeerCount() int {
	c.peersMu.RLock()
	defer c.peersMu.RUnlock()
	n := 0
	for _, p := range c.peers {
		if !p.State().IsTerminal() {
			n++
		}
	}
	return n
}

// Conference returns the call's current conference state. Callers must
// treat the returned value as read-only.
func (c *Call) Conference() *colibri.Conference {
	c.confMu.Lock()
	defer c.confMu.Unlock()
	return c.conference
}

// ConferenceSnapshot returns a deep copy of the call's conference state,
// safe to inspect while allocation, expiry or inbound updates mutate the
// live descriptor.
func (c *Call) ConferenceSnapshot() *colibri.Conference {
	c.confMu.Lock()
	defer c.confMu.Unlock()
	if c.conference == nil {
		return nil
	}
	return c.conference.Clone()
}

// IsConferenceFocus reports whether the local party acts as the focus
// of this call.
func (c *Call) IsConferenceFocus() bool {
	c.flagsMu.RLock()
	defer c.flagsMu.RUnlock()
	return c.focus
}

// SetConferenceFocus flips the local focus role and, when it changes,
// notifies every connected peer via a session-info update.
func (c *Call) SetConferenceFocus(focus bool) {
	c.flagsMu.Lock()
	if c.focus == focus {
		c.flagsMu.Unlock()
		return
	}
	c.focus = focus
	c.flagsMu.Unlock()

	for _, p := range c.Peers() {
		if p.State() != PeerStateConnected {
			continue
		}
		msg := &signal.SessionInfo{SID: p.SID(), To: p.Address(), Focus: focus}
		if err := c.engine.signal.SendSessionInfo(context.Background(), msg); err != nil {
			slog.Warn("Failed to notify peer of focus change",
				"call_id", c.id, "peer", p.Address(), "error", err)
		}
	}
}

// LocalVideoAllowed reports whether local video is enabled for the call.
func (c *Call) LocalVideoAllowed() bool {
	c.flagsMu.RLock()
	defer c.flagsMu.RUnlock()
	return c.localVideoAllowed
}

// SetLocalVideoAllowed enables or disables local video and announces the
// new video direction to every connected peer.
func (c *Call) SetLocalVideoAllowed(allowed bool) {
	c.flagsMu.Lock()
	if c.localVideoAllowed == allowed {
		c.flagsMu.Unlock()
		return
	}
	c.localVideoAllowed = allowed
	c.flagsMu.Unlock()

	if c.sharedMediaHandler() != nil {
		c.sharedMediaHandler().SetLocalVideoEnabled(allowed)
	}

	direction := media.DirectionInactive
	if allowed {
		direction = media.DirectionSendRecv
	}
	for _, p := range c.Peers() {
		if p.State() != PeerStateConnected {
			continue
		}
		p.MediaHandler().Handler().SetLocalVideoEnabled(allowed)
		msg := &signal.ContentModify{
			SID:       p.SID(),
			To:        p.Address(),
			Type:      media.TypeVideo,
			Direction: direction,
		}
		if err := c.engine.signal.SendContentModify(context.Background(), msg); err != nil {
			slog.Warn("Failed to announce video direction change",
				"call_id", c.id, "peer", p.Address(), "error", err)
		}
	}
}

// LocalInputEvtAware reports whether local telephony events (DTMF) are
// signaled in-band.
func (c *Call) LocalInputEvtAware() bool {
	c.flagsMu.RLock()
	defer c.flagsMu.RUnlock()
	return c.localInputEvtAware
}

// SetLocalInputEvtAware toggles in-band telephony event signaling.
func (c *Call) SetLocalInputEvtAware(aware bool) {
	c.flagsMu.Lock()
	c.localInputEvtAware = aware
	c.flagsMu.Unlock()

	for _, p := range c.Peers() {
		p.MediaHandler().Handler().SetLocalInputEvtAware(aware)
	}
}

func (c *Call) sharedMediaHandler() *media.Handler {
	c.confMu.Lock()
	defer c.confMu.Unlock()
	return c.sharedHandler
}

// end tears the call down: stream connectors are closed, conference
// state is dropped and the call leaves the registry.
func (c *Call) end(reason string) {
	c.connectors.closeAll()

	c.confMu.Lock()
	c.conference = nil
	c.sharedHandler = nil
	c.confMu.Unlock()

	c.engine.registry.Remove(c.id)
	c.engine.events.callEnded(c.id, reason)
	slog.Info("Call ended", "call_id", c.id, "reason", reason)
}

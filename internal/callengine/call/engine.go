package call

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sebas/relaycall/internal/callengine/colibri"
	"github.com/sebas/relaycall/internal/callengine/media"
	"github.com/sebas/relaycall/internal/callengine/relay"
	"github.com/sebas/relaycall/internal/callengine/signal"
)

// EngineConfig wires an Engine together.
type EngineConfig struct {
	Relay  relay.Transport
	Signal signal.Transport
	Events *Events

	// RelayAddress is the conference relay to allocate channels from.
	// Empty disables relay mediation for new calls.
	RelayAddress string
	// LocalAddress is the identity used as initiator on outbound
	// sessions and matched against attended-transfer destinations.
	LocalAddress string

	Security   SecurityPolicy
	AutoAnswer AutoAnswerPolicy

	// Offer overrides the stream descriptions used for outbound calls
	// and answers. Nil selects DefaultOfferDescriptions.
	Offer []media.Description
}

// Engine runs call signaling: it creates calls, drives peer state, and
// owns the registry the relay update pump fans conference updates into.
type Engine struct {
	relay      relay.Transport
	signal     signal.Transport
	registry   *Registry
	events     *Events
	relayAddr  string
	localAddr  string
	security   SecurityPolicy
	autoAnswer AutoAnswerPolicy
	offer      []media.Description
}

// NewEngine creates an engine and registers its signaling handlers.
func NewEngine(cfg EngineConfig) *Engine {
	events := cfg.Events
	if events == nil {
		events = NewEvents(0)
	}
	offer := cfg.Offer
	if offer == nil {
		offer = DefaultOfferDescriptions(true)
	}

	e := &Engine{
		relay:      cfg.Relay,
		signal:     cfg.Signal,
		registry:   NewRegistry(),
		events:     events,
		relayAddr:  cfg.RelayAddress,
		localAddr:  cfg.LocalAddress,
		security:   cfg.Security,
		autoAnswer: cfg.AutoAnswer,
		offer:      offer,
	}

	e.signal.OnSessionInitiate(func(msg *signal.SessionInitiate) {
		e.HandleSessionInitiate(context.Background(), msg)
	})
	e.signal.OnSessionAccept(e.handleSessionAccept)
	e.signal.OnSessionReject(e.handleSessionReject)
	e.signal.OnSessionTerminate(e.handleSessionTerminate)

	return e
}

// DefaultOfferDescriptions returns the stream descriptions offered on
// outbound calls: G.711 plus Opus audio, and VP8 video when enabled.
func DefaultOfferDescriptions(video bool) []media.Description {
	descs := []media.Description{
		{
			Type:      media.TypeAudio,
			Direction: media.DirectionSendRecv,
			PayloadTypes: []media.PayloadType{
				{ID: 0, Name: "PCMU", ClockRate: 8000},
				{ID: 8, Name: "PCMA", ClockRate: 8000},
				{ID: 96, Name: "opus", ClockRate: 48000, Channels: 2},
			},
		},
	}
	if video {
		descs = append(descs, media.Description{
			Type:      media.TypeVideo,
			Direction: media.DirectionSendRecv,
			PayloadTypes: []media.PayloadType{
				{ID: 100, Name: "VP8", ClockRate: 90000},
			},
		})
	}
	return descs
}

// Registry returns the engine's call registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Events returns the engine's event stream.
func (e *Engine) Events() *Events {
	return e.events
}

// RelayAddress returns the configured conference relay address.
func (e *Engine) RelayAddress() string {
	return e.relayAddr
}

// CreateCall creates and registers an empty call. The call is relay
// mediated when a relay address is configured.
func (e *Engine) CreateCall() *Call {
	c := &Call{
		id:                uuid.New().String(),
		engine:            e,
		relayMediated:     e.relayAddr != "",
		localVideoAllowed: true,
	}
	e.registry.Add(c)
	return c
}

// InitiateSession starts an outbound session to callee on the given
// call. The peer enters Connecting before the potentially slow send; if
// the offer cannot be sent the peer is marked Failed, never left stuck
// in a transient state.
func (e *Engine) InitiateSession(ctx context.Context, c *Call, callee string) (*Peer, error) {
	peer := newPeer(c, callee, uuid.New().String(), false)
	c.addPeer(peer)
	e.events.peerStateChanged(c.ID(), peer.SID(), peer.Address(), PeerStateInitiating, "")

	if c.PeerCount() == 1 {
		e.events.callInitiated(c.ID())
	}

	handler := peer.MediaHandler().Handler()
	handler.SetLocalVideoEnabled(c.LocalVideoAllowed())
	handler.SetLocalInputEvtAware(c.LocalInputEvtAware())

	if err := peer.setState(PeerStateConnecting, ""); err != nil {
		return nil, err
	}

	initiated := false
	defer func() {
		if !initiated {
			peer.forceState(PeerStateFailed, "could not send session offer")
		}
	}()

	contents := e.offer
	if !c.LocalVideoAllowed() {
		contents = filterVideo(contents)
	}

	msg := &signal.SessionInitiate{
		SID:       peer.SID(),
		Initiator: e.localAddr,
		From:      e.localAddr,
		To:        callee,
		Focus:     c.IsConferenceFocus(),
		Contents:  contents,
	}
	if err := e.signal.SendSessionInitiate(ctx, msg); err != nil {
		return nil, fmt.Errorf("initiate session with %s: %w", callee, err)
	}

	initiated = true
	return peer, nil
}

func filterVideo(descs []media.Description) []media.Description {
	out := make([]media.Description, 0, len(descs))
	for _, d := range descs {
		if d.Type != media.TypeVideo {
			out = append(out, d)
		}
	}
	return out
}

// HandleSessionInitiate processes an inbound session offer: it creates
// a call for the new peer and runs inbound admission. The returned peer
// is nil when the offer was rejected, or when an attended-transfer
// auto-answer failed (the attendant leg is still hung up in that case).
func (e *Engine) HandleSessionInitiate(ctx context.Context, msg *signal.SessionInitiate) *Peer {
	c := e.CreateCall()
	return e.processSessionInitiate(ctx, c, msg)
}

func (e *Engine) processSessionInitiate(ctx context.Context, c *Call, msg *signal.SessionInitiate) *Peer {
	remote := msg.InitiatorAddress()
	peer := newPeer(c, remote, msg.SID, true)
	c.addPeer(peer)
	e.events.peerStateChanged(c.ID(), peer.SID(), peer.Address(), PeerStateInitiating, "")

	// Attended transfer: the offer references the session this party
	// had with the attendant. A malformed hint must not break ordinary
	// call intake, so it only ever downgrades to a normal incoming call.
	autoAnswer := false
	var attendant *Peer
	if msg.Transfer != nil && msg.Transfer.SID != "" {
		_, prior := e.registry.FindPeerBySID(msg.Transfer.SID)
		if prior != nil && prior.Address() == msg.Transfer.From && e.localAddr == msg.Transfer.To {
			autoAnswer = true
			attendant = prior
		} else {
			slog.Info("Ignoring unverifiable transfer hint",
				"sid", msg.SID, "transfer_sid", msg.Transfer.SID)
		}
	}

	if msg.Focus {
		peer.SetConferenceFocus(true)
	}

	if err := peer.processOffer(msg.Contents); err != nil {
		slog.Info("Rejecting malformed session offer",
			"sid", msg.SID, "from", remote, "error", err)
		if terr := e.signal.SendSessionTerminate(ctx, msg.From, msg.SID,
			signal.ReasonFailedApplication, err.Error()); terr != nil {
			slog.Warn("Failed to reject session offer", "sid", msg.SID, "error", terr)
		}
		peer.forceState(PeerStateFailed, err.Error())
		return nil
	}

	if e.security.MandatoryEncryption && len(peer.MediaHandler().AdvertisedEncryptionMethods()) == 0 {
		const reason = "encryption required but none advertised"
		slog.Info("Rejecting unencrypted session offer", "sid", msg.SID, "from", remote)
		if terr := e.signal.SendSessionTerminate(ctx, msg.From, msg.SID,
			signal.ReasonSecurityError, reason); terr != nil {
			slog.Warn("Failed to reject session offer", "sid", msg.SID, "error", terr)
		}
		peer.forceState(PeerStateFailed, reason)
		return nil
	}

	if err := peer.setState(PeerStateIncoming, ""); err != nil {
		slog.Error("Inbound peer in unexpected state", "sid", msg.SID, "error", err)
		return nil
	}

	if autoAnswer {
		answered := peer
		if err := e.Answer(ctx, peer); err != nil {
			slog.Info("Failed to answer transferred session",
				"sid", msg.SID, "error", err)
			answered = nil
		}
		// The attendant leg ends regardless of whether the answer
		// succeeded; the transfer is over either way.
		if err := e.HangupPeer(ctx, attendant, signal.ReasonNormal, "call transferred"); err != nil {
			slog.Error("Failed to hang up transfer attendant",
				"sid", attendant.SID(), "error", err)
		}
		return answered
	}

	directions := map[media.Type]media.Direction{
		media.TypeAudio: media.DirectionInactive,
		media.TypeVideo: media.DirectionInactive,
	}
	for _, desc := range msg.Contents {
		directions[desc.Type] = desc.Direction
	}

	if c.PeerCount() == 1 {
		e.events.callReceived(c.ID(), directions)
	}

	if e.autoAnswer != nil && e.autoAnswer.ShouldAutoAnswer(c, directions) {
		if err := e.Answer(ctx, peer); err != nil {
			slog.Warn("Auto-answer failed", "sid", msg.SID, "error", err)
		}
	}

	return peer
}

// Answer accepts an incoming session, echoing the streams the remote
// party offered.
func (e *Engine) Answer(ctx context.Context, peer *Peer) error {
	if state := peer.State(); state != PeerStateIncoming {
		return fmt.Errorf("cannot answer peer in state %s", state)
	}

	msg := &signal.SessionAccept{
		SID:      peer.SID(),
		To:       peer.Address(),
		Contents: peer.Offer(),
	}
	if err := e.signal.SendSessionAccept(ctx, msg); err != nil {
		return fmt.Errorf("accept session %s: %w", peer.SID(), err)
	}

	return peer.setState(PeerStateConnected, "")
}

// HangupPeer terminates a session with a peer. Signaling failures are
// logged; locally the peer always ends up Disconnected. When the last
// peer leaves, the call is torn down.
func (e *Engine) HangupPeer(ctx context.Context, peer *Peer, reason signal.Reason, text string) error {
	if peer.State().IsTerminal() {
		return nil
	}

	err := e.signal.SendSessionTerminate(ctx, peer.Address(), peer.SID(), reason, text)
	if err != nil {
		slog.Warn("Failed to send session terminate",
			"sid", peer.SID(), "peer", peer.Address(), "error", err)
	}
	peer.forceState(PeerStateDisconnected, text)

	c := peer.Call()
	if c.activePeerCount() == 0 {
		if conf := c.Conference(); conf != nil {
			c.ExpireChannels(conf)
		}
		c.end(string(reason))
	}
	return err
}

func (e *Engine) handleSessionAccept(sid string, contents []media.Description) {
	_, peer := e.registry.FindPeerBySID(sid)
	if peer == nil {
		slog.Debug("Session accept for unknown session", "sid", sid)
		return
	}
	if err := peer.processOffer(contents); err != nil {
		slog.Warn("Session accept carried no usable streams", "sid", sid)
	}
	if err := peer.setState(PeerStateConnected, ""); err != nil {
		slog.Warn("Unexpected session accept", "sid", sid, "error", err)
	}
}

func (e *Engine) handleSessionReject(sid string, reason signal.Reason, text string) {
	c, peer := e.registry.FindPeerBySID(sid)
	if peer == nil {
		slog.Debug("Session reject for unknown session", "sid", sid)
		return
	}
	if text == "" {
		text = string(reason)
	}
	peer.forceState(PeerStateFailed, text)
	if c.activePeerCount() == 0 {
		c.end(string(reason))
	}
}

func (e *Engine) handleSessionTerminate(sid string, reason signal.Reason) {
	c, peer := e.registry.FindPeerBySID(sid)
	if peer == nil {
		slog.Debug("Session terminate for unknown session", "sid", sid)
		return
	}

	peer.forceState(PeerStateDisconnected, string(reason))
	if c.activePeerCount() == 0 {
		if conf := c.Conference(); conf != nil {
			// Best effort; the relay expires idle channels on its own.
			c.ExpireChannels(conf)
		}
		c.end(string(reason))
	}
}

// HandleConferenceUpdate routes a relay-pushed conference update to the
// call owning that conference. Returns false when no call claimed it.
func (e *Engine) HandleConferenceUpdate(update *colibri.Conference) bool {
	for _, c := range e.registry.Calls() {
		if c.ProcessConferenceUpdate(update) {
			return true
		}
	}
	if update != nil {
		slog.Debug("Conference update matched no call", "conference_id", update.ID)
	}
	return false
}

// Run pumps relay updates into the engine until ctx is done. Without a
// relay transport it just waits for cancellation.
func (e *Engine) Run(ctx context.Context) {
	if e.relay == nil {
		<-ctx.Done()
		return
	}
	updates := e.relay.Updates()
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			e.HandleConferenceUpdate(update)
		case <-ctx.Done():
			return
		}
	}
}

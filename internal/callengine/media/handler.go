package media

import "sync"

// Handler is the media-handler state a set of streams hangs off: per-type
// stream presence plus the local capture toggles. A relay-mediated
// conference requires every peer of a call to funnel media through one
// shared Handler, so the engine rebinds peer handlers onto a single
// instance when the first channels are allocated.
type Handler struct {
	mu                 sync.RWMutex
	streams            [TypeCount]bool
	localVideoEnabled  bool
	localInputEvtAware bool
}

// NewHandler creates an empty media handler.
func NewHandler() *Handler {
	return &Handler{}
}

// SetStreamActive records whether a stream of the given type is active.
func (h *Handler) SetStreamActive(t Type, active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams[t] = active
}

// StreamActive reports whether a stream of the given type is active.
func (h *Handler) StreamActive(t Type) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.streams[t]
}

// SetLocalVideoEnabled toggles local video transmission.
func (h *Handler) SetLocalVideoEnabled(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.localVideoEnabled = enabled
}

// LocalVideoEnabled reports whether local video transmission is enabled.
func (h *Handler) LocalVideoEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.localVideoEnabled
}

// SetLocalInputEvtAware toggles remote-input awareness (desktop sharing).
func (h *Handler) SetLocalInputEvtAware(aware bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.localInputEvtAware = aware
}

// LocalInputEvtAware reports whether remote-input awareness is enabled.
func (h *Handler) LocalInputEvtAware() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.localInputEvtAware
}

// PeerHandler is the per-peer view onto a Handler. Each peer starts with a
// private Handler; joining a relay-mediated conference rebinds it to the
// call's shared one. The rebind is one-way for the life of the peer.
type PeerHandler struct {
	mu         sync.RWMutex
	handler    *Handler
	encryption []string
}

// NewPeerHandler creates a peer handler backed by a private Handler.
func NewPeerHandler() *PeerHandler {
	return &PeerHandler{handler: NewHandler()}
}

// Handler returns the Handler currently backing this peer.
func (p *PeerHandler) Handler() *Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handler
}

// Rebind installs the shared Handler. Streams already registered on the
// private handler are not migrated; callers must verify the peer has no
// active streams before rebinding.
func (p *PeerHandler) Rebind(shared *Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = shared
}

// StreamActive reports stream presence through the backing Handler.
func (p *PeerHandler) StreamActive(t Type) bool {
	return p.Handler().StreamActive(t)
}

// SetAdvertisedEncryption records the encryption methods the remote party
// advertised in its offer.
func (p *PeerHandler) SetAdvertisedEncryption(methods []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.encryption = append([]string(nil), methods...)
}

// AdvertisedEncryptionMethods returns the encryption methods the remote
// party advertised, if any.
func (p *PeerHandler) AdvertisedEncryptionMethods() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.encryption
}

package call

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sebas/relaycall/internal/callengine/colibri"
	"github.com/sebas/relaycall/internal/callengine/media"
)

// AllocateChannels requests relay channels for a peer's streams and
// merges the response into the call's conference state.
//
// The returned conference holds only the channels relevant to the
// requesting peer: per requested content, the call's local uplink
// channel followed by the channels the relay allocated for the peer.
// A nil conference with a nil error means the call is not relay
// mediated, the peer must keep private media, or the relay negotiation
// failed; such failures are logged, not propagated. The only error
// returned is ErrConferenceIDMismatch, which invalidates the call's
// conference state.
func (c *Call) AllocateChannels(peer *Peer, descs []media.Description) (*colibri.Conference, error) {
	if !c.RelayMediated() || c.engine.relay == nil {
		return nil, nil
	}

	c.confMu.Lock()
	defer c.confMu.Unlock()

	// A peer whose media handler is not the call-wide shared one may
	// already carry private streams; pulling those onto relay channels
	// would break them mid-call.
	peerHandler := peer.MediaHandler()
	if peerHandler.Handler() != c.sharedHandler {
		for _, t := range media.Types() {
			if peerHandler.StreamActive(t) {
				slog.Info("Refusing channel allocation for peer with private streams",
					"call_id", c.id, "peer", peer.Address(), "media_type", t)
				return nil, nil
			}
		}
	}

	relayAddr := c.engine.RelayAddress()
	if c.conference != nil && c.conference.From != "" {
		relayAddr = c.conference.From
	}
	if relayAddr == "" {
		slog.Info("Failed to allocate conference channels: no relay address",
			"call_id", c.id)
		return nil, nil
	}

	request := colibri.NewConference()
	if c.conference != nil {
		request.ID = c.conference.ID
	}

	for _, desc := range descs {
		content := colibri.NewContent(desc.Type.String())
		request.AddContent(content)

		// The local uplink channel is allocated exactly once per media
		// type; later peers reuse it.
		requestLocal := true
		if c.conference != nil {
			if existing := c.conference.Content(content.Name); existing != nil && existing.ChannelCount() > 0 {
				requestLocal = false
			}
		}
		if requestLocal {
			content.AddChannel(&colibri.Channel{PayloadTypes: desc.PayloadTypes})
		}
		content.AddChannel(&colibri.Channel{PayloadTypes: desc.PayloadTypes})
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.engine.relay.ReplyTimeout())
	defer cancel()

	response, err := c.engine.relay.RoundTrip(ctx, relayAddr, request)
	if err != nil {
		slog.Info("Failed to allocate conference channels",
			"call_id", c.id, "relay", relayAddr, "error", err)
		return nil, nil
	}

	if c.conference == nil {
		c.conference = response
	} else if c.conference.ID == "" {
		c.conference.ID = response.ID
		c.mergeChannels(response)
	} else if c.conference.ID != response.ID {
		return nil, fmt.Errorf("%w: have %q, relay sent %q",
			ErrConferenceIDMismatch, c.conference.ID, response.ID)
	} else {
		c.mergeChannels(response)
	}

	result := colibri.NewConference()
	result.ID = response.ID
	result.From = c.conference.From

	for _, desc := range descs {
		responseContent := response.Content(desc.Type.String())
		if responseContent == nil {
			continue
		}
		resultContent := colibri.NewContent(responseContent.Name)
		result.AddContent(resultContent)

		var localID string
		if content := c.conference.Content(responseContent.Name); content != nil && content.ChannelCount() > 0 {
			local := content.Channel(0)
			resultContent.AddChannel(local)
			localID = local.ID
		}
		for _, ch := range responseContent.Channels {
			if localID == "" || ch.ID != localID {
				resultContent.AddChannel(ch)
			}
		}
	}

	if c.sharedHandler == nil {
		c.sharedHandler = media.NewHandler()
		c.sharedHandler.SetLocalVideoEnabled(c.LocalVideoAllowed())
		c.sharedHandler.SetLocalInputEvtAware(c.LocalInputEvtAware())
	}
	peerHandler.Rebind(c.sharedHandler)

	slog.Debug("Allocated conference channels",
		"call_id", c.id, "conference_id", result.ID, "peer", peer.Address())
	return result, nil
}

// mergeChannels appends the response's channels to the call conference.
// Channels are only ever added; expiry is the sole removal path.
func (c *Call) mergeChannels(response *colibri.Conference) {
	for _, responseContent := range response.Contents {
		content := c.conference.GetOrCreateContent(responseContent.Name)
		for _, ch := range responseContent.Channels {
			content.AddChannel(ch)
		}
	}
}

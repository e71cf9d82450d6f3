package call

import (
	"log/slog"

	"github.com/sebas/relaycall/internal/callengine/colibri"
)

// ExpireChannels releases relay channels a departing peer no longer
// needs. The request is fire and forget: the relay is told to expire
// the channels and the local conference state forgets them immediately.
//
// When expiring a content's channels leaves only the local uplink
// channel behind, that channel is expired too: an uplink with no
// remaining receivers serves nobody.
//
// Conferences other than the call's own are ignored, as are channels
// the call does not know, making repeated calls harmless.
func (c *Call) ExpireChannels(toExpire *colibri.Conference) {
	if toExpire == nil || c.engine.relay == nil {
		return
	}

	c.confMu.Lock()

	if c.conference == nil || c.conference.ID != toExpire.ID {
		c.confMu.Unlock()
		return
	}

	request := colibri.NewConference()
	request.ID = c.conference.ID

	for _, expireContent := range toExpire.Contents {
		content := c.conference.Content(expireContent.Name)
		if content == nil {
			continue
		}
		requestContent := request.GetOrCreateContent(content.Name)
		for _, ch := range expireContent.Channels {
			if local := content.ChannelByID(ch.ID); local != nil {
				expired := &colibri.Channel{ID: local.ID}
				expired.SetExpire(0)
				requestContent.AddChannel(expired)
			}
		}
	}

	for _, requestContent := range request.Contents {
		content := c.conference.Content(requestContent.Name)
		if content == nil {
			continue
		}
		for _, ch := range requestContent.Channels {
			content.RemoveChannel(ch.ID)

			if content.ChannelCount() == 1 {
				last := content.Channel(0)
				expired := &colibri.Channel{ID: last.ID}
				expired.SetExpire(0)
				requestContent.AddChannel(expired)
				content.RemoveChannel(last.ID)
				break
			}
		}
	}

	relayAddr := c.conference.From
	c.confMu.Unlock()

	if err := c.engine.relay.Send(relayAddr, request); err != nil {
		slog.Warn("Failed to send channel expiry request",
			"call_id", c.id, "conference_id", request.ID, "error", err)
	}
}

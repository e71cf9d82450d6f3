package call

import (
	"github.com/sebas/relaycall/internal/callengine/colibri"
	"github.com/sebas/relaycall/internal/callengine/media"
)

// ProcessConferenceUpdate applies a relay-pushed conference update to
// this call. It returns false when the update belongs to a different
// conference (or the call has none), so the caller can try other calls.
//
// Before fan-out the call's own uplink channels are stripped from the
// update: peers only care about remote channels.
func (c *Call) ProcessConferenceUpdate(update *colibri.Conference) bool {
	if update == nil {
		return false
	}

	c.confMu.Lock()
	if c.conference == nil || c.conference.ID != update.ID {
		c.confMu.Unlock()
		return false
	}

	for _, t := range media.Types() {
		content := update.Content(t.String())
		if content == nil {
			continue
		}
		own := c.conference.Content(t.String())
		if own == nil || own.ChannelCount() == 0 {
			continue
		}
		content.RemoveChannel(own.Channel(0).ID)
	}
	c.confMu.Unlock()

	for _, p := range c.Peers() {
		p.processConferenceUpdate(update)
	}
	return true
}

// Package colibri defines the descriptor model for a relay-hosted
// conference: the conference itself, one content per media type, and the
// channels allocated within each content. The same types serve as the
// JSON payload of relay stanzas and as the engine's local bookkeeping.
//
// By convention the first channel of a content is the local (uplink)
// channel; subsequent channels belong to remote peers.
package colibri

import "github.com/sebas/relaycall/internal/callengine/media"

// Channel describes one relay-side media endpoint within a content. The
// ID is assigned by the relay and is empty until allocated. Expire is nil
// unless the channel's lifetime is being set explicitly; zero requests
// immediate expiry.
type Channel struct {
	ID           string              `json:"id,omitempty"`
	Expire       *int                `json:"expire,omitempty"`
	PayloadTypes []media.PayloadType `json:"payload-types,omitempty"`
}

// SetExpire sets the channel's expire value in seconds.
func (c *Channel) SetExpire(seconds int) {
	c.Expire = &seconds
}

// Clone returns a deep copy of the channel.
func (c *Channel) Clone() *Channel {
	out := &Channel{ID: c.ID}
	if c.Expire != nil {
		expire := *c.Expire
		out.Expire = &expire
	}
	if len(c.PayloadTypes) > 0 {
		out.PayloadTypes = append([]media.PayloadType(nil), c.PayloadTypes...)
	}
	return out
}

// Content groups the channels of one media type within a conference.
type Content struct {
	Name     string     `json:"name"`
	Channels []*Channel `json:"channels,omitempty"`
}

// NewContent creates an empty content with the given name.
func NewContent(name string) *Content {
	return &Content{Name: name}
}

// ChannelCount returns the number of channels in the content.
func (c *Content) ChannelCount() int {
	return len(c.Channels)
}

// Channel returns the channel at the given index, or nil when out of
// range. Index 0 is the local/uplink channel.
func (c *Content) Channel(i int) *Channel {
	if i < 0 || i >= len(c.Channels) {
		return nil
	}
	return c.Channels[i]
}

// ChannelByID returns the channel with the given ID, or nil.
func (c *Content) ChannelByID(id string) *Channel {
	for _, ch := range c.Channels {
		if ch.ID == id {
			return ch
		}
	}
	return nil
}

// AddChannel appends a channel to the content.
func (c *Content) AddChannel(ch *Channel) {
	c.Channels = append(c.Channels, ch)
}

// RemoveChannel removes the channel with the given ID. Removing an absent
// channel is a no-op and reports false.
func (c *Content) RemoveChannel(id string) bool {
	for i, ch := range c.Channels {
		if ch.ID == id {
			c.Channels = append(c.Channels[:i], c.Channels[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the content.
func (c *Content) Clone() *Content {
	out := NewContent(c.Name)
	for _, ch := range c.Channels {
		out.AddChannel(ch.Clone())
	}
	return out
}

// Conference is a relay-hosted conference descriptor. The ID is assigned
// by the relay on first allocation. From records the relay address the
// descriptor was received from (or is addressed to).
type Conference struct {
	ID       string     `json:"id,omitempty"`
	From     string     `json:"from,omitempty"`
	Contents []*Content `json:"contents,omitempty"`
}

// NewConference creates an empty conference descriptor.
func NewConference() *Conference {
	return &Conference{}
}

// Content returns the content with the given name, or nil.
func (c *Conference) Content(name string) *Content {
	for _, ct := range c.Contents {
		if ct.Name == name {
			return ct
		}
	}
	return nil
}

// GetOrCreateContent returns the content with the given name, creating
// and attaching it first when absent.
func (c *Conference) GetOrCreateContent(name string) *Content {
	if ct := c.Content(name); ct != nil {
		return ct
	}
	ct := NewContent(name)
	c.Contents = append(c.Contents, ct)
	return ct
}

// AddContent appends a content to the conference.
func (c *Conference) AddContent(ct *Content) {
	c.Contents = append(c.Contents, ct)
}

// Clone returns a deep copy of the conference descriptor.
func (c *Conference) Clone() *Conference {
	out := &Conference{ID: c.ID, From: c.From}
	for _, ct := range c.Contents {
		out.AddContent(ct.Clone())
	}
	return out
}

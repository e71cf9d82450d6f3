package call

import (
	"fmt"
	"net"
	"sync"

	"github.com/pion/rtp"

	"github.com/sebas/relaycall/internal/callengine/colibri"
	"github.com/sebas/relaycall/internal/callengine/media"
)

// SocketPair is the RTP/RTCP socket pair a stream connector is built on.
type SocketPair struct {
	RTP  net.PacketConn
	RTCP net.PacketConn
}

// StreamConnectorFactory produces the socket pair for a new stream
// connector. Returning a nil pair without an error means no connector
// could be produced right now; the cache stays empty in that case.
type StreamConnectorFactory interface {
	CreateStreamConnector(mediaType media.Type) (*SocketPair, error)
}

// StreamConnectorFunc adapts a function to StreamConnectorFactory.
type StreamConnectorFunc func(mediaType media.Type) (*SocketPair, error)

// CreateStreamConnector implements StreamConnectorFactory.
func (f StreamConnectorFunc) CreateStreamConnector(mediaType media.Type) (*SocketPair, error) {
	return f(mediaType)
}

// StreamConnector sends RTP and RTCP toward the relay over a fixed
// socket pair.
type StreamConnector struct {
	mu     sync.Mutex
	pair   *SocketPair
	closed bool
}

// WriteRTP marshals and sends an RTP packet to the given address.
func (s *StreamConnector) WriteRTP(pkt *rtp.Packet, addr net.Addr) error {
	buf, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("marshal rtp packet: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return net.ErrClosed
	}
	if _, err := s.pair.RTP.WriteTo(buf, addr); err != nil {
		return fmt.Errorf("write rtp packet: %w", err)
	}
	return nil
}

// WriteRTCP sends a raw RTCP frame to the given address.
func (s *StreamConnector) WriteRTCP(raw []byte, addr net.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return net.ErrClosed
	}
	if _, err := s.pair.RTCP.WriteTo(raw, addr); err != nil {
		return fmt.Errorf("write rtcp packet: %w", err)
	}
	return nil
}

// Closed reports whether the connector has been closed.
func (s *StreamConnector) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases both sockets. Closing twice is harmless.
func (s *StreamConnector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.pair.RTP.Close()
	if cerr := s.pair.RTCP.Close(); err == nil {
		err = cerr
	}
	return err
}

// connectorCache holds at most one stream connector per media type.
type connectorCache struct {
	mu    sync.Mutex
	slots [media.TypeCount]*StreamConnector
}

func (cc *connectorCache) getOrCreate(mediaType media.Type, factory StreamConnectorFactory) (*StreamConnector, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if sc := cc.slots[mediaType]; sc != nil && !sc.Closed() {
		return sc, nil
	}
	cc.slots[mediaType] = nil

	pair, err := factory.CreateStreamConnector(mediaType)
	if err != nil {
		return nil, fmt.Errorf("create stream connector for %s: %w", mediaType, err)
	}
	if pair == nil {
		return nil, nil
	}

	sc := &StreamConnector{pair: pair}
	cc.slots[mediaType] = sc
	return sc, nil
}

func (cc *connectorCache) closeAll() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	for i, sc := range cc.slots {
		if sc != nil {
			sc.Close()
			cc.slots[i] = nil
		}
	}
}

// StreamConnectorFor returns the cached stream connector for a media
// type, creating it through the factory on first use. The supplied
// channel must be the call's local uplink channel for that media type;
// anything else is a contract violation and returns an error.
//
// A (nil, nil) return means the factory produced no socket pair; the
// cache entry stays absent and a later retry may succeed.
func (c *Call) StreamConnectorFor(mediaType media.Type, channel *colibri.Channel, factory StreamConnectorFactory) (*StreamConnector, error) {
	if channel == nil || channel.ID == "" {
		return nil, ErrMissingChannelID
	}

	c.confMu.Lock()
	if c.conference == nil {
		c.confMu.Unlock()
		return nil, ErrNoConference
	}
	content := c.conference.Content(mediaType.String())
	if content == nil {
		c.confMu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownContent, mediaType)
	}
	if content.ChannelCount() == 0 || content.Channel(0).ID != channel.ID {
		c.confMu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotLocalChannel, channel.ID)
	}
	c.confMu.Unlock()

	return c.connectors.getOrCreate(mediaType, factory)
}

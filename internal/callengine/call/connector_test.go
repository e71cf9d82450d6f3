package call

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/sebas/relaycall/internal/callengine/colibri"
	"github.com/sebas/relaycall/internal/callengine/media"
)

// fakePacketConn records written datagrams.
type fakePacketConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (f *fakePacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, net.ErrClosed
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	f.writes = append(f.writes, buf)
	return len(p), nil
}

func (f *fakePacketConn) ReadFrom(p []byte) (int, net.Addr, error) { return 0, nil, net.ErrClosed }
func (f *fakePacketConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
func (f *fakePacketConn) LocalAddr() net.Addr                { return &net.UDPAddr{} }
func (f *fakePacketConn) SetDeadline(t time.Time) error      { return nil }
func (f *fakePacketConn) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakePacketConn) SetWriteDeadline(t time.Time) error { return nil }

func countingFactory(calls *int) StreamConnectorFactory {
	return StreamConnectorFunc(func(mediaType media.Type) (*SocketPair, error) {
		*calls++
		return &SocketPair{RTP: &fakePacketConn{}, RTCP: &fakePacketConn{}}, nil
	})
}

func connectorTestCall(t *testing.T) *Call {
	t.Helper()
	engine, _, _ := newTestEngine("relay.example.com")
	c := engine.CreateCall()
	seedConference(c, "conf-1", "relay.example.com", "ch-local", "ch-r1")
	return c
}

func TestStreamConnectorCacheReuse(t *testing.T) {
	c := connectorTestCall(t)
	local := c.Conference().Content("audio").Channel(0)

	calls := 0
	factory := countingFactory(&calls)

	first, err := c.StreamConnectorFor(media.TypeAudio, local, factory)
	if err != nil || first == nil {
		t.Fatalf("first StreamConnectorFor = (%v, %v)", first, err)
	}
	second, err := c.StreamConnectorFor(media.TypeAudio, local, factory)
	if err != nil {
		t.Fatalf("second StreamConnectorFor failed: %v", err)
	}
	if first != second {
		t.Error("cache returned a different connector for the same media type")
	}
	if calls != 1 {
		t.Errorf("factory calls = %d, want 1", calls)
	}
}

func TestStreamConnectorContract(t *testing.T) {
	c := connectorTestCall(t)
	calls := 0
	factory := countingFactory(&calls)

	if _, err := c.StreamConnectorFor(media.TypeAudio, nil, factory); !errors.Is(err, ErrMissingChannelID) {
		t.Errorf("nil channel: err = %v, want ErrMissingChannelID", err)
	}
	if _, err := c.StreamConnectorFor(media.TypeAudio, &colibri.Channel{}, factory); !errors.Is(err, ErrMissingChannelID) {
		t.Errorf("blank channel ID: err = %v, want ErrMissingChannelID", err)
	}
	if _, err := c.StreamConnectorFor(media.TypeVideo, &colibri.Channel{ID: "ch-x"}, factory); !errors.Is(err, ErrUnknownContent) {
		t.Errorf("missing content: err = %v, want ErrUnknownContent", err)
	}

	// Only the local uplink channel may be bound to a connector.
	remote := c.Conference().Content("audio").ChannelByID("ch-r1")
	if _, err := c.StreamConnectorFor(media.TypeAudio, remote, factory); !errors.Is(err, ErrNotLocalChannel) {
		t.Errorf("remote channel: err = %v, want ErrNotLocalChannel", err)
	}

	engine, _, _ := newTestEngine("relay.example.com")
	bare := engine.CreateCall()
	if _, err := bare.StreamConnectorFor(media.TypeAudio, &colibri.Channel{ID: "ch"}, factory); !errors.Is(err, ErrNoConference) {
		t.Errorf("no conference: err = %v, want ErrNoConference", err)
	}

	if calls != 0 {
		t.Errorf("factory was invoked %d times on contract violations", calls)
	}
}

func TestStreamConnectorFactoryYieldsNothing(t *testing.T) {
	c := connectorTestCall(t)
	local := c.Conference().Content("audio").Channel(0)

	nilFactory := StreamConnectorFunc(func(media.Type) (*SocketPair, error) { return nil, nil })
	sc, err := c.StreamConnectorFor(media.TypeAudio, local, nilFactory)
	if err != nil || sc != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", sc, err)
	}

	// The slot stays empty, so a later attempt consults the factory again.
	calls := 0
	sc, err = c.StreamConnectorFor(media.TypeAudio, local, countingFactory(&calls))
	if err != nil || sc == nil {
		t.Fatalf("retry = (%v, %v)", sc, err)
	}
	if calls != 1 {
		t.Errorf("factory calls on retry = %d, want 1", calls)
	}
}

func TestStreamConnectorClosedIsRecreated(t *testing.T) {
	c := connectorTestCall(t)
	local := c.Conference().Content("audio").Channel(0)

	calls := 0
	factory := countingFactory(&calls)

	first, err := c.StreamConnectorFor(media.TypeAudio, local, factory)
	if err != nil {
		t.Fatalf("StreamConnectorFor failed: %v", err)
	}
	first.Close()

	second, err := c.StreamConnectorFor(media.TypeAudio, local, factory)
	if err != nil {
		t.Fatalf("StreamConnectorFor after close failed: %v", err)
	}
	if second == first {
		t.Error("closed connector was handed out again")
	}
	if calls != 2 {
		t.Errorf("factory calls = %d, want 2", calls)
	}
}

func TestStreamConnectorWriteRTP(t *testing.T) {
	rtpConn := &fakePacketConn{}
	sc := &StreamConnector{pair: &SocketPair{RTP: rtpConn, RTCP: &fakePacketConn{}}}

	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 0, SequenceNumber: 1, SSRC: 42},
		Payload: []byte{0x01, 0x02},
	}
	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 10000}
	if err := sc.WriteRTP(pkt, dst); err != nil {
		t.Fatalf("WriteRTP failed: %v", err)
	}
	if len(rtpConn.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(rtpConn.writes))
	}

	sc.Close()
	if err := sc.WriteRTP(pkt, dst); !errors.Is(err, net.ErrClosed) {
		t.Errorf("write after close: err = %v, want net.ErrClosed", err)
	}
}

func TestCallEndClosesConnectors(t *testing.T) {
	c := connectorTestCall(t)
	local := c.Conference().Content("audio").Channel(0)

	calls := 0
	sc, err := c.StreamConnectorFor(media.TypeAudio, local, countingFactory(&calls))
	if err != nil {
		t.Fatalf("StreamConnectorFor failed: %v", err)
	}

	c.end("normal")
	if !sc.Closed() {
		t.Error("call teardown left the stream connector open")
	}
}

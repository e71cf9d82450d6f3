package call

import (
	"context"
	"sync"
	"time"

	"github.com/sebas/relaycall/internal/callengine/colibri"
	"github.com/sebas/relaycall/internal/callengine/media"
	"github.com/sebas/relaycall/internal/callengine/signal"
)

// fakeRelay scripts relay responses and records traffic.
type fakeRelay struct {
	mu       sync.Mutex
	requests []*colibri.Conference
	sent     []*colibri.Conference
	sentTo   []string
	respond  func(to string, req *colibri.Conference) (*colibri.Conference, error)
	updates  chan *colibri.Conference
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{updates: make(chan *colibri.Conference, 4)}
}

func (f *fakeRelay) RoundTrip(ctx context.Context, to string, conf *colibri.Conference) (*colibri.Conference, error) {
	f.mu.Lock()
	f.requests = append(f.requests, conf)
	f.mu.Unlock()
	if f.respond == nil {
		return nil, ErrNoConference
	}
	return f.respond(to, conf)
}

func (f *fakeRelay) Send(to string, conf *colibri.Conference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, conf)
	f.sentTo = append(f.sentTo, to)
	return nil
}

func (f *fakeRelay) Updates() <-chan *colibri.Conference { return f.updates }
func (f *fakeRelay) ReplyTimeout() time.Duration         { return time.Second }
func (f *fakeRelay) Close() error                        { return nil }

func (f *fakeRelay) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeRelay) lastRequest() *colibri.Conference {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeRelay) lastSent() (*colibri.Conference, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil, ""
	}
	return f.sent[len(f.sent)-1], f.sentTo[len(f.sentTo)-1]
}

type terminateRecord struct {
	to     string
	sid    string
	reason signal.Reason
	text   string
}

// fakeSignal records outbound signaling and lets tests fire inbound
// handler callbacks. The order slice captures the sequence of sends for
// ordering assertions.
type fakeSignal struct {
	mu           sync.Mutex
	initiates    []*signal.SessionInitiate
	accepts      []*signal.SessionAccept
	terminates   []terminateRecord
	order        []string
	failInitiate error
	failAccept   error

	initiate signal.InitiateHandler
	accept   signal.AcceptHandler
	reject   signal.RejectHandler
	term     signal.TerminateHandler
}

func newFakeSignal() *fakeSignal { return &fakeSignal{} }

func (f *fakeSignal) SendSessionInitiate(ctx context.Context, msg *signal.SessionInitiate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInitiate != nil {
		return f.failInitiate
	}
	f.initiates = append(f.initiates, msg)
	f.order = append(f.order, "initiate:"+msg.SID)
	return nil
}

func (f *fakeSignal) SendSessionAccept(ctx context.Context, msg *signal.SessionAccept) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAccept != nil {
		return f.failAccept
	}
	f.accepts = append(f.accepts, msg)
	f.order = append(f.order, "accept:"+msg.SID)
	return nil
}

func (f *fakeSignal) SendSessionTerminate(ctx context.Context, to, sid string, reason signal.Reason, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminates = append(f.terminates, terminateRecord{to: to, sid: sid, reason: reason, text: text})
	f.order = append(f.order, "terminate:"+sid)
	return nil
}

func (f *fakeSignal) SendSessionInfo(ctx context.Context, msg *signal.SessionInfo) error {
	return nil
}

func (f *fakeSignal) SendContentModify(ctx context.Context, msg *signal.ContentModify) error {
	return nil
}

func (f *fakeSignal) OnSessionInitiate(h signal.InitiateHandler) { f.initiate = h }
func (f *fakeSignal) OnSessionAccept(h signal.AcceptHandler)    { f.accept = h }
func (f *fakeSignal) OnSessionReject(h signal.RejectHandler)    { f.reject = h }
func (f *fakeSignal) OnSessionTerminate(h signal.TerminateHandler) {
	f.term = h
}
func (f *fakeSignal) Close() error { return nil }

func (f *fakeSignal) sendOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

func audioOffer() []media.Description {
	return []media.Description{
		{
			Type:      media.TypeAudio,
			Direction: media.DirectionSendRecv,
			PayloadTypes: []media.PayloadType{
				{ID: 0, Name: "PCMU", ClockRate: 8000},
			},
		},
	}
}

func encryptedAudioOffer() []media.Description {
	descs := audioOffer()
	descs[0].Encryption = []string{"AES_CM_128_HMAC_SHA1_80"}
	return descs
}

func newTestEngine(relayAddr string) (*Engine, *fakeRelay, *fakeSignal) {
	relayT := newFakeRelay()
	signalT := newFakeSignal()
	engine := NewEngine(EngineConfig{
		Relay:        relayT,
		Signal:       signalT,
		RelayAddress: relayAddr,
		LocalAddress: "sip:local@10.0.0.1:5060",
	})
	return engine, relayT, signalT
}

// relayConference builds a relay response: one content per name with the
// given channel IDs.
func relayConference(id string, contents map[string][]string) *colibri.Conference {
	conf := colibri.NewConference()
	conf.ID = id
	for name, channelIDs := range contents {
		content := conf.GetOrCreateContent(name)
		for _, chID := range channelIDs {
			content.AddChannel(&colibri.Channel{ID: chID})
		}
	}
	return conf
}

package call

import "testing"

// seedConference installs conference state on a call as if channels had
// been allocated.
func seedConference(c *Call, id, relay string, audioChannels ...string) {
	conf := relayConference(id, map[string][]string{"audio": audioChannels})
	conf.From = relay
	c.confMu.Lock()
	c.conference = conf
	c.confMu.Unlock()
}

func TestExpireChannelsRemovesKnownChannels(t *testing.T) {
	engine, relayT, _ := newTestEngine("relay.example.com")
	c := engine.CreateCall()
	seedConference(c, "conf-1", "relay.example.com", "ch-local", "ch-r1", "ch-r2")

	c.ExpireChannels(relayConference("conf-1", map[string][]string{"audio": {"ch-r1"}}))

	sent, to := relayT.lastSent()
	if sent == nil {
		t.Fatal("no expiry request sent")
	}
	if to != "relay.example.com" {
		t.Errorf("expiry sent to %q, want relay.example.com", to)
	}
	audio := sent.Content("audio")
	if audio == nil || audio.ChannelCount() != 1 {
		t.Fatalf("expiry request audio = %v, want 1 channel", audio)
	}
	ch := audio.Channel(0)
	if ch.ID != "ch-r1" || ch.Expire == nil || *ch.Expire != 0 {
		t.Errorf("expiry entry = %+v, want ch-r1 with expire 0", ch)
	}

	remaining := c.Conference().Content("audio")
	if remaining.ChannelCount() != 2 {
		t.Fatalf("remaining audio channels = %d, want 2", remaining.ChannelCount())
	}
	if remaining.ChannelByID("ch-r1") != nil {
		t.Error("expired channel still present in call state")
	}
}

func TestExpireChannelsLastChannelTakesUplinkDown(t *testing.T) {
	engine, relayT, _ := newTestEngine("relay.example.com")
	c := engine.CreateCall()
	seedConference(c, "conf-1", "relay.example.com", "ch-local", "ch-r1")

	c.ExpireChannels(relayConference("conf-1", map[string][]string{"audio": {"ch-r1"}}))

	sent, _ := relayT.lastSent()
	if sent == nil {
		t.Fatal("no expiry request sent")
	}
	audio := sent.Content("audio")
	if audio == nil || audio.ChannelByID("ch-r1") == nil || audio.ChannelByID("ch-local") == nil {
		t.Fatalf("expiry request = %v, want both ch-r1 and the solitary uplink ch-local", audio)
	}
	for _, ch := range audio.Channels {
		if ch.Expire == nil || *ch.Expire != 0 {
			t.Errorf("channel %s missing expire 0", ch.ID)
		}
	}

	if c.Conference().Content("audio").ChannelCount() != 0 {
		t.Error("uplink channel should be gone from call state")
	}
}

func TestExpireChannelsIgnoresForeignConference(t *testing.T) {
	engine, relayT, _ := newTestEngine("relay.example.com")
	c := engine.CreateCall()
	seedConference(c, "conf-1", "relay.example.com", "ch-local", "ch-r1")

	c.ExpireChannels(relayConference("conf-OTHER", map[string][]string{"audio": {"ch-r1"}}))

	if sent, _ := relayT.lastSent(); sent != nil {
		t.Error("expiry for a foreign conference must not reach the relay")
	}
	if c.Conference().Content("audio").ChannelCount() != 2 {
		t.Error("foreign expiry must not touch call state")
	}
}

func TestExpireChannelsUnknownChannelIsHarmless(t *testing.T) {
	engine, _, _ := newTestEngine("relay.example.com")
	c := engine.CreateCall()
	seedConference(c, "conf-1", "relay.example.com", "ch-local", "ch-r1")

	c.ExpireChannels(relayConference("conf-1", map[string][]string{"audio": {"ch-unknown"}}))

	if c.Conference().Content("audio").ChannelCount() != 2 {
		t.Error("unknown channel expiry must not touch call state")
	}
}

package media

import "testing"

func TestParseType(t *testing.T) {
	if typ, err := ParseType("audio"); err != nil || typ != TypeAudio {
		t.Errorf("ParseType(audio) = (%v, %v)", typ, err)
	}
	if typ, err := ParseType("video"); err != nil || typ != TypeVideo {
		t.Errorf("ParseType(video) = (%v, %v)", typ, err)
	}
	if _, err := ParseType("application"); err == nil {
		t.Error("ParseType(application) should fail")
	}
}

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{
		"sendrecv": DirectionSendRecv,
		"sendonly": DirectionSendOnly,
		"recvonly": DirectionRecvOnly,
		"inactive": DirectionInactive,
	}
	for s, want := range cases {
		got, ok := ParseDirection(s)
		if !ok || got != want {
			t.Errorf("ParseDirection(%s) = (%v, %v)", s, got, ok)
		}
		if got.String() != s {
			t.Errorf("%v.String() = %q, want %q", got, got.String(), s)
		}
	}
	if _, ok := ParseDirection("rtpmap"); ok {
		t.Error("ParseDirection should reject non-direction attributes")
	}
}

func TestPeerHandlerRebind(t *testing.T) {
	peer := NewPeerHandler()
	private := peer.Handler()

	private.SetStreamActive(TypeAudio, true)
	if !peer.StreamActive(TypeAudio) {
		t.Error("stream state not visible through peer handler")
	}

	shared := NewHandler()
	peer.Rebind(shared)
	if peer.Handler() != shared {
		t.Fatal("Rebind did not switch handlers")
	}
	// Stream state now comes from the shared handler.
	if peer.StreamActive(TypeAudio) {
		t.Error("rebound peer still reports the private handler's stream")
	}
	shared.SetStreamActive(TypeAudio, true)
	if !peer.StreamActive(TypeAudio) {
		t.Error("shared stream state not visible after rebind")
	}

	other := NewPeerHandler()
	other.Rebind(shared)
	if other.Handler() != peer.Handler() {
		t.Error("two peers bound to the same shared handler should agree")
	}
}

func TestAdvertisedEncryption(t *testing.T) {
	peer := NewPeerHandler()
	if methods := peer.AdvertisedEncryptionMethods(); len(methods) != 0 {
		t.Errorf("fresh peer advertises %v", methods)
	}
	peer.SetAdvertisedEncryption([]string{"AES_CM_128_HMAC_SHA1_80"})
	if methods := peer.AdvertisedEncryptionMethods(); len(methods) != 1 {
		t.Errorf("advertised = %v", methods)
	}
}

package sdputil

import (
	"testing"

	"github.com/sebas/relaycall/internal/callengine/media"
)

func TestOfferRoundTrip(t *testing.T) {
	descs := []media.Description{
		{
			Type:      media.TypeAudio,
			Direction: media.DirectionSendRecv,
			PayloadTypes: []media.PayloadType{
				{ID: 0, Name: "PCMU", ClockRate: 8000},
				{ID: 96, Name: "opus", ClockRate: 48000, Channels: 2},
			},
			Encryption: []string{"AES_CM_128_HMAC_SHA1_80"},
		},
		{
			Type:      media.TypeVideo,
			Direction: media.DirectionRecvOnly,
			PayloadTypes: []media.PayloadType{
				{ID: 100, Name: "VP8", ClockRate: 90000},
			},
		},
	}

	body, err := BuildOffer("relaycall", "10.0.0.1", descs)
	if err != nil {
		t.Fatalf("BuildOffer failed: %v", err)
	}

	parsed, err := ParseOffer(body)
	if err != nil {
		t.Fatalf("ParseOffer failed: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("parsed %d descriptions, want 2", len(parsed))
	}

	audio := parsed[0]
	if audio.Type != media.TypeAudio || audio.Direction != media.DirectionSendRecv {
		t.Errorf("audio = %+v", audio)
	}
	if len(audio.PayloadTypes) != 2 {
		t.Fatalf("audio payloads = %v", audio.PayloadTypes)
	}
	opus := audio.PayloadTypes[1]
	if opus.Name != "opus" || opus.ClockRate != 48000 || opus.Channels != 2 {
		t.Errorf("opus payload = %+v", opus)
	}
	if len(audio.Encryption) != 1 || audio.Encryption[0] != "AES_CM_128_HMAC_SHA1_80" {
		t.Errorf("audio encryption = %v", audio.Encryption)
	}

	video := parsed[1]
	if video.Type != media.TypeVideo || video.Direction != media.DirectionRecvOnly {
		t.Errorf("video = %+v", video)
	}
	if len(video.Encryption) != 0 {
		t.Errorf("video encryption = %v, want none", video.Encryption)
	}
}

func TestBuildOfferEmpty(t *testing.T) {
	if _, err := BuildOffer("relaycall", "10.0.0.1", nil); err == nil {
		t.Error("BuildOffer should fail without descriptions")
	}
}

func TestParseOfferSkipsUnknownMedia(t *testing.T) {
	body := []byte("v=0\r\n" +
		"o=test 1 1 IN IP4 10.0.0.1\r\n" +
		"s=-\r\n" +
		"c=IN IP4 10.0.0.1\r\n" +
		"t=0 0\r\n" +
		"m=application 9 UDP/DTLS/SCTP webrtc-datachannel\r\n" +
		"m=audio 9 RTP/AVP 0\r\n" +
		"a=rtpmap:0 PCMU/8000\r\n")

	parsed, err := ParseOffer(body)
	if err != nil {
		t.Fatalf("ParseOffer failed: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Type != media.TypeAudio {
		t.Fatalf("parsed = %+v, want only the audio section", parsed)
	}
	// No direction attribute: sendrecv per convention.
	if parsed[0].Direction != media.DirectionSendRecv {
		t.Errorf("direction = %v, want sendrecv", parsed[0].Direction)
	}
}

func TestParseOfferNoUsableSections(t *testing.T) {
	body := []byte("v=0\r\n" +
		"o=test 1 1 IN IP4 10.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n")
	if _, err := ParseOffer(body); err == nil {
		t.Error("offer without media sections should fail")
	}
}

package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sebas/relaycall/internal/callengine/colibri"
)

// relayStub runs a WebSocket endpoint that answers stanzas via handle.
func relayStub(t *testing.T, handle func(conn *websocket.Conn, st stanza)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for {
			var st stanza
			if err := conn.ReadJSON(&st); err != nil {
				return
			}
			handle(conn, st)
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialTestTransport(t *testing.T, srv *httptest.Server, replyTimeout time.Duration) *WSTransport {
	t.Helper()
	cfg := DefaultWSConfig()
	cfg.URL = wsURL(srv)
	cfg.ReplyTimeout = replyTimeout
	tr, err := NewWSTransport(cfg)
	if err != nil {
		t.Fatalf("NewWSTransport failed: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestRoundTrip(t *testing.T) {
	srv := relayStub(t, func(conn *websocket.Conn, st stanza) {
		if st.Type != stanzaGet {
			t.Errorf("stanza type = %s, want get", st.Type)
		}
		conf := colibri.NewConference()
		conf.ID = "conf-1"
		conn.WriteJSON(stanza{ID: st.ID, Type: stanzaResult, Conference: conf})
	})
	defer srv.Close()

	tr := dialTestTransport(t, srv, 2*time.Second)

	req := colibri.NewConference()
	resp, err := tr.RoundTrip(context.Background(), "relay.example.com", req)
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	if resp.ID != "conf-1" {
		t.Errorf("response ID = %q, want conf-1", resp.ID)
	}
	// The origin defaults to the request destination.
	if resp.From != "relay.example.com" {
		t.Errorf("response From = %q, want relay.example.com", resp.From)
	}
}

func TestRoundTripErrorStanza(t *testing.T) {
	srv := relayStub(t, func(conn *websocket.Conn, st stanza) {
		conn.WriteJSON(stanza{
			ID:    st.ID,
			Type:  stanzaError,
			Error: &StanzaError{Condition: "bad-request", Text: "no contents"},
		})
	})
	defer srv.Close()

	tr := dialTestTransport(t, srv, 2*time.Second)

	_, err := tr.RoundTrip(context.Background(), "relay.example.com", colibri.NewConference())
	var stErr *StanzaError
	if !errors.As(err, &stErr) {
		t.Fatalf("err = %v, want StanzaError", err)
	}
	if stErr.Condition != "bad-request" {
		t.Errorf("condition = %q", stErr.Condition)
	}
}

func TestRoundTripTimeout(t *testing.T) {
	srv := relayStub(t, func(conn *websocket.Conn, st stanza) {
		// Never answer.
	})
	defer srv.Close()

	tr := dialTestTransport(t, srv, 50*time.Millisecond)

	_, err := tr.RoundTrip(context.Background(), "relay.example.com", colibri.NewConference())
	if !errors.Is(err, ErrReplyTimeout) {
		t.Fatalf("err = %v, want ErrReplyTimeout", err)
	}
}

func TestServerPushUpdates(t *testing.T) {
	srv := relayStub(t, func(conn *websocket.Conn, st stanza) {
		// Any inbound stanza triggers a pushed update.
		conf := colibri.NewConference()
		conf.ID = "conf-push"
		conn.WriteJSON(stanza{ID: "push-1", Type: stanzaSet, From: "relay.example.com", Conference: conf})
	})
	defer srv.Close()

	tr := dialTestTransport(t, srv, time.Second)

	if err := tr.Send("relay.example.com", colibri.NewConference()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case update := <-tr.Updates():
		if update.ID != "conf-push" {
			t.Errorf("update ID = %q, want conf-push", update.ID)
		}
		if update.From != "relay.example.com" {
			t.Errorf("update From = %q", update.From)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pushed update received")
	}
}

func TestClosedTransport(t *testing.T) {
	srv := relayStub(t, func(conn *websocket.Conn, st stanza) {})
	defer srv.Close()

	tr := dialTestTransport(t, srv, time.Second)
	tr.Close()

	if err := tr.Send("relay.example.com", colibri.NewConference()); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after close: err = %v, want ErrClosed", err)
	}
	if _, err := tr.RoundTrip(context.Background(), "relay.example.com", colibri.NewConference()); !errors.Is(err, ErrClosed) {
		t.Errorf("RoundTrip after close: err = %v, want ErrClosed", err)
	}
}

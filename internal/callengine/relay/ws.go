package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sebas/relaycall/internal/callengine/colibri"
)

// stanzaType distinguishes the four stanza kinds on the relay wire.
type stanzaType string

const (
	stanzaGet    stanzaType = "get"
	stanzaSet    stanzaType = "set"
	stanzaResult stanzaType = "result"
	stanzaError  stanzaType = "error"
)

// stanza is one frame on the relay connection. Requests carry a unique ID
// which the relay echoes on the correlated result or error.
type stanza struct {
	ID         string              `json:"id"`
	Type       stanzaType          `json:"type"`
	To         string              `json:"to,omitempty"`
	From       string              `json:"from,omitempty"`
	Conference *colibri.Conference `json:"conference,omitempty"`
	Error      *StanzaError        `json:"error,omitempty"`
}

// WSConfig holds WebSocket transport configuration.
type WSConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReplyTimeout time.Duration
	// UpdateBuffer is the capacity of the server-push update channel.
	UpdateBuffer int
}

// DefaultWSConfig returns sensible defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		DialTimeout:  10 * time.Second,
		ReplyTimeout: 15 * time.Second,
		UpdateBuffer: 16,
	}
}

// WSTransport implements Transport over a single WebSocket connection.
// A reader goroutine routes result/error stanzas to pending waiters by
// stanza ID and forwards SET stanzas to the update channel.
type WSTransport struct {
	cfg  WSConfig
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *stanza

	updates   chan *colibri.Conference
	done      chan struct{}
	closeOnce sync.Once
}

var _ Transport = (*WSTransport)(nil)

// NewWSTransport dials the relay and starts the reader loop.
func NewWSTransport(cfg WSConfig) (*WSTransport, error) {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultWSConfig().ReplyTimeout
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = DefaultWSConfig().UpdateBuffer
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	conn, _, err := dialer.Dial(cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay at %s: %w", cfg.URL, err)
	}

	t := &WSTransport{
		cfg:     cfg,
		conn:    conn,
		pending: make(map[string]chan *stanza),
		updates: make(chan *colibri.Conference, cfg.UpdateBuffer),
		done:    make(chan struct{}),
	}
	go t.readLoop()

	slog.Info("Connected to conference relay", "url", cfg.URL)
	return t, nil
}

// RoundTrip implements Transport.RoundTrip.
func (t *WSTransport) RoundTrip(ctx context.Context, to string, conf *colibri.Conference) (*colibri.Conference, error) {
	id := uuid.New().String()
	ch := make(chan *stanza, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	req := &stanza{ID: id, Type: stanzaGet, To: to, Conference: conf}
	if err := t.write(req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(t.cfg.ReplyTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Type == stanzaError {
			if resp.Error != nil {
				return nil, resp.Error
			}
			return nil, fmt.Errorf("relay: error response without condition")
		}
		if resp.Conference == nil {
			return nil, fmt.Errorf("relay: response carries no conference")
		}
		if resp.Conference.From == "" {
			resp.Conference.From = to
		}
		return resp.Conference, nil
	case <-timer.C:
		return nil, ErrReplyTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrClosed
	}
}

// Send implements Transport.Send.
func (t *WSTransport) Send(to string, conf *colibri.Conference) error {
	return t.write(&stanza{
		ID:         uuid.New().String(),
		Type:       stanzaSet,
		To:         to,
		Conference: conf,
	})
}

// Updates implements Transport.Updates.
func (t *WSTransport) Updates() <-chan *colibri.Conference {
	return t.updates
}

// ReplyTimeout implements Transport.ReplyTimeout.
func (t *WSTransport) ReplyTimeout() time.Duration {
	return t.cfg.ReplyTimeout
}

// Close implements Transport.Close.
func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.conn.Close()
	})
	return nil
}

func (t *WSTransport) write(st *stanza) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteJSON(st); err != nil {
		return fmt.Errorf("write relay stanza: %w", err)
	}
	return nil
}

func (t *WSTransport) readLoop() {
	defer t.Close()

	for {
		var st stanza
		if err := t.conn.ReadJSON(&st); err != nil {
			select {
			case <-t.done:
			default:
				slog.Warn("Relay connection read failed", "error", err)
			}
			return
		}

		switch st.Type {
		case stanzaResult, stanzaError:
			t.mu.Lock()
			ch, ok := t.pending[st.ID]
			t.mu.Unlock()
			if ok {
				// Buffered; never blocks the reader.
				select {
				case ch <- &st:
				default:
				}
			} else {
				slog.Debug("Dropping uncorrelated relay response", "stanza_id", st.ID)
			}
		case stanzaSet:
			if st.Conference == nil {
				continue
			}
			if st.Conference.From == "" {
				st.Conference.From = st.From
			}
			select {
			case t.updates <- st.Conference:
			default:
				slog.Warn("Relay update channel full, dropping update",
					"conference_id", st.Conference.ID)
			}
		default:
			slog.Debug("Ignoring relay stanza", "type", string(st.Type), "stanza_id", st.ID)
		}
	}
}

// Package relay provides the transport toward the conference media relay:
// correlated request/response exchanges for channel allocation, a
// fire-and-forget send for channel expiry, and a stream of server-pushed
// conference updates.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sebas/relaycall/internal/callengine/colibri"
)

var (
	// ErrReplyTimeout indicates the relay did not answer a correlated
	// request within the reply timeout.
	ErrReplyTimeout = errors.New("relay: reply timeout")
	// ErrClosed indicates the transport has been closed.
	ErrClosed = errors.New("relay: transport closed")
)

// StanzaError is an error condition carried in a relay response.
type StanzaError struct {
	Condition string `json:"condition"`
	Text      string `json:"text,omitempty"`
}

// Error implements the error interface.
func (e *StanzaError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("relay error %s: %s", e.Condition, e.Text)
	}
	return "relay error " + e.Condition
}

// Transport abstracts communication with the conference relay.
// Implementations: WSTransport (WebSocket stanzas); tests use in-package
// fakes.
type Transport interface {
	// RoundTrip sends a GET-type conference request to the relay party
	// and blocks for the single correlated response. It resolves within
	// ReplyTimeout (success, relay error, or ErrReplyTimeout) and never
	// blocks indefinitely.
	RoundTrip(ctx context.Context, to string, conf *colibri.Conference) (*colibri.Conference, error)

	// Send sends a SET-type conference message with no response
	// correlation.
	Send(to string, conf *colibri.Conference) error

	// Updates returns the stream of conference descriptors pushed by the
	// relay outside any request/response exchange.
	Updates() <-chan *colibri.Conference

	// ReplyTimeout returns the configured upper bound for RoundTrip.
	ReplyTimeout() time.Duration

	// Close releases the transport.
	Close() error
}

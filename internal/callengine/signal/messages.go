// Package signal defines the session-level signaling messages exchanged
// with call peers (initiate, accept, terminate, info) and the Transport
// interface that carries them. The SIP adapter in this package maps the
// model onto INVITE dialogs.
package signal

import (
	"context"

	"github.com/sebas/relaycall/internal/callengine/media"
)

// Reason explains a session termination.
type Reason string

const (
	// ReasonNormal - ordinary hangup.
	ReasonNormal Reason = "normal"
	// ReasonDecline - callee declined the session.
	ReasonDecline Reason = "decline"
	// ReasonBusy - callee is busy.
	ReasonBusy Reason = "busy"
	// ReasonSecurityError - session rejected for failing a security
	// requirement (e.g. mandatory encryption not offered).
	ReasonSecurityError Reason = "security-error"
	// ReasonFailedApplication - the offer could not be processed.
	ReasonFailedApplication Reason = "failed-application"
)

// TransferHint marks a session-initiate as the transferred-to leg of an
// attended transfer. SID references the prior session at the attendant,
// From/To state the transfer's origin and destination identities.
type TransferHint struct {
	SID  string
	From string
	To   string
}

// SessionInitiate is an offer to establish a session with a peer.
// Initiator may be empty, in which case the message origin (From) is the
// initiating party.
type SessionInitiate struct {
	SID       string
	Initiator string
	From      string
	To        string
	Focus     bool
	Transfer  *TransferHint
	Contents  []media.Description
}

// InitiatorAddress returns the initiating party, falling back to the
// message origin when the initiator field is absent.
func (m *SessionInitiate) InitiatorAddress() string {
	if m.Initiator != "" {
		return m.Initiator
	}
	return m.From
}

// SessionAccept answers a pending session-initiate.
type SessionAccept struct {
	SID      string
	To       string
	Contents []media.Description
}

// SessionInfo carries mid-session state updates, currently the
// conference-focus indication.
type SessionInfo struct {
	SID   string
	To    string
	Focus bool
}

// ContentModify announces a change to one media stream of an established
// session, e.g. enabling or disabling local video.
type ContentModify struct {
	SID       string
	To        string
	Type      media.Type
	Direction media.Direction
}

// InitiateHandler receives inbound session-initiate messages.
type InitiateHandler func(*SessionInitiate)

// AcceptHandler receives the answer to an outbound session-initiate.
type AcceptHandler func(sid string, contents []media.Description)

// RejectHandler receives the rejection of an outbound session-initiate.
type RejectHandler func(sid string, reason Reason, text string)

// TerminateHandler receives remote session terminations.
type TerminateHandler func(sid string, reason Reason)

// Transport carries signaling messages to and from call peers.
// Implementations: SIPTransport; tests use in-package fakes.
type Transport interface {
	// SendSessionInitiate sends an offer to a peer. An error means the
	// offer was not sent; answers and rejections arrive asynchronously
	// through the registered handlers.
	SendSessionInitiate(ctx context.Context, msg *SessionInitiate) error

	// SendSessionAccept answers a pending inbound session-initiate.
	SendSessionAccept(ctx context.Context, msg *SessionAccept) error

	// SendSessionTerminate ends a session: an error response for a
	// not-yet-accepted inbound session, a teardown for an established
	// one.
	SendSessionTerminate(ctx context.Context, to, sid string, reason Reason, text string) error

	// SendSessionInfo sends a mid-session state update.
	SendSessionInfo(ctx context.Context, msg *SessionInfo) error

	// SendContentModify announces a media stream change.
	SendContentModify(ctx context.Context, msg *ContentModify) error

	// OnSessionInitiate registers the inbound offer handler.
	OnSessionInitiate(h InitiateHandler)

	// OnSessionAccept registers the outbound answer handler.
	OnSessionAccept(h AcceptHandler)

	// OnSessionReject registers the outbound rejection handler.
	OnSessionReject(h RejectHandler)

	// OnSessionTerminate registers the remote termination handler.
	OnSessionTerminate(h TerminateHandler)

	// Close releases the transport.
	Close() error
}

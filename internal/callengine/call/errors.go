package call

import "errors"

var (
	// ErrConferenceIDMismatch means the relay answered a channel request
	// with a conference ID different from the one already established for
	// the call. The call's conference state is unusable after this.
	ErrConferenceIDMismatch = errors.New("conference ID mismatch between call state and relay response")

	// ErrNoConference means a relay-backed operation was attempted on a
	// call that has no conference state yet.
	ErrNoConference = errors.New("call has no conference state")

	// ErrMissingChannelID means a channel without an ID was passed where
	// an allocated channel is required.
	ErrMissingChannelID = errors.New("channel has no ID")

	// ErrUnknownContent means the call's conference has no content for
	// the requested media type.
	ErrUnknownContent = errors.New("no conference content for media type")

	// ErrNotLocalChannel means the supplied channel is not the call's
	// local uplink channel for its media type.
	ErrNotLocalChannel = errors.New("channel is not the local uplink channel")
)

// Package media holds the media-type model shared by the call engine:
// stream types, negotiated directions, payload formats and the media
// handler state that call peers funnel their streams through.
package media

import "fmt"

// Type identifies a media stream type.
type Type int

const (
	// TypeAudio is an audio stream.
	TypeAudio Type = iota
	// TypeVideo is a video stream.
	TypeVideo
)

// TypeCount is the number of media types. Types are ordinal-indexed in
// several per-type caches, so the enum must stay dense.
const TypeCount = 2

// String returns the wire name of the media type, which doubles as the
// conference content name.
func (t Type) String() string {
	switch t {
	case TypeAudio:
		return "audio"
	case TypeVideo:
		return "video"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseType parses a wire media-type name.
func ParseType(s string) (Type, error) {
	switch s {
	case "audio":
		return TypeAudio, nil
	case "video":
		return TypeVideo, nil
	default:
		return 0, fmt.Errorf("unknown media type %q", s)
	}
}

// Types returns all media types in ordinal order.
func Types() []Type {
	return []Type{TypeAudio, TypeVideo}
}

// Direction is the negotiated flow direction of a media stream, from the
// local party's point of view.
type Direction int

const (
	// DirectionInactive - no media flows in either direction.
	DirectionInactive Direction = iota
	// DirectionSendOnly - we send, the remote party does not.
	DirectionSendOnly
	// DirectionRecvOnly - we receive only.
	DirectionRecvOnly
	// DirectionSendRecv - media flows both ways.
	DirectionSendRecv
)

// String returns the SDP attribute name of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionInactive:
		return "inactive"
	case DirectionSendOnly:
		return "sendonly"
	case DirectionRecvOnly:
		return "recvonly"
	case DirectionSendRecv:
		return "sendrecv"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// ParseDirection parses an SDP direction attribute name.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "inactive":
		return DirectionInactive, true
	case "sendonly":
		return DirectionSendOnly, true
	case "recvonly":
		return DirectionRecvOnly, true
	case "sendrecv":
		return DirectionSendRecv, true
	default:
		return 0, false
	}
}

// PayloadType describes one RTP payload format offered for a stream.
type PayloadType struct {
	ID        int    `json:"id"`
	Name      string `json:"name,omitempty"`
	ClockRate int    `json:"clockrate,omitempty"`
	Channels  int    `json:"channels,omitempty"`
}

// Description describes one offered or negotiated media stream: its type,
// direction and the payload formats it may carry. Encryption lists the
// encryption methods the remote party advertised for the stream, if any.
type Description struct {
	Type         Type
	Direction    Direction
	PayloadTypes []PayloadType
	Encryption   []string
}

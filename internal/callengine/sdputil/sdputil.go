// Package sdputil builds and parses the SDP bodies that carry media
// offers on the signaling leg: one media section per stream description,
// with rtpmap, direction and crypto attributes.
package sdputil

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"

	"github.com/sebas/relaycall/internal/callengine/media"
)

// placeholderPort is used in offers: the actual media endpoints are the
// relay channels, negotiated out of band.
const placeholderPort = 9

// BuildOffer creates an SDP offer for the given stream descriptions.
func BuildOffer(username, addr string, descs []media.Description) ([]byte, error) {
	if len(descs) == 0 {
		return nil, fmt.Errorf("sdputil: offer needs at least one stream description")
	}

	now := time.Now().Unix()
	sessionDesc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       username,
			SessionID:      uint64(now),
			SessionVersion: uint64(now),
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: addr,
		},
		SessionName: "Relaycall Session",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address: &sdp.Address{
				Address: addr,
			},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{
				Timing: sdp.Timing{StartTime: 0, StopTime: 0},
			},
		},
	}

	for _, desc := range descs {
		formats := make([]string, 0, len(desc.PayloadTypes))
		for _, pt := range desc.PayloadTypes {
			formats = append(formats, strconv.Itoa(pt.ID))
		}

		md := &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   desc.Type.String(),
				Port:    sdp.RangedPort{Value: placeholderPort},
				Protos:  []string{"RTP", "AVP"},
				Formats: formats,
			},
			Attributes: mediaAttributes(desc),
		}
		sessionDesc.MediaDescriptions = append(sessionDesc.MediaDescriptions, md)
	}

	body, err := sessionDesc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("sdputil: marshal offer: %w", err)
	}
	return body, nil
}

func mediaAttributes(desc media.Description) []sdp.Attribute {
	attrs := make([]sdp.Attribute, 0, len(desc.PayloadTypes)+2)

	for _, pt := range desc.PayloadTypes {
		if pt.Name == "" {
			continue
		}
		rtpmap := fmt.Sprintf("%d %s/%d", pt.ID, pt.Name, pt.ClockRate)
		if pt.Channels > 1 {
			rtpmap += "/" + strconv.Itoa(pt.Channels)
		}
		attrs = append(attrs, sdp.Attribute{Key: "rtpmap", Value: rtpmap})
	}

	for i, method := range desc.Encryption {
		attrs = append(attrs, sdp.Attribute{
			Key:   "crypto",
			Value: fmt.Sprintf("%d %s", i+1, method),
		})
	}

	attrs = append(attrs, sdp.Attribute{Key: desc.Direction.String()})
	return attrs
}

// ParseOffer extracts stream descriptions from an SDP offer. Media
// sections of unrecognized types are skipped; a section without a
// direction attribute defaults to sendrecv per SDP convention.
func ParseOffer(body []byte) ([]media.Description, error) {
	var sessionDesc sdp.SessionDescription
	if err := sessionDesc.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("sdputil: unmarshal offer: %w", err)
	}

	var descs []media.Description
	for _, md := range sessionDesc.MediaDescriptions {
		mediaType, err := media.ParseType(md.MediaName.Media)
		if err != nil {
			continue
		}

		desc := media.Description{
			Type:      mediaType,
			Direction: media.DirectionSendRecv,
		}

		rtpmaps := make(map[int]media.PayloadType)
		for _, attr := range md.Attributes {
			switch attr.Key {
			case "rtpmap":
				if pt, ok := parseRtpmap(attr.Value); ok {
					rtpmaps[pt.ID] = pt
				}
			case "crypto":
				if method := parseCrypto(attr.Value); method != "" {
					desc.Encryption = append(desc.Encryption, method)
				}
			default:
				if dir, ok := media.ParseDirection(attr.Key); ok {
					desc.Direction = dir
				}
			}
		}

		for _, format := range md.MediaName.Formats {
			id, err := strconv.Atoi(format)
			if err != nil {
				continue
			}
			if pt, ok := rtpmaps[id]; ok {
				desc.PayloadTypes = append(desc.PayloadTypes, pt)
			} else {
				desc.PayloadTypes = append(desc.PayloadTypes, media.PayloadType{ID: id})
			}
		}

		descs = append(descs, desc)
	}

	if len(descs) == 0 {
		return nil, fmt.Errorf("sdputil: offer contains no usable media sections")
	}
	return descs, nil
}

// parseRtpmap parses "96 opus/48000/2" into a payload type.
func parseRtpmap(value string) (media.PayloadType, bool) {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return media.PayloadType{}, false
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return media.PayloadType{}, false
	}

	spec := strings.Split(parts[1], "/")
	pt := media.PayloadType{ID: id, Name: spec[0]}
	if len(spec) > 1 {
		pt.ClockRate, _ = strconv.Atoi(spec[1])
	}
	if len(spec) > 2 {
		pt.Channels, _ = strconv.Atoi(spec[2])
	}
	return pt, true
}

// parseCrypto extracts the suite name from "1 AES_CM_128_HMAC_SHA1_80 inline:...".
func parseCrypto(value string) string {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

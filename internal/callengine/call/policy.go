package call

import "github.com/sebas/relaycall/internal/callengine/media"

// SecurityPolicy holds the engine's security posture for inbound calls.
type SecurityPolicy struct {
	// MandatoryEncryption rejects inbound offers that advertise no
	// encryption method at all.
	MandatoryEncryption bool
}

// AutoAnswerPolicy decides whether an inbound call should be answered
// without user interaction. Directions map each media type to the
// direction the offer proposes; types absent from the offer are
// Inactive.
type AutoAnswerPolicy interface {
	ShouldAutoAnswer(c *Call, directions map[media.Type]media.Direction) bool
}

// AutoAnswerFunc adapts a function to AutoAnswerPolicy.
type AutoAnswerFunc func(c *Call, directions map[media.Type]media.Direction) bool

// ShouldAutoAnswer implements AutoAnswerPolicy.
func (f AutoAnswerFunc) ShouldAutoAnswer(c *Call, directions map[media.Type]media.Direction) bool {
	return f(c, directions)
}

// AnswerAll is an AutoAnswerPolicy that answers every inbound call.
func AnswerAll() AutoAnswerPolicy {
	return AutoAnswerFunc(func(*Call, map[media.Type]media.Direction) bool {
		return true
	})
}

// Package types defines shared API types for the call engine status API.
package types

// HealthResponse is the response from /api/v1/health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime"`
}

// StatsResponse is the response from /api/v1/stats
type StatsResponse struct {
	ActiveCalls    int `json:"active_calls"`
	ActivePeers    int `json:"active_peers"`
	RelayedCalls   int `json:"relayed_calls"`
	TotalChannels  int `json:"total_channels"`
	EventQueueSize int `json:"event_queue_size"`
}

// Peer represents one remote party of a call
type Peer struct {
	SID         string `json:"sid"`
	Address     string `json:"address"`
	State       string `json:"state"`
	StateReason string `json:"state_reason,omitempty"`
	Inbound     bool   `json:"inbound"`
	Focus       bool   `json:"focus"`
	// RemoteChannels is the number of remote relay channels the last
	// conference update advertised for this peer.
	RemoteChannels int `json:"remote_channels,omitempty"`
}

// Channel represents one relay channel of a conference content
type Channel struct {
	ID     string `json:"id"`
	Expire *int   `json:"expire,omitempty"`
}

// Content represents one media section of a conference
type Content struct {
	Name     string    `json:"name"`
	Channels []Channel `json:"channels"`
}

// Conference represents the relay conference state of a call
type Conference struct {
	ID       string    `json:"id"`
	Relay    string    `json:"relay,omitempty"`
	Contents []Content `json:"contents"`
}

// Call represents an active call
type Call struct {
	CallID        string      `json:"call_id"`
	RelayMediated bool        `json:"relay_mediated"`
	Focus         bool        `json:"focus"`
	VideoAllowed  bool        `json:"video_allowed"`
	Peers         []Peer      `json:"peers"`
	Conference    *Conference `json:"conference,omitempty"`
}

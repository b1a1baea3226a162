package model

import "time"

// Action is the outcome of a watchdog policy.
type Action string

const (
	ActionNone    Action = "none"
	ActionRestart Action = "restart"
)

// Mode selects which policy runs for an invocation.
type Mode string

const (
	ModeDetection Mode = "detection"
	ModeForced    Mode = "forced"
)

// PeerStatus is a snapshot of a single WireGuard peer.
type PeerStatus struct {
	PublicKey string
	Endpoint  string // host:port as reported by wg, empty when the peer has none
	Address   string // IP literal of the endpoint host
	// LastHandshake is epoch seconds; 0 means the peer never completed a handshake.
	LastHandshake int64
	AllowedIPs    []string
}

// RestartRecord holds the last forced restart time for one interface.
type RestartRecord struct {
	Interface   string    `yaml:"interface_name"`
	LastRestart int64     `yaml:"last_restart_epoch_seconds"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}

// RunRecord is the outcome of one watchdog invocation.
type RunRecord struct {
	Timestamp        time.Time
	Interface        string
	Mode             Mode
	Action           Action
	Reason           string
	HandshakeAgeSec  int64 // -1 when unknown or never handshaked
	Reachable        bool
	RemainingMinutes int64
	Error            string
}

// NATMapping is the public address observed by STUN for this host.
type NATMapping struct {
	Address string
	Type    string
}

package domain

import "time"

// RosterEntry is one channel member as last observed via signaling.
// Mute/speaking flags converge eventually; there is no acknowledgement.
type RosterEntry struct {
	ParticipantRef
	Muted    bool      `json:"muted"`
	Speaking bool      `json:"speaking"`
	JoinedAt time.Time `json:"joined_at"`
}

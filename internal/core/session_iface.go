package core

import "github.com/squadlink/voicemesh/internal/domain"

// SessionSnapshot is a read-only view for the presentation layer
// (no transport fields).
type SessionSnapshot struct {
	State           string                          `json:"state"`
	Channel         domain.ChannelID                `json:"channel,omitempty"`
	Self            domain.ParticipantRef           `json:"self"`
	SignalConnected bool                            `json:"signal_connected"`
	LocalMuted      bool                            `json:"local_muted"`
	CaptureActive   bool                            `json:"capture_active"`
	Roster          []domain.RosterEntry            `json:"roster"`
	Links           map[domain.ParticipantID]string `json:"links"`
}

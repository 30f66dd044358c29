package app

import (
	"github.com/rs/zerolog/log"

	"github.com/squadlink/voicemesh/internal/domain"
)

// PresenceSync merges remote mute/speaking updates into the roster.
// Overwrites are idempotent; updates for unknown ids are dropped without
// complaint. Convergence is eventual, bounded by signaling latency.
type PresenceSync struct {
	roster *Roster
}

func NewPresenceSync(roster *Roster) *PresenceSync {
	return &PresenceSync{roster: roster}
}

func (p *PresenceSync) ApplyMute(id domain.ParticipantID, muted bool) bool {
	if !p.roster.SetMuted(id, muted) {
		log.Debug().Str("module", "presence").Str("peer", string(id)).Msg("mute for unknown participant, ignoring")
		return false
	}
	return true
}

func (p *PresenceSync) ApplySpeaking(id domain.ParticipantID, speaking bool) bool {
	if !p.roster.SetSpeaking(id, speaking) {
		log.Debug().Str("module", "presence").Str("peer", string(id)).Msg("speaking for unknown participant, ignoring")
		return false
	}
	return true
}

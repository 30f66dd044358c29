package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/squadlink/voicemesh/internal/domain"
)

// SignalClient is the control channel to the relay. Delivery is best-effort:
// this layer never retries individual messages, loss is the caller's concern.
// Owned by the adapter; the adapter must Close() it.
type SignalClient interface {
	// Events delivers decoded inbound control messages. The channel is
	// closed only by Close().
	Events() <-chan Event

	Join(channel domain.ChannelID) error
	Leave() error
	SendOffer(target domain.ParticipantID, sdp webrtc.SessionDescription) error
	SendAnswer(target domain.ParticipantID, sdp webrtc.SessionDescription) error
	SendCandidate(target domain.ParticipantID, cand webrtc.ICECandidateInit) error
	SendMute(muted bool) error
	SendSpeaking(speaking bool) error

	Close()
}

package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/squadlink/voicemesh/internal/domain"
)

// Event is one inbound control message, already decoded by the signaling
// adapter. The session consumes events on a single loop; adapters never
// mutate session state directly.
type Event interface{ isEvent() }

// JoinSuccess carries the membership snapshot and the ICE configuration
// handed out by the relay for this channel.
type JoinSuccess struct {
	Channel    domain.ChannelID
	ICEServers []webrtc.ICEServer
	Roster     []domain.ParticipantRef
}

type JoinFailure struct {
	Reason string
}

type ParticipantJoined struct {
	Ref domain.ParticipantRef
}

type ParticipantLeft struct {
	ID domain.ParticipantID
}

type OfferReceived struct {
	From domain.ParticipantID
	SDP  webrtc.SessionDescription
}

type AnswerReceived struct {
	From domain.ParticipantID
	SDP  webrtc.SessionDescription
}

type CandidateReceived struct {
	From      domain.ParticipantID
	Candidate webrtc.ICECandidateInit
}

type MuteChanged struct {
	ID    domain.ParticipantID
	Muted bool
}

type SpeakingChanged struct {
	ID       domain.ParticipantID
	Speaking bool
}

// TransportDown reports loss of the signaling connection. Established media
// links are unaffected; channel membership is not restored automatically.
type TransportDown struct {
	Err error
}

// TransportUp reports a (re)established signaling connection. The caller
// must re-issue join if it wants membership back.
type TransportUp struct{}

func (JoinSuccess) isEvent()       {}
func (JoinFailure) isEvent()       {}
func (ParticipantJoined) isEvent() {}
func (ParticipantLeft) isEvent()   {}
func (OfferReceived) isEvent()     {}
func (AnswerReceived) isEvent()    {}
func (CandidateReceived) isEvent() {}
func (MuteChanged) isEvent()       {}
func (SpeakingChanged) isEvent()   {}
func (TransportDown) isEvent()     {}
func (TransportUp) isEvent()       {}

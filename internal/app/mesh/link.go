package mesh

import (
	"github.com/pion/webrtc/v4"

	"github.com/squadlink/voicemesh/internal/core"
	"github.com/squadlink/voicemesh/internal/domain"
)

// LinkState is the negotiation state of one peer link.
//
//	New → OfferSent → Connected
//	New → AnswerSent → Connected
//
// Closed is terminal and reachable from every state.
type LinkState int

const (
	StateNew LinkState = iota
	StateOfferSent
	StateAnswerSent
	StateConnected
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOfferSent:
		return "offer_sent"
	case StateAnswerSent:
		return "answer_sent"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Polite reports whether self takes the polite role against remote: the
// lexicographically greater id yields on glare. Both sides compute the same
// assignment with no coordination.
func Polite(self, remote domain.ParticipantID) bool {
	return self > remote
}

// link is one negotiation in flight. It lives in the manager's table only;
// it never holds a reference back to the manager (events flow up through
// callbacks), and all access happens on the session loop.
type link struct {
	remote    domain.ParticipantID
	transport core.LinkTransport
	state     LinkState

	pendingLocalOffer bool
	remoteDescSet     bool

	// Candidates that arrived before the remote description; flushed in
	// arrival order once it is set.
	bufferedCandidates []webrtc.ICECandidateInit
}

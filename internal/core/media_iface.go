package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/squadlink/voicemesh/internal/domain"
)

// LinkTransport is one point-to-point media connection to a remote peer.
// The mesh negotiation state machine drives it; the adapter wraps the real
// PeerConnection. Callbacks fire on transport-owned goroutines, so the
// receiver must re-post them onto the session loop.
type LinkTransport interface {
	// CreateOffer produces a local offer without applying it.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer produces an answer to the current remote description.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// Rollback discards a pending local offer so a remote one can be applied.
	Rollback() error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddLocalTrack attaches a local static RTP track to the underlying PeerConnection.
	AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error)
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnStateChange sets a callback for peer connection state transitions.
	OnStateChange(func(webrtc.PeerConnectionState))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// Close should stop all underlying media resources.
	Close()
}

// TransportFactory builds a LinkTransport to one remote peer, configured
// with the channel's ICE servers. Injected so the negotiation machine is
// testable without a real transport.
type TransportFactory func(remote domain.ParticipantID, iceServers []webrtc.ICEServer) (LinkTransport, error)

// CaptureStream is an acquired local audio source.
type CaptureStream interface {
	// Track is the outbound track to attach to peer links.
	Track() *webrtc.TrackLocalStaticRTP
	// SetEnabled toggles the mute flag. Capture keeps running either way;
	// toggling must never re-acquire the device.
	SetEnabled(bool)
	Close() error
}

// CaptureDevice is the platform audio capture capability. Acquire is called
// at most once per channel membership, and only after the join succeeded.
type CaptureDevice interface {
	Acquire(ctx context.Context) (CaptureStream, error)
}

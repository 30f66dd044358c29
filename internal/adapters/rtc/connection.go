// Package rtc adapts pion/webrtc to the core transport interfaces: one
// peer connection per remote participant, plus the local audio capture.
package rtc

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/squadlink/voicemesh/internal/core"
	"github.com/squadlink/voicemesh/internal/domain"
)

// LinkConn wraps one *webrtc.PeerConnection as a core.LinkTransport.
// Callbacks fire on pion goroutines; the mesh re-posts them onto its loop.
type LinkConn struct {
	pc     *webrtc.PeerConnection
	remote domain.ParticipantID

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

// DefaultICEServers is the fallback used when the relay hands out none.
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}
}

// NewTransportFactory returns the production core.TransportFactory.
// fallback is used when iceServers is empty.
func NewTransportFactory(fallback []webrtc.ICEServer) core.TransportFactory {
	return func(remote domain.ParticipantID, iceServers []webrtc.ICEServer) (core.LinkTransport, error) {
		if len(iceServers) == 0 {
			iceServers = fallback
		}
		return NewLinkConn(webrtc.Configuration{ICEServers: iceServers}, remote)
	}
}

func NewLinkConn(cfg webrtc.Configuration, remote domain.ParticipantID) (*LinkConn, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &LinkConn{pc: pc, remote: remote}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", string(c.remote)).Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", string(c.remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if c.onState != nil {
			c.onState(s)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("peer", string(c.remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.onTrack != nil {
			c.onTrack(track, receiver)
		}
	})

	return c, nil
}

func (c *LinkConn) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *LinkConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *LinkConn) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sdp)
}

func (c *LinkConn) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sdp)
}

// Rollback discards the pending local offer so the glare loser can apply
// the remote one.
func (c *LinkConn) Rollback() error {
	return c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (c *LinkConn) AddICECandidate(cand webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(cand)
}

// AddLocalTrack attaches a local static RTP track to the PeerConnection.
func (c *LinkConn) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

func (c *LinkConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.onICE = fn
}

func (c *LinkConn) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.onState = fn
}

// OnTrack sets application-level callback for remote tracks.
func (c *LinkConn) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

func (c *LinkConn) Close() {
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(c.remote)).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("peer", string(c.remote)).Msg("closed")
	}
}

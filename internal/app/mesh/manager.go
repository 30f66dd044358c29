// Package mesh builds and maintains the full-mesh peer links of one voice
// channel: one negotiation state machine per remote participant, with
// deterministic glare resolution by id comparison.
package mesh

import (
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/squadlink/voicemesh/internal/core"
	"github.com/squadlink/voicemesh/internal/domain"
)

type Config struct {
	Self    domain.ParticipantID
	Signal  core.SignalClient
	Factory core.TransportFactory

	// NegotiationTimeout closes a link that has not reached Connected in
	// time, so a later roster event can rebuild it. Zero disables the timer.
	NegotiationTimeout time.Duration

	// Post schedules fn onto the session loop. Transport callbacks and
	// timers fire on foreign goroutines and must go through it.
	Post func(fn func())

	// OnLinkChange is invoked on the loop after a link changes state,
	// including StateClosed on removal.
	OnLinkChange func(remote domain.ParticipantID, state LinkState)
}

// Manager owns the peer-link table, keyed by participant id. All methods
// must be called from the session loop; nothing here locks.
type Manager struct {
	cfg        Config
	iceServers []webrtc.ICEServer
	localTrack *webrtc.TrackLocalStaticRTP
	links      map[domain.ParticipantID]*link
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:   cfg,
		links: make(map[domain.ParticipantID]*link),
	}
}

// SetICEServers stores the channel's ICE configuration from join-success.
func (m *Manager) SetICEServers(servers []webrtc.ICEServer) {
	m.iceServers = servers
}

// AttachLocalTrack remembers the capture track and attaches it to every
// already-open link. New links pick it up at construction.
func (m *Manager) AttachLocalTrack(track *webrtc.TrackLocalStaticRTP) {
	m.localTrack = track
	if track == nil {
		return
	}
	for _, l := range m.links {
		if _, err := l.transport.AddLocalTrack(track); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("peer", string(l.remote)).Msg("attach local track")
		}
	}
}

func (m *Manager) Has(remote domain.ParticipantID) bool {
	_, ok := m.links[remote]
	return ok
}

func (m *Manager) Len() int { return len(m.links) }

// States returns the negotiation state per remote id for snapshots.
func (m *Manager) States() map[domain.ParticipantID]string {
	out := make(map[domain.ParticipantID]string, len(m.links))
	for id, l := range m.links {
		out[id] = l.state.String()
	}
	return out
}

// Initiate starts a negotiation towards remote: create the transport, send
// an offer. A no-op if a link already exists; links are never rebuilt
// implicitly.
func (m *Manager) Initiate(remote domain.ParticipantID) {
	if _, ok := m.links[remote]; ok {
		return
	}
	l := m.spawn(remote)
	if l == nil {
		return
	}

	offer, err := l.transport.CreateOffer()
	if err != nil {
		m.fail(l, err, "create offer")
		return
	}
	if err := l.transport.SetLocalDescription(offer); err != nil {
		m.fail(l, err, "set local offer")
		return
	}
	l.pendingLocalOffer = true
	m.setState(l, StateOfferSent)
	m.armTimeout(l)

	if err := m.cfg.Signal.SendOffer(remote, offer); err != nil {
		// Best-effort signaling: the link stays OfferSent and the
		// negotiation timeout reclaims it if the offer never arrived.
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(remote)).Msg("send offer")
	}
}

// HandleOffer applies a remote offer, resolving glare deterministically:
// the polite side (greater id) discards its own pending offer, the impolite
// side ignores the incoming one.
func (m *Manager) HandleOffer(from domain.ParticipantID, sdp webrtc.SessionDescription) {
	l, ok := m.links[from]
	if !ok {
		l = m.spawn(from)
		if l == nil {
			return
		}
		m.armTimeout(l)
	}

	switch l.state {
	case StateNew:
		m.accept(l, sdp)
	case StateOfferSent:
		if !Polite(m.cfg.Self, from) {
			// Our offer survives; the remote, being polite, will answer it.
			log.Debug().Str("module", "mesh").Str("peer", string(from)).Msg("glare: impolite, ignoring offer")
			return
		}
		log.Debug().Str("module", "mesh").Str("peer", string(from)).Msg("glare: polite, yielding local offer")
		if err := l.transport.Rollback(); err != nil {
			m.fail(l, err, "rollback")
			return
		}
		l.pendingLocalOffer = false
		m.accept(l, sdp)
	default:
		// Renegotiation is not part of the protocol.
		log.Debug().Str("module", "mesh").Str("peer", string(from)).Str("state", l.state.String()).Msg("offer ignored in state")
	}
}

// HandleAnswer applies a remote answer. Answers with no outstanding offer
// are protocol violations and dropped.
func (m *Manager) HandleAnswer(from domain.ParticipantID, sdp webrtc.SessionDescription) {
	l, ok := m.links[from]
	if !ok || l.state != StateOfferSent {
		log.Debug().Str("module", "mesh").Str("peer", string(from)).Msg("answer without outstanding offer, ignoring")
		return
	}
	if err := l.transport.SetRemoteDescription(sdp); err != nil {
		m.fail(l, err, "set remote answer")
		return
	}
	l.remoteDescSet = true
	l.pendingLocalOffer = false
	m.flushCandidates(l)
	m.setState(l, StateConnected)
}

// HandleCandidate applies a remote ICE candidate, buffering it while the
// remote description is not yet set.
func (m *Manager) HandleCandidate(from domain.ParticipantID, cand webrtc.ICECandidateInit) {
	l, ok := m.links[from]
	if !ok {
		log.Debug().Str("module", "mesh").Str("peer", string(from)).Msg("candidate for unknown link, ignoring")
		return
	}
	if !l.remoteDescSet {
		l.bufferedCandidates = append(l.bufferedCandidates, cand)
		return
	}
	if err := l.transport.AddICECandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(from)).Msg("add ice candidate")
	}
}

// Teardown closes and removes the link, safe from any state. In-flight
// asynchronous completions for the link no-op afterwards.
func (m *Manager) Teardown(remote domain.ParticipantID) {
	if l, ok := m.links[remote]; ok {
		m.close(l)
	}
}

func (m *Manager) TeardownAll() {
	ids := make([]domain.ParticipantID, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	for _, id := range ids {
		m.Teardown(id)
	}
}

// spawn creates the link and its transport and wires transport callbacks
// back onto the loop with a liveness guard.
func (m *Manager) spawn(remote domain.ParticipantID) *link {
	t, err := m.cfg.Factory(remote, m.iceServers)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("peer", string(remote)).Msg("transport create")
		return nil
	}
	l := &link{remote: remote, transport: t, state: StateNew}
	m.links[remote] = l

	t.OnICECandidate(func(cand webrtc.ICECandidateInit) {
		m.cfg.Post(func() {
			if !m.alive(l) {
				return
			}
			if err := m.cfg.Signal.SendCandidate(remote, cand); err != nil {
				log.Warn().Err(err).Str("module", "mesh").Str("peer", string(remote)).Msg("send candidate")
			}
		})
	})
	t.OnStateChange(func(s webrtc.PeerConnectionState) {
		m.cfg.Post(func() { m.onTransportState(l, s) })
	})
	t.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("module", "mesh").Str("peer", string(remote)).Str("kind", track.Kind().String()).Msg("remote track")
	})

	if m.localTrack != nil {
		if _, err := t.AddLocalTrack(m.localTrack); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("peer", string(remote)).Msg("attach local track")
		}
	}
	return l
}

// accept applies a remote offer and responds with an answer.
func (m *Manager) accept(l *link, sdp webrtc.SessionDescription) {
	if err := l.transport.SetRemoteDescription(sdp); err != nil {
		m.fail(l, err, "set remote offer")
		return
	}
	l.remoteDescSet = true
	m.flushCandidates(l)

	answer, err := l.transport.CreateAnswer()
	if err != nil {
		m.fail(l, err, "create answer")
		return
	}
	if err := l.transport.SetLocalDescription(answer); err != nil {
		m.fail(l, err, "set local answer")
		return
	}
	m.setState(l, StateAnswerSent)

	if err := m.cfg.Signal.SendAnswer(l.remote, answer); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(l.remote)).Msg("send answer")
	}
}

func (m *Manager) flushCandidates(l *link) {
	for _, cand := range l.bufferedCandidates {
		if err := l.transport.AddICECandidate(cand); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("peer", string(l.remote)).Msg("flush buffered candidate")
		}
	}
	l.bufferedCandidates = nil
}

func (m *Manager) onTransportState(l *link, s webrtc.PeerConnectionState) {
	if !m.alive(l) {
		return
	}
	switch s {
	case webrtc.PeerConnectionStateConnected:
		if l.state == StateAnswerSent {
			m.setState(l, StateConnected)
		}
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		log.Warn().Str("module", "mesh").Str("peer", string(l.remote)).Str("transport_state", s.String()).Msg("transport lost")
		m.close(l)
	}
}

func (m *Manager) armTimeout(l *link) {
	if m.cfg.NegotiationTimeout <= 0 {
		return
	}
	time.AfterFunc(m.cfg.NegotiationTimeout, func() {
		m.cfg.Post(func() {
			if m.alive(l) && l.state != StateConnected {
				log.Warn().Str("module", "mesh").Str("peer", string(l.remote)).Str("state", l.state.String()).Msg("negotiation timed out")
				m.close(l)
			}
		})
	})
}

// alive guards late asynchronous completions: the table entry must still be
// this exact link.
func (m *Manager) alive(l *link) bool {
	return m.links[l.remote] == l && l.state != StateClosed
}

// fail closes a link after a negotiation error. The failure stays local to
// this peer; the session and other links are untouched.
func (m *Manager) fail(l *link, err error, op string) {
	log.Error().Err(err).Str("module", "mesh").Str("peer", string(l.remote)).Str("op", op).Msg("negotiation error")
	m.close(l)
}

func (m *Manager) close(l *link) {
	if m.links[l.remote] != l {
		return
	}
	delete(m.links, l.remote)
	l.state = StateClosed
	l.bufferedCandidates = nil
	l.transport.Close()
	if m.cfg.OnLinkChange != nil {
		m.cfg.OnLinkChange(l.remote, StateClosed)
	}
}

func (m *Manager) setState(l *link, s LinkState) {
	l.state = s
	if m.cfg.OnLinkChange != nil {
		m.cfg.OnLinkChange(l.remote, s)
	}
}

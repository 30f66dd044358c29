// Package app wires the voice session together: one event loop owning the
// channel state machine, the roster, the capture controller and the peer
// link mesh.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/squadlink/voicemesh/internal/app/mesh"
	"github.com/squadlink/voicemesh/internal/core"
	"github.com/squadlink/voicemesh/internal/domain"
)

// State is the channel membership state: Idle → Joining → InChannel →
// Leaving → Idle.
type State int

const (
	StateIdle State = iota
	StateJoining
	StateInChannel
	StateLeaving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateInChannel:
		return "in_channel"
	case StateLeaving:
		return "leaving"
	}
	return "unknown"
}

var (
	ErrNotIdle       = errors.New("session already joining or in a channel")
	ErrJoinCanceled  = errors.New("join canceled")
	ErrSessionClosed = errors.New("session closed")
)

// JoinRejectedError is a join refused by the relay. Not retried.
type JoinRejectedError struct {
	Reason string
}

func (e *JoinRejectedError) Error() string {
	return fmt.Sprintf("join rejected: %s", e.Reason)
}

type Config struct {
	Self    domain.ParticipantRef
	Signal  core.SignalClient
	Capture core.CaptureDevice
	Factory core.TransportFactory

	// NegotiationTimeout bounds how long a peer link may sit short of
	// Connected before it is reclaimed.
	NegotiationTimeout time.Duration
}

// Session is the channel session manager. All state mutation happens on the
// Run loop; public methods post onto it and therefore are safe from any
// goroutine.
type Session struct {
	cfg Config

	tasks chan func()
	done  chan struct{}

	roster   *Roster
	presence *PresenceSync
	media    *MediaController
	links    *mesh.Manager

	state     State
	channel   domain.ChannelID
	signalUp  bool
	joinReply chan<- error

	subMu sync.Mutex
	subs  []chan struct{}
}

func NewSession(cfg Config) *Session {
	s := &Session{
		cfg:      cfg,
		tasks:    make(chan func(), 64),
		done:     make(chan struct{}),
		roster:   NewRoster(),
		signalUp: true,
	}
	s.presence = NewPresenceSync(s.roster)
	s.media = NewMediaController(cfg.Capture, s.postOrDrop)
	s.links = mesh.NewManager(mesh.Config{
		Self:               cfg.Self.ID,
		Signal:             cfg.Signal,
		Factory:            cfg.Factory,
		NegotiationTimeout: cfg.NegotiationTimeout,
		Post:               s.postOrDrop,
		OnLinkChange: func(domain.ParticipantID, mesh.LinkState) {
			// State already changed on the loop; just wake subscribers.
		},
	})
	return s
}

// Run consumes signaling events and posted tasks until ctx is done or the
// signaling event stream closes. On exit the session leaves cleanly.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	events := s.cfg.Signal.Events()
	for {
		select {
		case <-ctx.Done():
			s.doLeave()
			return
		case ev, ok := <-events:
			if !ok {
				s.doLeave()
				return
			}
			s.handleEvent(ev)
			s.wake()
		case fn := <-s.tasks:
			fn()
			s.wake()
		}
	}
}

// Join enters a channel. Valid only from Idle; blocks until the relay
// accepts or rejects, or ctx is done.
func (s *Session) Join(ctx context.Context, channel domain.ChannelID) error {
	reply := make(chan error, 1)
	if !s.post(func() { s.doJoin(channel, reply) }) {
		return ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

// Leave exits the current channel. Idempotent: calling it twice, or with a
// join outstanding, is safe and leaves no dangling links.
func (s *Session) Leave() {
	doneCh := make(chan struct{})
	if !s.post(func() { s.doLeave(); close(doneCh) }) {
		return
	}
	select {
	case <-doneCh:
	case <-s.done:
	}
}

// SetMuted flips the local mute flag. Reflected in the local roster entry
// immediately; never touches any peer link.
func (s *Session) SetMuted(muted bool) {
	s.post(func() { s.doSetMuted(muted) })
}

// LocalSpeaking reports local voice activity from the capture pump.
func (s *Session) LocalSpeaking(active bool) {
	s.post(func() { s.doLocalSpeaking(active) })
}

// Snapshot returns a consistent copy of the session state for display.
func (s *Session) Snapshot() core.SessionSnapshot {
	reply := make(chan core.SessionSnapshot, 1)
	if !s.post(func() { reply <- s.snapshot() }) {
		return core.SessionSnapshot{State: StateIdle.String(), Self: s.cfg.Self}
	}
	select {
	case snap := <-reply:
		return snap
	case <-s.done:
		return core.SessionSnapshot{State: StateIdle.String(), Self: s.cfg.Self}
	}
}

// Subscribe returns a channel that receives a signal after every state
// change. Slow subscribers miss intermediate wakeups, never block the loop.
func (s *Session) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Session) post(fn func()) bool {
	select {
	case s.tasks <- fn:
		return true
	case <-s.done:
		return false
	}
}

// postOrDrop is the non-blocking variant handed to transport callbacks: a
// completion arriving after shutdown is dropped, not deadlocked.
func (s *Session) postOrDrop(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.done:
	}
}

func (s *Session) wake() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Session) handleEvent(ev core.Event) {
	switch e := ev.(type) {
	case core.JoinSuccess:
		s.onJoinSuccess(e)
	case core.JoinFailure:
		s.onJoinFailure(e)
	case core.ParticipantJoined:
		s.onParticipantJoined(e)
	case core.ParticipantLeft:
		s.onParticipantLeft(e)
	case core.OfferReceived:
		if s.fromKnownPeer(e.From) {
			s.links.HandleOffer(e.From, e.SDP)
		}
	case core.AnswerReceived:
		if s.fromKnownPeer(e.From) {
			s.links.HandleAnswer(e.From, e.SDP)
		}
	case core.CandidateReceived:
		if s.fromKnownPeer(e.From) {
			s.links.HandleCandidate(e.From, e.Candidate)
		}
	case core.MuteChanged:
		if s.state == StateInChannel {
			s.presence.ApplyMute(e.ID, e.Muted)
		}
	case core.SpeakingChanged:
		if s.state == StateInChannel {
			s.presence.ApplySpeaking(e.ID, e.Speaking)
		}
	case core.TransportDown:
		s.onTransportDown(e)
	case core.TransportUp:
		s.signalUp = true
	}
}

// fromKnownPeer enforces that negotiation messages only apply to current
// roster members; anything else is a protocol violation and dropped.
func (s *Session) fromKnownPeer(id domain.ParticipantID) bool {
	if s.state != StateInChannel || !s.roster.Has(id) {
		log.Debug().Str("module", "session").Str("peer", string(id)).Msg("negotiation message from unknown peer, ignoring")
		return false
	}
	return true
}

func (s *Session) doJoin(channel domain.ChannelID, reply chan<- error) {
	if !domain.ValidChannel(channel) {
		reply <- domain.ErrUnknownChannel
		return
	}
	if s.state != StateIdle {
		reply <- ErrNotIdle
		return
	}
	if err := s.cfg.Signal.Join(channel); err != nil {
		reply <- fmt.Errorf("send join: %w", err)
		return
	}
	s.state = StateJoining
	s.channel = channel
	s.joinReply = reply
	log.Info().Str("module", "session").Str("channel", string(channel)).Msg("joining")
}

func (s *Session) onJoinSuccess(e core.JoinSuccess) {
	if s.state != StateJoining {
		log.Debug().Str("module", "session").Msg("join_success outside Joining, ignoring")
		return
	}
	s.state = StateInChannel
	s.channel = e.Channel
	now := time.Now()
	s.roster.Add(s.cfg.Self, now)
	s.roster.SetMuted(s.cfg.Self.ID, s.media.Muted())
	for _, ref := range e.Roster {
		if ref.ID == s.cfg.Self.ID {
			continue
		}
		s.roster.Add(ref, now)
	}
	s.links.SetICEServers(e.ICEServers)
	s.resolveJoin(nil)
	log.Info().Str("module", "session").Str("channel", string(e.Channel)).Int("members", s.roster.Len()).Msg("joined")

	// Capture comes up lazily; the join is already complete.
	s.media.Start(context.Background(), s.onCaptureReady, func(error) {})

	for _, ref := range e.Roster {
		if ref.ID == s.cfg.Self.ID {
			continue
		}
		s.links.Initiate(ref.ID)
	}
}

func (s *Session) onJoinFailure(e core.JoinFailure) {
	if s.state != StateJoining {
		return
	}
	s.state = StateIdle
	s.channel = ""
	s.resolveJoin(&JoinRejectedError{Reason: e.Reason})
	log.Warn().Str("module", "session").Str("reason", e.Reason).Msg("join rejected")
}

func (s *Session) onParticipantJoined(e core.ParticipantJoined) {
	if s.state != StateInChannel {
		return
	}
	if !s.roster.Add(e.Ref, time.Now()) {
		// Duplicate join event: no new entry, no new link.
		return
	}
	log.Info().Str("module", "session").Str("peer", string(e.Ref.ID)).Msg("participant joined")
	if s.media.Active() {
		s.links.Initiate(e.Ref.ID)
	}
	// Otherwise deferred: the capture-ready callback initiates links to
	// every member still missing one.
}

func (s *Session) onParticipantLeft(e core.ParticipantLeft) {
	if s.state != StateInChannel {
		return
	}
	s.roster.Remove(e.ID)
	s.links.Teardown(e.ID)
	log.Info().Str("module", "session").Str("peer", string(e.ID)).Msg("participant left")
}

func (s *Session) onTransportDown(e core.TransportDown) {
	s.signalUp = false
	if s.state == StateJoining {
		s.state = StateIdle
		s.channel = ""
		s.resolveJoin(fmt.Errorf("signaling transport lost: %w", e.Err))
	}
	// Established links keep running; membership is not restored on
	// reconnect, re-joining is the caller's decision.
}

func (s *Session) onCaptureReady(stream core.CaptureStream) {
	if s.state != StateInChannel {
		return
	}
	s.links.AttachLocalTrack(stream.Track())
	s.roster.SetMuted(s.cfg.Self.ID, s.media.Muted())
	for _, entry := range s.roster.Snapshot() {
		if entry.ID == s.cfg.Self.ID || s.links.Has(entry.ID) {
			continue
		}
		s.links.Initiate(entry.ID)
	}
}

func (s *Session) doLeave() {
	switch s.state {
	case StateIdle, StateLeaving:
		return
	case StateJoining:
		s.resolveJoin(ErrJoinCanceled)
	}
	s.state = StateLeaving
	s.media.Stop()
	s.media.SetMuted(false)
	s.links.TeardownAll()
	if err := s.cfg.Signal.Leave(); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("send leave")
	}
	s.roster.Clear()
	s.channel = ""
	s.state = StateIdle
	log.Info().Str("module", "session").Msg("left channel")
}

func (s *Session) doSetMuted(muted bool) {
	s.media.SetMuted(muted)
	if s.state != StateInChannel {
		return
	}
	s.roster.SetMuted(s.cfg.Self.ID, muted)
	if err := s.cfg.Signal.SendMute(muted); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("send mute")
	}
}

func (s *Session) doLocalSpeaking(active bool) {
	if s.state != StateInChannel || !s.media.Active() {
		return
	}
	s.roster.SetSpeaking(s.cfg.Self.ID, active)
	if err := s.cfg.Signal.SendSpeaking(active); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("send speaking")
	}
}

func (s *Session) resolveJoin(err error) {
	if s.joinReply == nil {
		return
	}
	s.joinReply <- err
	s.joinReply = nil
}

func (s *Session) snapshot() core.SessionSnapshot {
	return core.SessionSnapshot{
		State:           s.state.String(),
		Channel:         s.channel,
		Self:            s.cfg.Self,
		SignalConnected: s.signalUp,
		LocalMuted:      s.media.Muted(),
		CaptureActive:   s.media.Active(),
		Roster:          s.roster.Snapshot(),
		Links:           s.links.States(),
	}
}

package rtc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/squadlink/voicemesh/internal/core"
)

const (
	captureBufferSize = 1500

	// A participant counts as speaking while unmuted packets flowed within
	// this window.
	speakingWindow = 600 * time.Millisecond
	speakingTick   = 200 * time.Millisecond
)

// PacketSource yields outbound audio as RTP packets.
type PacketSource interface {
	ReadPacket() (*rtp.Packet, error)
	Close() error
}

// SourceOpener opens the packet source when the device is acquired.
type SourceOpener func(ctx context.Context) (PacketSource, error)

// Capture implements core.CaptureDevice over a PacketSource. Packets are
// pumped into a static RTP track shared by every peer link; muting gates
// the pump without touching the source.
type Capture struct {
	open       SourceOpener
	onSpeaking func(active bool)
}

func NewCapture(open SourceOpener) *Capture {
	return &Capture{open: open}
}

// OnSpeaking sets the voice-activity callback. Called with edge transitions
// only, from a capture-owned goroutine.
func (d *Capture) OnSpeaking(fn func(active bool)) { d.onSpeaking = fn }

func (d *Capture) Acquire(ctx context.Context) (core.CaptureStream, error) {
	src, err := d.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open capture source: %w", err)
	}
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "voicemesh",
	)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("create local track: %w", err)
	}

	s := &captureStream{
		src:        src,
		track:      track,
		onSpeaking: d.onSpeaking,
		stop:       make(chan struct{}),
	}
	s.enabled.Store(true)
	go s.pump()
	go s.watch()
	return s, nil
}

type captureStream struct {
	src        PacketSource
	track      *webrtc.TrackLocalStaticRTP
	onSpeaking func(bool)

	enabled    atomic.Bool
	lastPacket atomic.Int64

	stop      chan struct{}
	closeOnce sync.Once
}

func (s *captureStream) Track() *webrtc.TrackLocalStaticRTP { return s.track }

func (s *captureStream) SetEnabled(enabled bool) { s.enabled.Store(enabled) }

func (s *captureStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		err = s.src.Close()
	})
	return err
}

// pump reads RTP packets from the source and forwards them to the local
// track while unmuted.
func (s *captureStream) pump() {
	for {
		pkt, err := s.src.ReadPacket()
		if err != nil {
			select {
			case <-s.stop:
			default:
				log.Error().Err(err).Str("module", "rtc").Msg("capture read error, stopping pump")
			}
			return
		}
		if !s.enabled.Load() {
			continue
		}
		if err := s.track.WriteRTP(pkt); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("capture write RTP")
			continue
		}
		s.lastPacket.Store(time.Now().UnixNano())
	}
}

// watch derives speaking edges from packet flow.
func (s *captureStream) watch() {
	ticker := time.NewTicker(speakingTick)
	defer ticker.Stop()
	speaking := false
	for {
		select {
		case <-s.stop:
			if speaking && s.onSpeaking != nil {
				s.onSpeaking(false)
			}
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastPacket.Load())
			active := s.enabled.Load() && time.Since(last) < speakingWindow
			if active != speaking {
				speaking = active
				if s.onSpeaking != nil {
					s.onSpeaking(active)
				}
			}
		}
	}
}

// UDPSource reads RTP from a local UDP socket, the demo input path of the
// reference client.
type UDPSource struct {
	conn *net.UDPConn
	buf  []byte
}

// OpenUDP returns a SourceOpener listening on addr.
func OpenUDP(addr string) SourceOpener {
	return func(ctx context.Context) (PacketSource, error) {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, err
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return nil, err
		}
		log.Info().Str("module", "rtc").Str("addr", addr).Msg("capture source listening")
		return &UDPSource{conn: conn, buf: make([]byte, captureBufferSize)}, nil
	}
}

func (s *UDPSource) ReadPacket() (*rtp.Packet, error) {
	n, _, err := s.conn.ReadFrom(s.buf)
	if err != nil {
		return nil, err
	}
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(s.buf[:n]); err != nil {
		return nil, err
	}
	return pkt, nil
}

func (s *UDPSource) Close() error { return s.conn.Close() }

// Package signalws is the websocket signaling client: a persistent,
// auto-reconnecting control channel to the relay. Delivery is best-effort;
// individual messages are never retried here.
package signalws

import (
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/squadlink/voicemesh/internal/core"
	"github.com/squadlink/voicemesh/internal/domain"
)

var (
	ErrNotConnected = errors.New("signaling not connected")
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("signaling client closed")
)

const (
	defaultReconnectMin = 250 * time.Millisecond
	defaultReconnectMax = 4 * time.Second
	defaultPingPeriod   = 54 * time.Second
	defaultReadLimit    = 32768

	writeWait = 5 * time.Second
)

type Config struct {
	// Endpoint is the ws(s) URL of the relay's signaling endpoint.
	Endpoint string
	// Identity authenticates the connection; sender ids on outbound
	// messages are implicit from it.
	Identity domain.ParticipantRef

	ReconnectMin time.Duration
	ReconnectMax time.Duration
	PingPeriod   time.Duration
	ReadLimit    int64
}

// Client implements core.SignalClient over gorilla/websocket.
type Client struct {
	cfg    Config
	events chan core.Event

	mu   sync.RWMutex
	conn *wsConn

	closed    chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) *Client {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = defaultReconnectMin
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = defaultReconnectMax
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	c := &Client{
		cfg:    cfg,
		events: make(chan core.Event, 128),
		closed: make(chan struct{}),
	}
	go c.supervise()
	return c
}

func (c *Client) Events() <-chan core.Event { return c.events }

func (c *Client) Join(channel domain.ChannelID) error {
	return c.sendJSON(joinMsg{Type: "join", Channel: channel})
}

func (c *Client) Leave() error {
	return c.sendJSON(leaveMsg{Type: "leave"})
}

func (c *Client) SendOffer(target domain.ParticipantID, sdp webrtc.SessionDescription) error {
	return c.sendJSON(sdpMsg{Type: "offer", Target: target, SDP: sdp.SDP})
}

func (c *Client) SendAnswer(target domain.ParticipantID, sdp webrtc.SessionDescription) error {
	return c.sendJSON(sdpMsg{Type: "answer", Target: target, SDP: sdp.SDP})
}

func (c *Client) SendCandidate(target domain.ParticipantID, cand webrtc.ICECandidateInit) error {
	return c.sendJSON(newCandidateMsg(target, cand))
}

func (c *Client) SendMute(muted bool) error {
	return c.sendJSON(muteMsg{Type: "mute", Muted: muted})
}

func (c *Client) SendSpeaking(speaking bool) error {
	return c.sendJSON(speakingMsg{Type: "speaking", Speaking: speaking})
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if conn := c.current(); conn != nil {
			conn.Close()
		}
	})
}

func (c *Client) sendJSON(v any) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.TrySend(b)
}

func (c *Client) current() *wsConn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setConn(conn *wsConn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) emit(ev core.Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

// supervise redials forever with capped exponential backoff. Reconnection
// does not restore channel membership; the session must re-issue join.
func (c *Client) supervise() {
	defer close(c.events)

	backoff := c.cfg.ReconnectMin
	up := true // optimistic until the first failure, matching the session
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		ws, err := c.dial()
		if err != nil {
			log.Warn().Err(err).Str("module", "signalws").Dur("backoff", backoff).Msg("dial failed")
			if up {
				up = false
				c.emit(core.TransportDown{Err: err})
			}
			if !c.sleep(backoff) {
				return
			}
			backoff = min(backoff*2, c.cfg.ReconnectMax)
			continue
		}

		backoff = c.cfg.ReconnectMin
		up = true
		conn := newWSConn(ws)
		c.setConn(conn)
		log.Info().Str("module", "signalws").Str("endpoint", c.cfg.Endpoint).Msg("signaling connected")
		c.emit(core.TransportUp{})

		err = c.runConn(conn)
		c.setConn(nil)

		select {
		case <-c.closed:
			return
		default:
		}
		log.Warn().Err(err).Str("module", "signalws").Msg("signaling connection lost")
		up = false
		c.emit(core.TransportDown{Err: err})
		if !c.sleep(backoff) {
			return
		}
		backoff = min(backoff*2, c.cfg.ReconnectMax)
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("participant_id", string(c.cfg.Identity.ID))
	q.Set("display_name", c.cfg.Identity.DisplayName)
	q.Set("role", string(c.cfg.Identity.Role))
	u.RawQuery = q.Encode()

	dialer := &websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	ws, _, err := dialer.Dial(u.String(), nil)
	return ws, err
}

func (c *Client) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-c.closed:
		return false
	}
}

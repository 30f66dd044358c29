package signalws

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/squadlink/voicemesh/internal/core"
	"github.com/squadlink/voicemesh/internal/domain"
)

// Wire messages are JSON envelopes dispatched on "type". Sender identity on
// inbound messages is set by the relay from the authenticated connection.

type joinMsg struct {
	Type    string           `json:"type"`
	Channel domain.ChannelID `json:"channel"`
}

type leaveMsg struct {
	Type string `json:"type"`
}

type sdpMsg struct {
	Type   string               `json:"type"`
	Target domain.ParticipantID `json:"target,omitempty"`
	From   domain.ParticipantID `json:"from,omitempty"`
	SDP    string               `json:"sdp"`
}

type candidateMsg struct {
	Type          string               `json:"type"`
	Target        domain.ParticipantID `json:"target,omitempty"`
	From          domain.ParticipantID `json:"from,omitempty"`
	Candidate     string               `json:"candidate"`
	SDPMid        string               `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16               `json:"sdpMLineIndex,omitempty"`
}

type muteMsg struct {
	Type  string               `json:"type"`
	From  domain.ParticipantID `json:"from,omitempty"`
	Muted bool                 `json:"muted"`
}

type speakingMsg struct {
	Type     string               `json:"type"`
	From     domain.ParticipantID `json:"from,omitempty"`
	Speaking bool                 `json:"speaking"`
}

type iceServerWire struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type joinSuccessMsg struct {
	Type       string                  `json:"type"`
	Channel    domain.ChannelID        `json:"channel"`
	ICEServers []iceServerWire         `json:"ice_servers"`
	Roster     []domain.ParticipantRef `json:"roster"`
}

type joinFailureMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type memberJoinedMsg struct {
	Type   string                `json:"type"`
	Member domain.ParticipantRef `json:"member"`
}

type memberLeftMsg struct {
	Type string               `json:"type"`
	ID   domain.ParticipantID `json:"id"`
}

func newCandidateMsg(target domain.ParticipantID, cand webrtc.ICECandidateInit) candidateMsg {
	msg := candidateMsg{
		Type:      "candidate",
		Target:    target,
		Candidate: cand.Candidate,
	}
	if cand.SDPMid != nil {
		msg.SDPMid = *cand.SDPMid
	}
	if cand.SDPMLineIndex != nil {
		msg.SDPMLineIndex = *cand.SDPMLineIndex
	}
	return msg
}

func (m candidateMsg) toInit() webrtc.ICECandidateInit {
	cand := webrtc.ICECandidateInit{Candidate: m.Candidate}
	if m.SDPMid != "" {
		mid := m.SDPMid
		cand.SDPMid = &mid
	}
	idx := m.SDPMLineIndex
	cand.SDPMLineIndex = &idx
	return cand
}

// decodeEvent turns one inbound frame into a typed event. A nil event with
// nil error means the frame is valid but carries nothing for the session
// (e.g. pong).
func decodeEvent(data []byte) (core.Event, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bad envelope: %w", err)
	}

	switch env.Type {
	case "join_success":
		var m joinSuccessMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad join_success: %w", err)
		}
		servers := make([]webrtc.ICEServer, 0, len(m.ICEServers))
		for _, s := range m.ICEServers {
			srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
			if s.Credential != "" {
				srv.Credential = s.Credential
			}
			servers = append(servers, srv)
		}
		return core.JoinSuccess{Channel: m.Channel, ICEServers: servers, Roster: m.Roster}, nil
	case "join_failure":
		var m joinFailureMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad join_failure: %w", err)
		}
		return core.JoinFailure{Reason: m.Reason}, nil
	case "member_joined":
		var m memberJoinedMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad member_joined: %w", err)
		}
		return core.ParticipantJoined{Ref: m.Member}, nil
	case "member_left":
		var m memberLeftMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad member_left: %w", err)
		}
		return core.ParticipantLeft{ID: m.ID}, nil
	case "offer", "answer":
		var m sdpMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad %s: %w", env.Type, err)
		}
		if env.Type == "offer" {
			return core.OfferReceived{From: m.From, SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: m.SDP}}, nil
		}
		return core.AnswerReceived{From: m.From, SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP}}, nil
	case "candidate":
		var m candidateMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad candidate: %w", err)
		}
		return core.CandidateReceived{From: m.From, Candidate: m.toInit()}, nil
	case "mute":
		var m muteMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad mute: %w", err)
		}
		return core.MuteChanged{ID: m.From, Muted: m.Muted}, nil
	case "speaking":
		var m speakingMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad speaking: %w", err)
		}
		return core.SpeakingChanged{ID: m.From, Speaking: m.Speaking}, nil
	case "pong":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown signal %q", env.Type)
	}
}

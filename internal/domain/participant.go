// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxParticipantIDLen = 36
	MaxDisplayNameLen   = 36
)

var (
	ErrDisplayNameTooLong   = errors.New("display name too long")
	ErrDisplayNameEmpty     = errors.New("display name empty")
	ErrParticipantIDEmpty   = errors.New("participant id empty")
	ErrParticipantIDTooLong = errors.New("participant id too long")
)

// ParticipantID is a stable, globally unique identifier. IDs are compared
// lexicographically to assign negotiation roles, so they must never change
// for the lifetime of a session.
type ParticipantID string

type Role string

const (
	RolePlayer     Role = "player"
	RoleGameMaster Role = "gm"
	RoleSpectator  Role = "spectator"
)

// ParticipantRef is the immutable identity of a channel member.
type ParticipantRef struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"display_name"`
	Role        Role          `json:"role"`
}

// NewParticipantRef avoids raw literals in adapters and keeps construction obvious.
func NewParticipantRef(id ParticipantID, displayName string, role Role) (ParticipantRef, error) {
	if len(id) == 0 {
		return ParticipantRef{}, ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return ParticipantRef{}, ErrParticipantIDTooLong
	}
	if len(displayName) == 0 {
		return ParticipantRef{}, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return ParticipantRef{}, ErrDisplayNameTooLong
	}
	if role == "" {
		role = RolePlayer
	}
	return ParticipantRef{ID: id, DisplayName: displayName, Role: role}, nil
}

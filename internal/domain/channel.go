package domain

import (
	"errors"
	"strings"
)

var ErrUnknownChannel = errors.New("unknown channel")

// ChannelID names one logical voice group. A session is a member of at most
// one channel at a time.
type ChannelID string

// The fixed channel categories of the companion app, plus ad-hoc direct
// channels between two participants.
const (
	ChannelParty ChannelID = "party"
	ChannelGuild ChannelID = "guild"
	ChannelZone  ChannelID = "zone"

	directPrefix = "direct:"
)

// DirectChannel derives the private channel id for a pair of participants.
// Both sides compute the same id regardless of argument order.
func DirectChannel(a, b ParticipantID) ChannelID {
	if b < a {
		a, b = b, a
	}
	return ChannelID(directPrefix + string(a) + ":" + string(b))
}

func (c ChannelID) IsDirect() bool {
	return strings.HasPrefix(string(c), directPrefix)
}

// ValidChannel reports whether c is one of the fixed categories or a
// well-formed direct channel.
func ValidChannel(c ChannelID) bool {
	switch c {
	case ChannelParty, ChannelGuild, ChannelZone:
		return true
	}
	if !c.IsDirect() {
		return false
	}
	rest := strings.TrimPrefix(string(c), directPrefix)
	a, b, ok := strings.Cut(rest, ":")
	return ok && a != "" && b != "" && a < b
}

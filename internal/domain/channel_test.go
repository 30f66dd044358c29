package domain

import (
	"strings"
	"testing"
)

func TestDirectChannelIsOrderIndependent(t *testing.T) {
	t.Parallel()

	ab := DirectChannel("alice", "bob")
	ba := DirectChannel("bob", "alice")
	if ab != ba {
		t.Fatalf("DirectChannel order matters: %q vs %q", ab, ba)
	}
	if ab != "direct:alice:bob" {
		t.Fatalf("DirectChannel = %q, want direct:alice:bob", ab)
	}
	if !ab.IsDirect() {
		t.Error("direct channel must report IsDirect")
	}
	if ChannelParty.IsDirect() {
		t.Error("fixed category must not report IsDirect")
	}
}

func TestValidChannel(t *testing.T) {
	t.Parallel()

	valid := []ChannelID{ChannelParty, ChannelGuild, ChannelZone, DirectChannel("alice", "bob")}
	for _, c := range valid {
		if !ValidChannel(c) {
			t.Errorf("ValidChannel(%q) = false, want true", c)
		}
	}
	invalid := []ChannelID{"", "backstage", "direct:", "direct:alice", "direct:alice:", "direct:bob:alice"}
	for _, c := range invalid {
		if ValidChannel(c) {
			t.Errorf("ValidChannel(%q) = true, want false", c)
		}
	}
}

func TestNewParticipantRef(t *testing.T) {
	t.Parallel()

	ref, err := NewParticipantRef("alice", "Alice", "")
	if err != nil {
		t.Fatalf("NewParticipantRef() error: %v", err)
	}
	if ref.Role != RolePlayer {
		t.Errorf("role = %q, want the player default", ref.Role)
	}

	long := strings.Repeat("x", MaxDisplayNameLen+1)
	cases := []struct {
		id   ParticipantID
		name string
		want error
	}{
		{"", "Alice", ErrParticipantIDEmpty},
		{ParticipantID(long), "Alice", ErrParticipantIDTooLong},
		{"alice", "", ErrDisplayNameEmpty},
		{"alice", long, ErrDisplayNameTooLong},
	}
	for _, tc := range cases {
		if _, err := NewParticipantRef(tc.id, tc.name, RolePlayer); err != tc.want {
			t.Errorf("NewParticipantRef(%q, %q) error = %v, want %v", tc.id, tc.name, err, tc.want)
		}
	}
}

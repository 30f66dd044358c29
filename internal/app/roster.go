package app

import (
	"sort"
	"sync"
	"time"

	"github.com/squadlink/voicemesh/internal/domain"
)

// Roster is the threadsafe in-memory membership view of the active channel.
// The session loop is the only writer; readers (snapshots, HTTP API) may
// come from any goroutine.
type Roster struct {
	mu   sync.RWMutex
	byID map[domain.ParticipantID]*domain.RosterEntry
}

func NewRoster() *Roster {
	return &Roster{byID: make(map[domain.ParticipantID]*domain.RosterEntry)}
}

// Add inserts a member. Returns false if the id is already present, making
// duplicate join events a no-op.
func (r *Roster) Add(ref domain.ParticipantRef, joinedAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[ref.ID]; ok {
		return false
	}
	r.byID[ref.ID] = &domain.RosterEntry{ParticipantRef: ref, JoinedAt: joinedAt}
	return true
}

func (r *Roster) Remove(id domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	return true
}

func (r *Roster) Get(id domain.ParticipantID) (domain.RosterEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byID[id]; ok {
		return *e, true
	}
	return domain.RosterEntry{}, false
}

func (r *Roster) Has(id domain.ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// SetMuted overwrites the mute flag by id. Returns false for unknown ids.
func (r *Roster) SetMuted(id domain.ParticipantID, muted bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	e.Muted = muted
	return true
}

// SetSpeaking overwrites the speaking flag by id. Returns false for unknown ids.
func (r *Roster) SetSpeaking(id domain.ParticipantID, speaking bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	e.Speaking = speaking
	return true
}

// Snapshot returns members ordered by join time, then id for stability.
func (r *Roster) Snapshot() []domain.RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RosterEntry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[domain.ParticipantID]*domain.RosterEntry)
}

// Package dirstate is the directory service's replicated state
// machine: the user registry and the per-user inboxes of pending
// requests and permission updates described in spec.md §3 and §4.1.
// It implements raftlog.StateMachine; raftlog drives Apply once a
// command is committed by a majority.
package dirstate

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

// AbsenceThreshold is the default missed-heartbeat window after which
// a user is torn down, per spec.md §3's Lifecycle section (3 missed
// heartbeats × 10s).
const AbsenceThreshold = 30 * time.Second

// Inbox holds one user's undelivered requests and permission updates.
type Inbox struct {
	Requests []model.PendingRequest          `json:"requests"`
	Updates  []model.PendingPermissionUpdate `json:"updates"`
}

// State is the full replicated cluster state: the user table and
// every user's inbox, plus the set of permission-update dedup keys
// already delivered so a duplicate PostPermissionUpdate is never
// queued twice even after a leader change.
type State struct {
	mu sync.Mutex

	Users     map[string]*model.User `json:"users"`
	Inboxes   map[string]*Inbox      `json:"inboxes"`
	Delivered map[string]struct{}    `json:"delivered"` // formatted dedup keys
}

// New returns an empty state machine.
func New() *State {
	return &State{
		Users:     make(map[string]*model.User),
		Inboxes:   make(map[string]*Inbox),
		Delivered: make(map[string]struct{}),
	}
}

func dedupKeyString(k [3]string) string {
	return k[0] + "\x00" + k[1] + "\x00" + k[2]
}

func (s *State) inboxFor(username string) *Inbox {
	ib, ok := s.Inboxes[username]
	if !ok {
		ib = &Inbox{}
		s.Inboxes[username] = ib
	}
	return ib
}

// Snapshot serializes the full state under lock, satisfying
// raftlog.StateMachine.
func (s *State) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(s)
}

// Restore replaces state wholesale from a prior Snapshot's bytes. An
// empty or absent snapshot leaves a freshly-initialized state.
func (s *State) Restore(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(data) == 0 {
		s.Users = make(map[string]*model.User)
		s.Inboxes = make(map[string]*Inbox)
		s.Delivered = make(map[string]struct{})
		return nil
	}
	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}
	s.Users = loaded.Users
	s.Inboxes = loaded.Inboxes
	s.Delivered = loaded.Delivered
	if s.Users == nil {
		s.Users = make(map[string]*model.User)
	}
	if s.Inboxes == nil {
		s.Inboxes = make(map[string]*Inbox)
	}
	if s.Delivered == nil {
		s.Delivered = make(map[string]struct{})
	}
	return nil
}

// PruneAbsent tears down users whose LastHeartbeat is older than
// threshold, per spec.md §3's Lifecycle section. Called periodically
// by every directory node's pruner loop, not by a client RPC — it is
// not itself a replicated command (each node independently reaches
// the same conclusion from replicated LastHeartbeat timestamps, so no
// consensus round is needed for something purely a function of time).
func (s *State) PruneAbsent(now time.Time, threshold time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for username, u := range s.Users {
		if u.Online && now.Sub(u.LastHeartbeat) > threshold {
			u.Online = false
			clearNotificationsForUser(s, username)
			clearPendingRequestsToUser(s, username)
		}
	}
}

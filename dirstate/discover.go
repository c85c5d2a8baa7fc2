package dirstate

import "github.com/andrewaziz8/P2P-Image-Sharing-System/model"

// PeerSnapshot is one entry of DiscoverPeers' result.
type PeerSnapshot struct {
	Username string
	Addr     string
	Online   bool
	Images   []model.ImageID
}

// DiscoverPeers returns a point-in-time snapshot of online users only,
// per spec.md §4.1 ("returns snapshot of online users"). Per §4.1,
// reads are served from committed state without going through the
// replicated log — there is nothing to make consistent across a read,
// only across the writes that produced the state being read.
func (s *State) DiscoverPeers() []PeerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PeerSnapshot, 0, len(s.Users))
	for _, u := range s.Users {
		if !u.Online {
			continue
		}
		images := make([]model.ImageID, 0, len(u.SharedImages))
		for id := range u.SharedImages {
			images = append(images, id)
		}
		out = append(out, PeerSnapshot{
			Username: u.Username,
			Addr:     u.Addr,
			Online:   true,
			Images:   images,
		})
	}
	return out
}

// applyShareImage records that a username is now sharing id. Not
// itself a wire opcode in spec.md §6, but needed to keep
// DiscoverPeers' image manifests accurate after a worker confirms a
// successful embed; it goes through the same replicated Apply path
// as every other mutation, via CmdShareImage.
func (s *State) applyShareImage(c ShareImageCmd) Result {
	u, ok := s.Users[c.Username]
	if !ok {
		return Result{Status: ResultNotFound}
	}
	if u.SharedImages == nil {
		u.SharedImages = make(map[model.ImageID]struct{})
	}
	u.SharedImages[c.ImageID] = struct{}{}
	return Result{Status: ResultOK}
}

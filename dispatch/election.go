// Package dispatch implements per-request dispatcher election among
// cloud workers, per spec.md §4.2. There is no standing dispatcher
// process: whichever worker accepts a client connection runs an
// election over its peers and forwards the job to the winner.
package dispatch

import (
	"sort"
	"sync"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/health"
)

// Candidate is one worker eligible to take a job, identified by the
// server_id tie-break key spec.md §4.2 mandates. PollAddr and JobAddr
// are allowed to differ (e.g. separate health-poll and job-intake
// ports on the same node); callers that multiplex both concerns on
// one port simply set them equal.
type Candidate struct {
	ServerID int
	PollAddr string
	JobAddr  string
}

// Elect polls every peer candidate concurrently with health.PollDeadline,
// scores self locally (no self-poll, per spec.md §9's resolved Open
// Question), and returns the winning server_id. A peer that doesn't
// answer in time is scored 0 rather than excluded, so a total outage
// still yields a winner rather than an election failure.
func Elect(selfID int, selfBeacon health.Beacon, peers []Candidate) int {
	type scored struct {
		id    int
		score float64
	}

	results := make([]scored, 0, len(peers)+1)
	results = append(results, scored{id: selfID, score: selfBeacon.Score()})

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range peers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			score := 0.0
			if b, err := health.Poll(p.PollAddr, health.PollDeadline); err == nil {
				score = b.Score()
			}
			mu.Lock()
			results = append(results, scored{id: p.ServerID, score: score})
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id < results[j].id
	})
	return results[0].id
}

package dispatch

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/health"
)

// JobDeadline and MaxRetries are the forwarding parameters spec.md
// §4.2 gives a dispatching worker: attempt the elected winner, retry
// on failure, give up after MaxRetries.
const (
	JobDeadline = 30 * time.Second
	MaxRetries  = 2
)

// ErrServiceUnavailable is returned once every winner attempt for a
// job has failed; the caller reports it to the client as such.
var ErrServiceUnavailable = errors.New("dispatch: no worker completed the job within its deadline")

// excludedSelfID/worstBeacon stand in for self once a self-election
// has already failed once: Elect always considers a "self" candidate,
// so to fall through to peers instead of re-electing self forever, we
// hand it an id no real server_id will ever tie-break ahead of and the
// worst possible score.
const excludedSelfID = math.MaxInt

var worstBeacon = health.Beacon{CPULoad: 1, ActiveConnections: health.MaxConn, AvgLatencyMs: health.LatencyMax}

// Forward elects a winner among selfID/peers and runs job against it,
// re-electing among the remaining candidates on failure, until job
// succeeds, MaxRetries is exhausted, or ctx is done. A self-election
// that fails is not retried against self a second time: self is
// excluded from consideration for the remainder of the call, the same
// way a failing peer is removed from remaining.
func Forward(ctx context.Context, selfID int, selfAddr string, selfBeacon health.Beacon, peers []Candidate, job func(ctx context.Context, addr string) error) error {
	remaining := append([]Candidate(nil), peers...)
	selfEligible := true

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if !selfEligible && len(remaining) == 0 {
			return ErrServiceUnavailable
		}

		electID, electBeacon := selfID, selfBeacon
		if !selfEligible {
			electID, electBeacon = excludedSelfID, worstBeacon
		}
		winnerID := Elect(electID, electBeacon, remaining)

		addr := selfAddr
		if winnerID != selfID {
			addr = addrOf(remaining, winnerID)
		}

		jobCtx, cancel := context.WithTimeout(ctx, JobDeadline)
		err := job(jobCtx, addr)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if winnerID == selfID {
			selfEligible = false
		} else {
			remaining = removeCandidate(remaining, winnerID)
		}
	}
	return ErrServiceUnavailable
}

func addrOf(peers []Candidate, id int) string {
	for _, p := range peers {
		if p.ServerID == id {
			return p.JobAddr
		}
	}
	return ""
}

func removeCandidate(peers []Candidate, id int) []Candidate {
	out := make([]Candidate, 0, len(peers))
	for _, p := range peers {
		if p.ServerID != id {
			out = append(out, p)
		}
	}
	return out
}

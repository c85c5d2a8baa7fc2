package dispatch

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/health"
)

func serveOnePoll(t *testing.T, b health.Beacon) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		health.ServeConn(newMetricsWith(b), conn)
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func newMetricsWith(b health.Beacon) *health.LocalMetrics {
	m := health.NewLocalMetrics()
	m.SetCPULoad(b.CPULoad)
	for i := 0; i < b.ActiveConnections; i++ {
		m.BeginJob()
	}
	return m
}

func TestElectPicksHighestScore(t *testing.T) {
	strongAddr := serveOnePoll(t, health.Beacon{CPULoad: 0.0})
	weakAddr := serveOnePoll(t, health.Beacon{CPULoad: 0.9})

	self := health.Beacon{CPULoad: 0.5}
	winner := Elect(1, self, []Candidate{
		{ServerID: 2, PollAddr: strongAddr, JobAddr: strongAddr},
		{ServerID: 3, PollAddr: weakAddr, JobAddr: weakAddr},
	})
	if winner != 2 {
		t.Errorf("want peer 2 (lowest cpu load), got %d", winner)
	}
}

func TestElectTreatsUnreachablePeerAsZero(t *testing.T) {
	self := health.Beacon{CPULoad: 0.99}
	winner := Elect(1, self, []Candidate{
		{ServerID: 2, PollAddr: "127.0.0.1:1", JobAddr: "127.0.0.1:1"}, // nothing listening
	})
	if winner != 1 {
		t.Errorf("want self (peer unreachable scores 0), got %d", winner)
	}
}

func TestElectTieBreaksOnLowestServerID(t *testing.T) {
	self := health.Beacon{CPULoad: 1.0} // score 0.5, same as peer below
	peerAddr := serveOnePoll(t, health.Beacon{CPULoad: 1.0})
	winner := Elect(5, self, []Candidate{{ServerID: 2, PollAddr: peerAddr, JobAddr: peerAddr}})
	if winner != 2 {
		t.Errorf("want lowest server_id (2) on a tie, got %d", winner)
	}
}

var errFake = errors.New("fake job failure")

func TestForwardRetriesRemainingCandidatesOnFailure(t *testing.T) {
	goodAddr := serveOnePoll(t, health.Beacon{CPULoad: 0.0})
	badAddr := serveOnePoll(t, health.Beacon{CPULoad: 0.0})

	var tried []string
	err := Forward(context.Background(), 1, "self:0", health.Beacon{CPULoad: 1.0},
		[]Candidate{{ServerID: 2, PollAddr: badAddr, JobAddr: badAddr}, {ServerID: 3, PollAddr: goodAddr, JobAddr: goodAddr}},
		func(ctx context.Context, addr string) error {
			tried = append(tried, addr)
			if addr == badAddr {
				return errFake
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(tried) != 2 {
		t.Fatalf("expected two attempts, got %v", tried)
	}
}

func TestForwardFallsThroughToPeerAfterSelfFails(t *testing.T) {
	peerAddr := serveOnePoll(t, health.Beacon{CPULoad: 0.9})

	var tried []string
	err := Forward(context.Background(), 1, "self:0", health.Beacon{CPULoad: 0.0}, // self scores highest
		[]Candidate{{ServerID: 2, PollAddr: peerAddr, JobAddr: peerAddr}},
		func(ctx context.Context, addr string) error {
			tried = append(tried, addr)
			if addr == "self:0" {
				return errFake
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(tried) != 2 || tried[0] != "self:0" || tried[1] != peerAddr {
		t.Fatalf("expected self then peer, got %v", tried)
	}
}

func TestForwardExhaustsRetriesToServiceUnavailable(t *testing.T) {
	addr := serveOnePoll(t, health.Beacon{CPULoad: 0.0})
	err := Forward(context.Background(), 1, "self:0", health.Beacon{CPULoad: 1.0},
		[]Candidate{{ServerID: 2, PollAddr: addr, JobAddr: addr}},
		func(ctx context.Context, a string) error { return errFake })
	if err != ErrServiceUnavailable {
		t.Errorf("want ErrServiceUnavailable, got %v", err)
	}
}

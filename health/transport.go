package health

import (
	"fmt"
	"net"
	"time"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/common"
)

// PollDeadline is the per-peer timeout spec.md §4.2 gives dispatcher
// election: a peer that doesn't answer in time is scored 0 rather
// than blocking the election.
const PollDeadline = 200 * time.Millisecond

// pollRequest is the sole message on a worker's health-poll channel.
// It carries nothing; the reply is the peer's Beacon.
type pollRequest struct {
	Kind string
}

// Poll dials addr and asks for its current Beacon, honoring deadline.
// Any error, including a timeout, is the caller's cue to score this
// peer 0 rather than exclude it from the election outright.
func Poll(addr string, deadline time.Duration) (Beacon, error) {
	conn, err := net.DialTimeout("tcp", addr, deadline)
	if err != nil {
		return Beacon{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(deadline))

	if err := common.Send(conn, pollRequest{Kind: "health_poll"}); err != nil {
		return Beacon{}, err
	}
	var b Beacon
	if err := common.Recv(conn, &b); err != nil {
		return Beacon{}, err
	}
	return b, nil
}

// ServeConn answers one inbound poll connection with m's current
// snapshot. Called for each connection accepted on the cloud worker's
// dedicated health-poll listener.
func ServeConn(m *LocalMetrics, conn net.Conn) error {
	var req pollRequest
	if err := common.Recv(conn, &req); err != nil {
		return err
	}
	if req.Kind != "health_poll" {
		return fmt.Errorf("health: unknown poll request kind %q", req.Kind)
	}
	return common.Send(conn, m.Snapshot())
}

package raftlog

import (
	"fmt"
	"net"
	"time"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/common"
)

// Transport sends the two cluster RPCs to a numbered peer. Node never
// dials directly; this indirection is what lets tests substitute an
// in-memory transport instead of real sockets.
type Transport interface {
	SendAppendEntries(peerID int, args AppendEntriesArgs) (AppendEntriesReply, error)
	SendRequestVote(peerID int, args RequestVoteArgs) (RequestVoteReply, error)
}

// clusterEnvelope tags an inbound cluster-protocol frame so a single
// listener socket can dispatch to either RPC handler; it mirrors the
// wire package's opcode-prefixed frames but stays JSON since these
// are internal cluster messages, not the client-facing wire format.
type clusterEnvelope struct {
	Kind string // "append_entries" | "request_vote"
	AE   *AppendEntriesArgs `json:",omitempty"`
	RV   *RequestVoteArgs   `json:",omitempty"`
}

type clusterReply struct {
	AE *AppendEntriesReply `json:",omitempty"`
	RV *RequestVoteReply   `json:",omitempty"`
}

// TCPTransport dials peers fresh per RPC. Raft RPCs are small and
// infrequent enough (heartbeats every 50ms) that connection reuse
// isn't worth the added complexity.
type TCPTransport struct {
	PeerAddrs map[int]string
	Dial      time.Duration
	Deadline  time.Duration
}

func NewTCPTransport(peerAddrs map[int]string) *TCPTransport {
	return &TCPTransport{
		PeerAddrs: peerAddrs,
		Dial:      100 * time.Millisecond,
		Deadline:  200 * time.Millisecond,
	}
}

func (t *TCPTransport) call(peerID int, env clusterEnvelope) (clusterReply, error) {
	addr, ok := t.PeerAddrs[peerID]
	if !ok {
		return clusterReply{}, fmt.Errorf("raftlog: no address for peer %d", peerID)
	}
	conn, err := net.DialTimeout("tcp", addr, t.Dial)
	if err != nil {
		return clusterReply{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(t.Deadline))

	if err := common.Send(conn, env); err != nil {
		return clusterReply{}, err
	}
	var reply clusterReply
	if err := common.Recv(conn, &reply); err != nil {
		return clusterReply{}, err
	}
	return reply, nil
}

func (t *TCPTransport) SendAppendEntries(peerID int, args AppendEntriesArgs) (AppendEntriesReply, error) {
	reply, err := t.call(peerID, clusterEnvelope{Kind: "append_entries", AE: &args})
	if err != nil || reply.AE == nil {
		return AppendEntriesReply{}, err
	}
	return *reply.AE, nil
}

func (t *TCPTransport) SendRequestVote(peerID int, args RequestVoteArgs) (RequestVoteReply, error) {
	reply, err := t.call(peerID, clusterEnvelope{Kind: "request_vote", RV: &args})
	if err != nil || reply.RV == nil {
		return RequestVoteReply{}, err
	}
	return *reply.RV, nil
}

// ServeConn handles one inbound cluster-protocol connection, decoding
// the envelope and dispatching to n's RPC handlers. Called for each
// connection accepted on the directory server's cluster-port listener.
func ServeConn(n *Node, conn net.Conn) error {
	var env clusterEnvelope
	if err := common.Recv(conn, &env); err != nil {
		return err
	}
	var reply clusterReply
	switch env.Kind {
	case "append_entries":
		if env.AE == nil {
			return fmt.Errorf("raftlog: append_entries envelope missing body")
		}
		r := n.HandleAppendEntries(*env.AE)
		reply.AE = &r
	case "request_vote":
		if env.RV == nil {
			return fmt.Errorf("raftlog: request_vote envelope missing body")
		}
		r := n.HandleRequestVote(*env.RV)
		reply.RV = &r
	default:
		return fmt.Errorf("raftlog: unknown cluster envelope kind %q", env.Kind)
	}
	return common.Send(conn, reply)
}

package raftlog

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const (
	heartbeatInterval  = 50 * time.Millisecond
	electionTimeoutMin = 150 * time.Millisecond
	electionTimeoutMax = 300 * time.Millisecond
	snapshotInterval   = 2 * time.Second
)

// StateMachine is the interface a Node's apply loop drives. dirstate
// implements this; raftlog never inspects command bytes itself.
type StateMachine interface {
	// Apply executes a committed command and returns its result.
	Apply(command []byte) []byte
	// Snapshot returns a serialized copy of the current state.
	Snapshot() ([]byte, error)
	// Restore replaces the current state with a previously saved one.
	// Called once at startup with the last snapshot's bytes (possibly
	// empty, for a brand-new node).
	Restore(data []byte) error
}

// Config configures a new Node.
type Config struct {
	ID        int
	Peers     []int // other cluster member IDs, excluding this node
	Transport Transport
	DataDir   string
	SM        StateMachine
	Logger    *zap.Logger
}

// Node is one member of the replicated cluster.
type Node struct {
	mu sync.Mutex

	id      int
	peers   []int
	tr      Transport
	dataDir string
	sm      StateMachine
	log     *Log
	logger  *zap.Logger

	currentTerm uint64
	votedFor    int
	role        Role
	leaderID    int

	commitIndex uint64
	lastApplied uint64

	nextIndex  map[int]uint64
	matchIndex map[int]uint64

	resetElection chan struct{}
	stopCh        chan struct{}

	pendingMu sync.Mutex
	pending   map[uint64]chan []byte
}

// NewNode loads any existing snapshot and log from dataDir, restores
// the state machine, and returns a Node ready to Run as a follower.
func NewNode(cfg Config) (*Node, error) {
	logPath := filepath.Join(cfg.DataDir, "log.bin")
	l, err := OpenLog(logPath)
	if err != nil {
		return nil, err
	}

	snapPath := filepath.Join(cfg.DataDir, "state.json")
	snap, err := LoadSnapshot(snapPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.SM.Restore(snap.StateMachine); err != nil {
		return nil, err
	}

	n := &Node{
		id:            cfg.ID,
		peers:         cfg.Peers,
		tr:            cfg.Transport,
		dataDir:       cfg.DataDir,
		sm:            cfg.SM,
		log:           l,
		logger:        cfg.Logger,
		currentTerm:   snap.Term,
		votedFor:      snap.VotedFor,
		role:          Follower,
		leaderID:      -1,
		commitIndex:   snap.LastAppliedIdx,
		lastApplied:   snap.LastAppliedIdx,
		nextIndex:     make(map[int]uint64),
		matchIndex:    make(map[int]uint64),
		resetElection: make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		pending:       make(map[uint64]chan []byte),
	}
	return n, nil
}

func randomElectionTimeout() time.Duration {
	span := electionTimeoutMax - electionTimeoutMin
	return electionTimeoutMin + time.Duration(rand.Int63n(int64(span)))
}

// Run drives the node's role loop until ctx is cancelled or Stop is
// called. It should be launched in its own goroutine.
func (n *Node) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		default:
		}

		switch n.currentRole() {
		case Follower, Candidate:
			n.runElectionCycle(ctx)
		case Leader:
			n.runLeader(ctx)
		}
	}
}

// Stop halts the node's Run loop.
func (n *Node) Stop() {
	close(n.stopCh)
}

func (n *Node) currentRole() Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

func (n *Node) runElectionCycle(ctx context.Context) {
	timeout := randomElectionTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-n.stopCh:
		return
	case <-n.resetElection:
		return // heartbeat or vote reset the clock; loop again
	case <-timer.C:
		n.startElection(ctx)
	}
}

func (n *Node) startElection(ctx context.Context) {
	n.mu.Lock()
	n.currentTerm++
	n.role = Candidate
	n.votedFor = n.id
	term := n.currentTerm
	lastIdx, lastTerm := n.log.LastIndexTerm()
	n.mu.Unlock()

	if n.logger != nil {
		n.logger.Info("starting election", zap.Int("server_id", n.id), zap.Uint64("term", term))
	}

	votes := 1 // vote for self
	var voteMu sync.Mutex
	var wg sync.WaitGroup

	for _, peer := range n.peers {
		wg.Add(1)
		go func(peer int) {
			defer wg.Done()
			reply, err := n.tr.SendRequestVote(peer, RequestVoteArgs{
				Term:         term,
				CandidateID:  n.id,
				LastLogIndex: lastIdx,
				LastLogTerm:  lastTerm,
			})
			if err != nil {
				return
			}
			n.observeTerm(reply.Term)
			if reply.VoteGranted {
				voteMu.Lock()
				votes++
				voteMu.Unlock()
			}
		}(peer)
	}
	wg.Wait()

	majority := len(n.peers)/2 + 1
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.role != Candidate || n.currentTerm != term {
		return // term moved on while we were canvassing
	}
	if votes >= majority {
		n.role = Leader
		n.leaderID = n.id
		for _, p := range n.peers {
			n.nextIndex[p] = n.log.Len() + 1
			n.matchIndex[p] = 0
		}
		if n.logger != nil {
			n.logger.Info("elected leader", zap.Int("server_id", n.id), zap.Uint64("term", term))
		}
	}
	// A split vote leaves us Candidate; the next election cycle will
	// re-randomize the timeout and try again.
}

// observeTerm steps down to follower if term is higher than ours.
func (n *Node) observeTerm(term uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if term > n.currentTerm {
		n.currentTerm = term
		n.votedFor = -1
		n.role = Follower
		n.leaderID = -1
	}
}

func (n *Node) runLeader(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	snapTicker := time.NewTicker(snapshotInterval)
	defer snapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		case <-ticker.C:
			if n.currentRole() != Leader {
				return
			}
			n.replicateToAll()
		case <-snapTicker.C:
			if n.currentRole() != Leader {
				return
			}
			n.takeSnapshot()
		}
	}
}

func (n *Node) replicateToAll() {
	n.mu.Lock()
	term := n.currentTerm
	peers := append([]int(nil), n.peers...)
	n.mu.Unlock()

	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(peer int) {
			defer wg.Done()
			n.replicateTo(peer, term)
		}(peer)
	}
	wg.Wait()
	n.advanceCommitIndex()
}

func (n *Node) replicateTo(peer int, term uint64) {
	n.mu.Lock()
	if n.role != Leader || n.currentTerm != term {
		n.mu.Unlock()
		return
	}
	next := n.nextIndex[peer]
	if next == 0 {
		next = 1
	}
	prevIdx := next - 1
	prevTerm := uint64(0)
	if e, ok := n.log.At(prevIdx); ok {
		prevTerm = e.Term
	}
	entries := n.log.Entries(next)
	leaderCommit := n.commitIndex
	n.mu.Unlock()

	reply, err := n.tr.SendAppendEntries(peer, AppendEntriesArgs{
		Term:         term,
		LeaderID:     n.id,
		PrevLogIndex: prevIdx,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: leaderCommit,
	})
	if err != nil {
		return
	}
	n.observeTerm(reply.Term)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.role != Leader || n.currentTerm != term {
		return
	}
	if reply.Success {
		n.matchIndex[peer] = prevIdx + uint64(len(entries))
		n.nextIndex[peer] = n.matchIndex[peer] + 1
	} else if n.nextIndex[peer] > 1 {
		if reply.ConflictIndex > 0 {
			n.nextIndex[peer] = reply.ConflictIndex
		} else {
			n.nextIndex[peer]--
		}
	}
}

// advanceCommitIndex moves commitIndex to the highest index a
// majority (including self) has replicated, then applies newly
// committed entries.
func (n *Node) advanceCommitIndex() {
	n.mu.Lock()
	if n.role != Leader {
		n.mu.Unlock()
		return
	}
	last := n.log.Len()
	majority := len(n.peers)/2 + 1
	newCommit := n.commitIndex
	for idx := last; idx > n.commitIndex; idx-- {
		count := 1 // self
		for _, p := range n.peers {
			if n.matchIndex[p] >= idx {
				count++
			}
		}
		if e, ok := n.log.At(idx); ok && count >= majority && e.Term == n.currentTerm {
			newCommit = idx
			break
		}
	}
	n.commitIndex = newCommit
	n.mu.Unlock()
	n.applyCommitted()
}

func (n *Node) applyCommitted() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for n.lastApplied < n.commitIndex {
		idx := n.lastApplied + 1
		entry, ok := n.log.At(idx)
		if !ok {
			break
		}
		result := n.sm.Apply(entry.Command)
		n.lastApplied = idx

		n.pendingMu.Lock()
		if ch, ok := n.pending[idx]; ok {
			ch <- result
			delete(n.pending, idx)
		}
		n.pendingMu.Unlock()
	}
}

func (n *Node) takeSnapshot() {
	n.mu.Lock()
	term, voted, applied := n.currentTerm, n.votedFor, n.lastApplied
	n.mu.Unlock()

	smBytes, err := n.sm.Snapshot()
	if err != nil {
		if n.logger != nil {
			n.logger.Error("state machine snapshot failed", zap.Error(err))
		}
		return
	}
	err = SaveSnapshot(filepath.Join(n.dataDir, "state.json"), SnapshotFile{
		Term:           term,
		VotedFor:       voted,
		LastAppliedIdx: applied,
		StateMachine:   smBytes,
	})
	if n.logger == nil {
		return
	}
	if err != nil {
		n.logger.Error("snapshot persistence failed, treating as fatal", zap.Error(err))
		return
	}
	n.logger.Debug("snapshot written", zap.String("size", humanize.Bytes(uint64(len(smBytes)))), zap.Uint64("last_applied", applied))
}

// Propose appends command to the leader's log and blocks until it is
// committed and applied, returning the state machine's result.
// Non-leaders return ErrNotLeader immediately; use LeaderID to
// redirect the caller.
func (n *Node) Propose(ctx context.Context, command []byte) ([]byte, error) {
	n.mu.Lock()
	if n.role != Leader {
		n.mu.Unlock()
		return nil, ErrNotLeader
	}
	term := n.currentTerm
	index, err := n.log.Append(term, command)
	if err != nil {
		n.mu.Unlock()
		return nil, err
	}
	ch := make(chan []byte, 1)
	n.pendingMu.Lock()
	n.pending[index] = ch
	n.pendingMu.Unlock()
	n.mu.Unlock()

	// Kick a replication round immediately rather than waiting for the
	// next heartbeat tick, so single writes commit promptly.
	go n.replicateToAll()

	select {
	case result := <-ch:
		return result, nil
	case <-ctx.Done():
		n.pendingMu.Lock()
		delete(n.pending, index)
		n.pendingMu.Unlock()
		return nil, ErrQuorumLost
	}
}

// HandleRequestVote implements the RequestVote RPC contract of
// spec.md §4.1.
func (n *Node) HandleRequestVote(args RequestVoteArgs) RequestVoteReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term > n.currentTerm {
		n.currentTerm = args.Term
		n.votedFor = -1
		n.role = Follower
		n.leaderID = -1
	}
	if args.Term < n.currentTerm {
		return RequestVoteReply{Term: n.currentTerm, VoteGranted: false}
	}

	lastIdx, lastTerm := n.log.LastIndexTerm()
	upToDate := args.LastLogTerm > lastTerm ||
		(args.LastLogTerm == lastTerm && args.LastLogIndex >= lastIdx)

	if (n.votedFor == -1 || n.votedFor == args.CandidateID) && upToDate {
		n.votedFor = args.CandidateID
		n.signalElectionReset()
		return RequestVoteReply{Term: n.currentTerm, VoteGranted: true}
	}
	return RequestVoteReply{Term: n.currentTerm, VoteGranted: false}
}

// HandleAppendEntries implements the AppendEntries RPC contract,
// including heartbeats (empty Entries).
func (n *Node) HandleAppendEntries(args AppendEntriesArgs) AppendEntriesReply {
	n.mu.Lock()

	if args.Term > n.currentTerm {
		n.currentTerm = args.Term
		n.votedFor = -1
	}
	if args.Term < n.currentTerm {
		term := n.currentTerm
		n.mu.Unlock()
		return AppendEntriesReply{Term: term, Success: false}
	}

	n.role = Follower
	n.leaderID = args.LeaderID
	n.signalElectionReset()

	if args.PrevLogIndex > 0 {
		entry, ok := n.log.At(args.PrevLogIndex)
		if !ok || entry.Term != args.PrevLogTerm {
			conflict := args.PrevLogIndex
			if ok {
				conflict = entry.Index
			}
			term := n.currentTerm
			n.mu.Unlock()
			return AppendEntriesReply{Term: term, Success: false, ConflictIndex: conflict}
		}
	}

	logRef := n.log
	leaderCommit := args.LeaderCommit
	term := n.currentTerm
	n.mu.Unlock()

	if len(args.Entries) > 0 {
		if err := logRef.AppendReplicated(args.PrevLogIndex+1, args.Entries); err != nil {
			return AppendEntriesReply{Term: term, Success: false}
		}
	}

	n.mu.Lock()
	if leaderCommit > n.commitIndex {
		last := n.log.Len()
		if leaderCommit < last {
			n.commitIndex = leaderCommit
		} else {
			n.commitIndex = last
		}
	}
	n.mu.Unlock()
	n.applyCommitted()

	return AppendEntriesReply{Term: term, Success: true}
}

func (n *Node) signalElectionReset() {
	select {
	case n.resetElection <- struct{}{}:
	default:
	}
}

// IsLeader reports whether this node currently believes itself leader.
func (n *Node) IsLeader() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role == Leader
}

// LeaderID returns the last known leader's server ID, or -1 if none
// is known.
func (n *Node) LeaderID() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaderID
}

// Term returns the node's current term.
func (n *Node) Term() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentTerm
}

package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/dirstate"
	"github.com/andrewaziz8/P2P-Image-Sharing-System/raftlog"
)

// maxConnections is the per-node concurrent connection cap of
// spec.md §5; beyond it, new connections are rejected with
// wire.StatusBusy.
const maxConnections = 1024

// Server wires the wire-protocol listener, the cluster-protocol
// listener, the Raft node, and the diagnostic HTTP mux together.
type Server struct {
	cfg        Config
	peerAddrs  map[int]string // server_id -> client-facing address
	sm         *dirstate.State
	node       *raftlog.Node
	logger     *zap.Logger
	connTokens chan struct{}
}

// NewServer constructs a Server without starting any listeners.
func NewServer(cfg Config, logger *zap.Logger) (*Server, error) {
	peerAddrs := assignPeerIDs(cfg.ServerID, cfg.PeerAddrs)
	clusterAddrs, err := clusterAddrsOf(peerAddrs)
	if err != nil {
		return nil, err
	}

	sm := dirstate.New()
	peerIDs := make([]int, 0, len(peerAddrs))
	for id := range peerAddrs {
		peerIDs = append(peerIDs, id)
	}

	node, err := raftlog.NewNode(raftlog.Config{
		ID:        cfg.ServerID,
		Peers:     peerIDs,
		Transport: raftlog.NewTCPTransport(clusterAddrs),
		DataDir:   cfg.DataDir,
		SM:        sm,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:        cfg,
		peerAddrs:  peerAddrs,
		sm:         sm,
		node:       node,
		logger:     logger,
		connTokens: make(chan struct{}, maxConnections),
	}, nil
}

// Run starts the Raft node and both listeners, blocking until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.node.Run(ctx)
	go s.runAbsencePruner(ctx)

	clientLn, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return err
	}
	defer clientLn.Close()

	clusterLn, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(s.cfg.ClusterPort())))
	if err != nil {
		return err
	}
	defer clusterLn.Close()

	go s.acceptClusterConns(ctx, clusterLn)
	go s.serveDiagnostics(ctx)

	s.logger.Info("directory node listening",
		zap.Int("server_id", s.cfg.ServerID),
		zap.Int("client_port", s.cfg.Port),
		zap.Int("cluster_port", s.cfg.ClusterPort()))

	go func() {
		<-ctx.Done()
		clientLn.Close()
	}()

	for {
		conn, err := clientLn.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleClientConn(ctx, conn)
	}
}

func (s *Server) acceptClusterConns(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			raftlog.ServeConn(s.node, conn)
		}()
	}
}

func (s *Server) runAbsencePruner(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sm.PruneAbsent(time.Now(), dirstate.AbsenceThreshold)
		}
	}
}

func (s *Server) serveDiagnostics(ctx context.Context) {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.HandleFunc("/debug/vars", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"server_id":   s.cfg.ServerID,
			"role":        s.node.IsLeader(),
			"term":        s.node.Term(),
			"leader_id":   s.node.LeaderID(),
			"connections": len(s.connTokens),
		})
	})
	srv := &http.Server{Addr: net.JoinHostPort("", strconv.Itoa(s.cfg.Port+2000)), Handler: r}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Warn("diagnostic mux stopped", zap.Error(err))
	}
}

// leaderHintAddr returns the client-facing address of the last known
// leader, or the empty string if unknown or it's this node.
func (s *Server) leaderHintAddr() string {
	id := s.node.LeaderID()
	if id == s.cfg.ServerID || id < 0 {
		return ""
	}
	return s.peerAddrs[id]
}

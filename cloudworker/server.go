package main

import (
	"context"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/dispatch"
	"github.com/andrewaziz8/P2P-Image-Sharing-System/health"
	"github.com/andrewaziz8/P2P-Image-Sharing-System/localindex"
)

// diagnosticPortOffset places the /healthz and /metrics mux on its
// own port, same convention as directorysrv's diagnostic mux.
const diagnosticPortOffset = 2000

// Server is one cloud_worker node: job intake, health broadcast, and
// the local image index backing its own encrypted-carrier bookkeeping.
type Server struct {
	cfg     Config
	peers   []dispatch.Candidate
	metrics *health.LocalMetrics
	gauges  *health.Gauges
	reg     *prometheus.Registry
	index   *localindex.Index
	logger  *zap.Logger
}

func NewServer(cfg Config, logger *zap.Logger) (*Server, error) {
	peerIDs := assignPeerIDs(cfg.ServerID, cfg.PeerAddrs)
	candidates := make([]dispatch.Candidate, 0, len(peerIDs))
	for id, jobAddr := range peerIDs {
		pollAddr, err := healthAddrOf(jobAddr)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, dispatch.Candidate{ServerID: id, PollAddr: pollAddr, JobAddr: jobAddr})
	}

	idx, err := localindex.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	return &Server{
		cfg:     cfg,
		peers:   candidates,
		metrics: health.NewLocalMetrics(),
		gauges:  health.NewGauges(reg),
		reg:     reg,
		index:   idx,
		logger:  logger,
	}, nil
}

// Run starts the job listener, the health-poll listener, the 1s
// load-sampling loop, and the diagnostic mux; it blocks until ctx is
// done or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	jobLn, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return err
	}
	defer jobLn.Close()

	healthLn, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(s.cfg.HealthPort())))
	if err != nil {
		return err
	}
	defer healthLn.Close()

	defer s.index.Close()

	go s.acceptHealthConns(ctx, healthLn)
	go s.sampleLoadLoop(ctx)
	go s.serveDiagnostics(ctx)
	go s.rescanLoop(ctx)

	go func() {
		<-ctx.Done()
		jobLn.Close()
	}()
	for {
		conn, err := jobLn.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.serveJobConn(ctx, conn)
	}
}

func (s *Server) acceptHealthConns(ctx context.Context, ln net.Listener) {
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
			conn.SetDeadline(time.Now().Add(health.PollDeadline))
			if err := health.ServeConn(s.metrics, conn); err != nil {
				s.logger.Debug("health poll error", zap.Error(err))
			}
		}()
	}
}

// sampleLoadLoop refreshes this worker's own cpu_load once per
// second. There is no OS load-average library in the retrieval pack,
// so load is approximated from the active-job fraction against a
// per-core budget rather than sampled from the kernel.
func (s *Server) sampleLoadLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	budget := float64(runtime.NumCPU() * 4)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b := s.metrics.Snapshot()
			load := float64(b.ActiveConnections) / budget
			if load > 1 {
				load = 1
			}
			s.metrics.SetCPULoad(load)
			s.gauges.Update(s.metrics.Snapshot())
		}
	}
}

// rescanInterval controls how often the local image index is
// reconciled against ImageDir, per spec.md §5 ("rebuilt on directory
// scan"). persistEmbed already indexes each image as it's produced;
// this catches anything that landed on disk without going through it
// and drops entries for files that are gone.
const rescanInterval = 30 * time.Second

func (s *Server) rescanLoop(ctx context.Context) {
	rescan := func() {
		if err := localindex.Rescan(s.index, s.cfg.ImageDir, "", fingerprintCarrier); err != nil {
			s.logger.Warn("local index rescan failed", zap.Error(err))
		}
	}
	rescan()
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rescan()
		}
	}
}

func (s *Server) serveDiagnostics(ctx context.Context) {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: net.JoinHostPort("", strconv.Itoa(s.cfg.Port+diagnosticPortOffset)), Handler: r}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	srv.ListenAndServe()
}

// dispatchJob elects a worker (possibly self) for req and relays the
// forwarded result, retrying among the remaining candidates per
// spec.md §4.2's forwarding contract.
func (s *Server) dispatchJob(ctx context.Context, req encryptRequest) encryptResponse {
	selfAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.cfg.Port))
	var result encryptResponse
	err := dispatch.Forward(ctx, s.cfg.ServerID, selfAddr, s.metrics.Snapshot(), s.peers,
		func(jobCtx context.Context, addr string) error {
			resp, err := sendForwardedJob(jobCtx, addr, req)
			if err != nil {
				return err
			}
			result = resp
			return nil
		})
	if err != nil {
		return encryptResponse{Status: jobServiceUnavailable}
	}
	return result
}

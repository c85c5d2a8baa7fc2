package main

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/dirstate"
	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
	"github.com/andrewaziz8/P2P-Image-Sharing-System/raftlog"
	"github.com/andrewaziz8/P2P-Image-Sharing-System/wire"
)

// proposeDeadline bounds how long a client mutation waits for
// commit, matching the RPC deadline convention of spec.md §5.
const proposeDeadline = 5 * time.Second

func (s *Server) handleClientConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	select {
	case s.connTokens <- struct{}{}:
		defer func() { <-s.connTokens }()
	default:
		// Over the connection cap (spec.md §5): read whichever opcode
		// the client sent and answer it with ServerBusy so the caller
		// gets a typed response instead of a bare disconnect.
		conn.SetDeadline(time.Now().Add(time.Second))
		if op, _, err := wire.ReadMessage(conn); err == nil {
			wire.WriteMessage(conn, op, []byte{byte(wire.StatusBusy)})
		}
		return
	}

	for {
		conn.SetDeadline(time.Now().Add(30 * time.Second))
		op, payload, err := wire.ReadMessage(conn)
		if err != nil {
			return
		}
		if err := s.dispatch(ctx, conn, op, payload); err != nil {
			s.logger.Debug("client connection closing on dispatch error", zap.Error(err))
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn, op wire.Opcode, payload []byte) error {
	switch op {
	case wire.OpRegister:
		return s.handleRegister(ctx, conn, payload)
	case wire.OpUnregister:
		return s.handleUnregister(ctx, conn, payload)
	case wire.OpHeartbeat:
		return s.handleHeartbeat(ctx, conn, payload)
	case wire.OpDiscoverPeers:
		return s.handleDiscoverPeers(conn)
	case wire.OpLeaveRequest:
		return s.handleLeaveRequest(ctx, conn, payload)
	case wire.OpFetchInbox:
		return s.handleFetchInbox(ctx, conn, payload)
	case wire.OpRespond:
		return s.handleRespond(ctx, conn, payload)
	case wire.OpPostPermissionUpdate:
		return s.handlePostPermissionUpdate(ctx, conn, payload)
	case wire.OpShareImage:
		return s.handleShareImage(ctx, conn, payload)
	default:
		return wire.WriteMessage(conn, op, []byte{byte(wire.StatusInvalid)})
	}
}

// propose marshals cmd, submits it to the Raft node, and returns the
// decoded dirstate.Result. If this node isn't leader it returns
// (Result{}, false, leaderHint) so callers can reply NotLeader.
func (s *Server) propose(ctx context.Context, cmd dirstate.Command) (dirstate.Result, bool, wire.PeerAddr) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return dirstate.Result{Status: dirstate.ResultInvalid}, true, wire.PeerAddr{}
	}
	proposeCtx, cancel := context.WithTimeout(ctx, proposeDeadline)
	defer cancel()

	out, err := s.node.Propose(proposeCtx, data)
	if err == raftlog.ErrNotLeader {
		hint, _ := parsePeerAddr(s.leaderHintAddr())
		return dirstate.Result{}, false, hint
	}
	if err != nil {
		// Propose failing for any other reason is quorum loss (the
		// deadline in proposeCtx expired waiting for a majority): a
		// transient condition per spec.md §7, answered with ServerBusy
		// so the client backs off and retries, not Invalid, which is
		// surfaced to the user verbatim with no retry.
		return dirstate.Result{Status: dirstate.ResultBusy}, true, wire.PeerAddr{}
	}
	var res dirstate.Result
	if err := json.Unmarshal(out, &res); err != nil {
		return dirstate.Result{Status: dirstate.ResultInvalid}, true, wire.PeerAddr{}
	}
	return res, true, wire.PeerAddr{}
}

func toWireStatus(s string) wire.Status {
	switch s {
	case dirstate.ResultOK:
		return wire.StatusOK
	case dirstate.ResultNotFound:
		return wire.StatusNotFound
	case dirstate.ResultConflict:
		return wire.StatusConflict
	case dirstate.ResultBusy:
		return wire.StatusBusy
	default:
		return wire.StatusInvalid
	}
}

func parsePeerAddr(addr string) (wire.PeerAddr, error) {
	var pa wire.PeerAddr
	if addr == "" {
		return pa, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return pa, err
	}
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return pa, nil
	}
	copy(pa.IP4[:], ip)
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return pa, err
	}
	pa.Port = uint16(port)
	return pa, nil
}

func (s *Server) handleRegister(ctx context.Context, conn net.Conn, payload []byte) error {
	req, err := wire.DecodeRegisterRequest(payload)
	if err != nil {
		return wire.WriteMessage(conn, wire.OpRegister, wire.EncodeRegisterResponse(wire.RegisterResponse{Status: wire.StatusInvalid}))
	}
	res, isLeader, hint := s.propose(ctx, dirstate.Command{
		Type:     dirstate.CmdRegister,
		Register: &dirstate.RegisterCmd{Username: req.Username, Addr: req.Addr.String()},
	})
	if !isLeader {
		return wire.WriteMessage(conn, wire.OpRegister, wire.EncodeRegisterResponse(wire.RegisterResponse{Status: wire.StatusNotLeader, LeaderHint: hint}))
	}
	return wire.WriteMessage(conn, wire.OpRegister, wire.EncodeRegisterResponse(wire.RegisterResponse{Status: toWireStatus(res.Status)}))
}

func (s *Server) handleUnregister(ctx context.Context, conn net.Conn, payload []byte) error {
	req, err := wire.DecodeUnregisterRequest(payload)
	if err != nil {
		return wire.WriteMessage(conn, wire.OpUnregister, wire.EncodeStatusOnlyResponse(wire.StatusOnlyResponse{Status: wire.StatusInvalid}))
	}
	res, isLeader, _ := s.propose(ctx, dirstate.Command{
		Type:       dirstate.CmdUnregister,
		Unregister: &dirstate.UnregisterCmd{Username: req.Username},
	})
	if !isLeader {
		return wire.WriteMessage(conn, wire.OpUnregister, wire.EncodeStatusOnlyResponse(wire.StatusOnlyResponse{Status: wire.StatusNotLeader}))
	}
	return wire.WriteMessage(conn, wire.OpUnregister, wire.EncodeStatusOnlyResponse(wire.StatusOnlyResponse{Status: toWireStatus(res.Status)}))
}

func (s *Server) handleHeartbeat(ctx context.Context, conn net.Conn, payload []byte) error {
	req, err := wire.DecodeHeartbeatRequest(payload)
	if err != nil {
		return wire.WriteMessage(conn, wire.OpHeartbeat, wire.EncodeHeartbeatResponse(wire.HeartbeatResponse{Status: wire.StatusInvalid}))
	}
	res, isLeader, _ := s.propose(ctx, dirstate.Command{
		Type:      dirstate.CmdHeartbeat,
		Heartbeat: &dirstate.HeartbeatCmd{Username: req.Username},
	})
	if !isLeader {
		return wire.WriteMessage(conn, wire.OpHeartbeat, wire.EncodeHeartbeatResponse(wire.HeartbeatResponse{Status: wire.StatusNotLeader}))
	}
	return wire.WriteMessage(conn, wire.OpHeartbeat, wire.EncodeHeartbeatResponse(wire.HeartbeatResponse{
		Status:             toWireStatus(res.Status),
		PendingUpdateCount: res.PendingUpdateCount,
	}))
}

func (s *Server) handleDiscoverPeers(conn net.Conn) error {
	if !s.node.IsLeader() {
		hint, _ := parsePeerAddr(s.leaderHintAddr())
		return wire.WriteMessage(conn, wire.OpDiscoverPeers, mustEncodeDiscover(wire.DiscoverPeersResponse{Status: wire.StatusNotLeader}, hint))
	}
	snapshot := s.sm.DiscoverPeers()
	peers := make([]wire.PeerInfo, 0, len(snapshot))
	for _, p := range snapshot {
		addr, _ := parsePeerAddr(p.Addr)
		peers = append(peers, wire.PeerInfo{Username: p.Username, Addr: addr, Online: p.Online, Images: p.Images})
	}
	data, err := wire.EncodeDiscoverPeersResponse(wire.DiscoverPeersResponse{Status: wire.StatusOK, Peers: peers})
	if err != nil {
		return err
	}
	return wire.WriteMessage(conn, wire.OpDiscoverPeers, data)
}

func mustEncodeDiscover(resp wire.DiscoverPeersResponse, _ wire.PeerAddr) []byte {
	data, _ := wire.EncodeDiscoverPeersResponse(resp)
	return data
}

func (s *Server) handleLeaveRequest(ctx context.Context, conn net.Conn, payload []byte) error {
	req, err := wire.DecodeLeaveRequestRequest(payload)
	if err != nil {
		return wire.WriteMessage(conn, wire.OpLeaveRequest, wire.EncodeLeaveRequestResponse(wire.LeaveRequestResponse{Status: wire.StatusInvalid}))
	}
	res, isLeader, _ := s.propose(ctx, dirstate.Command{
		Type: dirstate.CmdLeaveRequest,
		LeaveRequest: &dirstate.LeaveRequestCmd{
			FromUser: req.FromUser, ToUser: req.ToUser, ImageID: req.ImageID, RequestedViews: req.RequestedViews,
		},
	})
	if !isLeader {
		return wire.WriteMessage(conn, wire.OpLeaveRequest, wire.EncodeLeaveRequestResponse(wire.LeaveRequestResponse{Status: wire.StatusNotLeader}))
	}
	return wire.WriteMessage(conn, wire.OpLeaveRequest, wire.EncodeLeaveRequestResponse(wire.LeaveRequestResponse{
		Status: toWireStatus(res.Status), RequestID: res.RequestID,
	}))
}

func (s *Server) handleFetchInbox(ctx context.Context, conn net.Conn, payload []byte) error {
	req, err := wire.DecodeFetchInboxRequest(payload)
	if err != nil {
		return wire.WriteMessage(conn, wire.OpFetchInbox, mustEncodeFetchInbox(wire.FetchInboxResponse{Status: wire.StatusInvalid}))
	}
	res, isLeader, _ := s.propose(ctx, dirstate.Command{
		Type:       dirstate.CmdFetchInbox,
		FetchInbox: &dirstate.FetchInboxCmd{Username: req.Username},
	})
	if !isLeader {
		return wire.WriteMessage(conn, wire.OpFetchInbox, mustEncodeFetchInbox(wire.FetchInboxResponse{Status: wire.StatusNotLeader}))
	}
	requests := res.Requests
	if requests == nil {
		requests = []model.PendingRequest{}
	}
	updates := res.Updates
	if updates == nil {
		updates = []model.PendingPermissionUpdate{}
	}
	return wire.WriteMessage(conn, wire.OpFetchInbox, mustEncodeFetchInbox(wire.FetchInboxResponse{
		Status: toWireStatus(res.Status), Requests: requests, PermissionPosts: updates,
	}))
}

func mustEncodeFetchInbox(resp wire.FetchInboxResponse) []byte {
	data, _ := wire.EncodeFetchInboxResponse(resp)
	return data
}

func (s *Server) handleRespond(ctx context.Context, conn net.Conn, payload []byte) error {
	req, err := wire.DecodeRespondRequest(payload)
	if err != nil {
		return wire.WriteMessage(conn, wire.OpRespond, wire.EncodeStatusOnlyResponse(wire.StatusOnlyResponse{Status: wire.StatusInvalid}))
	}
	res, isLeader, _ := s.propose(ctx, dirstate.Command{
		Type:    dirstate.CmdRespond,
		Respond: &dirstate.RespondCmd{RequestID: req.RequestID, Accept: req.Accept},
	})
	if !isLeader {
		return wire.WriteMessage(conn, wire.OpRespond, wire.EncodeStatusOnlyResponse(wire.StatusOnlyResponse{Status: wire.StatusNotLeader}))
	}
	return wire.WriteMessage(conn, wire.OpRespond, wire.EncodeStatusOnlyResponse(wire.StatusOnlyResponse{Status: toWireStatus(res.Status)}))
}

// handleShareImage is the worker-facing counterpart of OpDiscoverPeers:
// it is how a freshly embedded image ever makes it into a user's
// SharedImages manifest. Not a client-facing operation in spec.md §6.
func (s *Server) handleShareImage(ctx context.Context, conn net.Conn, payload []byte) error {
	req, err := wire.DecodeShareImageRequest(payload)
	if err != nil {
		return wire.WriteMessage(conn, wire.OpShareImage, wire.EncodeStatusOnlyResponse(wire.StatusOnlyResponse{Status: wire.StatusInvalid}))
	}
	res, isLeader, _ := s.propose(ctx, dirstate.Command{
		Type:       dirstate.CmdShareImage,
		ShareImage: &dirstate.ShareImageCmd{Username: req.Username, ImageID: req.ImageID},
	})
	if !isLeader {
		return wire.WriteMessage(conn, wire.OpShareImage, wire.EncodeStatusOnlyResponse(wire.StatusOnlyResponse{Status: wire.StatusNotLeader}))
	}
	return wire.WriteMessage(conn, wire.OpShareImage, wire.EncodeStatusOnlyResponse(wire.StatusOnlyResponse{Status: toWireStatus(res.Status)}))
}

func (s *Server) handlePostPermissionUpdate(ctx context.Context, conn net.Conn, payload []byte) error {
	req, err := wire.DecodePostPermissionUpdateRequest(payload)
	if err != nil {
		return wire.WriteMessage(conn, wire.OpPostPermissionUpdate, wire.EncodeStatusOnlyResponse(wire.StatusOnlyResponse{Status: wire.StatusInvalid}))
	}
	res, isLeader, _ := s.propose(ctx, dirstate.Command{
		Type:                 dirstate.CmdPostPermissionUpdate,
		PostPermissionUpdate: &dirstate.PostPermissionUpdateCmd{Update: req.Update},
	})
	if !isLeader {
		return wire.WriteMessage(conn, wire.OpPostPermissionUpdate, wire.EncodeStatusOnlyResponse(wire.StatusOnlyResponse{Status: wire.StatusNotLeader}))
	}
	return wire.WriteMessage(conn, wire.OpPostPermissionUpdate, wire.EncodeStatusOnlyResponse(wire.StatusOnlyResponse{Status: toWireStatus(res.Status)}))
}

package wire

import (
	"fmt"
	"time"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

// PeerAddr is a dotted-quad host and port, the address shape carried
// in Register requests and DiscoverPeers/leader-hint responses.
type PeerAddr struct {
	IP4  [4]byte
	Port uint16
}

func (a PeerAddr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.IP4[0], a.IP4[1], a.IP4[2], a.IP4[3], a.Port)
}

func (w *writer) addr(a PeerAddr) {
	w.raw(a.IP4[:])
	w.u16(a.Port)
}

func (r *reader) addr() (PeerAddr, error) {
	var a PeerAddr
	b, err := r.fixed(4)
	if err != nil {
		return a, err
	}
	copy(a.IP4[:], b)
	port, err := r.u16()
	if err != nil {
		return a, err
	}
	a.Port = port
	return a, nil
}

// RegisterRequest is opcode 0x01.
type RegisterRequest struct {
	Username string
	Addr     PeerAddr
}

func EncodeRegisterRequest(req RegisterRequest) ([]byte, error) {
	w := &writer{}
	if err := w.str(req.Username); err != nil {
		return nil, err
	}
	w.addr(req.Addr)
	return w.bytes(), nil
}

func DecodeRegisterRequest(data []byte) (RegisterRequest, error) {
	r := newReader(data)
	var req RegisterRequest
	var err error
	if req.Username, err = r.str(); err != nil {
		return req, err
	}
	if req.Addr, err = r.addr(); err != nil {
		return req, err
	}
	return req, nil
}

// RegisterResponse carries a leader hint only when Status is
// StatusNotLeader; a zero PeerAddr otherwise.
type RegisterResponse struct {
	Status     Status
	LeaderHint PeerAddr
}

func EncodeRegisterResponse(resp RegisterResponse) []byte {
	w := &writer{}
	w.byte(byte(resp.Status))
	if resp.Status == StatusNotLeader {
		w.addr(resp.LeaderHint)
	}
	return w.bytes()
}

func DecodeRegisterResponse(data []byte) (RegisterResponse, error) {
	r := newReader(data)
	var resp RegisterResponse
	b, err := r.byte()
	if err != nil {
		return resp, err
	}
	resp.Status = Status(b)
	if resp.Status == StatusNotLeader {
		if resp.LeaderHint, err = r.addr(); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// UnregisterRequest is opcode 0x02.
type UnregisterRequest struct {
	Username string
}

func EncodeUnregisterRequest(req UnregisterRequest) ([]byte, error) {
	w := &writer{}
	if err := w.str(req.Username); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

func DecodeUnregisterRequest(data []byte) (UnregisterRequest, error) {
	r := newReader(data)
	username, err := r.str()
	return UnregisterRequest{Username: username}, err
}

// StatusOnlyResponse is used by opcodes whose response carries nothing
// beyond the outcome code: Unregister, Respond, ShareImage,
// PostPermissionUpdate.
type StatusOnlyResponse struct {
	Status Status
}

func EncodeStatusOnlyResponse(resp StatusOnlyResponse) []byte {
	return []byte{byte(resp.Status)}
}

func DecodeStatusOnlyResponse(data []byte) (StatusOnlyResponse, error) {
	if len(data) < 1 {
		return StatusOnlyResponse{}, fmt.Errorf("wire: status-only response has 0 bytes")
	}
	return StatusOnlyResponse{Status: Status(data[0])}, nil
}

// HeartbeatRequest is opcode 0x03.
type HeartbeatRequest struct {
	Username string
}

func EncodeHeartbeatRequest(req HeartbeatRequest) ([]byte, error) {
	w := &writer{}
	if err := w.str(req.Username); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

func DecodeHeartbeatRequest(data []byte) (HeartbeatRequest, error) {
	r := newReader(data)
	username, err := r.str()
	return HeartbeatRequest{Username: username}, err
}

// HeartbeatResponse reports how many permission updates await the
// caller in its directory inbox, so idle clients know whether FetchInbox is
// worth the round trip.
type HeartbeatResponse struct {
	Status             Status
	PendingUpdateCount uint32
}

func EncodeHeartbeatResponse(resp HeartbeatResponse) []byte {
	w := &writer{}
	w.byte(byte(resp.Status))
	w.u32(resp.PendingUpdateCount)
	return w.bytes()
}

func DecodeHeartbeatResponse(data []byte) (HeartbeatResponse, error) {
	r := newReader(data)
	var resp HeartbeatResponse
	b, err := r.byte()
	if err != nil {
		return resp, err
	}
	resp.Status = Status(b)
	if resp.PendingUpdateCount, err = r.u32(); err != nil {
		return resp, err
	}
	return resp, nil
}

// PeerInfo is one entry of a DiscoverPeers response.
type PeerInfo struct {
	Username string
	Addr     PeerAddr
	Online   bool
	Images   []model.ImageID
}

// DiscoverPeersResponse is opcode 0x04's response; the request carries
// no body.
type DiscoverPeersResponse struct {
	Status Status
	Peers  []PeerInfo
}

func EncodeDiscoverPeersResponse(resp DiscoverPeersResponse) ([]byte, error) {
	w := &writer{}
	w.byte(byte(resp.Status))
	w.u32(uint32(len(resp.Peers)))
	for _, p := range resp.Peers {
		if err := w.str(p.Username); err != nil {
			return nil, err
		}
		w.addr(p.Addr)
		if p.Online {
			w.byte(1)
		} else {
			w.byte(0)
		}
		w.u32(uint32(len(p.Images)))
		for _, id := range p.Images {
			w.imageID(id)
		}
	}
	return w.bytes(), nil
}

func DecodeDiscoverPeersResponse(data []byte) (DiscoverPeersResponse, error) {
	r := newReader(data)
	var resp DiscoverPeersResponse
	b, err := r.byte()
	if err != nil {
		return resp, err
	}
	resp.Status = Status(b)
	count, err := r.u32()
	if err != nil {
		return resp, err
	}
	resp.Peers = make([]PeerInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		var p PeerInfo
		if p.Username, err = r.str(); err != nil {
			return resp, err
		}
		if p.Addr, err = r.addr(); err != nil {
			return resp, err
		}
		onlineByte, err := r.byte()
		if err != nil {
			return resp, err
		}
		p.Online = onlineByte != 0
		imgCount, err := r.u32()
		if err != nil {
			return resp, err
		}
		p.Images = make([]model.ImageID, imgCount)
		for j := uint32(0); j < imgCount; j++ {
			if p.Images[j], err = r.imageID(); err != nil {
				return resp, err
			}
		}
		resp.Peers = append(resp.Peers, p)
	}
	return resp, nil
}

// LeaveRequestRequest is opcode 0x05: a viewer asking the owner of an
// image for viewing rights. Named LeaveRequest per the original
// protocol's mailbox metaphor: the request is "left" in the owner's
// inbox for later pickup via FetchInbox.
type LeaveRequestRequest struct {
	FromUser       string
	ToUser         string
	ImageID        model.ImageID
	RequestedViews uint32
}

func EncodeLeaveRequestRequest(req LeaveRequestRequest) ([]byte, error) {
	w := &writer{}
	if err := w.str(req.FromUser); err != nil {
		return nil, err
	}
	if err := w.str(req.ToUser); err != nil {
		return nil, err
	}
	w.imageID(req.ImageID)
	w.u32(req.RequestedViews)
	return w.bytes(), nil
}

func DecodeLeaveRequestRequest(data []byte) (LeaveRequestRequest, error) {
	r := newReader(data)
	var req LeaveRequestRequest
	var err error
	if req.FromUser, err = r.str(); err != nil {
		return req, err
	}
	if req.ToUser, err = r.str(); err != nil {
		return req, err
	}
	if req.ImageID, err = r.imageID(); err != nil {
		return req, err
	}
	if req.RequestedViews, err = r.u32(); err != nil {
		return req, err
	}
	return req, nil
}

type LeaveRequestResponse struct {
	Status    Status
	RequestID [16]byte
}

func EncodeLeaveRequestResponse(resp LeaveRequestResponse) []byte {
	w := &writer{}
	w.byte(byte(resp.Status))
	w.raw(resp.RequestID[:])
	return w.bytes()
}

func DecodeLeaveRequestResponse(data []byte) (LeaveRequestResponse, error) {
	r := newReader(data)
	var resp LeaveRequestResponse
	b, err := r.byte()
	if err != nil {
		return resp, err
	}
	resp.Status = Status(b)
	id, err := r.fixed(16)
	if err != nil {
		return resp, err
	}
	copy(resp.RequestID[:], id)
	return resp, nil
}

// FetchInboxRequest is opcode 0x06.
type FetchInboxRequest struct {
	Username string
}

func EncodeFetchInboxRequest(req FetchInboxRequest) ([]byte, error) {
	w := &writer{}
	if err := w.str(req.Username); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

func DecodeFetchInboxRequest(data []byte) (FetchInboxRequest, error) {
	r := newReader(data)
	username, err := r.str()
	return FetchInboxRequest{Username: username}, err
}

type FetchInboxResponse struct {
	Status          Status
	Requests        []model.PendingRequest
	PermissionPosts []model.PendingPermissionUpdate
}

func encodePendingRequest(w *writer, pr model.PendingRequest) error {
	w.raw(pr.RequestID[:])
	if err := w.str(pr.FromUser); err != nil {
		return err
	}
	if err := w.str(pr.ToUser); err != nil {
		return err
	}
	w.imageID(pr.ImageID)
	w.u32(pr.RequestedViews)
	w.byte(byte(pr.Status))
	w.u64(uint64(pr.Timestamp.UnixMilli()))
	return nil
}

func decodePendingRequest(r *reader) (model.PendingRequest, error) {
	var pr model.PendingRequest
	id, err := r.fixed(16)
	if err != nil {
		return pr, err
	}
	copy(pr.RequestID[:], id)
	if pr.FromUser, err = r.str(); err != nil {
		return pr, err
	}
	if pr.ToUser, err = r.str(); err != nil {
		return pr, err
	}
	if pr.ImageID, err = r.imageID(); err != nil {
		return pr, err
	}
	if pr.RequestedViews, err = r.u32(); err != nil {
		return pr, err
	}
	statusByte, err := r.byte()
	if err != nil {
		return pr, err
	}
	pr.Status = model.RequestStatus(statusByte)
	ms, err := r.u64()
	if err != nil {
		return pr, err
	}
	pr.Timestamp = time.UnixMilli(int64(ms))
	return pr, nil
}

func encodePermissionUpdate(w *writer, u model.PendingPermissionUpdate) error {
	if err := w.str(u.FromOwner); err != nil {
		return err
	}
	if err := w.str(u.TargetUser); err != nil {
		return err
	}
	w.imageID(u.ImageID)
	w.u32(u.NewQuota)
	w.u64(u.IssuedAtUnixMs)
	return nil
}

func decodePermissionUpdate(r *reader) (model.PendingPermissionUpdate, error) {
	var u model.PendingPermissionUpdate
	var err error
	if u.FromOwner, err = r.str(); err != nil {
		return u, err
	}
	if u.TargetUser, err = r.str(); err != nil {
		return u, err
	}
	if u.ImageID, err = r.imageID(); err != nil {
		return u, err
	}
	if u.NewQuota, err = r.u32(); err != nil {
		return u, err
	}
	if u.IssuedAtUnixMs, err = r.u64(); err != nil {
		return u, err
	}
	return u, nil
}

func EncodeFetchInboxResponse(resp FetchInboxResponse) ([]byte, error) {
	w := &writer{}
	w.byte(byte(resp.Status))
	w.u32(uint32(len(resp.Requests)))
	for _, pr := range resp.Requests {
		if err := encodePendingRequest(w, pr); err != nil {
			return nil, err
		}
	}
	w.u32(uint32(len(resp.PermissionPosts)))
	for _, u := range resp.PermissionPosts {
		if err := encodePermissionUpdate(w, u); err != nil {
			return nil, err
		}
	}
	return w.bytes(), nil
}

func DecodeFetchInboxResponse(data []byte) (FetchInboxResponse, error) {
	r := newReader(data)
	var resp FetchInboxResponse
	b, err := r.byte()
	if err != nil {
		return resp, err
	}
	resp.Status = Status(b)

	reqCount, err := r.u32()
	if err != nil {
		return resp, err
	}
	resp.Requests = make([]model.PendingRequest, reqCount)
	for i := uint32(0); i < reqCount; i++ {
		if resp.Requests[i], err = decodePendingRequest(r); err != nil {
			return resp, err
		}
	}

	updCount, err := r.u32()
	if err != nil {
		return resp, err
	}
	resp.PermissionPosts = make([]model.PendingPermissionUpdate, updCount)
	for i := uint32(0); i < updCount; i++ {
		if resp.PermissionPosts[i], err = decodePermissionUpdate(r); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// RespondRequest is opcode 0x07: accept or reject a pending viewing
// request.
type RespondRequest struct {
	RequestID [16]byte
	Accept    bool
}

func EncodeRespondRequest(req RespondRequest) []byte {
	w := &writer{}
	w.raw(req.RequestID[:])
	if req.Accept {
		w.byte(1)
	} else {
		w.byte(0)
	}
	return w.bytes()
}

func DecodeRespondRequest(data []byte) (RespondRequest, error) {
	r := newReader(data)
	var req RespondRequest
	id, err := r.fixed(16)
	if err != nil {
		return req, err
	}
	copy(req.RequestID[:], id)
	acceptByte, err := r.byte()
	if err != nil {
		return req, err
	}
	req.Accept = acceptByte != 0
	return req, nil
}

// ShareImageRequest is opcode 0x09: a cloud worker reporting that
// username now shares id, after a successful embed.
type ShareImageRequest struct {
	Username string
	ImageID  model.ImageID
}

func EncodeShareImageRequest(req ShareImageRequest) ([]byte, error) {
	w := &writer{}
	if err := w.str(req.Username); err != nil {
		return nil, err
	}
	w.imageID(req.ImageID)
	return w.bytes(), nil
}

func DecodeShareImageRequest(data []byte) (ShareImageRequest, error) {
	r := newReader(data)
	var req ShareImageRequest
	var err error
	if req.Username, err = r.str(); err != nil {
		return req, err
	}
	if req.ImageID, err = r.imageID(); err != nil {
		return req, err
	}
	return req, nil
}

// PostPermissionUpdateRequest is opcode 0x08: an owner pushing a fresh
// quota to a viewer's inbox, e.g. after re-embedding a decremented
// permission record.
type PostPermissionUpdateRequest struct {
	Update model.PendingPermissionUpdate
}

func EncodePostPermissionUpdateRequest(req PostPermissionUpdateRequest) ([]byte, error) {
	w := &writer{}
	if err := encodePermissionUpdate(w, req.Update); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

func DecodePostPermissionUpdateRequest(data []byte) (PostPermissionUpdateRequest, error) {
	r := newReader(data)
	u, err := decodePermissionUpdate(r)
	return PostPermissionUpdateRequest{Update: u}, err
}

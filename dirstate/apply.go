package dirstate

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

// Command is the JSON-encoded payload carried in a raftlog.LogEntry.
// Exactly one of the pointer fields is set, tagged by Type.
type Command struct {
	Type string `json:"type"`

	Register             *RegisterCmd             `json:"register,omitempty"`
	Unregister           *UnregisterCmd           `json:"unregister,omitempty"`
	Heartbeat            *HeartbeatCmd            `json:"heartbeat,omitempty"`
	LeaveRequest         *LeaveRequestCmd         `json:"leave_request,omitempty"`
	FetchInbox           *FetchInboxCmd           `json:"fetch_inbox,omitempty"`
	Respond              *RespondCmd              `json:"respond,omitempty"`
	PostPermissionUpdate *PostPermissionUpdateCmd `json:"post_permission_update,omitempty"`
	ShareImage           *ShareImageCmd           `json:"share_image,omitempty"`
}

const (
	CmdRegister             = "register"
	CmdUnregister           = "unregister"
	CmdHeartbeat            = "heartbeat"
	CmdLeaveRequest         = "leave_request"
	CmdFetchInbox           = "fetch_inbox"
	CmdRespond              = "respond"
	CmdPostPermissionUpdate = "post_permission_update"
	CmdShareImage           = "share_image"
)

type ShareImageCmd struct {
	Username string        `json:"username"`
	ImageID  model.ImageID `json:"image_id"`
}

type RegisterCmd struct {
	Username string `json:"username"`
	Addr     string `json:"addr"`
}

type UnregisterCmd struct {
	Username string `json:"username"`
}

type HeartbeatCmd struct {
	Username string `json:"username"`
}

type LeaveRequestCmd struct {
	FromUser       string        `json:"from_user"`
	ToUser         string        `json:"to_user"`
	ImageID        model.ImageID `json:"image_id"`
	RequestedViews uint32        `json:"requested_views"`
}

type FetchInboxCmd struct {
	Username string `json:"username"`
}

type RespondCmd struct {
	RequestID [16]byte `json:"request_id"`
	Accept    bool     `json:"accept"`
}

type PostPermissionUpdateCmd struct {
	Update model.PendingPermissionUpdate `json:"update"`
}

// Result status strings, mapped to wire.Status by directorysrv.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultConflict = "conflict"
	ResultInvalid  = "invalid"
	ResultBusy     = "busy"
)

// Result is the JSON-encoded return value of Apply.
type Result struct {
	Status             string                          `json:"status"`
	PendingUpdateCount uint32                          `json:"pending_update_count,omitempty"`
	RequestID          [16]byte                        `json:"request_id,omitempty"`
	Requests           []model.PendingRequest          `json:"requests,omitempty"`
	Updates            []model.PendingPermissionUpdate `json:"updates,omitempty"`
}

// nowFn is overridable in tests; production code always uses time.Now.
var nowFn = time.Now

// Apply decodes command, mutates state accordingly, and returns the
// JSON-encoded Result, satisfying raftlog.StateMachine.
func (s *State) Apply(command []byte) []byte {
	var cmd Command
	if err := json.Unmarshal(command, &cmd); err != nil {
		return mustMarshal(Result{Status: ResultInvalid})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Type {
	case CmdRegister:
		return mustMarshal(s.applyRegister(*cmd.Register))
	case CmdUnregister:
		return mustMarshal(s.applyUnregister(*cmd.Unregister))
	case CmdHeartbeat:
		return mustMarshal(s.applyHeartbeat(*cmd.Heartbeat))
	case CmdLeaveRequest:
		return mustMarshal(s.applyLeaveRequest(*cmd.LeaveRequest))
	case CmdFetchInbox:
		return mustMarshal(s.applyFetchInbox(*cmd.FetchInbox))
	case CmdRespond:
		return mustMarshal(s.applyRespond(*cmd.Respond))
	case CmdPostPermissionUpdate:
		return mustMarshal(s.applyPostPermissionUpdate(*cmd.PostPermissionUpdate))
	case CmdShareImage:
		return mustMarshal(s.applyShareImage(*cmd.ShareImage))
	default:
		return mustMarshal(Result{Status: ResultInvalid})
	}
}

func mustMarshal(r Result) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		panic(err) // Result has no unmarshalable fields; a failure here is a programming error
	}
	return data
}

func (s *State) applyRegister(c RegisterCmd) Result {
	existing, ok := s.Users[c.Username]
	if ok && existing.Online && existing.Addr != c.Addr {
		return Result{Status: ResultConflict}
	}
	if ok {
		existing.Addr = c.Addr
		existing.Online = true
		existing.LastHeartbeat = nowFn()
		return Result{Status: ResultOK}
	}
	s.Users[c.Username] = &model.User{
		Username:      c.Username,
		Addr:          c.Addr,
		Online:        true,
		LastHeartbeat: nowFn(),
		SharedImages:  make(map[model.ImageID]struct{}),
	}
	return Result{Status: ResultOK}
}

func (s *State) applyUnregister(c UnregisterCmd) Result {
	u, ok := s.Users[c.Username]
	if !ok {
		return Result{Status: ResultNotFound}
	}
	u.Online = false
	clearNotificationsForUser(s, c.Username)
	clearPendingRequestsToUser(s, c.Username)
	return Result{Status: ResultOK}
}

func (s *State) applyHeartbeat(c HeartbeatCmd) Result {
	u, ok := s.Users[c.Username]
	if !ok {
		return Result{Status: ResultNotFound}
	}
	u.Online = true
	u.LastHeartbeat = nowFn()
	ib := s.inboxFor(c.Username)
	return Result{Status: ResultOK, PendingUpdateCount: uint32(len(ib.Updates))}
}

func (s *State) applyLeaveRequest(c LeaveRequestCmd) Result {
	if _, ok := s.Users[c.ToUser]; !ok {
		return Result{Status: ResultNotFound}
	}
	id := uuid.New()
	var reqID [16]byte
	copy(reqID[:], id[:])

	ib := s.inboxFor(c.ToUser)
	ib.Requests = append(ib.Requests, model.PendingRequest{
		RequestID:      reqID,
		FromUser:       c.FromUser,
		ToUser:         c.ToUser,
		ImageID:        c.ImageID,
		RequestedViews: c.RequestedViews,
		Status:         model.StatusPending,
		Timestamp:      nowFn(),
	})
	return Result{Status: ResultOK, RequestID: reqID}
}

func (s *State) applyFetchInbox(c FetchInboxCmd) Result {
	ib, ok := s.Inboxes[c.Username]
	if !ok {
		return Result{Status: ResultOK}
	}
	requests := ib.Requests
	updates := ib.Updates
	ib.Requests = nil
	ib.Updates = nil
	for _, u := range updates {
		s.Delivered[dedupKeyString(u.DedupKey())] = struct{}{}
	}
	return Result{Status: ResultOK, Requests: requests, Updates: updates}
}

func (s *State) applyRespond(c RespondCmd) Result {
	for username, ib := range s.Inboxes {
		for i := range ib.Requests {
			if ib.Requests[i].RequestID != c.RequestID {
				continue
			}
			status := model.StatusRejected
			if c.Accept {
				status = model.StatusAccepted
			}
			ib.Requests[i].Status = status

			notify := s.inboxFor(ib.Requests[i].FromUser)
			notify.Requests = append(notify.Requests, model.PendingRequest{
				RequestID:      c.RequestID,
				FromUser:       username,
				ToUser:         ib.Requests[i].FromUser,
				ImageID:        ib.Requests[i].ImageID,
				RequestedViews: ib.Requests[i].RequestedViews,
				Status:         status,
				Timestamp:      nowFn(),
			})
			return Result{Status: ResultOK}
		}
	}
	return Result{Status: ResultNotFound}
}

func (s *State) applyPostPermissionUpdate(c PostPermissionUpdateCmd) Result {
	key := dedupKeyString(c.Update.DedupKey())
	if _, seen := s.Delivered[key]; seen {
		return Result{Status: ResultOK}
	}
	ib := s.inboxFor(c.Update.TargetUser)
	for _, queued := range ib.Updates {
		if dedupKeyString(queued.DedupKey()) == key {
			// Already queued from an earlier proposal of the same
			// update, e.g. a retried write per spec.md §7's transport
			// retry schedule landing twice before FetchInbox drains it
			// into s.Delivered.
			return Result{Status: ResultOK}
		}
	}
	ib.Updates = append(ib.Updates, c.Update)
	return Result{Status: ResultOK}
}

// clearNotificationsForUser drops username's own still-pending inbound
// requests: nobody is left to act on them once the recipient has gone
// offline. Grounded in original_source's clear_notifications_for_user.
func clearNotificationsForUser(s *State, username string) {
	ib, ok := s.Inboxes[username]
	if !ok {
		return
	}
	kept := ib.Requests[:0]
	for _, r := range ib.Requests {
		if r.Status != model.StatusPending {
			kept = append(kept, r)
		}
	}
	ib.Requests = kept
}

// clearPendingRequestsToUser removes username's own outstanding,
// unanswered requests from every other inbox they were sitting in:
// the requester left, so there's no one to deliver an eventual
// response to. Grounded in original_source's clear_pending_requests_to_user.
func clearPendingRequestsToUser(s *State, username string) {
	for _, ib := range s.Inboxes {
		kept := ib.Requests[:0]
		for _, r := range ib.Requests {
			if r.FromUser == username && r.Status == model.StatusPending {
				continue
			}
			kept = append(kept, r)
		}
		ib.Requests = kept
	}
}

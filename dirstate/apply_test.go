package dirstate

import (
	"encoding/json"
	"testing"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

func mustCmd(t *testing.T, c Command) []byte {
	t.Helper()
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	return data
}

func mustResult(t *testing.T, data []byte) Result {
	t.Helper()
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return r
}

func TestRegisterIsIdempotentForSameAddress(t *testing.T) {
	s := New()
	cmd := Command{Type: CmdRegister, Register: &RegisterCmd{Username: "alice", Addr: "10.0.0.1:9000"}}

	first := mustResult(t, s.Apply(mustCmd(t, cmd)))
	second := mustResult(t, s.Apply(mustCmd(t, cmd)))
	if first.Status != ResultOK || second.Status != ResultOK {
		t.Fatalf("want OK twice, got %+v then %+v", first, second)
	}
	if len(s.Users) != 1 {
		t.Errorf("want exactly 1 user after duplicate register, got %d", len(s.Users))
	}
}

func TestRegisterConflictOnAddressChangeWhileOnline(t *testing.T) {
	s := New()
	s.Apply(mustCmd(t, Command{Type: CmdRegister, Register: &RegisterCmd{Username: "alice", Addr: "10.0.0.1:9000"}}))
	res := mustResult(t, s.Apply(mustCmd(t, Command{
		Type:     CmdRegister,
		Register: &RegisterCmd{Username: "alice", Addr: "10.0.0.2:9000"},
	})))
	if res.Status != ResultConflict {
		t.Errorf("want conflict on address change while online, got %+v", res)
	}
}

func TestHeartbeatOnUnknownUserIsNotFound(t *testing.T) {
	s := New()
	res := mustResult(t, s.Apply(mustCmd(t, Command{Type: CmdHeartbeat, Heartbeat: &HeartbeatCmd{Username: "ghost"}})))
	if res.Status != ResultNotFound {
		t.Errorf("want not_found, got %+v", res)
	}
}

func TestLeaveRequestFetchInboxRespondFlow(t *testing.T) {
	s := New()
	s.Apply(mustCmd(t, Command{Type: CmdRegister, Register: &RegisterCmd{Username: "alice", Addr: "a"}}))
	s.Apply(mustCmd(t, Command{Type: CmdRegister, Register: &RegisterCmd{Username: "bob", Addr: "b"}}))

	imgID := model.ImageID{1, 2, 3}
	leaveRes := mustResult(t, s.Apply(mustCmd(t, Command{
		Type: CmdLeaveRequest,
		LeaveRequest: &LeaveRequestCmd{
			FromUser: "bob", ToUser: "alice", ImageID: imgID, RequestedViews: 3,
		},
	})))
	if leaveRes.Status != ResultOK {
		t.Fatalf("leave request failed: %+v", leaveRes)
	}

	inboxRes := mustResult(t, s.Apply(mustCmd(t, Command{Type: CmdFetchInbox, FetchInbox: &FetchInboxCmd{Username: "alice"}})))
	if len(inboxRes.Requests) != 1 || inboxRes.Requests[0].FromUser != "bob" {
		t.Fatalf("expected alice's inbox to hold bob's request: %+v", inboxRes)
	}

	respondRes := mustResult(t, s.Apply(mustCmd(t, Command{
		Type:    CmdRespond,
		Respond: &RespondCmd{RequestID: leaveRes.RequestID, Accept: true},
	})))
	if respondRes.Status != ResultOK {
		t.Fatalf("respond failed: %+v", respondRes)
	}

	bobInbox := mustResult(t, s.Apply(mustCmd(t, Command{Type: CmdFetchInbox, FetchInbox: &FetchInboxCmd{Username: "bob"}})))
	if len(bobInbox.Requests) != 1 || bobInbox.Requests[0].Status != model.StatusAccepted {
		t.Fatalf("expected bob to see an accepted notification: %+v", bobInbox)
	}
}

func TestPostPermissionUpdateDeliveredAtMostOnce(t *testing.T) {
	s := New()
	s.Apply(mustCmd(t, Command{Type: CmdRegister, Register: &RegisterCmd{Username: "carol", Addr: "c"}}))

	update := model.PendingPermissionUpdate{
		FromOwner: "dave", TargetUser: "carol", ImageID: model.ImageID{9},
		NewQuota: 0, IssuedAtUnixMs: 100,
	}
	cmd := Command{Type: CmdPostPermissionUpdate, PostPermissionUpdate: &PostPermissionUpdateCmd{Update: update}}
	s.Apply(mustCmd(t, cmd))
	s.Apply(mustCmd(t, cmd)) // duplicate post, e.g. a retried client request

	inbox := mustResult(t, s.Apply(mustCmd(t, Command{Type: CmdFetchInbox, FetchInbox: &FetchInboxCmd{Username: "carol"}})))
	if len(inbox.Updates) != 1 {
		t.Fatalf("want exactly 1 delivered update despite duplicate post, got %d", len(inbox.Updates))
	}

	// a second fetch (or a duplicate post after delivery) must not
	// resurrect the same update
	s.Apply(mustCmd(t, cmd))
	empty := mustResult(t, s.Apply(mustCmd(t, Command{Type: CmdFetchInbox, FetchInbox: &FetchInboxCmd{Username: "carol"}})))
	if len(empty.Updates) != 0 {
		t.Errorf("want no re-delivery of an already-delivered update, got %+v", empty.Updates)
	}
}

func TestUnregisterClearsUnansweredNotifications(t *testing.T) {
	s := New()
	s.Apply(mustCmd(t, Command{Type: CmdRegister, Register: &RegisterCmd{Username: "alice", Addr: "a"}}))
	s.Apply(mustCmd(t, Command{Type: CmdRegister, Register: &RegisterCmd{Username: "bob", Addr: "b"}}))
	s.Apply(mustCmd(t, Command{
		Type: CmdLeaveRequest,
		LeaveRequest: &LeaveRequestCmd{FromUser: "bob", ToUser: "alice", ImageID: model.ImageID{1}, RequestedViews: 1},
	}))

	s.Apply(mustCmd(t, Command{Type: CmdUnregister, Unregister: &UnregisterCmd{Username: "bob"}}))

	res := mustResult(t, s.Apply(mustCmd(t, Command{Type: CmdFetchInbox, FetchInbox: &FetchInboxCmd{Username: "alice"}})))
	if len(res.Requests) != 0 {
		t.Errorf("want alice's inbox cleared of bob's unanswered request after bob unregisters, got %+v", res.Requests)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New()
	s.Apply(mustCmd(t, Command{Type: CmdRegister, Register: &RegisterCmd{Username: "alice", Addr: "a"}}))

	data, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	restored := New()
	if err := restored.Restore(data); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(restored.Users) != 1 || restored.Users["alice"].Addr != "a" {
		t.Errorf("restore didn't reproduce state: %+v", restored.Users)
	}
}

package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
)

func TestRegisterRoundTrip(t *testing.T) {
	req := RegisterRequest{
		Username: "alice",
		Addr:     PeerAddr{IP4: [4]byte{10, 0, 0, 5}, Port: 9001},
	}
	data, err := EncodeRegisterRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeRegisterRequest(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != req {
		t.Errorf("round trip mismatch: want %+v got %+v", req, got)
	}
}

func TestRegisterResponseLeaderHintOnlyWhenNotLeader(t *testing.T) {
	resp := RegisterResponse{Status: StatusOK, LeaderHint: PeerAddr{IP4: [4]byte{1, 2, 3, 4}, Port: 1}}
	data := EncodeRegisterResponse(resp)
	if len(data) != 1 {
		t.Fatalf("StatusOK response should omit the leader hint entirely, got %d bytes", len(data))
	}
	got, err := DecodeRegisterResponse(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != StatusOK || got.LeaderHint != (PeerAddr{}) {
		t.Errorf("expected zero leader hint on OK, got %+v", got)
	}

	hint := PeerAddr{IP4: [4]byte{192, 168, 1, 1}, Port: 7000}
	data = EncodeRegisterResponse(RegisterResponse{Status: StatusNotLeader, LeaderHint: hint})
	got, err = DecodeRegisterResponse(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != StatusNotLeader || got.LeaderHint != hint {
		t.Errorf("leader hint not preserved: got %+v", got)
	}
}

func TestUsernameOverLimitRejected(t *testing.T) {
	long := make([]byte, model.MaxUsernameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := EncodeRegisterRequest(RegisterRequest{Username: string(long)})
	if err == nil {
		t.Fatal("expected error encoding a username past MaxUsernameLen")
	}
}

func TestDiscoverPeersRoundTrip(t *testing.T) {
	resp := DiscoverPeersResponse{
		Status: StatusOK,
		Peers: []PeerInfo{
			{
				Username: "bob",
				Addr:     PeerAddr{IP4: [4]byte{127, 0, 0, 1}, Port: 4000},
				Online:   true,
				Images:   []model.ImageID{{1, 2, 3}, {4, 5, 6}},
			},
			{
				Username: "carol",
				Addr:     PeerAddr{IP4: [4]byte{127, 0, 0, 1}, Port: 4001},
				Online:   false,
				Images:   nil,
			},
		},
	}
	data, err := EncodeDiscoverPeersResponse(resp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeDiscoverPeersResponse(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Peers) != 2 {
		t.Fatalf("want 2 peers, got %d", len(got.Peers))
	}
	if got.Peers[0].Username != "bob" || !got.Peers[0].Online || len(got.Peers[0].Images) != 2 {
		t.Errorf("peer 0 mismatch: %+v", got.Peers[0])
	}
	if got.Peers[1].Username != "carol" || got.Peers[1].Online || len(got.Peers[1].Images) != 0 {
		t.Errorf("peer 1 mismatch: %+v", got.Peers[1])
	}
}

func TestFetchInboxRoundTrip(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	resp := FetchInboxResponse{
		Status: StatusOK,
		Requests: []model.PendingRequest{
			{
				RequestID:      [16]byte{9, 9, 9},
				FromUser:       "dan",
				ToUser:         "eve",
				ImageID:        model.ImageID{7, 7},
				RequestedViews: 3,
				Status:         model.StatusPending,
				Timestamp:      now,
			},
		},
		PermissionPosts: []model.PendingPermissionUpdate{
			{
				FromOwner:      "eve",
				TargetUser:     "dan",
				ImageID:        model.ImageID{7, 7},
				NewQuota:       2,
				IssuedAtUnixMs: uint64(now.UnixMilli()),
			},
		},
	}
	data, err := EncodeFetchInboxResponse(resp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeFetchInboxResponse(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Requests) != 1 || got.Requests[0].FromUser != "dan" {
		t.Fatalf("request mismatch: %+v", got.Requests)
	}
	if !got.Requests[0].Timestamp.Equal(now) {
		t.Errorf("timestamp lost millisecond precision: want %v got %v", now, got.Requests[0].Timestamp)
	}
	if len(got.PermissionPosts) != 1 || got.PermissionPosts[0].NewQuota != 2 {
		t.Fatalf("permission post mismatch: %+v", got.PermissionPosts)
	}
}

func TestRespondRequestRoundTrip(t *testing.T) {
	id := [16]byte{1, 1, 2, 2}
	data := EncodeRespondRequest(RespondRequest{RequestID: id, Accept: true})
	got, err := DecodeRespondRequest(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RequestID != id || !got.Accept {
		t.Errorf("mismatch: %+v", got)
	}
}

func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0xAA, 0xBB, 0xCC}
	if err := WriteMessage(&buf, OpHeartbeat, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	op, got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if op != OpHeartbeat {
		t.Errorf("want opcode %v got %v", OpHeartbeat, op)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: want %v got %v", payload, got)
	}
}

func TestReadMessageRejectsEmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	// zero-length frame: just the 4-byte length prefix, no opcode byte
	buf.Write([]byte{0, 0, 0, 0})
	if _, _, err := ReadMessage(&buf); err == nil {
		t.Fatal("expected an error reading a frame with no opcode byte")
	}
}

package dirstate

import "testing"

func TestDiscoverPeersOmitsOfflineUsers(t *testing.T) {
	s := New()
	s.Apply(mustCmd(t, Command{Type: CmdRegister, Register: &RegisterCmd{Username: "alice", Addr: "10.0.0.1:9000"}}))
	s.Apply(mustCmd(t, Command{Type: CmdRegister, Register: &RegisterCmd{Username: "bob", Addr: "10.0.0.2:9000"}}))
	s.Apply(mustCmd(t, Command{Type: CmdUnregister, Unregister: &UnregisterCmd{Username: "bob"}}))

	peers := s.DiscoverPeers()
	if len(peers) != 1 {
		t.Fatalf("want 1 online peer, got %d: %+v", len(peers), peers)
	}
	if peers[0].Username != "alice" || !peers[0].Online {
		t.Errorf("want online alice only, got %+v", peers[0])
	}
}

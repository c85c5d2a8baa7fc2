package main

import "testing"

func TestAssignPeerIDsSkipsSelf(t *testing.T) {
	got := assignPeerIDs(1, []string{"host-a:9000", "host-b:9000"})
	want := map[int]string{0: "host-a:9000", 2: "host-b:9000"}
	for id, addr := range want {
		if got[id] != addr {
			t.Errorf("peer %d: want %s got %s", id, addr, got[id])
		}
	}
	if len(got) != len(want) {
		t.Errorf("want %d entries, got %d: %+v", len(want), len(got), got)
	}
}

func TestClusterAddrOfAddsOffset(t *testing.T) {
	got, err := clusterAddrOf("10.0.0.1:9000")
	if err != nil {
		t.Fatalf("clusterAddrOf: %v", err)
	}
	want := "10.0.0.1:10000"
	if got != want {
		t.Errorf("want %s got %s", want, got)
	}
}

func TestParseArgsRequiresPortAndServerID(t *testing.T) {
	if _, err := parseArgs(nil); err == nil {
		t.Fatal("expected an error with no arguments")
	}
	cfg, err := parseArgs([]string{"9000", "0", "10.0.0.2:9000"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.Port != 9000 || cfg.ServerID != 0 || len(cfg.PeerAddrs) != 1 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

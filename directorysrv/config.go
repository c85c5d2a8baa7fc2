// Command directory_server runs one node of the replicated user
// directory described in spec.md §4.1: a Raft-style cluster serving
// the wire protocol of spec.md §6 to peers, and an internal cluster
// protocol to its fellow directory nodes.
package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds one node's parsed CLI arguments and environment.
type Config struct {
	Port      int
	ServerID  int
	PeerAddrs []string // other directory nodes' client-facing addresses
	DataDir   string
	LogLevel  string
}

// clusterPortOffset separates the client-facing wire protocol port
// from the internal cluster RPC port. The CLI contract (spec.md §6)
// only exposes one port per node; splitting the concerns onto
// adjacent ports keeps the wire and cluster codecs independent
// without a demultiplexing byte on every frame.
const clusterPortOffset = 1000

func (c Config) ClusterPort() int { return c.Port + clusterPortOffset }

// parseArgs implements `directory_server <port> <server_id>
// [peer_addr...]` per spec.md §6. peer_addr entries are each another
// node's client-facing "host:port"; the corresponding cluster port is
// derived by the same clusterPortOffset convention on both ends.
func parseArgs(args []string) (Config, error) {
	if len(args) < 2 {
		return Config{}, fmt.Errorf("usage: directory_server <port> <server_id> [peer_addr...]")
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", args[0], err)
	}
	serverID, err := strconv.Atoi(args[1])
	if err != nil {
		return Config{}, fmt.Errorf("invalid server_id %q: %w", args[1], err)
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join("data", strconv.Itoa(serverID))
	}
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return Config{
		Port:      port,
		ServerID:  serverID,
		PeerAddrs: args[2:],
		DataDir:   dataDir,
		LogLevel:  logLevel,
	}, nil
}

// assignPeerIDs derives a stable server_id for each peer address. The
// CLI contract passes only addresses, not IDs, so peer IDs are
// assigned by counting upward from 0 and skipping selfID — every node
// in a symmetric cluster launch (each given the full set of other
// members' addresses, in the same relative order) converges on the
// same ID-to-address mapping.
func assignPeerIDs(selfID int, peerAddrs []string) map[int]string {
	out := make(map[int]string, len(peerAddrs))
	id := 0
	for _, addr := range peerAddrs {
		for id == selfID {
			id++
		}
		out[id] = addr
		id++
	}
	return out
}

// clusterAddrOf rewrites a peer's client-facing "host:port" into its
// cluster-protocol address using clusterPortOffset.
func clusterAddrOf(clientAddr string) (string, error) {
	host, portStr, err := net.SplitHostPort(clientAddr)
	if err != nil {
		return "", fmt.Errorf("invalid peer address %q: %w", clientAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("invalid peer port in %q: %w", clientAddr, err)
	}
	return net.JoinHostPort(host, strconv.Itoa(port+clusterPortOffset)), nil
}

// clusterAddrsOf applies clusterAddrOf to a full peer ID -> address map.
func clusterAddrsOf(peers map[int]string) (map[int]string, error) {
	out := make(map[int]string, len(peers))
	for id, addr := range peers {
		clusterAddr, err := clusterAddrOf(addr)
		if err != nil {
			return nil, err
		}
		out[id] = clusterAddr
	}
	return out, nil
}

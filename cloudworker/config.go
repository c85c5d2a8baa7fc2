// Command cloud_worker runs one node of the dispatcher/worker cluster
// described in spec.md §4.2: it accepts encryption jobs from peers,
// elects the healthiest available worker (possibly itself) to handle
// each one, and performs the LSB embedding via the stego codec.
package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds one worker's parsed CLI arguments and environment.
type Config struct {
	Port           int
	ServerID       int
	PeerAddrs      []string // other workers' job-protocol addresses
	DirectoryAddrs []string // directory_server client addresses, for ShareImage
	DataDir        string
	ImageDir       string
	LogLevel       string
}

// healthPortOffset separates the job-intake port from the health-poll
// port, mirroring directorysrv's clusterPortOffset convention for the
// same reason: the CLI contract exposes one port per node.
const healthPortOffset = 1000

func (c Config) HealthPort() int { return c.Port + healthPortOffset }

// parseArgs implements `cloud_worker <port> <server_id>
// [peer_addr...]` per spec.md §6.
func parseArgs(args []string) (Config, error) {
	if len(args) < 2 {
		return Config{}, fmt.Errorf("usage: cloud_worker <port> <server_id> [peer_addr...]")
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
	imageDir := os.Getenv("IMAGE_DIR")
	if imageDir == "" {
		imageDir = filepath.Join(dataDir, "images")
	}
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var directoryAddrs []string
	if raw := os.Getenv("DIRECTORY_ADDRS"); raw != "" {
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				directoryAddrs = append(directoryAddrs, a)
			}
		}
	}

	return Config{
		Port:           port,
		ServerID:       serverID,
		PeerAddrs:      args[2:],
		DirectoryAddrs: directoryAddrs,
		DataDir:        dataDir,
		ImageDir:       imageDir,
		LogLevel:       logLevel,
	}, nil
}

// assignPeerIDs mirrors directorysrv's convention: peer server_ids are
// derived by counting upward from 0, skipping selfID, assuming a
// symmetric cluster launch.
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

// healthAddrOf rewrites a peer's job-protocol "host:port" into its
// health-poll address using healthPortOffset.
func healthAddrOf(jobAddr string) (string, error) {
	host, portStr, err := net.SplitHostPort(jobAddr)
	if err != nil {
		return "", fmt.Errorf("invalid peer address %q: %w", jobAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("invalid peer port in %q: %w", jobAddr, err)
	}
	return net.JoinHostPort(host, strconv.Itoa(port+healthPortOffset)), nil
}

package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/common"
	"github.com/andrewaziz8/P2P-Image-Sharing-System/model"
	"github.com/andrewaziz8/P2P-Image-Sharing-System/wire"
)

// shareImageDeadline bounds one directory round trip, matching
// directorysrv's own proposeDeadline convention.
const shareImageDeadline = 5 * time.Second

var errNoDirectoryReachable = errors.New("cloudworker: no configured directory node accepted the share")

// publishShareImage tells the directory cluster that owner now shares
// id. It has no leader hint to chase (ShareImage's response, like
// PostPermissionUpdate's, is status-only), so on any failure or
// NotLeader it just tries the next configured address, backing off
// once it has cycled through all of them. Best-effort: a failure here
// means DiscoverPeers won't list this image yet, not that the embed
// itself failed, so callers only log the error.
func publishShareImage(ctx context.Context, addrs []string, owner string, id model.ImageID) error {
	if len(addrs) == 0 {
		return nil
	}
	backoff := common.DefaultBackoff()
	for {
		for _, addr := range addrs {
			if tryShareImage(ctx, addr, owner, id) == nil {
				return nil
			}
		}
		delay, retry := backoff.Next()
		if !retry {
			return errNoDirectoryReachable
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func tryShareImage(ctx context.Context, addr string, owner string, id model.ImageID) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	deadline := time.Now().Add(shareImageDeadline)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	payload, err := wire.EncodeShareImageRequest(wire.ShareImageRequest{Username: owner, ImageID: id})
	if err != nil {
		return err
	}
	if err := wire.WriteMessage(conn, wire.OpShareImage, payload); err != nil {
		return err
	}
	_, respPayload, err := wire.ReadMessage(conn)
	if err != nil {
		return err
	}
	resp, err := wire.DecodeStatusOnlyResponse(respPayload)
	if err != nil {
		return err
	}
	if resp.Status != wire.StatusOK {
		return errNoDirectoryReachable
	}
	return nil
}

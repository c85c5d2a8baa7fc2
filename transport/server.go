package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/andrewaziz8/P2P-Image-Sharing-System/common"
)

// MaxConnections is the per-node concurrent connection cap spec.md §5
// gives the peer listener; beyond it new connections are refused
// rather than the cap being enforced further downstream.
const MaxConnections = 1024

// Handlers dispatches each peer message type to the caller's logic.
// Any handler left nil causes that opcode to be rejected on receipt.
type Handlers struct {
	Thumbnail      func(ctx context.Context, req ThumbnailRequest) (ThumbnailResponse, error)
	ImageRequest   func(ctx context.Context, req ImageRequest) (ImageAck, error)
	PermissionPush func(ctx context.Context, req PermissionPush) (PermissionAck, error)
}

// Server runs the peer protocol's accept loop: one goroutine per
// connection, a per-message deadline, and a hard connection cap.
type Server struct {
	Handlers Handlers
	Conns    *ConnTable
	Logger   *zap.Logger

	tokens chan struct{}
}

func NewServer(h Handlers, logger *zap.Logger) *Server {
	return &Server{
		Handlers: h,
		Conns:    NewConnTable(),
		Logger:   logger,
		tokens:   make(chan struct{}, MaxConnections),
	}
}

// Serve accepts connections on ln until ctx is done or Accept fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case s.tokens <- struct{}{}:
			go s.handleConn(ctx, conn)
		default:
			conn.Close() // over MaxConnections: refuse rather than queue
		}
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { <-s.tokens }()
	defer conn.Close()
	common.TuneSocket(conn)

	var identity string
	for {
		conn.SetDeadline(time.Now().Add(OpDeadline))
		op, payload, err := ReadFrame(conn)
		if err != nil {
			if identity != "" {
				s.Conns.Remove(identity, conn)
			}
			return
		}
		if err := s.dispatch(ctx, conn, op, payload, &identity); err != nil {
			s.Logger.Warn("peer protocol error", zap.Error(err), zap.String("opcode", opName(op)))
			if identity != "" {
				s.Conns.Remove(identity, conn)
			}
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn, op Opcode, payload []byte, identity *string) error {
	opCtx, cancel := context.WithTimeout(ctx, OpDeadline)
	defer cancel()

	switch op {
	case OpThumbnailRequest:
		if s.Handlers.Thumbnail == nil {
			return errors.New("transport: no thumbnail handler")
		}
		req, err := DecodeThumbnailRequest(payload)
		if err != nil {
			return err
		}
		resp, err := s.Handlers.Thumbnail(opCtx, req)
		if err != nil {
			return err
		}
		return WriteFrame(conn, OpThumbnailResponse, EncodeThumbnailResponse(resp))

	case OpImageRequest:
		if s.Handlers.ImageRequest == nil {
			return errors.New("transport: no image request handler")
		}
		req, err := DecodeImageRequest(payload)
		if err != nil {
			return err
		}
		*identity = req.From
		s.Conns.Put(req.From, conn)
		ack, err := s.Handlers.ImageRequest(opCtx, req)
		if err != nil {
			return err
		}
		return WriteFrame(conn, OpImageAck, EncodeImageAck(ack))

	case OpPermissionPush:
		if s.Handlers.PermissionPush == nil {
			return errors.New("transport: no permission push handler")
		}
		req, err := DecodePermissionPush(payload)
		if err != nil {
			return err
		}
		ack, err := s.Handlers.PermissionPush(opCtx, req)
		if err != nil {
			return err
		}
		return WriteFrame(conn, OpPermissionAck, EncodePermissionAck(ack))

	default:
		return errors.New("transport: unknown opcode")
	}
}

func opName(op Opcode) string {
	switch op {
	case OpThumbnailRequest:
		return "ThumbnailRequest"
	case OpImageRequest:
		return "ImageRequest"
	case OpPermissionPush:
		return "PermissionPush"
	default:
		return "unknown"
	}
}

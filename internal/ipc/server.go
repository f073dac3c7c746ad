package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"dynpower/internal/logging"
)

// Server exposes a handler via JSON-RPC over a Unix domain socket.
type Server struct {
	path     string
	name     string
	logger   *slog.Logger
	listener net.Listener
	register func(*rpc.Server, Peer) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDaemonServer serves h as the Dynpower service. The socket is world
// writable so unprivileged sessions can reach it.
func NewDaemonServer(ctx context.Context, path string, h DaemonHandler, logger *slog.Logger) (*Server, error) {
	if h == nil {
		return nil, errors.New("ipc server requires daemon handler")
	}
	logger = logging.NewComponentLogger(logger, "ipc")
	return newServer(ctx, path, DaemonServiceName, 0o666, logger, func(srv *rpc.Server, peer Peer) error {
		return srv.RegisterName(DaemonServiceName, &daemonService{handler: h, logger: logger, ctx: ctx, peer: peer})
	})
}

// NewSessionServer serves h as the DynpowerSession service, reachable only
// by the owning user.
func NewSessionServer(ctx context.Context, path string, h SessionHandler, logger *slog.Logger) (*Server, error) {
	if h == nil {
		return nil, errors.New("ipc server requires session handler")
	}
	logger = logging.NewComponentLogger(logger, "ipc")
	return newServer(ctx, path, SessionServiceName, 0o600, logger, func(srv *rpc.Server, peer Peer) error {
		return srv.RegisterName(SessionServiceName, &sessionService{handler: h, logger: logger, ctx: ctx})
	})
}

func newServer(ctx context.Context, path, name string, mode os.FileMode, logger *slog.Logger, register func(*rpc.Server, Peer) error) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, mode); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	// Registration is validated once up front so a bad receiver fails at
	// startup instead of on the first connection.
	if err := register(rpc.NewServer(), Peer{}); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:     path,
		name:     name,
		logger:   logger,
		listener: listener,
		register: register,
		ctx:      serverCtx,
		cancel:   cancel,
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening",
		logging.String("socket", s.path),
		logging.String("service", s.name),
	)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the process if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.serveConn(c)
			}(conn)
		}
	}()
}

func (s *Server) serveConn(conn net.Conn) {
	rpcServer := rpc.NewServer()
	if err := s.register(rpcServer, peerCredentials(conn)); err != nil {
		s.logger.Warn("register connection service failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_register_failed"),
			logging.String(logging.FieldImpact, "client request rejected"),
		)
		_ = conn.Close()
		return
	}
	go func() {
		<-s.ctx.Done()
		_ = conn.Close()
	}()
	rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

// peerCredentials reads SO_PEERCRED from a Unix socket connection.
func peerCredentials(conn net.Conn) Peer {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return Peer{}
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return Peer{}
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credErr != nil || cred == nil {
		return Peer{}
	}
	return Peer{UID: int(cred.Uid), PID: int(cred.Pid), Known: true}
}

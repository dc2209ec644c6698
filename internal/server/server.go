package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"login-server/internal/models"
	"login-server/internal/service"
	"login-server/internal/settings"

	"go.uber.org/zap"
)

// ListenConfig is everything the TCP frontend reads from the Lua
// settings at startup.
type ListenConfig struct {
	Addr      string
	StallTime time.Duration

	Rules AccessRules

	ConnectCount    int
	ConnectInterval time.Duration
	ConnectLockout  time.Duration

	DebugSockets bool
}

// ListenConfigFromSettings builds the listener configuration from the
// network and logging sections of the settings namespace.
func ListenConfigFromSettings(engine *settings.Engine, logger *zap.Logger) (ListenConfig, error) {
	var cfg ListenConfig

	host, err := engine.GetString("network.LOGIN_AUTH_IP")
	if err != nil {
		return cfg, err
	}
	port, err := engine.GetUint16("network.LOGIN_AUTH_PORT")
	if err != nil {
		return cfg, err
	}
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)

	if cfg.StallTime, err = engine.GetSeconds("network.TCP_STALL_TIME"); err != nil {
		return cfg, err
	}

	if cfg.Rules.Enabled, err = engine.GetBool("network.TCP_ENABLE_IP_RULES"); err != nil {
		return cfg, err
	}
	order, err := engine.GetString("network.TCP_ORDER")
	if err != nil {
		return cfg, err
	}
	cfg.Rules.Order = ParseAccessOrder(order)

	allow, err := engine.GetString("network.TCP_ALLOW")
	if err != nil {
		return cfg, err
	}
	deny, err := engine.GetString("network.TCP_DENY")
	if err != nil {
		return cfg, err
	}
	cfg.Rules.Allow = ParseAccessList("allow", allow, logger)
	cfg.Rules.Deny = ParseAccessList("deny", deny, logger)

	count, err := engine.GetInt("network.TCP_CONNECT_COUNT")
	if err != nil {
		return cfg, err
	}
	cfg.ConnectCount = int(count)
	if cfg.ConnectInterval, err = engine.GetMillis("network.TCP_CONNECT_INTERVAL"); err != nil {
		return cfg, err
	}
	if cfg.ConnectLockout, err = engine.GetMillis("network.TCP_CONNECT_LOCKOUT"); err != nil {
		return cfg, err
	}

	tcpDebug, err := engine.GetBool("network.TCP_DEBUG")
	if err != nil {
		return cfg, err
	}
	debugSockets, err := engine.GetBool("logging.DEBUG_SOCKETS")
	if err != nil {
		return cfg, err
	}
	cfg.DebugSockets = tcpDebug || debugSockets

	return cfg, nil
}

// Server is the TCP login frontend.
type Server struct {
	cfg      ListenConfig
	auth     service.AuthService
	throttle *ConnThrottle
	logger   *zap.Logger

	listener net.Listener
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New creates a Server; Start binds and begins accepting.
func New(cfg ListenConfig, auth service.AuthService, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		auth:     auth,
		throttle: NewConnThrottle(cfg.ConnectCount, cfg.ConnectInterval, cfg.ConnectLockout),
		logger:   logger.Named("LoginTCP"),
		shutdown: make(chan struct{}),
	}
}

// Start binds the listener and launches the accept loop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind login listener on %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener
	s.logger.Info("Login server listening", zap.String("addr", s.cfg.Addr))

	s.wg.Add(2)
	go s.acceptLoop()
	go s.housekeeping()
	return nil
}

// Stop closes the listener and waits for in-flight connections, up to
// the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	close(s.shutdown)
	if s.listener != nil {
		_ = s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Login server stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Login server shutdown timed out", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			s.logger.Error("Accept failed", zap.Error(err))
			continue
		}

		addr := remoteAddr(conn)
		if !s.admit(addr) {
			_ = conn.Close()
			continue
		}

		if s.cfg.DebugSockets {
			s.logger.Debug("Connection accepted", zap.Stringer("remote", addr))
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn, addr)
		}()
	}
}

// admit applies the IP rules and the connect throttle.
func (s *Server) admit(addr netip.Addr) bool {
	if !s.cfg.Rules.Allowed(addr) {
		rejectedConnectionsTotal.WithLabelValues("ip_rules").Inc()
		if s.cfg.DebugSockets {
			s.logger.Info("Connection rejected by access rules", zap.Stringer("remote", addr))
		}
		return false
	}
	if !s.throttle.Allow(addr) {
		rejectedConnectionsTotal.WithLabelValues("throttle").Inc()
		s.logger.Warn("Connection rejected by connect throttle", zap.Stringer("remote", addr))
		return false
	}
	return true
}

// housekeeping prunes the throttle map until shutdown.
func (s *Server) housekeeping() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.throttle.Prune()
		}
	}
}

func (s *Server) handleConn(conn net.Conn, addr netip.Addr) {
	defer conn.Close()

	if s.cfg.StallTime > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.StallTime))
	}

	frame := make([]byte, RequestFrameSize)
	if _, err := io.ReadFull(conn, frame); err != nil {
		loginRequestsTotal.WithLabelValues("unknown", "malformed").Inc()
		if s.cfg.DebugSockets {
			s.logger.Debug("Short read on login frame", zap.Stringer("remote", addr), zap.Error(err))
		}
		_, _ = conn.Write([]byte{ResultLoginError})
		return
	}

	req, err := ParseRequest(frame)
	if err != nil {
		loginRequestsTotal.WithLabelValues("unknown", "malformed").Inc()
		s.logger.Warn("Malformed login frame", zap.Stringer("remote", addr), zap.Error(err))
		_, _ = conn.Write([]byte{ResultLoginError})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch req.Op {
	case OpLoginAttempt:
		s.handleAttempt(ctx, conn, req, addr)
	case OpCreateAccount:
		s.handleCreate(ctx, conn, req)
	case OpChangePassword:
		s.handleChangePassword(ctx, conn, req)
	default:
		loginRequestsTotal.WithLabelValues("unknown", "error").Inc()
		s.logger.Warn("Unknown login op", zap.Uint8("op", req.Op), zap.Stringer("remote", addr))
		_, _ = conn.Write([]byte{ResultLoginError})
	}
}

func (s *Server) handleAttempt(ctx context.Context, conn net.Conn, req Request, addr netip.Addr) {
	session, err := s.auth.AttemptLogin(ctx, req.Username, req.Password, addr.String())
	if err != nil {
		loginRequestsTotal.WithLabelValues("attempt", attemptFailureLabel(err)).Inc()
		_, _ = conn.Write([]byte{ResultLoginError})
		return
	}
	loginRequestsTotal.WithLabelValues("attempt", "success").Inc()
	_, _ = conn.Write(EncodeLoginSuccess(session.AccountID))
}

func (s *Server) handleCreate(ctx context.Context, conn net.Conn, req Request) {
	if _, err := s.auth.CreateAccount(ctx, req.Username, req.Password); err != nil {
		loginRequestsTotal.WithLabelValues("create", "error").Inc()
		_, _ = conn.Write([]byte{ResultCreateError})
		return
	}
	loginRequestsTotal.WithLabelValues("create", "success").Inc()
	_, _ = conn.Write([]byte{ResultCreateSuccess})
}

// handleChangePassword verifies the credentials in the frame, then reads
// one more 16 byte field holding the new password.
func (s *Server) handleChangePassword(ctx context.Context, conn net.Conn, req Request) {
	field := make([]byte, 16)
	if _, err := io.ReadFull(conn, field); err != nil {
		loginRequestsTotal.WithLabelValues("change_password", "malformed").Inc()
		_, _ = conn.Write([]byte{ResultChangePasswordError})
		return
	}
	newPassword, err := decodeField(field)
	if err != nil {
		loginRequestsTotal.WithLabelValues("change_password", "malformed").Inc()
		_, _ = conn.Write([]byte{ResultChangePasswordError})
		return
	}

	if err := s.auth.ChangePassword(ctx, req.Username, req.Password, newPassword); err != nil {
		loginRequestsTotal.WithLabelValues("change_password", "error").Inc()
		_, _ = conn.Write([]byte{ResultChangePasswordError})
		return
	}
	loginRequestsTotal.WithLabelValues("change_password", "success").Inc()
	_, _ = conn.Write([]byte{ResultChangePasswordSuccess})
}

func attemptFailureLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrAccountBanned):
		return "banned"
	case errors.Is(err, models.ErrAccountDisabled):
		return "disabled"
	case errors.Is(err, models.ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "error"
	}
}

// remoteAddr extracts the peer address; the zero Addr is returned for
// non-TCP test connections.
func remoteAddr(conn net.Conn) netip.Addr {
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return tcpAddr.AddrPort().Addr().Unmap()
	}
	return netip.Addr{}
}

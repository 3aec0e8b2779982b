// Package server owns the top-level App: the TCP accept loop and graceful
// shutdown sequence. Generalized from the teacher's App (which owned an
// http.Server plus websocket upgrade handler) onto a raw net.Listener, since
// this protocol has no HTTP handshake beyond the one-byte version header
// internal/transportconn reads right after accept.
package server

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rhythmmp/server/internal/collab"
	"github.com/rhythmmp/server/internal/registry"
	"github.com/rhythmmp/server/internal/session"
)

// App owns the listener, the shared Registry, and the goroutine per
// connection. A zero App is not usable; build one with NewApp.
type App struct {
	logger *slog.Logger
	cfg    *collab.ServerConfig
	collab *collab.Collaborators
	reg    *registry.Registry
	timing session.Timings

	listener net.Listener
	ready    chan struct{}
	wg       sync.WaitGroup
	ctx      context.Context
}

// NewApp wires a Registry and Collaborators bundle into an accept loop ready
// to Run. reg and collaborators are expected to already be constructed by
// the caller (cmd/rhythmmp-server/main.go), mirroring how the teacher's
// NewApp received a fully-built config.Config rather than assembling one
// itself from flags.
func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *collab.ServerConfig, reg *registry.Registry, collaborators *collab.Collaborators) *App {
	return &App{
		logger: logger.With(slog.String("component", "server")),
		cfg:    cfg,
		collab: collaborators,
		reg:    reg,
		timing: timingsFromConfig(cfg),
		ctx:    rootCtx,
		ready:  make(chan struct{}),
	}
}

// Addr blocks until the listener is bound (or ctx is done) and returns its
// address. Mainly useful in tests that bind to ":0" and need the chosen
// port.
func (a *App) Addr() net.Addr {
	select {
	case <-a.ready:
		return a.listener.Addr()
	case <-a.ctx.Done():
		return nil
	}
}

func timingsFromConfig(cfg *collab.ServerConfig) session.Timings {
	t := session.DefaultTimings()
	if cfg.Session.HeartbeatInterval > 0 {
		t.HeartbeatInterval = cfg.Session.HeartbeatInterval
	}
	if cfg.Session.PongInterval > 0 {
		t.PongInterval = cfg.Session.PongInterval
	}
	if cfg.Session.IdleTimeout > 0 {
		t.IdleTimeout = cfg.Session.IdleTimeout
	}
	return t
}

// Run binds the configured address and accepts connections until ctx is
// cancelled, blocking until Shutdown completes.
func (a *App) Run() error {
	ln, err := net.Listen("tcp", a.cfg.Server.Address)
	if err != nil {
		return err
	}
	a.listener = ln
	close(a.ready)
	a.logger.Info("server listening", slog.String("addr", ln.Addr().String()))

	reaperCtx, cancelReaper := context.WithCancel(a.ctx)
	defer cancelReaper()
	go a.reg.RunReaper(reaperCtx)

	go a.acceptLoop()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) acceptLoop() {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return
			default:
				a.logger.Error("accept failed", slog.Any("error", err))
				return
			}
		}
		a.wg.Add(1)
		go a.handleConn(conn)
	}
}

func (a *App) handleConn(conn net.Conn) {
	defer a.wg.Done()

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			a.logger.Warn("failed to set TCP_NODELAY", slog.Any("error", err))
		}
	}

	sess := session.New(conn, a.reg, a.collab, a.logger, a.timing)
	a.reg.RegisterSession(sess)
	a.logger.Debug("accepted connection", slog.String("session", sess.ID().String()), slog.String("remote", conn.RemoteAddr().String()))

	sess.Run(a.ctx)
	<-sess.Done()
}

// Shutdown stops accepting new connections and waits up to 10 seconds for
// in-flight connection goroutines to return. Sessions do not end on context
// cancellation, so a connection the client keeps open holds that wait until
// the timeout.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down server")
	if a.listener != nil {
		_ = a.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		a.logger.Warn("shutdown timed out waiting for connections to drain")
	}
	a.logger.Info("server shut down")
	return nil
}

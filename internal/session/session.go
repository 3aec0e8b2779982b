// Package session implements the per-connection lifecycle: reader, writer,
// and heartbeat goroutines coordinating over last_recv/the send queue/alive,
// plus the command processor in dispatch.go. Generalized from the teacher's
// pkg/transport.Connection readPump/writePump/Close shape (§4.3) onto the
// length-prefixed binary protocol and the Authenticate/Room semantics this
// server layers on top of it.
package session

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhythmmp/server/internal/collab"
	"github.com/rhythmmp/server/internal/domain"
	"github.com/rhythmmp/server/internal/registry"
	"github.com/rhythmmp/server/internal/sendqueue"
	"github.com/rhythmmp/server/internal/transportconn"
	"github.com/rhythmmp/server/internal/wire"
)

// Timings bundles the heartbeat/idle constants spec §4.3 leaves as
// implementer choice.
type Timings struct {
	HeartbeatInterval time.Duration // how often the heartbeat loop wakes (~1s)
	PongInterval      time.Duration // how often a keepalive Pong is sent (~5s)
	IdleTimeout       time.Duration // last_recv age that kills the session (~30s)
	WriteDeadline     time.Duration // send-queue dequeue deadline (~100ms)
}

// DefaultTimings matches the values spec §4.3 suggests.
func DefaultTimings() Timings {
	return Timings{
		HeartbeatInterval: time.Second,
		PongInterval:      5 * time.Second,
		IdleTimeout:       30 * time.Second,
		WriteDeadline:     100 * time.Millisecond,
	}
}

// Session owns one TCP connection from accept to termination.
type Session struct {
	id     wire.SessionID
	conn   *transportconn.Conn
	queue  *sendqueue.Queue
	reg    *registry.Registry
	collab *collab.Collaborators
	logger *slog.Logger
	tracer trace.Tracer
	timing Timings

	version byte

	user atomic.Pointer[domain.User]

	alive    atomic.Bool
	stopOnce sync.Once
	ioWG     sync.WaitGroup

	lastRecvMu sync.Mutex
	lastRecv   time.Time

	done chan struct{}
}

var _ registry.Session = (*Session)(nil)

// New wraps an accepted net.Conn. The caller must call Run to start its
// goroutines and should RegisterSession it with the registry first.
func New(conn net.Conn, reg *registry.Registry, collaborators *collab.Collaborators, logger *slog.Logger, timing Timings) *Session {
	id := newSessionID()
	s := &Session{
		id:     id,
		reg:    reg,
		collab: collaborators,
		queue:  sendqueue.New(sendqueue.DefaultCapacity),
		tracer: otel.Tracer("rhythmmp/session"),
		timing: timing,
		done:   make(chan struct{}),
	}
	s.logger = logger.With(slog.String("session", id.String()))
	s.conn = transportconn.New(conn, s.logger)
	s.lastRecv = time.Now()
	return s
}

func newSessionID() wire.SessionID {
	u := uuid.New()
	return wire.SessionID{
		Lo: binary.BigEndian.Uint64(u[0:8]),
		Hi: binary.BigEndian.Uint64(u[8:16]),
	}
}

// ID returns this session's identifier.
func (s *Session) ID() wire.SessionID { return s.id }

// User returns the bound domain user, or nil before Authenticate succeeds.
func (s *Session) User() *domain.User { return s.user.Load() }

// TrySend enqueues cmd for delivery, silently dropping it if the send queue
// is closed or full (spec §4.2's "drop-newest" policy).
func (s *Session) TrySend(cmd wire.ServerCommand) { s.queue.Enqueue(cmd) }

// Done returns a channel closed once the session has fully terminated,
// letting a caller of Run block until cleanup is complete.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stop begins session termination. Safe to call multiple times and from any
// goroutine; satisfies domain.SessionBinder so a User can tell its bound
// session to stop on reconnect-driven session swap.
func (s *Session) Stop() { s.markLost() }

// Run starts the reader, writer, and heartbeat goroutines. It returns
// immediately; the session terminates asynchronously.
func (s *Session) Run(ctx context.Context) {
	s.alive.Store(true)
	s.ioWG.Add(2)
	go s.readLoop(ctx)
	go s.writeLoop()
	go s.heartbeatLoop()
}

func (s *Session) readLoop(ctx context.Context) {
	defer s.ioWG.Done()

	version, err := s.conn.ReadVersion()
	if err != nil {
		s.markLost()
		return
	}
	s.version = version
	s.touch()

	for {
		cmd, err := s.conn.ReadCommand()
		if err != nil {
			s.logger.Debug("read loop ending", slog.Any("error", err))
			s.markLost()
			return
		}
		s.touch()

		if s.collab.Filter != nil && !s.collab.Filter.Allow(ctx, s.User(), cmd) {
			cmd = wire.ClientCommand{Type: wire.ClientPing}
		}

		if !s.dispatch(ctx, cmd) {
			s.markLost()
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer s.ioWG.Done()

	for {
		cmd, ok, closed := s.queue.Dequeue(s.timing.WriteDeadline)
		if !ok {
			if closed {
				return
			}
			continue
		}
		if err := s.conn.WriteCommand(cmd); err != nil {
			s.logger.Debug("write loop ending", slog.Any("error", err))
			s.markLost()
			return
		}
	}
}

func (s *Session) heartbeatLoop() {
	ticker := time.NewTicker(s.timing.HeartbeatInterval)
	defer ticker.Stop()

	lastPong := time.Now()
	for {
		select {
		case <-s.conn.Done():
			return
		case now := <-ticker.C:
			if !s.alive.Load() {
				return
			}
			if now.Sub(lastPong) >= s.timing.PongInterval {
				s.TrySend(wire.NewPong())
				lastPong = now
			}
			if now.Sub(s.recvTime()) > s.timing.IdleTimeout {
				s.logger.Debug("session idle timeout")
				s.markLost()
				return
			}
		}
	}
}

func (s *Session) touch() {
	s.lastRecvMu.Lock()
	s.lastRecv = time.Now()
	s.lastRecvMu.Unlock()
}

func (s *Session) recvTime() time.Time {
	s.lastRecvMu.Lock()
	defer s.lastRecvMu.Unlock()
	return s.lastRecv
}

// markLost is the single idempotent transition from alive to not: it shuts
// down local resources and signals the registry's lost-connection queue
// exactly once, regardless of which of reader/writer/heartbeat/Stop
// triggered it. The underlying socket's fd is only freed once both the
// reader and the writer have actually returned (CloseRead only unblocks a
// parked read; the writer still needs to drain and exit on its own), so the
// full Close happens in a goroutine that waits on ioWG rather than inline
// here — markLost itself runs on the reader/writer/heartbeat goroutine that
// detected the failure and must not block on its own exit.
func (s *Session) markLost() {
	if !s.alive.CompareAndSwap(true, false) {
		return
	}
	s.stopOnce.Do(func() {
		s.queue.Close()
		s.conn.CloseRead()
		go func() {
			s.ioWG.Wait()
			s.conn.Close()
			close(s.done)
		}()
	})
	s.reg.PushLostConnection(s.id)
}

// startSpan is a thin wrapper used by dispatch.go to trace one command's
// processing, generalized from an OpenTelemetry HTTP middleware.
func (s *Session) startSpan(ctx context.Context, cmdType wire.ClientCommandType) (context.Context, trace.Span) {
	spanCtx, span := s.tracer.Start(ctx, "rhythmmp.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rhythmmp.session_id", s.id.String()),
			attribute.Int("rhythmmp.command_type", int(cmdType)),
		),
	)
	return spanCtx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhythmmp/server/internal/collab"
	"github.com/rhythmmp/server/internal/domain"
	"github.com/rhythmmp/server/internal/registry"
	"github.com/rhythmmp/server/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAuth maps a handful of fixed tokens to identities, so tests don't need
// to sign real JWTs.
type stubAuth struct{}

func (stubAuth) Authenticate(_ context.Context, token string) (collab.Identity, error) {
	switch token {
	case "alice":
		return collab.Identity{UserID: 1, Name: "alice", Language: "en"}, nil
	case "bob":
		return collab.Identity{UserID: 2, Name: "bob", Language: "en"}, nil
	default:
		return collab.Identity{}, errors.New("unknown token")
	}
}

func testCollaborators() *collab.Collaborators {
	records := collab.NewStaticRecordLookup()
	// Pre-stage results for both test users against chart 1, standing in for
	// whatever out-of-scope scoring component would normally produce a
	// Record by the time a client's Played command arrives.
	records.Put(1, 1, domain.Record{Score: 950000, Accuracy: 0.97, FullCombo: true})
	records.Put(2, 1, domain.Record{Score: 900000, Accuracy: 0.95})

	return &collab.Collaborators{
		Auth:     stubAuth{},
		Charts:   collab.NewStaticChartLookup(map[int32]collab.ChartInfo{1: {Name: "song-1"}}),
		Records:  records,
		Bans:     collab.NewInMemoryBanSet(),
		RoomBans: collab.NewInMemoryRoomBanSet(),
		Config:   collab.NewStaticConfig(&collab.ServerConfig{Rooms: collab.RoomsSection{CreationEnabled: true}}),
		Events:   collab.NewLogEventSink(discardLogger()),
	}
}

func fastTimings() Timings {
	return Timings{
		HeartbeatInterval: 20 * time.Millisecond,
		PongInterval:      50 * time.Millisecond,
		IdleTimeout:       200 * time.Millisecond,
		WriteDeadline:     10 * time.Millisecond,
	}
}

type harness struct {
	t       *testing.T
	sess    *Session
	reg     *registry.Registry
	conn    net.Conn
	readBuf []byte
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, registry.New(discardLogger(), prometheus.NewRegistry(), 50*time.Millisecond))
}

// newHarnessOn starts a session against an existing registry, so several
// harnesses can share rooms and users.
func newHarnessOn(t *testing.T, reg *registry.Registry) *harness {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	s := New(serverConn, reg, testCollaborators(), discardLogger(), fastTimings())
	reg.RegisterSession(s)
	s.Run(context.Background())

	return &harness{t: t, sess: s, reg: reg, conn: clientConn}
}

func (h *harness) handshake() {
	h.t.Helper()
	if _, err := h.conn.Write([]byte{1}); err != nil {
		h.t.Fatalf("version handshake: %v", err)
	}
}

func (h *harness) sendCommand(cmd wire.ClientCommand) {
	h.t.Helper()
	w := wire.NewWriter(64)
	w.WriteClientCommand(cmd)
	if err := wire.WriteFrame(h.conn, w.Bytes()); err != nil {
		h.t.Fatalf("write command: %v", err)
	}
}

func (h *harness) recvCommand() wire.ServerCommand {
	h.t.Helper()
	h.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, err := wire.ReadFrame(h.conn)
	if err != nil {
		h.t.Fatalf("read frame: %v", err)
	}
	cmd, err := wire.NewReader(payload).ReadServerCommand()
	if err != nil {
		h.t.Fatalf("decode server command: %v", err)
	}
	return cmd
}

// recvUntil reads up to ten frames until it sees want, skipping keepalive
// Pongs and the room broadcasts a handler sends after its acknowledgement;
// any other command type fails the test.
func (h *harness) recvUntil(want wire.ServerCommandType) wire.ServerCommand {
	h.t.Helper()
	for i := 0; i < 10; i++ {
		cmd := h.recvCommand()
		if cmd.Type == want {
			return cmd
		}
		switch cmd.Type {
		case wire.ServerPong, wire.ServerMessage, wire.ServerChangeState, wire.ServerChangeHost, wire.ServerOnJoinRoom:
		default:
			h.t.Fatalf("unexpected command type %d while waiting for %d", cmd.Type, want)
		}
	}
	h.t.Fatalf("never saw command type %d", want)
	return wire.ServerCommand{}
}

func TestAuthenticateAssignsUserAndRepliesOK(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	h.sendCommand(wire.ClientCommand{Type: wire.ClientAuthenticate, Token: "alice"})

	reply := h.recvUntil(wire.ServerAuthenticate)
	if !reply.OK {
		t.Fatalf("expected authenticate to succeed, got error %q", reply.Error)
	}
	if reply.AuthUser.ID != 1 || reply.AuthUser.Name != "alice" {
		t.Fatalf("unexpected user info: %+v", reply.AuthUser)
	}
}

func TestAuthenticateRejectsUnknownToken(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	h.sendCommand(wire.ClientCommand{Type: wire.ClientAuthenticate, Token: "nope"})

	reply := h.recvUntil(wire.ServerAuthenticate)
	if reply.OK {
		t.Fatal("expected authenticate to fail for an unknown token")
	}
}

func TestCommandBeforeAuthenticateTerminatesSession(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	h.sendCommand(wire.ClientCommand{Type: wire.ClientChat, Message: "hi"})

	h.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := wire.ReadFrame(h.conn)
	if err == nil {
		t.Fatal("expected the connection to be torn down after a pre-auth command")
	}
}

func TestCreateJoinRoomRoundTrip(t *testing.T) {
	hostConn := newHarness(t)
	hostConn.handshake()
	hostConn.sendCommand(wire.ClientCommand{Type: wire.ClientAuthenticate, Token: "alice"})
	hostConn.recvUntil(wire.ServerAuthenticate)

	hostConn.sendCommand(wire.ClientCommand{Type: wire.ClientCreateRoom, RoomID: "room-1"})
	ack := hostConn.recvUntil(wire.ServerCreateRoom)
	if !ack.OK {
		t.Fatalf("expected room creation to succeed, got %q", ack.Error)
	}

	guestConn := newHarnessOn(t, hostConn.reg)
	guestConn.handshake()
	guestConn.sendCommand(wire.ClientCommand{Type: wire.ClientAuthenticate, Token: "bob"})
	guestConn.recvUntil(wire.ServerAuthenticate)

	guestConn.sendCommand(wire.ClientCommand{Type: wire.ClientJoinRoom, RoomID: "room-1"})
	joinOK := guestConn.recvUntil(wire.ServerJoinRoom)
	if !joinOK.OK {
		t.Fatalf("expected join to succeed, got %q", joinOK.Error)
	}
	if len(joinOK.JoinResp.Users) != 2 {
		t.Fatalf("expected 2 users in the room snapshot, got %d", len(joinOK.JoinResp.Users))
	}

	hostNotice := hostConn.recvUntil(wire.ServerOnJoinRoom)
	if hostNotice.JoinUser.ID != 2 {
		t.Fatalf("expected the host to be notified about user 2, got %+v", hostNotice.JoinUser)
	}
}

func TestJoinRoomUnknownRoomErrors(t *testing.T) {
	h := newHarness(t)
	h.handshake()
	h.sendCommand(wire.ClientCommand{Type: wire.ClientAuthenticate, Token: "alice"})
	h.recvUntil(wire.ServerAuthenticate)

	h.sendCommand(wire.ClientCommand{Type: wire.ClientJoinRoom, RoomID: "does-not-exist"})
	reply := h.recvUntil(wire.ServerJoinRoom)
	if reply.OK {
		t.Fatal("expected join against an unknown room to fail")
	}
}

func TestHeartbeatSendsPongsAndIdleTimeoutEndsSession(t *testing.T) {
	reg := registry.New(discardLogger(), prometheus.NewRegistry(), 50*time.Millisecond)
	serverConn, clientConn := net.Pipe()
	timing := Timings{
		HeartbeatInterval: 10 * time.Millisecond,
		PongInterval:      15 * time.Millisecond,
		IdleTimeout:       60 * time.Millisecond,
		WriteDeadline:     10 * time.Millisecond,
	}
	s := New(serverConn, reg, testCollaborators(), discardLogger(), timing)
	reg.RegisterSession(s)
	s.Run(context.Background())

	if _, err := clientConn.Write([]byte{1}); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	clientConn.SetReadDeadline(time.Now().Add(1 * time.Second))
	payload, err := wire.ReadFrame(clientConn)
	if err != nil {
		t.Fatalf("expected at least one pong before idle timeout: %v", err)
	}
	cmd, err := wire.NewReader(payload).ReadServerCommand()
	if err != nil || cmd.Type != wire.ServerPong {
		t.Fatalf("expected a Pong, got %+v err=%v", cmd, err)
	}

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, err := wire.ReadFrame(clientConn)
		if err != nil {
			return
		}
	}
}

package session

import (
	"context"
	"fmt"

	"github.com/rhythmmp/server/internal/domain"
	"github.com/rhythmmp/server/internal/wire"
)

// dispatch processes one decoded ClientCommand, grounded on the reference
// implementation's process() function in session.rs. It returns false if the
// command is a protocol error the session must not survive (spec §4.4's
// "until authenticated, only Authenticate is accepted", and an unrecognized
// discriminant).
func (s *Session) dispatch(ctx context.Context, cmd wire.ClientCommand) bool {
	spanCtx, span := s.startSpan(ctx, cmd.Type)
	var derr error
	defer func() { endSpan(span, derr) }()

	user := s.User()
	if user == nil {
		if cmd.Type != wire.ClientAuthenticate {
			derr = fmt.Errorf("command %d received before authenticate", cmd.Type)
			return false
		}
		s.handleAuthenticate(spanCtx, cmd)
		return true
	}

	switch cmd.Type {
	case wire.ClientPing:
		s.TrySend(wire.NewPong())
	case wire.ClientAuthenticate:
		s.TrySend(wire.NewAuthenticateErr("already authenticated"))
	case wire.ClientChat:
		s.handleChat(user, cmd)
	case wire.ClientTouches:
		s.handleTouches(user, cmd)
	case wire.ClientJudges:
		s.handleJudges(user, cmd)
	case wire.ClientCreateRoom:
		s.handleCreateRoom(user, cmd)
	case wire.ClientJoinRoom:
		s.handleJoinRoom(user, cmd)
	case wire.ClientLeaveRoom:
		s.handleLeaveRoom(user)
	case wire.ClientLockRoom:
		s.handleLockRoom(user, cmd)
	case wire.ClientCycleRoom:
		s.handleCycleRoom(user, cmd)
	case wire.ClientSelectChart:
		s.handleSelectChart(spanCtx, user, cmd)
	case wire.ClientRequestStart:
		s.handleRequestStart(user)
	case wire.ClientReady:
		s.handleReady(user)
	case wire.ClientCancelReady:
		s.handleCancelReady(user)
	case wire.ClientPlayed:
		s.handlePlayed(spanCtx, user, cmd)
	case wire.ClientAbort:
		s.handleAbort(user)
	default:
		derr = fmt.Errorf("unknown client command type %d", cmd.Type)
		return false
	}
	return true
}

func (s *Session) handleAuthenticate(ctx context.Context, cmd wire.ClientCommand) {
	identity, err := s.collab.Auth.Authenticate(ctx, cmd.Token)
	if err != nil {
		s.TrySend(wire.NewAuthenticateErr("invalid token"))
		return
	}

	user, _ := s.reg.AuthenticateUser(identity.UserID, identity.Name, identity.Language, s)
	s.user.Store(user)

	if s.collab.Bans != nil && s.collab.Bans.IsBanned(identity.UserID) {
		s.TrySend(wire.NewAuthenticateErr("banned"))
		s.Stop()
		return
	}

	var roomState *wire.ClientRoomState
	if room := user.Room(); room != nil {
		cs := room.ClientState(user)
		roomState = &cs
	}
	s.TrySend(wire.NewAuthenticateOK(user.Info(), roomState))
}

func (s *Session) handleChat(user *domain.User, cmd wire.ClientCommand) {
	room := user.Room()
	if room == nil {
		s.TrySend(wire.NewSimpleErr(wire.ServerChat, "not-in-room"))
		return
	}
	s.TrySend(wire.NewSimpleOK(wire.ServerChat))
	room.Send(wire.NewChatMessage(user.ID, cmd.Message))
}

// handleTouches and handleJudges are replies-never commands (spec §4.4):
// they either land as no-ops (not in a room, or the room hasn't gone live)
// or fan out to monitors only.
func (s *Session) handleTouches(user *domain.User, cmd wire.ClientCommand) {
	room := user.Room()
	if room == nil || !acceptsGameplayTraffic(room) {
		return
	}
	if len(cmd.Frames) > 0 {
		user.SetGameTime(cmd.Frames[len(cmd.Frames)-1].Time)
	}
	room.BroadcastMonitors(wire.NewTouches(user.ID, cmd.Frames))
}

func (s *Session) handleJudges(user *domain.User, cmd wire.ClientCommand) {
	room := user.Room()
	if room == nil || !acceptsGameplayTraffic(room) {
		return
	}
	room.BroadcastMonitors(wire.NewJudges(user.ID, cmd.Judges))
}

// acceptsGameplayTraffic gates Touches/Judges on the room's live flag, not on
// its state-machine kind: spec.md's GLOSSARY defines Live as "a cosmetic room
// flag ... it does not affect the state machine", and the reference
// implementation's session.rs checks room.is_live() here, set once and for
// all at monitor-join time, independent of SelectChart/WaitForReady/Playing.
func acceptsGameplayTraffic(room *domain.Room) bool {
	return room.IsLive()
}

func (s *Session) handleCreateRoom(user *domain.User, cmd wire.ClientCommand) {
	if s.collab.Config != nil && !s.collab.Config.RoomCreationEnabled() {
		s.TrySend(wire.NewSimpleErr(wire.ServerCreateRoom, "room-creation-disabled"))
		return
	}
	if user.Room() != nil {
		s.TrySend(wire.NewSimpleErr(wire.ServerCreateRoom, "already-in-room"))
		return
	}
	room, created := s.reg.CreateRoom(cmd.RoomID, user, s.collab.Events)
	if !created {
		s.TrySend(wire.NewSimpleErr(wire.ServerCreateRoom, "room-exists"))
		return
	}
	user.SetRoom(room)
	if s.collab.Events != nil {
		s.collab.Events.RoomCreated(room.ID, user.Info())
	}
	s.TrySend(wire.NewSimpleOK(wire.ServerCreateRoom))
	room.Send(wire.NewCreateRoomMessage(user.ID))
}

func (s *Session) handleJoinRoom(user *domain.User, cmd wire.ClientCommand) {
	room, ok := s.reg.GetRoom(cmd.RoomID)
	if !ok {
		s.TrySend(wire.NewJoinRoomErr("no-such-room"))
		return
	}
	if cmd.Monitor && (s.collab.Config == nil || !s.collab.Config.CanMonitor(user.ID)) {
		s.TrySend(wire.NewJoinRoomErr("cannot-monitor"))
		return
	}
	if user.Room() != nil {
		s.TrySend(wire.NewJoinRoomErr("already-in-room"))
		return
	}
	// Ban-query order per spec.md §9: global ban, then per-room ban, then
	// locked, then full.
	if s.collab.Bans != nil && s.collab.Bans.IsBanned(user.ID) {
		s.TrySend(wire.NewJoinRoomErr("banned"))
		return
	}
	if s.collab.RoomBans != nil && s.collab.RoomBans.IsBannedFromRoom(room.ID, user.ID) {
		s.TrySend(wire.NewJoinRoomErr("banned"))
		return
	}
	if !cmd.Monitor && room.IsLocked() {
		s.TrySend(wire.NewJoinRoomErr("locked"))
		return
	}
	if !room.AddUser(user, cmd.Monitor) {
		s.TrySend(wire.NewJoinRoomErr("room-full"))
		return
	}
	user.SetMonitor(cmd.Monitor)
	user.SetRoom(room)
	if cmd.Monitor {
		room.MarkLive()
	}

	resp := wire.JoinRoomResponse{
		State: room.ClientRoomState(),
		Users: roomUserInfos(room),
		Live:  room.IsLive(),
	}
	s.TrySend(wire.NewJoinRoomOK(resp))

	room.Broadcast(wire.NewOnJoinRoom(user.Info()))
	room.Send(wire.NewJoinRoomMessage(user.ID, user.Name))
	if s.collab.Events != nil {
		s.collab.Events.UserJoinedRoom(room.ID, user.Info(), cmd.Monitor)
	}
}

func roomUserInfos(room *domain.Room) []wire.UserInfo {
	members := room.Members()
	monitors := room.Monitors()
	out := make([]wire.UserInfo, 0, len(members)+len(monitors))
	for _, u := range members {
		out = append(out, u.Info())
	}
	for _, u := range monitors {
		out = append(out, u.Info())
	}
	return out
}

func (s *Session) handleLeaveRoom(user *domain.User) {
	room := user.Room()
	if room == nil {
		s.TrySend(wire.NewSimpleErr(wire.ServerLeaveRoom, "not-in-room"))
		return
	}
	emptied, announce := room.OnUserLeave(user)
	user.SetRoom(nil)
	user.SetMonitor(false)
	s.TrySend(wire.NewSimpleOK(wire.ServerLeaveRoom))
	announce()
	if emptied {
		s.reg.DeleteRoom(room.ID)
		if s.collab.Events != nil {
			s.collab.Events.RoomDestroyed(room.ID)
		}
	}
}

func (s *Session) handleLockRoom(user *domain.User, cmd wire.ClientCommand) {
	room := user.Room()
	if room == nil || !room.IsHost(user) {
		s.TrySend(wire.NewSimpleErr(wire.ServerLockRoom, "not-host"))
		return
	}
	room.SetLocked(cmd.Flag)
	s.TrySend(wire.NewSimpleOK(wire.ServerLockRoom))
	room.Send(wire.NewLockRoomMessage(cmd.Flag))
}

func (s *Session) handleCycleRoom(user *domain.User, cmd wire.ClientCommand) {
	room := user.Room()
	if room == nil || !room.IsHost(user) {
		s.TrySend(wire.NewSimpleErr(wire.ServerCycleRoom, "not-host"))
		return
	}
	room.SetCycle(cmd.Flag)
	s.TrySend(wire.NewSimpleOK(wire.ServerCycleRoom))
	room.Send(wire.NewCycleRoomMessage(cmd.Flag))
}

func (s *Session) handleSelectChart(ctx context.Context, user *domain.User, cmd wire.ClientCommand) {
	room := user.Room()
	if room == nil || !room.IsHost(user) {
		s.TrySend(wire.NewSimpleErr(wire.ServerSelectChart, "not-host"))
		return
	}
	if room.Kind() != domain.StateSelectChart {
		s.TrySend(wire.NewSimpleErr(wire.ServerSelectChart, "bad-state"))
		return
	}
	info, err := s.collab.Charts.LookupChart(ctx, cmd.ChartID)
	if err != nil {
		s.TrySend(wire.NewSimpleErr(wire.ServerSelectChart, "chart-not-found"))
		return
	}
	room.SetChart(domain.Chart{ID: cmd.ChartID, Name: info.Name})
	s.TrySend(wire.NewSimpleOK(wire.ServerSelectChart))
	room.Send(wire.NewSelectChartMessage(user.ID, info.Name, cmd.ChartID))
	room.OnStateChange()
}

func (s *Session) handleRequestStart(user *domain.User) {
	room := user.Room()
	if room == nil || !room.IsHost(user) {
		s.TrySend(wire.NewSimpleErr(wire.ServerRequestStart, "not-host"))
		return
	}
	ok, announce := room.RequestStart(user)
	if !ok {
		s.TrySend(wire.NewSimpleErr(wire.ServerRequestStart, "bad-state"))
		return
	}
	s.TrySend(wire.NewSimpleOK(wire.ServerRequestStart))
	announce()
}

func (s *Session) handleReady(user *domain.User) {
	room := user.Room()
	if room == nil {
		s.TrySend(wire.NewSimpleErr(wire.ServerReady, "not-in-room"))
		return
	}
	ok, announce := room.StartReady(user)
	if !ok {
		s.TrySend(wire.NewSimpleErr(wire.ServerReady, "bad-state"))
		return
	}
	s.TrySend(wire.NewSimpleOK(wire.ServerReady))
	announce()
}

func (s *Session) handleCancelReady(user *domain.User) {
	room := user.Room()
	if room == nil {
		s.TrySend(wire.NewSimpleErr(wire.ServerCancelReady, "not-in-room"))
		return
	}
	ok, announce := room.CancelReady(user)
	if !ok {
		s.TrySend(wire.NewSimpleErr(wire.ServerCancelReady, "bad-state"))
		return
	}
	s.TrySend(wire.NewSimpleOK(wire.ServerCancelReady))
	announce()
}

func (s *Session) handlePlayed(ctx context.Context, user *domain.User, cmd wire.ClientCommand) {
	room := user.Room()
	if room == nil {
		s.TrySend(wire.NewSimpleErr(wire.ServerPlayed, "not-in-room"))
		return
	}
	if room.Kind() != domain.StatePlaying {
		s.TrySend(wire.NewSimpleErr(wire.ServerPlayed, "bad-state"))
		return
	}
	chart := room.Chart()
	if chart == nil || chart.ID != cmd.ChartID {
		s.TrySend(wire.NewSimpleErr(wire.ServerPlayed, "chart-mismatch"))
		return
	}
	rec, err := s.collab.Records.LookupRecord(ctx, user, cmd.ChartID)
	if err != nil {
		s.TrySend(wire.NewSimpleErr(wire.ServerPlayed, "record-lookup-failed"))
		return
	}
	errSlug, announce := room.RecordPlayed(user, rec)
	if errSlug != "" {
		s.TrySend(wire.NewSimpleErr(wire.ServerPlayed, errSlug))
		return
	}
	s.TrySend(wire.NewSimpleOK(wire.ServerPlayed))
	announce()
}

func (s *Session) handleAbort(user *domain.User) {
	room := user.Room()
	if room == nil {
		s.TrySend(wire.NewSimpleErr(wire.ServerAbort, "not-in-room"))
		return
	}
	errSlug, announce := room.RecordAbort(user)
	if errSlug != "" {
		s.TrySend(wire.NewSimpleErr(wire.ServerAbort, errSlug))
		return
	}
	s.TrySend(wire.NewSimpleOK(wire.ServerAbort))
	announce()
}

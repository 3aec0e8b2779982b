package domain

import (
	"testing"

	"github.com/rhythmmp/server/internal/wire"
)

type recordingSink struct {
	joined, left       int
	created, destroyed int
}

func (s *recordingSink) UserJoinedRoom(wire.RoomID, wire.UserInfo, bool) { s.joined++ }
func (s *recordingSink) UserLeftRoom(wire.RoomID, wire.UserInfo)         { s.left++ }
func (s *recordingSink) RoomCreated(wire.RoomID, wire.UserInfo)         { s.created++ }
func (s *recordingSink) RoomDestroyed(wire.RoomID)                      { s.destroyed++ }

type recordingSession struct {
	sent []wire.ServerCommand
}

func (s *recordingSession) TrySend(cmd wire.ServerCommand) { s.sent = append(s.sent, cmd) }
func (s *recordingSession) Stop()                          {}

func newTestUser(id int32, name string) (*User, *recordingSession) {
	u := NewUser(id, name, "en")
	s := &recordingSession{}
	u.SetSession(s)
	return u, s
}

// requestStart drives RequestStart to completion the way a handler would:
// mutate, then announce.
func requestStart(t *testing.T, r *Room, host *User) bool {
	t.Helper()
	ok, announce := r.RequestStart(host)
	if ok {
		announce()
	}
	return ok
}

func startReady(t *testing.T, r *Room, user *User) bool {
	t.Helper()
	ok, announce := r.StartReady(user)
	if ok {
		announce()
	}
	return ok
}

func cancelReady(t *testing.T, r *Room, user *User) bool {
	t.Helper()
	ok, announce := r.CancelReady(user)
	if ok {
		announce()
	}
	return ok
}

func recordPlayed(t *testing.T, r *Room, user *User, rec Record) string {
	t.Helper()
	errSlug, announce := r.RecordPlayed(user, rec)
	if errSlug == "" {
		announce()
	}
	return errSlug
}

func recordAbort(t *testing.T, r *Room, user *User) string {
	t.Helper()
	errSlug, announce := r.RecordAbort(user)
	if errSlug == "" {
		announce()
	}
	return errSlug
}

func onUserLeave(t *testing.T, r *Room, user *User) bool {
	t.Helper()
	emptied, announce := r.OnUserLeave(user)
	announce()
	return emptied
}

func TestRoomMemberCapEnforced(t *testing.T) {
	host, _ := newTestUser(1, "host")
	r := NewRoom("room1", host, nil)

	for i := int32(2); i <= RoomMaxUsers; i++ {
		u, _ := newTestUser(i, "member")
		if !r.AddUser(u, false) {
			t.Fatalf("expected member %d to be admitted (cap %d)", i, RoomMaxUsers)
		}
	}
	overflow, _ := newTestUser(100, "overflow")
	if r.AddUser(overflow, false) {
		t.Fatal("expected the room to reject a member beyond ROOM_MAX_USERS")
	}

	// monitors are never capped
	for i := int32(200); i < 220; i++ {
		mon, _ := newTestUser(i, "mon")
		if !r.AddUser(mon, true) {
			t.Fatalf("expected monitor %d to be admitted uncapped", i)
		}
	}
}

func TestHostTransferOnLeavePicksRemainingMember(t *testing.T) {
	host, _ := newTestUser(1, "host")
	r := NewRoom("room1", host, nil)
	member, memberSess := newTestUser(2, "member")
	r.AddUser(member, false)

	if dropped := onUserLeave(t, r, host); dropped {
		t.Fatal("room should survive while a member remains")
	}
	if !r.IsHost(member) {
		t.Fatal("expected the remaining member to become host")
	}

	found := false
	for _, cmd := range memberSess.sent {
		if cmd.Type == wire.ServerChangeHost && cmd.IsHost {
			found = true
		}
	}
	if !found {
		t.Fatal("expected new host to receive ChangeHost{is_host=true}")
	}
}

func TestRoomDestroyedWhenLastMemberLeaves(t *testing.T) {
	host, _ := newTestUser(1, "host")
	r := NewRoom("room1", host, nil)
	if dropped := onUserLeave(t, r, host); !dropped {
		t.Fatal("expected room to report itself empty once its only member leaves")
	}
}

func TestCheckAllReadyTransitionsToPlaying(t *testing.T) {
	host, hostSess := newTestUser(1, "host")
	r := NewRoom("room1", host, nil)
	member, _ := newTestUser(2, "member")
	r.AddUser(member, false)
	r.SetChart(Chart{ID: 7, Name: "chart"})

	if !requestStart(t, r, host) {
		t.Fatal("RequestStart should succeed with a chart selected")
	}
	if r.Kind() != StateWaitForReady {
		t.Fatalf("expected WaitForReady, got %v", r.Kind())
	}

	if !startReady(t, r, host) {
		t.Fatal("host StartReady should succeed")
	}
	if !startReady(t, r, member) {
		t.Fatal("member StartReady should succeed")
	}
	if r.Kind() != StatePlaying {
		t.Fatalf("expected Playing once all members are ready, got %v", r.Kind())
	}

	startPlayingAt, playingStateAt := -1, -1
	for i, cmd := range hostSess.sent {
		if cmd.Type == wire.ServerMessage && cmd.Message.Type == wire.MessageStartPlaying && startPlayingAt < 0 {
			startPlayingAt = i
		}
		if cmd.Type == wire.ServerChangeState && cmd.RoomState.Kind == wire.RoomStatePlaying && playingStateAt < 0 {
			playingStateAt = i
		}
	}
	if startPlayingAt < 0 || playingStateAt < startPlayingAt {
		t.Fatal("expected StartPlaying message broadcast before the Playing transition")
	}
}

func TestCheckAllDoneCyclesHostWhenEnabled(t *testing.T) {
	host, _ := newTestUser(1, "host")
	r := NewRoom("room1", host, nil)
	member, memberSess := newTestUser(2, "member")
	r.AddUser(member, false)
	r.SetChart(Chart{ID: 1, Name: "c"})
	r.SetCycle(true)

	requestStart(t, r, host)
	startReady(t, r, host)
	startReady(t, r, member) // triggers Playing

	recordPlayed(t, r, host, Record{PlayerID: host.ID, Score: 1})
	recordPlayed(t, r, member, Record{PlayerID: member.ID, Score: 2})

	if r.Kind() != StateSelectChart {
		t.Fatalf("expected SelectChart after both results recorded, got %v", r.Kind())
	}
	if !r.IsHost(member) {
		t.Fatal("expected cycle mode to advance host to the next member")
	}

	gotTrue := false
	for _, cmd := range memberSess.sent {
		if cmd.Type == wire.ServerChangeHost && cmd.IsHost {
			gotTrue = true
		}
	}
	if !gotTrue {
		t.Fatal("expected the newly-cycled host to receive ChangeHost{true}")
	}
}

func TestCheckAllDoneDoesNotCycleWhenDisabled(t *testing.T) {
	host, _ := newTestUser(1, "host")
	r := NewRoom("room1", host, nil)
	member, _ := newTestUser(2, "member")
	r.AddUser(member, false)
	r.SetChart(Chart{ID: 1, Name: "c"})

	requestStart(t, r, host)
	startReady(t, r, host)
	startReady(t, r, member)
	recordPlayed(t, r, host, Record{PlayerID: host.ID})
	recordPlayed(t, r, member, Record{PlayerID: member.ID})

	if !r.IsHost(host) {
		t.Fatal("host should remain unchanged when cycle is disabled")
	}
}

func TestAbortCountsTowardAllDone(t *testing.T) {
	host, _ := newTestUser(1, "host")
	r := NewRoom("room1", host, nil)
	member, _ := newTestUser(2, "member")
	r.AddUser(member, false)
	r.SetChart(Chart{ID: 1, Name: "c"})
	requestStart(t, r, host)
	startReady(t, r, host)
	startReady(t, r, member)

	if errSlug := recordAbort(t, r, host); errSlug != "" {
		t.Fatalf("unexpected abort error: %s", errSlug)
	}
	if errSlug := recordPlayed(t, r, member, Record{PlayerID: member.ID}); errSlug != "" {
		t.Fatalf("unexpected played error: %s", errSlug)
	}
	if r.Kind() != StateSelectChart {
		t.Fatalf("expected round to finish once aborted+played cover all members, got %v", r.Kind())
	}
}

func TestLeaveDuringPlayingFinalizesRound(t *testing.T) {
	host, _ := newTestUser(1, "host")
	r := NewRoom("room1", host, nil)
	member, _ := newTestUser(2, "member")
	r.AddUser(member, false)
	r.SetChart(Chart{ID: 1, Name: "c"})
	requestStart(t, r, host)
	startReady(t, r, host)
	startReady(t, r, member)

	if errSlug := recordPlayed(t, r, host, Record{PlayerID: host.ID}); errSlug != "" {
		t.Fatalf("unexpected played error: %s", errSlug)
	}
	if r.Kind() != StatePlaying {
		t.Fatalf("expected the room to still be waiting on member, got %v", r.Kind())
	}

	// member leaves without ever submitting a result or an abort; the
	// remaining host has already uploaded one, so the round must finalize.
	if onUserLeave(t, r, member) {
		t.Fatal("room should survive with the host still present")
	}
	if r.Kind() != StateSelectChart {
		t.Fatalf("expected the departing member's leave to finalize the round, got %v", r.Kind())
	}
}

func TestCancelReadyByHostCollapsesToSelectChart(t *testing.T) {
	host, _ := newTestUser(1, "host")
	r := NewRoom("room1", host, nil)
	member, _ := newTestUser(2, "member")
	r.AddUser(member, false)
	r.SetChart(Chart{ID: 1, Name: "c"})
	requestStart(t, r, host)
	startReady(t, r, host)

	if !cancelReady(t, r, host) {
		t.Fatal("host CancelReady should succeed")
	}
	if r.Kind() != StateSelectChart {
		t.Fatalf("expected host cancel to collapse room to SelectChart, got %v", r.Kind())
	}
}

func TestCancelReadyByMemberOnlyClearsOwnReadiness(t *testing.T) {
	host, _ := newTestUser(1, "host")
	r := NewRoom("room1", host, nil)
	member, _ := newTestUser(2, "member")
	r.AddUser(member, false)
	r.SetChart(Chart{ID: 1, Name: "c"})
	requestStart(t, r, host)
	startReady(t, r, member)

	if !cancelReady(t, r, member) {
		t.Fatal("member CancelReady should succeed")
	}
	if r.Kind() != StateWaitForReady {
		t.Fatalf("expected room to remain in WaitForReady, got %v", r.Kind())
	}
}

func TestHostMustReadySeparatelyAfterRequestStart(t *testing.T) {
	host, _ := newTestUser(1, "host")
	r := NewRoom("room1", host, nil)
	member, _ := newTestUser(2, "member")
	r.AddUser(member, false)
	r.SetChart(Chart{ID: 1, Name: "c"})
	requestStart(t, r, host)

	if r.Kind() != StateWaitForReady {
		t.Fatalf("expected WaitForReady immediately after RequestStart, got %v", r.Kind())
	}
	if !startReady(t, r, host) {
		t.Fatal("expected the host's own Ready to succeed, since RequestStart must not pre-mark it")
	}
	if r.Kind() != StateWaitForReady {
		t.Fatalf("expected the room to still be waiting on the member, got %v", r.Kind())
	}
}

func TestDoubleReadyRejected(t *testing.T) {
	host, _ := newTestUser(1, "host")
	r := NewRoom("room1", host, nil)
	member, _ := newTestUser(2, "member")
	r.AddUser(member, false)
	r.SetChart(Chart{ID: 1, Name: "c"})
	requestStart(t, r, host)
	startReady(t, r, host)

	if startReady(t, r, host) {
		t.Fatal("expected a second Ready from the same user to be rejected")
	}
}

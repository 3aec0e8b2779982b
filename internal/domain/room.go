package domain

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/rhythmmp/server/internal/wire"
)

// RoomMaxUsers is the member cap AddUser enforces; monitors are never counted
// against it.
const RoomMaxUsers = 8

// Chart is the currently-selected chart metadata, obtained from the chart
// lookup collaborator.
type Chart struct {
	ID   int32
	Name string
}

// Record is a completed play result, obtained from the record lookup
// collaborator.
type Record struct {
	PlayerID   int32
	ChartID    int32
	Score      int32
	Perfect    int32
	Good       int32
	Bad        int32
	Miss       int32
	MaxCombo   int32
	Accuracy   float32
	FullCombo  bool
	StdDev     float32
	StdScore   float32
}

type roomStateKind int

const (
	stateSelectChart roomStateKind = iota
	stateWaitForReady
	statePlaying
)

// internalState is the full server-side room state, including the
// bookkeeping (started/results/aborted) the wire-level RoomState omits.
type internalState struct {
	kind    roomStateKind
	started map[int32]struct{}           // WaitForReady
	results map[int32]Record             // Playing
	aborted map[int32]struct{}           // Playing
}

func selectChartState() internalState { return internalState{kind: stateSelectChart} }
func waitForReadyState() internalState {
	return internalState{kind: stateWaitForReady, started: map[int32]struct{}{}}
}
func playingState() internalState {
	return internalState{kind: statePlaying, results: map[int32]Record{}, aborted: map[int32]struct{}{}}
}

// Room is the state machine governing one match lobby: host, member/monitor
// sets, chart selection, readiness, results, abort tracking, and cycling.
// Lock order, enforced by every method that needs more than one, is
// host < state < users < monitors < chart.
type Room struct {
	ID wire.RoomID

	hostMu sync.RWMutex
	host   *User

	stateMu sync.RWMutex
	state   internalState

	live   atomic.Bool
	locked atomic.Bool
	cycle  atomic.Bool

	usersMu sync.RWMutex
	users   []*User

	monitorsMu sync.RWMutex
	monitors   []*User

	chartMu sync.RWMutex
	chart   *Chart

	// Sink receives room-lifecycle notifications (member joined/left, room
	// created/destroyed); nil is a valid no-op sink.
	Sink EventSink
}

// EventSink mirrors spec.md §4.7's fire-and-forget observer hook; it must
// never block command processing.
type EventSink interface {
	UserJoinedRoom(roomID wire.RoomID, user wire.UserInfo, monitor bool)
	UserLeftRoom(roomID wire.RoomID, user wire.UserInfo)
	RoomCreated(roomID wire.RoomID, host wire.UserInfo)
	RoomDestroyed(roomID wire.RoomID)
}

// NewRoom creates a room with host as its sole initial member.
func NewRoom(id wire.RoomID, host *User, sink EventSink) *Room {
	r := &Room{ID: id, state: selectChartState(), Sink: sink}
	r.host = host
	r.users = []*User{host}
	return r
}

// ClientRoomState returns the wire-level RoomState for this room's current
// internal state (SelectChart carries the chart id if one is selected).
func (r *Room) ClientRoomState() wire.RoomState {
	r.stateMu.RLock()
	kind := r.state.kind
	r.stateMu.RUnlock()

	switch kind {
	case stateSelectChart:
		r.chartMu.RLock()
		defer r.chartMu.RUnlock()
		if r.chart != nil {
			id := r.chart.ID
			return wire.RoomState{Kind: wire.RoomStateSelectChart, ChartID: &id}
		}
		return wire.RoomState{Kind: wire.RoomStateSelectChart}
	case stateWaitForReady:
		return wire.RoomState{Kind: wire.RoomStateWaitingForReady}
	default:
		return wire.RoomState{Kind: wire.RoomStatePlaying}
	}
}

// ClientState returns the full per-user snapshot sent on (re)authenticate and
// on join.
func (r *Room) ClientState(user *User) wire.ClientRoomState {
	cs := wire.ClientRoomState{
		ID:     r.ID,
		State:  r.ClientRoomState(),
		Live:   r.live.Load(),
		Locked: r.locked.Load(),
		Cycle:  r.cycle.Load(),
		IsHost: r.IsHost(user),
		Users:  map[int32]wire.UserInfo{},
	}

	r.stateMu.RLock()
	if r.state.kind == stateWaitForReady {
		_, cs.IsReady = r.state.started[user.ID]
	}
	r.stateMu.RUnlock()

	for _, u := range r.Members() {
		cs.Users[u.ID] = u.Info()
	}
	for _, u := range r.Monitors() {
		cs.Users[u.ID] = u.Info()
	}
	return cs
}

// IsHost reports whether user is the current host.
func (r *Room) IsHost(user *User) bool {
	r.hostMu.RLock()
	defer r.hostMu.RUnlock()
	return r.host != nil && r.host.ID == user.ID
}

// Members returns a snapshot of current member users.
func (r *Room) Members() []*User {
	r.usersMu.RLock()
	defer r.usersMu.RUnlock()
	out := make([]*User, len(r.users))
	copy(out, r.users)
	return out
}

// Monitors returns a snapshot of current monitor users.
func (r *Room) Monitors() []*User {
	r.monitorsMu.RLock()
	defer r.monitorsMu.RUnlock()
	out := make([]*User, len(r.monitors))
	copy(out, r.monitors)
	return out
}

// IsLive reports whether any monitor has ever joined this room.
func (r *Room) IsLive() bool { return r.live.Load() }

// IsLocked reports the room's lock flag.
func (r *Room) IsLocked() bool { return r.locked.Load() }

// IsCycle reports the room's host-cycling flag.
func (r *Room) IsCycle() bool { return r.cycle.Load() }

// MarkLive sets the live flag and returns its previous value, so false means
// this call was the one that flipped it from false to true.
func (r *Room) MarkLive() (wasAlreadyLive bool) {
	return r.live.Swap(true)
}

// SetLocked sets the lock flag.
func (r *Room) SetLocked(v bool) { r.locked.Store(v) }

// SetCycle sets the cycle flag.
func (r *Room) SetCycle(v bool) { r.cycle.Store(v) }

// Chart returns the currently-selected chart, or nil.
func (r *Room) Chart() *Chart {
	r.chartMu.RLock()
	defer r.chartMu.RUnlock()
	return r.chart
}

// SetChart stores the selected chart.
func (r *Room) SetChart(c Chart) {
	r.chartMu.Lock()
	r.chart = &c
	r.chartMu.Unlock()
}

// AddUser adds user as a member or monitor. Members are plain pointers that
// OnUserLeave removes, so there are no expired references to compact before
// the member cap is checked; monitors are added without a cap.
func (r *Room) AddUser(user *User, monitor bool) bool {
	if monitor {
		r.monitorsMu.Lock()
		defer r.monitorsMu.Unlock()
		r.monitors = append(r.monitors, user)
		return true
	}
	r.usersMu.Lock()
	defer r.usersMu.Unlock()
	if len(r.users) >= RoomMaxUsers {
		return false
	}
	r.users = append(r.users, user)
	return true
}

// Broadcast sends cmd to every member and monitor.
func (r *Room) Broadcast(cmd wire.ServerCommand) {
	for _, u := range r.Members() {
		u.TrySend(cmd)
	}
	for _, u := range r.Monitors() {
		u.TrySend(cmd)
	}
}

// BroadcastMonitors sends cmd to monitors only.
func (r *Room) BroadcastMonitors(cmd wire.ServerCommand) {
	for _, u := range r.Monitors() {
		u.TrySend(cmd)
	}
}

// Send wraps msg in a ServerCommand and broadcasts it to the whole room.
func (r *Room) Send(msg wire.Message) { r.Broadcast(wire.NewServerMessage(msg)) }

// OnStateChange broadcasts the room's current wire-level state.
func (r *Room) OnStateChange() { r.Broadcast(wire.NewChangeState(r.ClientRoomState())) }

// ResetGameTime clears every member's recorded game time to -Inf, run once
// at the start of a new Playing phase.
func (r *Room) ResetGameTime() {
	for _, u := range r.Members() {
		u.ResetGameTime()
	}
}

// OnUserLeave removes user from whichever list they belong to and reassigns
// the host if necessary. It returns true if the room is now empty of members
// and should be destroyed by the caller (the registry, which owns the rooms
// map). The caller must invoke announce itself, after acking the leaving
// user's own command if it has one to ack, to send the leave/host-change
// broadcasts and re-evaluate check_all_ready.
func (r *Room) OnUserLeave(user *User) (emptied bool, announce func()) {
	if user.Monitor() {
		r.monitorsMu.Lock()
		r.monitors = removeByID(r.monitors, user.ID)
		r.monitorsMu.Unlock()
	} else {
		r.usersMu.Lock()
		r.users = removeByID(r.users, user.ID)
		r.usersMu.Unlock()
	}

	var hostChanged bool
	var newHost *User
	wasHost := r.IsHost(user)
	if wasHost {
		members := r.Members()
		if len(members) == 0 {
			return true, func() {
				r.Send(wire.NewLeaveRoomMessage(user.ID, user.Name))
				if r.Sink != nil {
					r.Sink.UserLeftRoom(r.ID, user.Info())
				}
			}
		}
		newHost = members[rand.Intn(len(members))]
		r.hostMu.Lock()
		r.host = newHost
		r.hostMu.Unlock()
		hostChanged = true
	}

	return false, func() {
		r.Send(wire.NewLeaveRoomMessage(user.ID, user.Name))
		if r.Sink != nil {
			r.Sink.UserLeftRoom(r.ID, user.Info())
		}
		if hostChanged {
			r.Send(wire.NewNewHostMessage(newHost.ID))
			newHost.TrySend(wire.NewChangeHost(true))
		}
		// A departing member can be the last one a WaitForReady room was
		// waiting on, or the last one a Playing room was waiting on for a
		// result/abort; each check below is a no-op outside its own state, so
		// at most one of them acts.
		r.checkAllReadyLocked()
		r.CheckAllDone()
	}
}

func removeByID(list []*User, id int32) []*User {
	out := list[:0]
	for _, u := range list {
		if u.ID != id {
			out = append(out, u)
		}
	}
	return out
}

// CheckAllReady evaluates the WaitForReady->Playing transition.
func (r *Room) CheckAllReady() { r.checkAllReadyLocked() }

func (r *Room) checkAllReadyLocked() {
	r.stateMu.Lock()
	if r.state.kind != stateWaitForReady {
		r.stateMu.Unlock()
		return
	}
	allReady := true
	for _, u := range r.Members() {
		if _, ok := r.state.started[u.ID]; !ok {
			allReady = false
			break
		}
	}
	if allReady {
		for _, u := range r.Monitors() {
			if _, ok := r.state.started[u.ID]; !ok {
				allReady = false
				break
			}
		}
	}
	if !allReady {
		r.stateMu.Unlock()
		return
	}
	r.stateMu.Unlock()

	r.Send(wire.NewStartPlayingMessage())
	r.ResetGameTime()
	r.stateMu.Lock()
	r.state = playingState()
	r.stateMu.Unlock()
	r.OnStateChange()
}

// CheckAllDone evaluates the Playing->SelectChart transition, including
// cycle-mode host rotation.
func (r *Room) CheckAllDone() {
	r.stateMu.Lock()
	if r.state.kind != statePlaying {
		r.stateMu.Unlock()
		return
	}
	members := r.Members()
	allDone := true
	for _, u := range members {
		_, hasResult := r.state.results[u.ID]
		_, aborted := r.state.aborted[u.ID]
		if !hasResult && !aborted {
			allDone = false
			break
		}
	}
	if !allDone {
		r.stateMu.Unlock()
		return
	}
	r.stateMu.Unlock()

	r.Send(wire.NewGameEndMessage())
	r.stateMu.Lock()
	r.state = selectChartState()
	r.stateMu.Unlock()

	if r.IsCycle() {
		r.cycleHost(members)
	}
	r.OnStateChange()
}

func (r *Room) cycleHost(members []*User) {
	if len(members) == 0 {
		return
	}
	r.hostMu.RLock()
	oldHost := r.host
	r.hostMu.RUnlock()

	index := 0
	if oldHost != nil {
		for i, u := range members {
			if u.ID == oldHost.ID {
				index = (i + 1) % len(members)
				break
			}
		}
	}
	newHost := members[index]

	r.hostMu.Lock()
	r.host = newHost
	r.hostMu.Unlock()

	r.Send(wire.NewNewHostMessage(newHost.ID))
	if oldHost != nil {
		oldHost.TrySend(wire.NewChangeHost(false))
	}
	newHost.TrySend(wire.NewChangeHost(true))
}

// StartReady marks user as ready during WaitForReady. It returns false if
// the room is not in WaitForReady or the user was already marked. On
// success, the caller must invoke the returned announce func itself, after
// it has acked the issuing user's command, so the broadcasts this triggers
// never reach that user ahead of their own ack.
func (r *Room) StartReady(user *User) (ok bool, announce func()) {
	r.stateMu.Lock()
	if r.state.kind != stateWaitForReady {
		r.stateMu.Unlock()
		return false, nil
	}
	if _, ok := r.state.started[user.ID]; ok {
		r.stateMu.Unlock()
		return false, nil
	}
	r.state.started[user.ID] = struct{}{}
	r.stateMu.Unlock()

	return true, func() {
		r.Send(wire.NewReadyMessage(user.ID))
		r.CheckAllReady()
	}
}

// CancelReady reverses StartReady. If user is host, cancelling collapses the
// whole room back to SelectChart; otherwise only the user's own readiness is
// cleared. See StartReady for the announce-after-ack calling convention.
func (r *Room) CancelReady(user *User) (ok bool, announce func()) {
	isHost := r.IsHost(user)
	r.stateMu.Lock()
	if r.state.kind != stateWaitForReady {
		r.stateMu.Unlock()
		return false, nil
	}
	if _, ok := r.state.started[user.ID]; !ok {
		r.stateMu.Unlock()
		return false, nil
	}
	delete(r.state.started, user.ID)
	if isHost {
		r.state = selectChartState()
	}
	r.stateMu.Unlock()

	return true, func() {
		if isHost {
			r.Send(wire.NewCancelGameMessage(user.ID))
			r.OnStateChange()
		} else {
			r.Send(wire.NewCancelReadyMessage(user.ID))
		}
	}
}

// RequestStart transitions SelectChart -> WaitForReady with an empty started
// set: the host must Ready like any other member. Returns false if the room
// isn't in SelectChart or has no chart selected. See StartReady for the
// announce-after-ack calling convention.
func (r *Room) RequestStart(host *User) (ok bool, announce func()) {
	if r.Chart() == nil {
		return false, nil
	}
	r.stateMu.Lock()
	if r.state.kind != stateSelectChart {
		r.stateMu.Unlock()
		return false, nil
	}
	r.ResetGameTime()
	r.state = waitForReadyState()
	r.stateMu.Unlock()

	return true, func() {
		r.Send(wire.NewGameStartMessage(host.ID))
		r.OnStateChange()
		r.CheckAllReady()
	}
}

// RecordPlayed inserts a Playing-phase result for user. It returns an error
// slug on precondition failure ("aborted", "already-uploaded") or "" on
// success. See StartReady for the announce-after-ack calling convention.
func (r *Room) RecordPlayed(user *User, rec Record) (errSlug string, announce func()) {
	r.stateMu.Lock()
	if r.state.kind != statePlaying {
		r.stateMu.Unlock()
		return "bad-state", nil
	}
	if _, aborted := r.state.aborted[user.ID]; aborted {
		r.stateMu.Unlock()
		return "aborted", nil
	}
	if _, exists := r.state.results[user.ID]; exists {
		r.stateMu.Unlock()
		return "already-uploaded", nil
	}
	r.state.results[user.ID] = rec
	r.stateMu.Unlock()

	return "", func() {
		r.Send(wire.NewPlayedMessage(user.ID, rec.Score, rec.Accuracy, rec.FullCombo))
		r.CheckAllDone()
	}
}

// RecordAbort inserts user into the Playing-phase aborted set. See
// StartReady for the announce-after-ack calling convention.
func (r *Room) RecordAbort(user *User) (errSlug string, announce func()) {
	r.stateMu.Lock()
	if r.state.kind != statePlaying {
		r.stateMu.Unlock()
		return "bad-state", nil
	}
	if _, exists := r.state.results[user.ID]; exists {
		r.stateMu.Unlock()
		return "already-uploaded", nil
	}
	if _, already := r.state.aborted[user.ID]; already {
		r.stateMu.Unlock()
		return "aborted", nil
	}
	r.state.aborted[user.ID] = struct{}{}
	r.stateMu.Unlock()

	return "", func() {
		r.Send(wire.NewAbortMessage(user.ID))
		r.CheckAllDone()
	}
}

// StateKind identifiers exposed for dispatch-level precondition checks.
type StateKind = roomStateKind

const (
	StateSelectChart  = stateSelectChart
	StateWaitForReady = stateWaitForReady
	StatePlaying      = statePlaying
)

// Kind returns the room's current internal state kind.
func (r *Room) Kind() StateKind {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state.kind
}


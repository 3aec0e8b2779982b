// Package domain implements the User and Room state machines: identity that
// survives reconnects, room membership, host transfer, readiness tracking,
// and match results — generalized from the teacher's pkg/state User/Room/
// Grant model onto the room-server domain described by session.rs and
// room.cpp in the reference implementation.
package domain

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/rhythmmp/server/internal/wire"
)

// SessionBinder is the narrow view of a session a User needs: enough to
// deliver a ServerCommand or ask it to stop, without domain depending on the
// session package (which in turn depends on domain for dispatch).
type SessionBinder interface {
	TrySend(cmd wire.ServerCommand)
	Stop()
}

// User is a logical player identity that persists across reconnects. Its
// binding to a live Session is a "weak reference" in the sense spec.md §9
// allows: a plain field resolved by direct pointer here (single process, no
// true weak pointer needed) but treated as possibly-absent at every read,
// exactly like the Rust original's Weak<Session>.
type User struct {
	ID       int32
	Name     string
	Language string

	mu      sync.RWMutex
	session SessionBinder // may be nil: "dangling"
	room    *Room         // may be nil: not in any room

	monitor  atomic.Bool
	gameTime atomic.Uint32 // float32 bits, spec's "last known game time"

	dangleMu   sync.Mutex
	dangleMark *dangleToken // non-nil while a grace window is running
}

type dangleToken struct {
	refs atomic.Int32
}

// NewUser constructs a User with no session or room binding.
func NewUser(id int32, name, language string) *User {
	u := &User{ID: id, Name: name, Language: language}
	u.gameTime.Store(math.Float32bits(float32(math.Inf(-1))))
	return u
}

// Info returns the wire-level snapshot of this user's identity.
func (u *User) Info() wire.UserInfo {
	return wire.UserInfo{ID: u.ID, Name: u.Name, Monitor: u.monitor.Load()}
}

// Monitor reports whether this user is currently bound as a room monitor.
func (u *User) Monitor() bool { return u.monitor.Load() }

// SetMonitor records the monitor flag assigned at join time.
func (u *User) SetMonitor(v bool) { u.monitor.Store(v) }

// GameTime returns the last touch-frame timestamp reported by this user,
// or -Inf if none has been recorded since the last reset.
func (u *User) GameTime() float32 { return math.Float32frombits(u.gameTime.Load()) }

// SetGameTime records the timestamp of the user's most recent touch frame.
func (u *User) SetGameTime(t float32) { u.gameTime.Store(math.Float32bits(t)) }

// ResetGameTime clears the recorded game time back to -Inf, done once per
// room at the start of a new Playing phase.
func (u *User) ResetGameTime() { u.gameTime.Store(math.Float32bits(float32(math.Inf(-1)))) }

// Session returns the currently bound session, or nil if dangling.
func (u *User) Session() SessionBinder {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.session
}

// SetSession rebinds the user to a new live session and clears any pending
// dangle grace window, since the user has reconnected.
func (u *User) SetSession(s SessionBinder) {
	u.mu.Lock()
	u.session = s
	u.mu.Unlock()
	u.clearDangleMark()
}

// TrySend delivers cmd to the bound session, if any; a dangling user silently
// drops the command, matching the Rust original's try_send behavior.
func (u *User) TrySend(cmd wire.ServerCommand) {
	if s := u.Session(); s != nil {
		s.TrySend(cmd)
	}
}

// Room returns the room this user currently belongs to, or nil.
func (u *User) Room() *Room {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.room
}

// SetRoom rebinds the user's current room (nil to clear).
func (u *User) SetRoom(r *Room) {
	u.mu.Lock()
	u.room = r
	u.mu.Unlock()
}

// BeginDangle starts a fresh dangle-grace token and returns it; the caller
// (the registry reaper) spawns a timer that checks whether
// the token is still the current one after the grace window elapses.
func (u *User) BeginDangle() *dangleToken {
	tok := &dangleToken{}
	tok.refs.Store(1)
	u.dangleMu.Lock()
	u.dangleMark = tok
	u.dangleMu.Unlock()
	return tok
}

// StillDangling reports whether tok is still the user's active dangle token,
// i.e. the user has not reconnected since BeginDangle produced it.
func (u *User) StillDangling(tok *dangleToken) bool {
	u.dangleMu.Lock()
	defer u.dangleMu.Unlock()
	return u.dangleMark == tok
}

func (u *User) clearDangleMark() {
	u.dangleMu.Lock()
	u.dangleMark = nil
	u.dangleMu.Unlock()
}

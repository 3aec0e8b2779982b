// Package registry implements the server-wide session/user/room maps and the
// lost-connection reaper, generalized from the teacher's
// pkg/state/statemanager.InMemoryManager (three independent sync.RWMutex
// maps) onto the session-id/user-id/room-id shape of the reference
// implementation's ServerState.
package registry

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhythmmp/server/internal/domain"
	"github.com/rhythmmp/server/internal/wire"
)

// Session is the narrow view of a live session the registry needs: enough to
// identify it, deliver a reply, and stop it. The concrete *session.Session
// type satisfies this without the registry importing the session package.
type Session interface {
	domain.SessionBinder
	ID() wire.SessionID
}

const unboundUserID = math.MinInt32

type sessionEntry struct {
	sess   Session
	userID int32
}

// Registry holds the three server-wide maps plus the lost-connection queue
// drained by a single reaper goroutine. Lock order, where more than one of
// the three maps must be held at once, is sessions < users < rooms, matching
// spec §4.6.
type Registry struct {
	logger *slog.Logger

	sessMu   sync.RWMutex
	sessions map[wire.SessionID]*sessionEntry

	userMu sync.RWMutex
	users  map[int32]*domain.User

	roomMu sync.RWMutex
	rooms  map[wire.RoomID]*domain.Room

	lostMu    sync.Mutex
	lostCond  *sync.Cond
	lostQueue []wire.SessionID
	stopped   bool

	dangleGrace time.Duration
	metrics     *metrics
}

// New constructs an empty Registry. dangleGrace is the window a user is kept
// alive after its session is lost before being evicted from any room and
// from the users map (spec §4.6, "dangle").
func New(logger *slog.Logger, reg prometheus.Registerer, dangleGrace time.Duration) *Registry {
	r := &Registry{
		logger:      logger.With(slog.String("component", "registry")),
		sessions:    make(map[wire.SessionID]*sessionEntry),
		users:       make(map[int32]*domain.User),
		rooms:       make(map[wire.RoomID]*domain.Room),
		dangleGrace: dangleGrace,
		metrics:     newMetrics(reg),
	}
	r.lostCond = sync.NewCond(&r.lostMu)
	return r
}

// RegisterSession adds a freshly-accepted session to the registry, unbound
// to any user until Authenticate succeeds.
func (r *Registry) RegisterSession(sess Session) {
	r.sessMu.Lock()
	r.sessions[sess.ID()] = &sessionEntry{sess: sess, userID: unboundUserID}
	r.sessMu.Unlock()
	r.metrics.sessions.Inc()
}

// GetSession looks up a session by id.
func (r *Registry) GetSession(id wire.SessionID) (Session, bool) {
	r.sessMu.RLock()
	defer r.sessMu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

func (r *Registry) bindSessionUser(id wire.SessionID, userID int32) {
	r.sessMu.Lock()
	if e, ok := r.sessions[id]; ok {
		e.userID = userID
	}
	r.sessMu.Unlock()
}

// AuthenticateUser implements spec §4.4's Authenticate success path: if a
// user with this id already exists, its session is atomically swapped to
// sess and the old session (if any) is told to stop; otherwise a new User is
// created and inserted. Returns the user and whether it already existed.
func (r *Registry) AuthenticateUser(id int32, name, lang string, sess Session) (user *domain.User, existed bool) {
	r.userMu.Lock()
	user, existed = r.users[id]
	if !existed {
		user = domain.NewUser(id, name, lang)
		r.users[id] = user
		r.metrics.users.Inc()
	}
	r.userMu.Unlock()

	old := user.Session()
	user.SetSession(sess)
	r.bindSessionUser(sess.ID(), id)
	if old != nil {
		old.Stop()
	}
	return user, existed
}

// GetUser looks up a user by id.
func (r *Registry) GetUser(id int32) (*domain.User, bool) {
	r.userMu.RLock()
	defer r.userMu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

// DeleteUser removes a user from the registry unconditionally. Called once
// its dangle grace window has elapsed with no reconnect.
func (r *Registry) DeleteUser(id int32) {
	r.userMu.Lock()
	_, existed := r.users[id]
	delete(r.users, id)
	r.userMu.Unlock()
	if existed {
		r.metrics.users.Dec()
	}
}

// CreateRoom inserts a new room under id if one does not already exist.
func (r *Registry) CreateRoom(id wire.RoomID, host *domain.User, sink domain.EventSink) (*domain.Room, bool) {
	r.roomMu.Lock()
	defer r.roomMu.Unlock()
	if _, exists := r.rooms[id]; exists {
		return nil, false
	}
	room := domain.NewRoom(id, host, sink)
	r.rooms[id] = room
	r.metrics.rooms.Inc()
	return room, true
}

// GetRoom looks up a room by id.
func (r *Registry) GetRoom(id wire.RoomID) (*domain.Room, bool) {
	r.roomMu.RLock()
	defer r.roomMu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// DeleteRoom removes a room from the registry, e.g. once its last member
// leaves.
func (r *Registry) DeleteRoom(id wire.RoomID) {
	r.roomMu.Lock()
	_, existed := r.rooms[id]
	delete(r.rooms, id)
	r.roomMu.Unlock()
	if existed {
		r.metrics.rooms.Dec()
	}
}

// PushLostConnection enqueues a session id for the reaper. Any of a
// session's reader/writer/heartbeat goroutines may call this exactly once
// per session, on I/O failure or idle timeout.
func (r *Registry) PushLostConnection(id wire.SessionID) {
	r.lostMu.Lock()
	r.lostQueue = append(r.lostQueue, id)
	r.lostMu.Unlock()
	r.lostCond.Signal()
}

// RunReaper drains the lost-connection queue until ctx is canceled. It is
// meant to run as a single long-lived goroutine; spec §4.6 calls for exactly
// one consumer.
func (r *Registry) RunReaper(ctx context.Context) {
	go func() {
		<-ctx.Done()
		r.lostMu.Lock()
		r.stopped = true
		r.lostMu.Unlock()
		r.lostCond.Broadcast()
	}()

	for {
		r.lostMu.Lock()
		for len(r.lostQueue) == 0 && !r.stopped {
			r.lostCond.Wait()
		}
		if len(r.lostQueue) == 0 && r.stopped {
			r.lostMu.Unlock()
			return
		}
		id := r.lostQueue[0]
		r.lostQueue = r.lostQueue[1:]
		r.lostMu.Unlock()

		r.reap(id)
	}
}

func (r *Registry) reap(id wire.SessionID) {
	r.sessMu.Lock()
	entry, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.sessMu.Unlock()
	if !ok {
		return
	}
	r.metrics.sessions.Dec()
	r.metrics.reaped.Inc()
	entry.sess.Stop()

	if entry.userID == unboundUserID {
		return
	}
	user, ok := r.GetUser(entry.userID)
	if !ok {
		return
	}
	// Weak-reference check: only start the dangle window if this user's
	// current session is still the one just reaped. If it isn't, the user
	// already reconnected under a new session before this session's loss
	// was processed, and nothing further is needed here.
	if user.Session() != entry.sess {
		return
	}
	r.startDangle(user)
}

func (r *Registry) startDangle(user *domain.User) {
	tok := user.BeginDangle()
	r.metrics.dangling.Inc()
	time.AfterFunc(r.dangleGrace, func() {
		r.metrics.dangling.Dec()
		if !user.StillDangling(tok) {
			return
		}
		if room := user.Room(); room != nil {
			emptied, announce := room.OnUserLeave(user)
			user.SetRoom(nil)
			announce()
			if emptied {
				r.logger.Debug("room emptied by dangle expiry", slog.String("room", string(room.ID)))
				r.DeleteRoom(room.ID)
			}
		}
		r.DeleteUser(user.ID)
	})
}

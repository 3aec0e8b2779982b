package collab

import (
	"sync"

	"github.com/rhythmmp/server/internal/wire"
)

// InMemoryBanSet is a set of globally banned user ids, generalized from the
// reference implementation's ServerState.banned_users. Persistent ban-list
// files are out of scope per spec §1; this is the in-process substitute.
type InMemoryBanSet struct {
	mu     sync.RWMutex
	banned map[int32]struct{}
}

func NewInMemoryBanSet() *InMemoryBanSet {
	return &InMemoryBanSet{banned: make(map[int32]struct{})}
}

var _ BanSet = (*InMemoryBanSet)(nil)

func (b *InMemoryBanSet) IsBanned(userID int32) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.banned[userID]
	return ok
}

func (b *InMemoryBanSet) Ban(userID int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.banned[userID] = struct{}{}
}

func (b *InMemoryBanSet) Unban(userID int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.banned, userID)
}

// InMemoryRoomBanSet tracks per-room ban lists, generalized from
// ServerState.banned_room_users.
type InMemoryRoomBanSet struct {
	mu   sync.RWMutex
	bans map[wire.RoomID]map[int32]struct{}
}

func NewInMemoryRoomBanSet() *InMemoryRoomBanSet {
	return &InMemoryRoomBanSet{bans: make(map[wire.RoomID]map[int32]struct{})}
}

var _ RoomBanSet = (*InMemoryRoomBanSet)(nil)

func (b *InMemoryRoomBanSet) IsBannedFromRoom(room wire.RoomID, userID int32) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	set, ok := b.bans[room]
	if !ok {
		return false
	}
	_, banned := set[userID]
	return banned
}

func (b *InMemoryRoomBanSet) Ban(room wire.RoomID, userID int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.bans[room]
	if !ok {
		set = make(map[int32]struct{})
		b.bans[room] = set
	}
	set[userID] = struct{}{}
}

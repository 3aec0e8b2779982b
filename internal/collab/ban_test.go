package collab

import "testing"

func TestInMemoryBanSet(t *testing.T) {
	b := NewInMemoryBanSet()
	if b.IsBanned(1) {
		t.Fatal("expected no users banned initially")
	}
	b.Ban(1)
	if !b.IsBanned(1) {
		t.Fatal("expected user 1 to be banned")
	}
	b.Unban(1)
	if b.IsBanned(1) {
		t.Fatal("expected user 1 to be unbanned")
	}
}

func TestInMemoryRoomBanSet(t *testing.T) {
	b := NewInMemoryRoomBanSet()
	if b.IsBannedFromRoom("room1", 1) {
		t.Fatal("expected no bans initially")
	}
	b.Ban("room1", 1)
	if !b.IsBannedFromRoom("room1", 1) {
		t.Fatal("expected user 1 banned from room1")
	}
	if b.IsBannedFromRoom("room2", 1) {
		t.Fatal("expected the ban to be scoped to room1")
	}
}

package domain

import (
	"math"
	"testing"

	"github.com/rhythmmp/server/internal/wire"
)

func TestNewUserStartsWithNegativeInfiniteGameTime(t *testing.T) {
	u := NewUser(1, "alice", "en")
	if !math.IsInf(float64(u.GameTime()), -1) {
		t.Fatalf("expected -Inf game time, got %v", u.GameTime())
	}
}

func TestSetSessionClearsDangleMark(t *testing.T) {
	u := NewUser(1, "alice", "en")
	tok := u.BeginDangle()
	if !u.StillDangling(tok) {
		t.Fatal("expected token to still be active before reconnect")
	}

	u.SetSession(&recordingSession{})
	if u.StillDangling(tok) {
		t.Fatal("expected SetSession to clear the dangle mark on reconnect")
	}
}

func TestTrySendDropsSilentlyWhenDangling(t *testing.T) {
	u := NewUser(1, "alice", "en")
	// No panic, no error, just dropped.
	u.TrySend(wire.NewPong())
}

func TestTrySendDeliversToBoundSession(t *testing.T) {
	u := NewUser(1, "alice", "en")
	sess := &recordingSession{}
	u.SetSession(sess)
	u.TrySend(wire.NewPong())
	if len(sess.sent) != 1 || sess.sent[0].Type != wire.ServerPong {
		t.Fatalf("expected Pong delivered to session, got %+v", sess.sent)
	}
}

func TestResetGameTime(t *testing.T) {
	u := NewUser(1, "alice", "en")
	u.SetGameTime(12.5)
	if u.GameTime() != 12.5 {
		t.Fatalf("expected 12.5, got %v", u.GameTime())
	}
	u.ResetGameTime()
	if !math.IsInf(float64(u.GameTime()), -1) {
		t.Fatal("expected game time reset to -Inf")
	}
}

func TestBeginDangleTwiceOnlyLatestTokenCounts(t *testing.T) {
	u := NewUser(1, "alice", "en")
	first := u.BeginDangle()
	second := u.BeginDangle()
	if u.StillDangling(first) {
		t.Fatal("expected the first dangle token to be superseded")
	}
	if !u.StillDangling(second) {
		t.Fatal("expected the second dangle token to be the active one")
	}
}

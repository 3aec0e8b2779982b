package collab

import (
	"context"
	"fmt"
	"sync"

	"github.com/rhythmmp/server/internal/domain"
)

// StaticRecordLookup is an in-memory RecordLookup keyed by (user id, chart
// id), standing in for the outbound scoring/anti-cheat service spec §1
// places out of scope.
type StaticRecordLookup struct {
	mu      sync.RWMutex
	records map[recordKey]domain.Record
}

type recordKey struct {
	userID  int32
	chartID int32
}

// NewStaticRecordLookup builds an empty lookup; tests populate it with Put.
func NewStaticRecordLookup() *StaticRecordLookup {
	return &StaticRecordLookup{records: make(map[recordKey]domain.Record)}
}

var _ RecordLookup = (*StaticRecordLookup)(nil)

func (s *StaticRecordLookup) LookupRecord(_ context.Context, user *domain.User, chartID int32) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey{userID: user.ID, chartID: chartID}]
	if !ok {
		return domain.Record{}, fmt.Errorf("no record staged for user %d on chart %d", user.ID, chartID)
	}
	rec.PlayerID = user.ID
	rec.ChartID = chartID
	return rec, nil
}

// Put stages the Record a subsequent Played command for (userID, chartID)
// should resolve to.
func (s *StaticRecordLookup) Put(userID, chartID int32, rec domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{userID: userID, chartID: chartID}] = rec
}

package collab

import (
	"context"
	"testing"

	"github.com/rhythmmp/server/internal/domain"
)

func TestStaticChartLookup(t *testing.T) {
	l := NewStaticChartLookup(nil)
	if _, err := l.LookupChart(context.Background(), 1); err == nil {
		t.Fatal("expected an unknown chart to error")
	}
	l.Put(1, ChartInfo{Name: "song"})
	info, err := l.LookupChart(context.Background(), 1)
	if err != nil || info.Name != "song" {
		t.Fatalf("unexpected lookup result: %+v, %v", info, err)
	}
}

func TestStaticRecordLookup(t *testing.T) {
	l := NewStaticRecordLookup()
	user := domain.NewUser(7, "alice", "en")
	if _, err := l.LookupRecord(context.Background(), user, 1); err == nil {
		t.Fatal("expected no staged record to error")
	}
	l.Put(7, 1, domain.Record{Score: 900000, Accuracy: 0.98})
	rec, err := l.LookupRecord(context.Background(), user, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PlayerID != 7 || rec.ChartID != 1 || rec.Score != 900000 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

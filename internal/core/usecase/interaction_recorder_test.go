package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
)

func TestRecordAppendsToStore(t *testing.T) {
	store := &storeFake{}
	recorder := NewInteractionRecorder(store, testLogger())

	err := recorder.Record(context.Background(), domain.InteractionRecord{
		ID:        "rec-1",
		UserID:    "u1",
		SessionID: "s1",
		Query:     "q",
		QueryType: domain.QueryTypeInformational,
		Domains:   []string{"eco"},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(store.appended) != 1 || store.appended[0].ID != "rec-1" {
		t.Fatalf("expected record appended, got %+v", store.appended)
	}
}

func TestRecordRejectsIncompleteRecords(t *testing.T) {
	recorder := NewInteractionRecorder(&storeFake{}, testLogger())

	cases := []domain.InteractionRecord{
		{ID: "", UserID: "u1"},
		{ID: "rec-1", UserID: ""},
	}
	for _, rec := range cases {
		if err := recorder.Record(context.Background(), rec); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("record %+v: expected invalid input, got %v", rec, err)
		}
	}
}

func TestRecordFillsMissingTimestamp(t *testing.T) {
	store := &storeFake{}
	recorder := NewInteractionRecorder(store, testLogger())

	if err := recorder.Record(context.Background(), domain.InteractionRecord{
		ID: "rec-1", UserID: "u1", SessionID: "s1",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if store.appended[0].CreatedAt.IsZero() {
		t.Fatalf("expected created_at defaulted")
	}
}

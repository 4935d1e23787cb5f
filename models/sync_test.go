package models

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
)

func TestOrderEventsByClientTime_SortsAndKeepsSubmissionOrderOnTies(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	events := []*SyncEvent{
		{ClientKey: "c", ClientTimestamp: t0.Add(2 * time.Minute)},
		{ClientKey: "a", ClientTimestamp: t0},
		{ClientKey: "b1", ClientTimestamp: t0.Add(time.Minute)},
		{ClientKey: "b2", ClientTimestamp: t0.Add(time.Minute)},
	}

	ordered := orderEventsByClientTime(events)

	want := []string{"a", "b1", "b2", "c"}
	for i, key := range want {
		if ordered[i].ClientKey != key {
			t.Fatalf("position %d: expected %s, got %s", i, key, ordered[i].ClientKey)
		}
	}
	// The input slice must stay untouched.
	if events[0].ClientKey != "c" {
		t.Fatal("orderEventsByClientTime must not mutate its input")
	}
}

func TestApplySyncEvent_UnknownTypeRejected(t *testing.T) {
	err := applySyncEvent(context.Background(), &SyncEvent{
		ClientKey: "k1",
		EventType: "teleport",
	})

	var verr *utils.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestApplySyncEvent_MalformedSalePayloadRejected(t *testing.T) {
	err := applySyncEvent(context.Background(), &SyncEvent{
		ClientKey: "k2",
		VisitId:   1,
		EventType: SyncEventSale,
		Payload:   json.RawMessage(`{"items": "not-a-list"`),
	})

	var verr *utils.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for malformed payload, got %v", err)
	}
}

func TestApplySyncEvent_MalformedCompletionPayloadRejected(t *testing.T) {
	err := applySyncEvent(context.Background(), &SyncEvent{
		ClientKey: "k3",
		VisitId:   1,
		EventType: SyncEventComplete,
		Payload:   json.RawMessage(`[`),
	})

	var verr *utils.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for malformed payload, got %v", err)
	}
}

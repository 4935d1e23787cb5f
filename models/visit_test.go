package models

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    VisitStatus
		to      VisitStatus
		allowed bool
	}{
		{VisitStatusPlanned, VisitStatusInProgress, true},
		{VisitStatusPlanned, VisitStatusCancelled, true},
		{VisitStatusPlanned, VisitStatusCompleted, false},
		{VisitStatusInProgress, VisitStatusCompleted, true},
		{VisitStatusInProgress, VisitStatusCancelled, true},
		{VisitStatusInProgress, VisitStatusFailed, true},
		{VisitStatusInProgress, VisitStatusPlanned, false},
		{VisitStatusCompleted, VisitStatusInProgress, false},
		{VisitStatusCompleted, VisitStatusCancelled, false},
		{VisitStatusCancelled, VisitStatusInProgress, false},
		{VisitStatusFailed, VisitStatusInProgress, false},
	}
	for _, tc := range cases {
		if got := canTransition(tc.from, tc.to); got != tc.allowed {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestValidateActivityPayload_AuditRejectsUnknownCondition(t *testing.T) {
	raw := json.RawMessage(`{"asset_tag":"FRIDGE-007","condition":"sparkling"}`)

	_, err := validateActivityPayload(ActivityTypeAudit, raw)

	var verr *utils.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Details) != 1 || verr.Details[0].Field != "condition" {
		t.Fatalf("expected condition detail, got %+v", verr.Details)
	}
}

func TestValidateActivityPayload_AuditAcceptsValidPayload(t *testing.T) {
	raw := json.RawMessage(`{"asset_tag":"FRIDGE-007","condition":"damaged","notes":"door seal worn"}`)

	canonical, err := validateActivityPayload(ActivityTypeAudit, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payload AuditPayload
	if err := json.Unmarshal(canonical, &payload); err != nil {
		t.Fatalf("canonical payload not decodable: %v", err)
	}
	if payload.AssetTag != "FRIDGE-007" || payload.Condition != "damaged" {
		t.Fatalf("unexpected canonical payload: %+v", payload)
	}
}

func TestValidateActivityPayload_AuditCollectsAllFieldErrors(t *testing.T) {
	raw := json.RawMessage(`{}`)

	_, err := validateActivityPayload(ActivityTypeAudit, raw)

	var verr *utils.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Details) != 2 {
		t.Fatalf("expected asset_tag and condition errors, got %+v", verr.Details)
	}
}

func TestValidateActivityPayload_ArrivalAndDepartureCannotBeRecordedDirectly(t *testing.T) {
	raw := json.RawMessage(`{"location":{"latitude":-26.2041,"longitude":28.0473}}`)

	for _, activityType := range []ActivityType{ActivityTypeArrival, ActivityTypeDeparture} {
		_, err := validateActivityPayload(activityType, raw)

		var verr *utils.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", activityType, err)
		}
		if len(verr.Details) != 1 || verr.Details[0].Field != "activity_type" {
			t.Fatalf("%s: expected activity_type detail, got %+v", activityType, verr.Details)
		}
	}
}

func TestEnsureVisitInProgress(t *testing.T) {
	for _, status := range []VisitStatus{VisitStatusPlanned, VisitStatusCompleted, VisitStatusCancelled, VisitStatusFailed} {
		err := ensureVisitInProgress(&Visit{Status: status})
		var nfe *utils.NotFoundError
		if !errors.As(err, &nfe) {
			t.Fatalf("status %s: expected NotFoundError, got %v", status, err)
		}
	}
	if err := ensureVisitInProgress(&Visit{Status: VisitStatusInProgress}); err != nil {
		t.Fatalf("InProgress visit should pass the gate, got %v", err)
	}
}

func TestStartVisit_MissingLocationRejected(t *testing.T) {
	ctx := utils.SetBusinessIdInContext(context.Background(), "biz-1")
	ctx = utils.SetAgentIdInContext(ctx, 7)

	_, err := StartVisit(ctx, &NewVisit{CustomerId: 1})

	var verr *utils.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for missing location, got %v", err)
	}
}

func TestNewVisit_ZeroCoordinateCountsAsPresent(t *testing.T) {
	var input NewVisit
	if err := json.Unmarshal([]byte(`{"customer_id":1,"location":{"latitude":0,"longitude":0}}`), &input); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if input.Location == nil {
		t.Fatal("an explicit (0,0) location must decode as present")
	}

	var omitted NewVisit
	if err := json.Unmarshal([]byte(`{"customer_id":1}`), &omitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if omitted.Location != nil {
		t.Fatal("an omitted location must decode as absent")
	}
}

func TestValidateActivityPayload_UnsupportedType(t *testing.T) {
	_, err := validateActivityPayload(ActivityTypeSale, json.RawMessage(`{}`))

	var verr *utils.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("sale activities must go through the sale composer, got %v", err)
	}
}

func TestValidateActivityPayload_PhotoRequiresReference(t *testing.T) {
	_, err := validateActivityPayload(ActivityTypePhoto, json.RawMessage(`{"caption":"shelf"}`))
	if err == nil {
		t.Fatal("expected photo payload without object key or photo id to be rejected")
	}
}

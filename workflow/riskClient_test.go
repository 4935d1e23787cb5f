package workflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/models"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
)

func testEventMessage() config.ActivityEventMessage {
	return config.ActivityEventMessage{
		BusinessId: "biz-1",
		EventType:  "visit.started",
		VisitId:    42,
		AgentId:    7,
		OccurredAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestClassifyActivityRisk_UsesServiceVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/classify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"risk_level":"HIGH","reasons":["velocity"]}`))
	}))
	defer srv.Close()
	t.Setenv("FRAUD_RISK_URL", srv.URL)

	assessment, err := ClassifyActivityRisk(context.Background(), testEventMessage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assessment.Level != models.RiskLevelHigh {
		t.Fatalf("expected HIGH, got %s", assessment.Level)
	}
	if len(assessment.Reasons) != 1 || assessment.Reasons[0] != "velocity" {
		t.Fatalf("unexpected reasons: %v", assessment.Reasons)
	}
}

func TestClassifyActivityRisk_ServerErrorFallsBackToUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	t.Setenv("FRAUD_RISK_URL", srv.URL)

	assessment, err := ClassifyActivityRisk(context.Background(), testEventMessage())

	var depErr *utils.DependencyUnavailableError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyUnavailableError, got %v", err)
	}
	if assessment == nil || assessment.Level != models.RiskLevelUnknown {
		t.Fatalf("expected UNKNOWN fallback, got %+v", assessment)
	}
}

func TestClassifyActivityRisk_UnreachableServiceFallsBackToUnknown(t *testing.T) {
	t.Setenv("FRAUD_RISK_URL", "http://127.0.0.1:1")

	assessment, err := ClassifyActivityRisk(context.Background(), testEventMessage())

	var depErr *utils.DependencyUnavailableError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyUnavailableError, got %v", err)
	}
	if assessment.Level != models.RiskLevelUnknown {
		t.Fatalf("expected UNKNOWN fallback, got %s", assessment.Level)
	}
}

func TestClassifyActivityRisk_SlowServiceBoundedByDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(defaultRiskTimeout + 500*time.Millisecond)
		_, _ = w.Write([]byte(`{"risk_level":"LOW"}`))
	}))
	defer srv.Close()
	t.Setenv("FRAUD_RISK_URL", srv.URL)

	start := time.Now()
	assessment, err := ClassifyActivityRisk(context.Background(), testEventMessage())
	elapsed := time.Since(start)

	var depErr *utils.DependencyUnavailableError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyUnavailableError, got %v", err)
	}
	if assessment.Level != models.RiskLevelUnknown {
		t.Fatalf("expected UNKNOWN fallback, got %s", assessment.Level)
	}
	if elapsed >= time.Second {
		t.Fatalf("risk call must give up within the sub-second deadline, took %s", elapsed)
	}
}

func TestClassifyActivityRisk_UnrecognizedLevelFallsBackToUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"risk_level":"SPICY"}`))
	}))
	defer srv.Close()
	t.Setenv("FRAUD_RISK_URL", srv.URL)

	assessment, err := ClassifyActivityRisk(context.Background(), testEventMessage())
	if err == nil {
		t.Fatal("expected error for unrecognized risk level")
	}
	if assessment.Level != models.RiskLevelUnknown {
		t.Fatalf("expected UNKNOWN fallback, got %s", assessment.Level)
	}
}

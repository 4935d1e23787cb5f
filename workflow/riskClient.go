package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/models"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
)

// The risk read sits inside the visit-start response path, so its deadline
// stays well under a second.
const defaultRiskTimeout = 800 * time.Millisecond

type riskRequest struct {
	BusinessId  string          `json:"business_id"`
	EventType   string          `json:"event_type"`
	VisitId     int             `json:"visit_id"`
	AgentId     int             `json:"agent_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Correlation string          `json:"correlation_id,omitempty"`
}

type riskResponse struct {
	RiskLevel string   `json:"risk_level"`
	Reasons   []string `json:"reasons"`
}

type RiskAssessment struct {
	Level   models.RiskLevel `json:"risk_level"`
	Reasons []string         `json:"reasons,omitempty"`
}

var riskHTTPClient = &http.Client{Timeout: defaultRiskTimeout}

func riskServiceURL() string {
	return os.Getenv("FRAUD_RISK_URL")
}

// ClassifyActivityRisk calls the fraud risk service with a bounded deadline.
// The service is advisory: on any failure the caller gets UNKNOWN plus a
// DependencyUnavailableError and must carry on.
func ClassifyActivityRisk(ctx context.Context, msg config.ActivityEventMessage) (*RiskAssessment, error) {
	unknown := &RiskAssessment{Level: models.RiskLevelUnknown}

	url := riskServiceURL()
	if url == "" {
		return unknown, &utils.DependencyUnavailableError{Dependency: "fraud-risk", Err: fmt.Errorf("FRAUD_RISK_URL not set")}
	}

	body, err := json.Marshal(riskRequest{
		BusinessId:  msg.BusinessId,
		EventType:   msg.EventType,
		VisitId:     msg.VisitId,
		AgentId:     msg.AgentId,
		OccurredAt:  msg.OccurredAt,
		Payload:     msg.Payload,
		Correlation: msg.CorrelationId,
	})
	if err != nil {
		return unknown, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultRiskTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return unknown, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := riskHTTPClient.Do(req)
	if err != nil {
		return unknown, &utils.DependencyUnavailableError{Dependency: "fraud-risk", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unknown, &utils.DependencyUnavailableError{
			Dependency: "fraud-risk",
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var decoded riskResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return unknown, &utils.DependencyUnavailableError{Dependency: "fraud-risk", Err: err}
	}

	level := models.RiskLevel(decoded.RiskLevel)
	if !level.Valid() {
		return unknown, &utils.DependencyUnavailableError{
			Dependency: "fraud-risk",
			Err:        fmt.Errorf("unrecognized risk level %q", decoded.RiskLevel),
		}
	}
	return &RiskAssessment{Level: level, Reasons: decoded.Reasons}, nil
}

package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/models"
	"github.com/sirupsen/logrus"
)

// ProcessActivityEvent handles one event from the push subscription: classify
// the activity, stamp the visit's risk level and alert on high risk. The risk
// service being down is not an error worth a redelivery; the event is acked
// with the visit left at UNKNOWN.
func ProcessActivityEvent(ctx context.Context, msg config.ActivityEventMessage) error {
	logger := config.GetLogger()

	assessment, err := ClassifyActivityRisk(ctx, msg)
	if err != nil {
		config.LogError(logger, "workflow", "ProcessActivityEvent", msg.CorrelationId, msg, err)
	}

	if msg.VisitId > 0 {
		if err := models.UpdateVisitFraudRisk(ctx, msg.BusinessId, msg.VisitId, assessment.Level); err != nil {
			config.LogError(logger, "workflow", "ProcessActivityEvent", msg.CorrelationId, msg, err)
			return err
		}
	}

	logger.WithFields(logrus.Fields{
		"business_id":    msg.BusinessId,
		"event_type":     msg.EventType,
		"visit_id":       msg.VisitId,
		"agent_id":       msg.AgentId,
		"risk_level":     assessment.Level,
		"correlation_id": msg.CorrelationId,
	}).Info("activity event processed")

	if assessment.Level.Alertable() {
		notifyRiskAlert(ctx, msg, assessment)
	}
	return nil
}

// notifyRiskAlert forwards a high risk finding to the notification sink.
// Fire and forget; the alert path must never fail event processing.
func notifyRiskAlert(ctx context.Context, msg config.ActivityEventMessage, assessment *RiskAssessment) {
	logger := config.GetLogger()

	data, err := json.Marshal(map[string]interface{}{
		"visit_id":   msg.VisitId,
		"agent_id":   msg.AgentId,
		"event_type": msg.EventType,
		"risk_level": assessment.Level,
		"reasons":    assessment.Reasons,
	})
	if err != nil {
		data = nil
	}
	notification := config.NotificationMessage{
		Type:      "fraud_risk_alert",
		Recipient: "supervisor:" + msg.BusinessId,
		Message: fmt.Sprintf("%s risk on visit %d (agent %d)",
			assessment.Level, msg.VisitId, msg.AgentId),
		Data: data,
	}
	if err := config.PublishNotification(ctx, notification); err != nil {
		config.LogError(logger, "workflow", "notifyRiskAlert", msg.CorrelationId, notification, err)
	}
}

package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusPublished  = "PUBLISHED"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// ActivityEventRecord is the transactional outbox row for visit/sale events.
// It is written inside the caller's DB transaction; publishing to Pub/Sub is
// performed asynchronously by the outbox dispatcher after commit, so a slow or
// failing risk service can never delay or fail the core workflow.
type ActivityEventRecord struct {
	ID               int               `gorm:"primary_key" json:"id"`
	BusinessId       string            `gorm:"size:64;index;not null" json:"business_id"`
	EventType        ActivityEventType `gorm:"size:50;not null" json:"event_type"`
	VisitId          int               `gorm:"index" json:"visit_id"`
	AgentId          int               `gorm:"index" json:"agent_id"`
	ReferenceId      int               `json:"reference_id"`
	OccurredAt       time.Time         `gorm:"not null" json:"occurred_at"`
	Payload          []byte            `gorm:"type:json" json:"payload"`
	IsProcessed      bool              `gorm:"not null;default:false;index" json:"is_processed"`
	PublishStatus    string            `gorm:"size:20;not null;default:'PENDING';index" json:"publish_status"`
	PublishAttempts  int               `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time        `json:"next_attempt_at"`
	LockedAt         *time.Time        `json:"locked_at"`
	LockedBy         *string           `gorm:"size:64" json:"locked_by"`
	LastPublishError *string           `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string            `gorm:"size:64" json:"correlation_id"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// emitActivityEvent writes an outbox record inside the caller's transaction.
func emitActivityEvent(ctx context.Context, tx *gorm.DB, eventType ActivityEventType, businessId string, visitId, agentId, referenceId int, payload interface{}) error {
	var payloadJSON []byte
	var err error
	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	record := ActivityEventRecord{
		BusinessId:    businessId,
		EventType:     eventType,
		VisitId:       visitId,
		AgentId:       agentId,
		ReferenceId:   referenceId,
		OccurredAt:    time.Now().UTC(),
		Payload:       payloadJSON,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

// ConvertToEventMessage builds the wire envelope for a stored outbox row.
func ConvertToEventMessage(record ActivityEventRecord) config.ActivityEventMessage {
	return config.ActivityEventMessage{
		ID:            record.ID,
		BusinessId:    record.BusinessId,
		EventType:     string(record.EventType),
		VisitId:       record.VisitId,
		AgentId:       record.AgentId,
		ReferenceId:   record.ReferenceId,
		OccurredAt:    record.OccurredAt,
		Payload:       json.RawMessage(record.Payload),
		CorrelationId: record.CorrelationId,
	}
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

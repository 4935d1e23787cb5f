package models

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
)

const (
	SyncResultAccepted  = "ACCEPTED"
	SyncResultDuplicate = "DUPLICATE"
	SyncResultRejected  = "REJECTED"
)

const (
	SyncEventActivity = "activity"
	SyncEventSale     = "sale"
	SyncEventSurvey   = "survey"
	SyncEventComplete = "complete"
	SyncEventCancel   = "cancel"
)

// SyncEvent is one offline-captured action replayed against the server. The
// client key dedups retries of the same batch.
type SyncEvent struct {
	ClientKey       string          `json:"idempotency_key" binding:"required"`
	VisitId         int             `json:"visit_id"`
	EventType       string          `json:"type" binding:"required"`
	ActivityType    ActivityType    `json:"activity_type,omitempty"`
	ClientTimestamp time.Time       `json:"client_timestamp" binding:"required"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

type SyncEventResult struct {
	ClientKey string      `json:"idempotency_key"`
	Status    string      `json:"status"`
	Error     string      `json:"error,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

type cancelEventPayload struct {
	Reason string `json:"reason"`
}

// orderEventsByClientTime sorts a copy of the batch by client timestamp.
// Stable, so the client's submission order breaks ties.
func orderEventsByClientTime(events []*SyncEvent) []*SyncEvent {
	ordered := make([]*SyncEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ClientTimestamp.Before(ordered[j].ClientTimestamp)
	})
	return ordered
}

// SyncVisitEvents replays a batch of offline events in client timestamp
// order. Every event runs through the same entry point an online call would,
// so all guards apply unchanged. One bad event never aborts the batch; it is
// recorded as REJECTED and processing continues.
func SyncVisitEvents(ctx context.Context, events []*SyncEvent) ([]*SyncEventResult, error) {
	businessId, _, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}

	ordered := orderEventsByClientTime(events)

	results := make([]*SyncEventResult, 0, len(ordered))
	visitErrors := make(map[int][]string)
	touchedVisits := make(map[int]bool)

	for _, event := range ordered {
		result := &SyncEventResult{ClientKey: event.ClientKey}
		results = append(results, result)

		if err := utils.ValidateResourceId[Visit](ctx, businessId, event.VisitId); err != nil {
			result.Status = SyncResultRejected
			if errors.Is(err, utils.ErrorRecordNotFound) {
				result.Error = "visit not found"
			} else {
				result.Error = err.Error()
			}
			continue
		}
		touchedVisits[event.VisitId] = true

		key, replay, err := claimSyncKey(ctx, businessId, event)
		if err != nil {
			result.Status = SyncResultRejected
			result.Error = err.Error()
			visitErrors[event.VisitId] = append(visitErrors[event.VisitId], event.ClientKey+": "+err.Error())
			continue
		}
		if replay {
			result.Status = SyncResultDuplicate
			continue
		}

		applyErr := applySyncEvent(ctx, event)
		if applyErr != nil {
			result.Status = SyncResultRejected
			result.Error = applyErr.Error()
			result.Details = utils.ErrorPayload(applyErr)
			visitErrors[event.VisitId] = append(visitErrors[event.VisitId], event.ClientKey+": "+applyErr.Error())
			finishSyncKey(ctx, key, IdempotencyStatusFailed, result)
			continue
		}

		result.Status = SyncResultAccepted
		finishSyncKey(ctx, key, IdempotencyStatusSucceeded, result)
	}

	for visitId := range touchedVisits {
		markVisitSyncOutcome(ctx, businessId, visitId, visitErrors[visitId])
	}
	return results, nil
}

// claimSyncKey claims the client key in its own short transaction. A key left
// FAILED by an earlier attempt is reclaimed so transient rejections can be
// retried; SUCCEEDED and in-flight keys report as replays.
func claimSyncKey(ctx context.Context, businessId string, event *SyncEvent) (*IdempotencyKey, bool, error) {
	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()

	key, dup, err := BeginIdempotency(tx, ctx, businessId, event.ClientKey, event.VisitId)
	if err != nil {
		return nil, false, err
	}
	if dup {
		var existing IdempotencyKey
		err := tx.WithContext(ctx).
			Where("business_id = ? AND client_key = ?", businessId, event.ClientKey).
			First(&existing).Error
		if err != nil {
			return nil, true, nil
		}
		if existing.Status != IdempotencyStatusFailed {
			return nil, true, nil
		}
		// Conditional reclaim: two resyncs can both observe FAILED, but only
		// the one whose update matches the status wins the key. The loser
		// reports a replay instead of applying the event a second time.
		res := tx.WithContext(ctx).Model(&IdempotencyKey{}).
			Where("id = ? AND status = ?", existing.ID, IdempotencyStatusFailed).
			Update("status", IdempotencyStatusStarted)
		if res.Error != nil {
			return nil, false, &utils.StorageError{Err: res.Error}
		}
		if res.RowsAffected != 1 {
			return nil, true, nil
		}
		key = &existing
	}
	if err := tx.Commit().Error; err != nil {
		return nil, false, &utils.StorageError{Err: err}
	}
	return key, false, nil
}

func finishSyncKey(ctx context.Context, key *IdempotencyKey, status string, result *SyncEventResult) {
	logger := config.GetLogger()
	db := config.GetDB()
	tx := db.Begin()
	defer func() { _ = tx.Rollback().Error }()
	if err := FinishIdempotency(tx, ctx, key, status, result); err != nil {
		config.LogError(logger, "sync", "finishSyncKey", key.ClientKey, nil, err)
		return
	}
	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "sync", "finishSyncKey", key.ClientKey, nil, err)
	}
}

// applySyncEvent routes one event to the entry point the online API uses.
func applySyncEvent(ctx context.Context, event *SyncEvent) error {
	switch event.EventType {
	case SyncEventActivity:
		_, err := RecordVisitActivity(ctx, event.VisitId, event.ActivityType, event.Payload)
		return err
	case SyncEventSale:
		var input NewSale
		if err := json.Unmarshal(event.Payload, &input); err != nil {
			return utils.NewValidationError("malformed sale payload",
				utils.FieldError{Field: "payload", Message: err.Error()})
		}
		_, _, err := CreateVisitSale(ctx, event.VisitId, &input)
		return err
	case SyncEventSurvey:
		var input NewSurveyResponse
		if err := json.Unmarshal(event.Payload, &input); err != nil {
			return utils.NewValidationError("malformed survey payload",
				utils.FieldError{Field: "payload", Message: err.Error()})
		}
		_, err := SubmitVisitSurvey(ctx, event.VisitId, &input)
		return err
	case SyncEventComplete:
		var input CompleteVisitInput
		if err := json.Unmarshal(event.Payload, &input); err != nil {
			return utils.NewValidationError("malformed completion payload",
				utils.FieldError{Field: "payload", Message: err.Error()})
		}
		_, _, err := CompleteVisit(ctx, event.VisitId, &input)
		return err
	case SyncEventCancel:
		var input cancelEventPayload
		if err := json.Unmarshal(event.Payload, &input); err != nil {
			return utils.NewValidationError("malformed cancel payload",
				utils.FieldError{Field: "payload", Message: err.Error()})
		}
		_, err := CancelVisit(ctx, event.VisitId, input.Reason)
		return err
	default:
		return utils.NewValidationError("unknown event type",
			utils.FieldError{Field: "event_type", Message: "must be activity, sale, survey, complete or cancel"})
	}
}

// markVisitSyncOutcome stamps the visit after its slice of the batch is done.
func markVisitSyncOutcome(ctx context.Context, businessId string, visitId int, errs []string) {
	logger := config.GetLogger()
	db := config.GetDB()

	updates := map[string]interface{}{}
	if len(errs) == 0 {
		updates["sync_status"] = SyncStatusSynced
		updates["sync_errors"] = nil
	} else {
		errsJSON, err := json.Marshal(errs)
		if err != nil {
			errsJSON = []byte(`["sync error list could not be encoded"]`)
		}
		updates["sync_status"] = SyncStatusError
		updates["sync_errors"] = errsJSON
	}
	err := db.WithContext(ctx).Model(&Visit{}).
		Where("business_id = ? AND id = ?", businessId, visitId).
		Updates(updates).Error
	if err != nil {
		config.LogError(logger, "sync", "markVisitSyncOutcome", strconv.Itoa(visitId), errs, err)
	}
}

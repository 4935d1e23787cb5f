package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Visit is one agent-customer encounter. At most one Visit per agent may be
// InProgress at any time; that invariant is enforced under the per-agent
// advisory lock in StartVisit. Completed/Cancelled visits are immutable except
// for append-only notes and the async fraud annotation.
type Visit struct {
	ID               int              `gorm:"primary_key" json:"id"`
	BusinessId       string           `gorm:"size:64;index;not null" json:"business_id"`
	AgentId          int              `gorm:"index;not null" json:"agent_id"`
	CustomerId       int              `gorm:"index;not null" json:"customer_id"`
	Status           VisitStatus      `gorm:"type:enum('Planned','InProgress','Completed','Failed','Cancelled');not null;default:'Planned';index" json:"status"`
	PlannedStartTime *time.Time       `json:"planned_start_time"`
	ActualStartTime  *time.Time       `json:"actual_start_time"`
	ActualEndTime    *time.Time       `json:"actual_end_time"`
	StartLatitude    float64          `gorm:"type:decimal(10,7)" json:"start_latitude"`
	StartLongitude   float64          `gorm:"type:decimal(10,7)" json:"start_longitude"`
	StartAccuracy    float64          `gorm:"type:decimal(10,2)" json:"start_accuracy"`
	EndLatitude      *float64         `gorm:"type:decimal(10,7)" json:"end_latitude"`
	EndLongitude     *float64         `gorm:"type:decimal(10,7)" json:"end_longitude"`
	DurationMinutes  int              `gorm:"default:0" json:"duration_minutes"`
	Notes            string           `gorm:"type:text" json:"notes"`
	SyncStatus       SyncStatus       `gorm:"type:enum('Local','Synced','Error');not null;default:'Synced'" json:"sync_status"`
	SyncErrors       []byte           `gorm:"type:json" json:"sync_errors"`
	FraudRiskLevel   RiskLevel        `gorm:"size:10;not null;default:'UNKNOWN'" json:"fraud_risk_level"`
	Activities       []*VisitActivity `gorm:"foreignKey:VisitId" json:"activities"`
	Photos           []*VisitPhoto    `gorm:"foreignKey:VisitId" json:"photos"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// canTransition encodes the legal status transitions. Terminal states accept
// no further writes (append-only notes excepted).
func canTransition(from, to VisitStatus) bool {
	switch from {
	case VisitStatusPlanned:
		return to == VisitStatusInProgress || to == VisitStatusCancelled
	case VisitStatusInProgress:
		return to == VisitStatusCompleted || to == VisitStatusCancelled || to == VisitStatusFailed
	default:
		return false
	}
}

type NewVisit struct {
	CustomerId int       `json:"customer_id" binding:"required"`
	Location   *GeoPoint `json:"location" binding:"required"`
	Notes      string    `json:"notes"`
}

type StartVisitResult struct {
	Visit              *Visit                `json:"visit"`
	RequiredActivities []ActivityRequirement `json:"required_activities"`
	LocationValidation GeofenceResult        `json:"location_validation"`
}

// StartVisit transitions a new visit to InProgress under the per-agent
// serialization boundary. Geofence failure is a soft warning: the visit still
// starts with location_validation.valid=false so GPS drift in the field
// doesn't strand agents.
func StartVisit(ctx context.Context, input *NewVisit) (*StartVisitResult, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	agentId, ok := utils.GetAgentIdFromContext(ctx)
	if !ok || agentId <= 0 {
		return nil, errors.New("agent id is required")
	}

	// Presence, not value: a fix at the (0,0) coordinate is a legitimate
	// reading and must not be mistaken for a missing location.
	if input.Location == nil {
		return nil, utils.NewValidationError("location is required",
			utils.FieldError{Field: "location", Message: "latitude/longitude required"})
	}

	customer, err := GetCustomerById(ctx, businessId, input.CustomerId)
	if err != nil {
		return nil, err
	}
	if !utils.DereferencePtr(customer.IsActive, true) {
		return nil, utils.NewNotFoundError("customer")
	}

	geofence := WithinRadius(input.Location.Coordinate(), customer.Location(), VisitGeofenceRadiusMeters)

	// Best-effort cross-instance fast path. Reliability must not depend on
	// Redis: the MySQL advisory lock below serializes safely either way.
	if locker := config.GetRedisLock(); locker != nil {
		if lock, lockErr := locker.Obtain(ctx, fmt.Sprintf("lock:visit:%s:%d", businessId, agentId), 10*time.Second, nil); lockErr == nil {
			defer func() { _ = lock.Release(ctx) }()
		}
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	if err := AcquireAgentVisitLock(tx, businessId, agentId); err != nil {
		return nil, &utils.StorageError{Err: err}
	}
	defer ReleaseAgentVisitLock(tx, businessId, agentId)

	var active int64
	if err := tx.WithContext(ctx).Model(&Visit{}).
		Where("business_id = ? AND agent_id = ? AND status = ?", businessId, agentId, VisitStatusInProgress).
		Count(&active).Error; err != nil {
		return nil, &utils.StorageError{Err: err}
	}
	if active > 0 {
		return nil, utils.NewConflictError("agent already has a visit in progress")
	}

	now := time.Now().UTC()
	visit := Visit{
		BusinessId:      businessId,
		AgentId:         agentId,
		CustomerId:      customer.ID,
		Status:          VisitStatusInProgress,
		ActualStartTime: &now,
		StartLatitude:   input.Location.Latitude,
		StartLongitude:  input.Location.Longitude,
		StartAccuracy:   input.Location.Accuracy,
		Notes:           input.Notes,
		SyncStatus:      SyncStatusSynced,
		FraudRiskLevel:  RiskLevelUnknown,
	}
	if err := tx.WithContext(ctx).Create(&visit).Error; err != nil {
		return nil, &utils.StorageError{Err: err}
	}

	arrivalPayload, err := json.Marshal(ArrivalPayload{Location: *input.Location, Geofence: geofence})
	if err != nil {
		return nil, err
	}
	arrival := VisitActivity{
		BusinessId:   businessId,
		VisitId:      visit.ID,
		ActivityType: ActivityTypeArrival,
		Required:     utils.NewTrue(),
		Completed:    utils.NewTrue(),
		ActivityTime: now,
		Payload:      arrivalPayload,
	}
	if err := tx.WithContext(ctx).Create(&arrival).Error; err != nil {
		return nil, &utils.StorageError{Err: err}
	}
	visit.Activities = append(visit.Activities, &arrival)

	if err := emitActivityEvent(ctx, tx, ActivityEventVisitStarted, businessId, visit.ID, agentId, 0, map[string]interface{}{
		"customer_id": customer.ID,
		"location":    input.Location,
		"geofence":    geofence,
	}); err != nil {
		return nil, &utils.StorageError{Err: err}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, &utils.StorageError{Err: err}
	}

	return &StartVisitResult{
		Visit:              &visit,
		RequiredActivities: ResolveActivityRequirements(customer),
		LocationValidation: geofence,
	}, nil
}

// ensureVisitInProgress gates every write against a visit. Terminal and
// Planned visits report the same way as missing ones, so a caller cannot
// distinguish a visit it may no longer act on from one it never owned.
func ensureVisitInProgress(visit *Visit) error {
	if visit.Status != VisitStatusInProgress {
		return utils.NewNotFoundError("visit")
	}
	return nil
}

// getOwnedVisit loads a visit that belongs to the calling agent. Visits owned
// by other agents (or other tenants) are indistinguishable from missing ones.
func getOwnedVisit(tx *gorm.DB, ctx context.Context, businessId string, agentId, visitId int) (*Visit, error) {
	var visit Visit
	err := tx.WithContext(ctx).
		Where("business_id = ? AND agent_id = ? AND id = ?", businessId, agentId, visitId).
		First(&visit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("visit")
		}
		return nil, err
	}
	return &visit, nil
}

// GetVisit returns the caller's visit with its activity log and photos.
func GetVisit(ctx context.Context, visitId int) (*Visit, error) {
	businessId, agentId, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var visit Visit
	err = db.WithContext(ctx).
		Preload("Activities").
		Preload("Photos").
		Where("business_id = ? AND agent_id = ? AND id = ?", businessId, agentId, visitId).
		First(&visit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("visit")
		}
		return nil, err
	}
	return &visit, nil
}

func callerScope(ctx context.Context) (businessId string, agentId int, err error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", 0, errors.New("business id is required")
	}
	agentId, ok = utils.GetAgentIdFromContext(ctx)
	if !ok || agentId <= 0 {
		return "", 0, errors.New("agent id is required")
	}
	return businessId, agentId, nil
}

// RecordVisitActivity appends one typed activity to an InProgress visit owned
// by the caller. Arrival and departure are rejected at payload validation;
// those records belong to StartVisit and CompleteVisit.
func RecordVisitActivity(ctx context.Context, visitId int, activityType ActivityType, rawPayload json.RawMessage) (*VisitActivity, error) {
	businessId, agentId, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := validateActivityPayload(activityType, rawPayload)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var created VisitActivity
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		visit, err := getOwnedVisit(tx, ctx, businessId, agentId, visitId)
		if err != nil {
			return err
		}
		if err := ensureVisitInProgress(visit); err != nil {
			return err
		}

		created = VisitActivity{
			BusinessId:   businessId,
			VisitId:      visitId,
			ActivityType: activityType,
			Required:     utils.NewFalse(),
			Completed:    utils.NewTrue(),
			ActivityTime: time.Now().UTC(),
			Payload:      payload,
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

type CompleteVisitInput struct {
	DepartureLocation *GeoPoint `json:"departure_location" binding:"required"`
	Notes             string    `json:"notes"`
}

type VisitSummary struct {
	ActivityCounts     map[ActivityType]int `json:"activity_counts"`
	TotalSaleValue     decimal.Decimal      `json:"total_sale_value"`
	DurationMinutes    int                  `json:"duration_minutes"`
	LocationValidation GeofenceResult       `json:"location_validation"`
}

// CompleteVisit closes out an InProgress visit under the completion policy:
// every required activity type must meet its minimum count, independent of
// activity order. The transition is irreversible.
func CompleteVisit(ctx context.Context, visitId int, input *CompleteVisitInput) (*Visit, *VisitSummary, error) {
	businessId, agentId, err := callerScope(ctx)
	if err != nil {
		return nil, nil, err
	}
	if input.DepartureLocation == nil {
		return nil, nil, utils.NewValidationError("departure location is required",
			utils.FieldError{Field: "departure_location", Message: "latitude/longitude required"})
	}

	db := config.GetDB()

	var visit *Visit
	var summary *VisitSummary
	err = func() error {
		tx := db.Begin()
		defer func() {
			if r := recover(); r != nil {
				_ = tx.Rollback().Error
				panic(r)
			}
		}()
		defer func() { _ = tx.Rollback().Error }()

		if err := AcquireAgentVisitLock(tx, businessId, agentId); err != nil {
			return &utils.StorageError{Err: err}
		}
		defer ReleaseAgentVisitLock(tx, businessId, agentId)

		visit, err = getOwnedVisit(tx, ctx, businessId, agentId, visitId)
		if err != nil {
			return err
		}
		if err := ensureVisitInProgress(visit); err != nil {
			return err
		}

		customer, err := GetCustomerById(ctx, businessId, visit.CustomerId)
		if err != nil {
			return err
		}

		// Requirements are re-resolved at completion rather than carried
		// from start; the resolver has no persistent state.
		requirements := ResolveActivityRequirements(customer)

		var activities []VisitActivity
		if err := tx.WithContext(ctx).
			Where("business_id = ? AND visit_id = ?", businessId, visitId).
			Find(&activities).Error; err != nil {
			return err
		}
		counts := make(map[ActivityType]int, len(activities))
		for _, a := range activities {
			if utils.DereferencePtr(a.Completed) {
				counts[a.ActivityType]++
			}
		}

		if missing := EvaluateCompletion(requirements, counts); len(missing) > 0 {
			return &utils.IncompleteVisitError{Missing: missing}
		}

		now := time.Now().UTC()
		geofence := WithinRadius(input.DepartureLocation.Coordinate(), customer.Location(), VisitGeofenceRadiusMeters)

		departurePayload, err := json.Marshal(DeparturePayload{Location: *input.DepartureLocation, Geofence: geofence})
		if err != nil {
			return err
		}
		departure := VisitActivity{
			BusinessId:   businessId,
			VisitId:      visitId,
			ActivityType: ActivityTypeDeparture,
			Required:     utils.NewTrue(),
			Completed:    utils.NewTrue(),
			ActivityTime: now,
			Payload:      departurePayload,
		}
		if err := tx.WithContext(ctx).Create(&departure).Error; err != nil {
			return &utils.StorageError{Err: err}
		}
		counts[ActivityTypeDeparture]++

		duration := 0
		if visit.ActualStartTime != nil {
			duration = int(now.Sub(*visit.ActualStartTime).Minutes())
		}

		var totalSales decimal.Decimal
		if err := tx.WithContext(ctx).Model(&Sale{}).
			Where("business_id = ? AND visit_id = ?", businessId, visitId).
			Select("COALESCE(SUM(total_amount), 0)").
			Scan(&totalSales).Error; err != nil {
			return err
		}

		notes := visit.Notes
		if input.Notes != "" {
			if notes != "" {
				notes += "\n"
			}
			notes += input.Notes
		}

		updates := map[string]interface{}{
			"status":           VisitStatusCompleted,
			"actual_end_time":  &now,
			"end_latitude":     input.DepartureLocation.Latitude,
			"end_longitude":    input.DepartureLocation.Longitude,
			"duration_minutes": duration,
			"notes":            notes,
		}
		res := tx.WithContext(ctx).Model(&Visit{}).
			Where("business_id = ? AND id = ? AND status = ?", businessId, visitId, VisitStatusInProgress).
			Updates(updates)
		if res.Error != nil {
			return &utils.StorageError{Err: res.Error}
		}
		if res.RowsAffected != 1 {
			return utils.NewConflictError("visit is no longer in progress")
		}

		if err := emitActivityEvent(ctx, tx, ActivityEventVisitCompleted, businessId, visitId, agentId, 0, map[string]interface{}{
			"customer_id":      visit.CustomerId,
			"duration_minutes": duration,
			"total_sale_value": totalSales,
			"geofence":         geofence,
		}); err != nil {
			return &utils.StorageError{Err: err}
		}

		if err := tx.Commit().Error; err != nil {
			return &utils.StorageError{Err: err}
		}

		visit.Status = VisitStatusCompleted
		visit.ActualEndTime = &now
		visit.EndLatitude = &input.DepartureLocation.Latitude
		visit.EndLongitude = &input.DepartureLocation.Longitude
		visit.DurationMinutes = duration
		visit.Notes = notes

		summary = &VisitSummary{
			ActivityCounts:     counts,
			TotalSaleValue:     totalSales,
			DurationMinutes:    duration,
			LocationValidation: geofence,
		}
		return nil
	}()
	if err != nil {
		return nil, nil, err
	}
	return visit, summary, nil
}

// CancelVisit abandons an InProgress visit. Terminal; the reason is appended
// to the visit notes.
func CancelVisit(ctx context.Context, visitId int, reason string) (*Visit, error) {
	businessId, agentId, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var visit *Visit
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		visit, err = getOwnedVisit(tx, ctx, businessId, agentId, visitId)
		if err != nil {
			return err
		}
		if !canTransition(visit.Status, VisitStatusCancelled) {
			return utils.NewConflictError("visit cannot be cancelled from status " + string(visit.Status))
		}

		now := time.Now().UTC()
		notes := visit.Notes
		if reason != "" {
			if notes != "" {
				notes += "\n"
			}
			notes += "Cancelled: " + reason
		}

		res := tx.WithContext(ctx).Model(&Visit{}).
			Where("business_id = ? AND id = ? AND status = ?", businessId, visitId, visit.Status).
			Updates(map[string]interface{}{
				"status":          VisitStatusCancelled,
				"actual_end_time": &now,
				"notes":           notes,
			})
		if res.Error != nil {
			return &utils.StorageError{Err: res.Error}
		}
		if res.RowsAffected != 1 {
			return utils.NewConflictError("visit is no longer cancellable")
		}
		visit.Status = VisitStatusCancelled
		visit.ActualEndTime = &now
		visit.Notes = notes

		return emitActivityEvent(ctx, tx, ActivityEventVisitCancelled, businessId, visitId, agentId, 0, map[string]interface{}{
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return visit, nil
}

// UpdateVisitFraudRisk records the async classifier verdict. Append-only
// annotation: allowed on terminal visits as well.
func UpdateVisitFraudRisk(ctx context.Context, businessId string, visitId int, level RiskLevel) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Visit{}).
		Where("business_id = ? AND id = ?", businessId, visitId).
		Update("fraud_risk_level", level).Error
}

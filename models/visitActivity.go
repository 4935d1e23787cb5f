package models

import (
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"github.com/shopspring/decimal"
)

// VisitActivity is one typed, timestamped entry of a visit's activity log.
// Payload is validated against the activity kind's schema at the boundary;
// untyped blobs never enter the state machine.
type VisitActivity struct {
	ID           int          `gorm:"primary_key" json:"id"`
	BusinessId   string       `gorm:"size:64;index;not null" json:"business_id"`
	VisitId      int          `gorm:"index;not null" json:"visit_id"`
	ActivityType ActivityType `gorm:"type:enum('arrival','photo','survey','sale','audit','departure');not null" json:"activity_type"`
	Required     *bool        `gorm:"not null;default:false" json:"required"`
	Completed    *bool        `gorm:"not null;default:false" json:"completed"`
	ActivityTime time.Time    `gorm:"not null" json:"activity_time"`
	ReferenceId  int          `gorm:"default:0" json:"reference_id"`
	Payload      []byte       `gorm:"type:json" json:"payload"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// GeoPoint is a client-captured location fix.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

func (g GeoPoint) Coordinate() Coordinate {
	return Coordinate{Latitude: g.Latitude, Longitude: g.Longitude}
}

// Per-kind activity payloads. One explicit schema per activity kind.

type ArrivalPayload struct {
	Location GeoPoint       `json:"location"`
	Geofence GeofenceResult `json:"geofence"`
}

type PhotoActivityPayload struct {
	PhotoId   int      `json:"photo_id"`
	ObjectKey string   `json:"object_key"`
	Caption   string   `json:"caption,omitempty"`
	Location  GeoPoint `json:"location,omitempty"`
}

type SurveyActivityPayload struct {
	SurveyId         int `json:"survey_id"`
	SurveyResponseId int `json:"survey_response_id"`
}

type SaleActivityPayload struct {
	SaleId        int             `json:"sale_id"`
	InvoiceNumber string          `json:"invoice_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
}

type AuditPayload struct {
	AssetTag  string `json:"asset_tag"`
	Condition string `json:"condition"`
	Notes     string `json:"notes,omitempty"`
}

type DeparturePayload struct {
	Location GeoPoint       `json:"location"`
	Geofence GeofenceResult `json:"geofence"`
}

var auditConditions = map[string]bool{
	"good": true, "damaged": true, "missing": true, "needs_replacement": true,
}

// validateActivityPayload decodes and validates a raw client payload for the
// given activity kind, returning the canonical JSON to persist. Unknown kinds
// and schema violations are ValidationErrors.
func validateActivityPayload(activityType ActivityType, raw json.RawMessage) ([]byte, error) {
	switch activityType {
	case ActivityTypeAudit:
		var payload AuditPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, utils.NewValidationError("malformed audit payload")
		}
		var details []utils.FieldError
		if payload.AssetTag == "" {
			details = append(details, utils.FieldError{Field: "asset_tag", Message: "required"})
		}
		if !auditConditions[payload.Condition] {
			details = append(details, utils.FieldError{Field: "condition", Message: "must be one of good, damaged, missing, needs_replacement"})
		}
		if len(details) > 0 {
			return nil, utils.NewValidationError("invalid audit payload", details...)
		}
		return json.Marshal(payload)

	case ActivityTypePhoto:
		var payload PhotoActivityPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, utils.NewValidationError("malformed photo payload")
		}
		if payload.ObjectKey == "" && payload.PhotoId == 0 {
			return nil, utils.NewValidationError("photo payload requires an object key or photo id")
		}
		return json.Marshal(payload)

	case ActivityTypeArrival, ActivityTypeDeparture:
		// These are written exactly once, by visit start and completion.
		// Accepting them here would let a client double-record them.
		return nil, utils.NewValidationError(string(activityType)+" cannot be recorded directly",
			utils.FieldError{Field: "activity_type", Message: "arrival is captured at visit start, departure at completion"})

	default:
		return nil, utils.NewValidationError("unsupported activity type: " + string(activityType))
	}
}

package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"github.com/shopspring/decimal"
)

// VisitPhoto stores object storage keys only; the bytes live in GCS.
type VisitPhoto struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"size:64;index;not null" json:"business_id"`
	VisitId         int             `gorm:"index;not null" json:"visit_id"`
	AgentId         int             `gorm:"index;not null" json:"agent_id"`
	ObjectKey       string          `gorm:"size:255;not null" json:"object_key"`
	ThumbnailKey    string          `gorm:"size:255" json:"thumbnail_key"`
	ContentType     string          `gorm:"size:100" json:"content_type"`
	SizeBytes       int64           `json:"size_bytes"`
	Caption         string          `gorm:"size:255" json:"caption"`
	Latitude        decimal.Decimal `gorm:"type:decimal(10,7)" json:"latitude"`
	Longitude       decimal.Decimal `gorm:"type:decimal(10,7)" json:"longitude"`
	QualityScore    decimal.Decimal `gorm:"type:decimal(5,4)" json:"quality_score"`
	BrandMatches    int             `json:"brand_matches"`
	AnalysisPending *bool           `gorm:"default:true" json:"analysis_pending"`
	CapturedAt      time.Time       `json:"captured_at"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewVisitPhoto struct {
	ObjectKey    string
	ThumbnailKey string
	ContentType  string
	SizeBytes    int64
	Caption      string
	Location     *GeoPoint
	CapturedAt   time.Time
}

// PhotoAnalysis is the summary returned by the image analysis dependency.
type PhotoAnalysis struct {
	QualityScore decimal.Decimal `json:"quality_score"`
	BrandMatches int             `json:"brand_matches"`
}

// CreateVisitPhoto records an uploaded photo against an InProgress visit and
// appends the matching photo activity in the same transaction.
func CreateVisitPhoto(ctx context.Context, visitId int, input *NewVisitPhoto) (*VisitPhoto, error) {
	businessId, agentId, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}
	if input.ObjectKey == "" {
		return nil, utils.NewValidationError("photo object key required",
			utils.FieldError{Field: "object_key", Message: "must not be empty"})
	}

	db := config.GetDB()

	var created *VisitPhoto
	err = func() error {
		tx := db.Begin()
		defer func() {
			if r := recover(); r != nil {
				_ = tx.Rollback().Error
				panic(r)
			}
		}()
		defer func() { _ = tx.Rollback().Error }()

		visit, err := getOwnedVisit(tx, ctx, businessId, agentId, visitId)
		if err != nil {
			return err
		}
		if err := ensureVisitInProgress(visit); err != nil {
			return err
		}

		capturedAt := input.CapturedAt
		if capturedAt.IsZero() {
			capturedAt = time.Now().UTC()
		}
		photo := VisitPhoto{
			BusinessId:   businessId,
			VisitId:      visitId,
			AgentId:      agentId,
			ObjectKey:    input.ObjectKey,
			ThumbnailKey: input.ThumbnailKey,
			ContentType:  input.ContentType,
			SizeBytes:    input.SizeBytes,
			Caption:      input.Caption,
			CapturedAt:   capturedAt,
		}
		if input.Location != nil {
			photo.Latitude = decimal.NewFromFloat(input.Location.Latitude)
			photo.Longitude = decimal.NewFromFloat(input.Location.Longitude)
		}
		if err := tx.WithContext(ctx).Create(&photo).Error; err != nil {
			return &utils.StorageError{Err: err}
		}

		activityPayload := PhotoActivityPayload{
			PhotoId:   photo.ID,
			ObjectKey: photo.ObjectKey,
			Caption:   photo.Caption,
		}
		if input.Location != nil {
			activityPayload.Location = *input.Location
		}
		payloadJSON, err := utils.MarshalToJSON(activityPayload)
		if err != nil {
			return err
		}
		activity := VisitActivity{
			BusinessId:   businessId,
			VisitId:      visitId,
			ActivityType: ActivityTypePhoto,
			Required:     utils.NewTrue(),
			Completed:    utils.NewTrue(),
			ActivityTime: capturedAt,
			ReferenceId:  photo.ID,
			Payload:      []byte(payloadJSON),
		}
		if err := tx.WithContext(ctx).Create(&activity).Error; err != nil {
			return &utils.StorageError{Err: err}
		}

		if err := tx.Commit().Error; err != nil {
			return &utils.StorageError{Err: err}
		}
		created = &photo
		return nil
	}()
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdatePhotoAnalysis stores the analysis summary once the image dependency
// responds. Best effort; the photo stays usable without it.
func UpdatePhotoAnalysis(ctx context.Context, businessId string, photoId int, analysis *PhotoAnalysis) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&VisitPhoto{}).
		Where("business_id = ? AND id = ?", businessId, photoId).
		Updates(map[string]interface{}{
			"quality_score":    analysis.QualityScore,
			"brand_matches":    analysis.BrandMatches,
			"analysis_pending": false,
		}).Error
}

package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const (
	IdempotencyStatusStarted   = "STARTED"
	IdempotencyStatusSucceeded = "SUCCEEDED"
	IdempotencyStatusFailed    = "FAILED"
)

// IdempotencyKey records one client-generated event key per business. The
// unique index is the dedup mechanism; a second insert of the same key fails
// with a duplicate key error and the caller treats the event as replayed.
type IdempotencyKey struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"size:64;not null;index:uniq_idem_key,unique" json:"business_id"`
	ClientKey  string          `gorm:"size:100;not null;index:uniq_idem_key,unique" json:"client_key"`
	VisitId    int             `gorm:"index" json:"visit_id"`
	Status     string          `gorm:"size:20;not null" json:"status"`
	Result     json.RawMessage `gorm:"type:json" json:"result"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// BeginIdempotency claims a client key inside tx. Returns (nil, true, nil)
// when the key was already claimed, meaning the event is a replay.
func BeginIdempotency(tx *gorm.DB, ctx context.Context, businessId, clientKey string, visitId int) (*IdempotencyKey, bool, error) {
	key := IdempotencyKey{
		BusinessId: businessId,
		ClientKey:  clientKey,
		VisitId:    visitId,
		Status:     IdempotencyStatusStarted,
	}
	if err := tx.WithContext(ctx).Create(&key).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return nil, true, nil
		}
		return nil, false, &utils.StorageError{Err: err}
	}
	return &key, false, nil
}

// FinishIdempotency records the outcome on the claimed key.
func FinishIdempotency(tx *gorm.DB, ctx context.Context, key *IdempotencyKey, status string, result interface{}) error {
	updates := map[string]interface{}{"status": status}
	if result != nil {
		resultJSON, err := json.Marshal(result)
		if err == nil {
			updates["result"] = resultJSON
		}
	}
	return tx.WithContext(ctx).Model(&IdempotencyKey{}).
		Where("id = ?", key.ID).
		Updates(updates).Error
}

package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"size:64;index;not null" json:"business_id"`
	Name       string          `gorm:"size:100;not null" json:"name"`
	Sku        string          `gorm:"size:100;index" json:"sku"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	IsActive   *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// productNamesById resolves display names for shortage/line-item detail.
// Missing ids are simply absent from the map; callers fall back to the id.
func productNamesById(ctx context.Context, businessId string, ids []int) (map[int]string, error) {
	if len(ids) == 0 {
		return map[int]string{}, nil
	}
	db := config.GetDB()
	var rows []Product
	if err := db.WithContext(ctx).
		Select("id", "name").
		Where("business_id = ? AND id IN ?", businessId, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	names := make(map[int]string, len(rows))
	for _, p := range rows {
		names[p.ID] = p.Name
	}
	return names, nil
}

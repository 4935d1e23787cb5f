package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AgentStock is the per-agent, per-product carried-inventory ledger.
// Quantity must never go negative; mutation happens only through the sale
// transaction's conditional decrement.
type AgentStock struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"size:64;not null;index:uniq_agent_stock,unique" json:"business_id"`
	AgentId    int             `gorm:"not null;index:uniq_agent_stock,unique" json:"agent_id"`
	ProductId  int             `gorm:"not null;index:uniq_agent_stock,unique" json:"product_id"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type StockLine struct {
	ProductId int             `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type StockShortage struct {
	ProductId   int             `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Requested   decimal.Decimal `json:"requested"`
	Available   decimal.Decimal `json:"available"`
}

func (s StockShortage) Detail() string {
	name := s.ProductName
	if name == "" {
		name = fmt.Sprintf("product %d", s.ProductId)
	}
	return fmt.Sprintf("%s: requested %s, available %s", name, s.Requested.String(), s.Available.String())
}

type StockCheckResult struct {
	OK        bool            `json:"ok"`
	Shortages []StockShortage `json:"shortages,omitempty"`
}

// EvaluateStockRequest compares requested lines against a carried-quantity
// snapshot. It collects every shortage instead of failing fast so the caller
// can present all problems at once. Pure; lines for the same product are
// accumulated before comparison.
func EvaluateStockRequest(carried map[int]decimal.Decimal, lines []StockLine) StockCheckResult {
	requested := make(map[int]decimal.Decimal, len(lines))
	order := make([]int, 0, len(lines))
	for _, line := range lines {
		if _, seen := requested[line.ProductId]; !seen {
			order = append(order, line.ProductId)
		}
		requested[line.ProductId] = requested[line.ProductId].Add(line.Quantity)
	}

	result := StockCheckResult{OK: true}
	for _, productId := range order {
		available := carried[productId]
		want := requested[productId]
		if available.GreaterThanOrEqual(want) {
			continue
		}
		result.OK = false
		result.Shortages = append(result.Shortages, StockShortage{
			ProductId: productId,
			Requested: want,
			Available: available,
		})
	}
	return result
}

// CheckAgentStock is the read-only Stock Ledger Guard: it loads the agent's
// carried ledger (inside the caller's transaction, so uncommitted decrements
// are visible) and evaluates the request against it.
func CheckAgentStock(tx *gorm.DB, ctx context.Context, businessId string, agentId int, lines []StockLine) (StockCheckResult, error) {
	productIds := make([]int, 0, len(lines))
	for _, line := range lines {
		productIds = append(productIds, line.ProductId)
	}

	var rows []AgentStock
	if err := tx.WithContext(ctx).
		Where("business_id = ? AND agent_id = ? AND product_id IN ?", businessId, agentId, productIds).
		Find(&rows).Error; err != nil {
		return StockCheckResult{}, err
	}
	carried := make(map[int]decimal.Decimal, len(rows))
	for _, row := range rows {
		carried[row.ProductId] = row.Quantity
	}

	result := EvaluateStockRequest(carried, lines)
	if result.OK {
		return result, nil
	}

	names, err := productNamesById(ctx, businessId, productIds)
	if err == nil {
		for i := range result.Shortages {
			result.Shortages[i].ProductName = names[result.Shortages[i].ProductId]
		}
	}
	return result, nil
}

// decrementAgentStock applies one sale line against the carried ledger with a
// conditional update. The quantity guard in the WHERE clause is what upholds
// the non-negative invariant under concurrency; a read-then-write would not.
// Returns false when the condition failed (concurrent consumption).
func decrementAgentStock(tx *gorm.DB, ctx context.Context, businessId string, agentId int, productId int, qty decimal.Decimal) (bool, error) {
	res := tx.WithContext(ctx).Model(&AgentStock{}).
		Where("business_id = ? AND agent_id = ? AND product_id = ? AND quantity >= ?",
			businessId, agentId, productId, qty).
		Update("quantity", gorm.Expr("quantity - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReplenishAgentStock loads product quantities onto an agent (upsert-add).
// Used by warehouse checkout outside the visit workflow.
func ReplenishAgentStock(ctx context.Context, businessId string, agentId int, lines []StockLine) error {
	productIds := make([]int, 0, len(lines))
	for _, line := range lines {
		if line.Quantity.IsNegative() {
			return utils.NewValidationError("replenishment quantities must not be negative",
				utils.FieldError{Field: fmt.Sprintf("product_%d", line.ProductId), Message: "negative quantity"})
		}
		productIds = append(productIds, line.ProductId)
	}
	if err := utils.ValidateResourcesId[Product](ctx, businessId, productIds); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return utils.NewNotFoundError("product")
		}
		return err
	}

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range lines {
			res := tx.Model(&AgentStock{}).
				Where("business_id = ? AND agent_id = ? AND product_id = ?", businessId, agentId, line.ProductId).
				Update("quantity", gorm.Expr("quantity + ?", line.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				row := AgentStock{
					BusinessId: businessId,
					AgentId:    agentId,
					ProductId:  line.ProductId,
					Quantity:   line.Quantity,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

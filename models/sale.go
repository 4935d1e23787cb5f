package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Sale is immutable once created. The server is the sole writer; clients only
// propose sales through the composer below.
type Sale struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;index;not null" json:"business_id"`
	AgentId       int             `gorm:"index;not null" json:"agent_id"`
	CustomerId    int             `gorm:"index;not null" json:"customer_id"`
	VisitId       int             `gorm:"index" json:"visit_id"`
	InvoiceNumber string          `gorm:"size:50;index" json:"invoice_number"`
	PaymentMethod PaymentMethod   `gorm:"type:enum('CASH','CREDIT','MOBILE_MONEY');not null" json:"payment_method"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	SaleTime      time.Time       `gorm:"not null" json:"sale_time"`
	Items         []*SaleItem     `gorm:"foreignKey:SaleId" json:"items"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type SaleItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"size:64;index;not null" json:"business_id"`
	SaleId      int             `gorm:"index;not null" json:"sale_id"`
	ProductId   int             `gorm:"index;not null" json:"product_id"`
	ProductName string          `gorm:"size:100" json:"product_name"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitRate    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_rate"`
	Discount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSaleItem struct {
	ProductId int             `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	UnitRate  decimal.Decimal `json:"unit_rate"`
	Discount  decimal.Decimal `json:"discount"`
}

type NewSale struct {
	Items         []*NewSaleItem  `json:"items" binding:"required,min=1,dive"`
	PaymentMethod PaymentMethod   `json:"payment_method" binding:"required"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// InvoiceSummary is a derived, read-only projection of a sale. It is never a
// source of truth.
type InvoiceSummary struct {
	InvoiceNumber string          `json:"invoice_number"`
	CustomerName  string          `json:"customer_name"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	IssuedAt      time.Time       `json:"issued_at"`
	Items         []*SaleItem     `json:"items"`
}

func (input *NewSale) validate() error {
	if !input.PaymentMethod.Valid() {
		return utils.NewValidationError("invalid payment method",
			utils.FieldError{Field: "payment_method", Message: "must be CASH, CREDIT or MOBILE_MONEY"})
	}
	for i, item := range input.Items {
		if item.Quantity.LessThanOrEqual(decimal.Zero) {
			return utils.NewValidationError("invalid sale item",
				utils.FieldError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be positive"})
		}
		if item.UnitRate.IsNegative() || item.Discount.IsNegative() {
			return utils.NewValidationError("invalid sale item",
				utils.FieldError{Field: fmt.Sprintf("items[%d]", i), Message: "unit_rate and discount must not be negative"})
		}
	}
	return nil
}

// lineAmount computes one line's value: qty * rate - discount.
func (item *NewSaleItem) lineAmount() decimal.Decimal {
	return item.Quantity.Mul(item.UnitRate).Sub(item.Discount)
}

// ComputeSaleTotals returns (subtotal, totalDiscount, total). Pure; used both
// for validation against the declared total and for the invoice projection.
func ComputeSaleTotals(items []*NewSaleItem) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	subtotal := decimal.Zero
	totalDiscount := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Quantity.Mul(item.UnitRate))
		totalDiscount = totalDiscount.Add(item.Discount)
	}
	return subtotal, totalDiscount, subtotal.Sub(totalDiscount)
}

// CreateVisitSale composes an atomic sale against an InProgress visit:
// guards, sale + items insert, conditional stock decrements, credit balance
// move and the sale activity all commit or roll back together. No partial
// ledger mutation is possible.
func CreateVisitSale(ctx context.Context, visitId int, input *NewSale) (*Sale, *InvoiceSummary, error) {
	businessId, agentId, err := callerScope(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := input.validate(); err != nil {
		return nil, nil, err
	}

	_, _, computedTotal := ComputeSaleTotals(input.Items)
	if !input.TotalAmount.IsZero() && !computedTotal.Equal(input.TotalAmount) {
		return nil, nil, utils.NewValidationError(
			fmt.Sprintf("declared total %s does not match item total %s", input.TotalAmount.String(), computedTotal.String()),
			utils.FieldError{Field: "total_amount", Message: "must equal the sum of line amounts"})
	}

	lines := make([]StockLine, 0, len(input.Items))
	productIds := make([]int, 0, len(input.Items))
	for _, item := range input.Items {
		lines = append(lines, StockLine{ProductId: item.ProductId, Quantity: item.Quantity})
		productIds = append(productIds, item.ProductId)
	}
	if err := utils.ValidateResourcesId[Product](ctx, businessId, productIds); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, nil, utils.NewNotFoundError("product")
		}
		return nil, nil, err
	}

	db := config.GetDB()

	var sale *Sale
	var invoice *InvoiceSummary
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

		visit, err := getOwnedVisit(tx, ctx, businessId, agentId, visitId)
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

		// Guards first; abort with no writes on failure.
		stockResult, err := CheckAgentStock(tx, ctx, businessId, agentId, lines)
		if err != nil {
			return &utils.StorageError{Err: err}
		}
		if !stockResult.OK {
			return shortageValidationError(stockResult.Shortages)
		}
		if decision := customer.CheckCredit(computedTotal, input.PaymentMethod); !decision.Approved {
			return utils.NewValidationError("credit rejected",
				utils.FieldError{Field: "payment_method", Message: decision.Reason})
		}

		names, err := productNamesById(ctx, businessId, productIds)
		if err != nil {
			return &utils.StorageError{Err: err}
		}

		now := time.Now().UTC()
		newSale := Sale{
			BusinessId:    businessId,
			AgentId:       agentId,
			CustomerId:    customer.ID,
			VisitId:       visitId,
			PaymentMethod: input.PaymentMethod,
			TotalAmount:   computedTotal,
			SaleTime:      now,
		}
		if err := tx.WithContext(ctx).Create(&newSale).Error; err != nil {
			return &utils.StorageError{Err: err}
		}

		newSale.InvoiceNumber = fmt.Sprintf("INV-%06d", newSale.ID)
		if err := tx.WithContext(ctx).Model(&Sale{}).
			Where("id = ?", newSale.ID).
			Update("invoice_number", newSale.InvoiceNumber).Error; err != nil {
			return &utils.StorageError{Err: err}
		}

		for _, item := range input.Items {
			saleItem := SaleItem{
				BusinessId:  businessId,
				SaleId:      newSale.ID,
				ProductId:   item.ProductId,
				ProductName: names[item.ProductId],
				Quantity:    item.Quantity,
				UnitRate:    item.UnitRate,
				Discount:    item.Discount,
				Amount:      item.lineAmount(),
			}
			if err := tx.WithContext(ctx).Create(&saleItem).Error; err != nil {
				return &utils.StorageError{Err: err}
			}
			newSale.Items = append(newSale.Items, &saleItem)

			// The conditional decrement is the authoritative stock check; the
			// guard above only aggregates shortages for the response.
			ok, err := decrementAgentStock(tx, ctx, businessId, agentId, item.ProductId, item.Quantity)
			if err != nil {
				return &utils.StorageError{Err: err}
			}
			if !ok {
				// Lost the decrement race. Re-read inside the transaction so
				// the shortage detail reports the quantity actually left, not
				// a guessed zero.
				available := decimal.Zero
				var row AgentStock
				if err := tx.WithContext(ctx).
					Where("business_id = ? AND agent_id = ? AND product_id = ?", businessId, agentId, item.ProductId).
					First(&row).Error; err == nil {
					available = row.Quantity
				}
				return shortageValidationError([]StockShortage{{
					ProductId:   item.ProductId,
					ProductName: names[item.ProductId],
					Requested:   item.Quantity,
					Available:   available,
				}})
			}
		}

		if input.PaymentMethod == PaymentMethodCredit {
			// Conditional move so a concurrent credit sale cannot overshoot
			// the limit between guard and commit.
			res := tx.WithContext(ctx).Model(&Customer{}).
				Where("business_id = ? AND id = ? AND credit_balance + ? <= credit_limit",
					businessId, customer.ID, computedTotal).
				Update("credit_balance", gorm.Expr("credit_balance + ?", computedTotal))
			if res.Error != nil {
				return &utils.StorageError{Err: res.Error}
			}
			if res.RowsAffected != 1 {
				return utils.NewValidationError("credit rejected",
					utils.FieldError{Field: "payment_method", Message: "credit limit exceeded"})
			}
		}

		activityPayload := SaleActivityPayload{
			SaleId:        newSale.ID,
			InvoiceNumber: newSale.InvoiceNumber,
			TotalAmount:   newSale.TotalAmount,
			PaymentMethod: newSale.PaymentMethod,
		}
		payloadJSON, err := utils.MarshalToJSON(activityPayload)
		if err != nil {
			return err
		}
		activity := VisitActivity{
			BusinessId:   businessId,
			VisitId:      visitId,
			ActivityType: ActivityTypeSale,
			Required:     utils.NewFalse(),
			Completed:    utils.NewTrue(),
			ActivityTime: now,
			ReferenceId:  newSale.ID,
			Payload:      []byte(payloadJSON),
		}
		if err := tx.WithContext(ctx).Create(&activity).Error; err != nil {
			return &utils.StorageError{Err: err}
		}

		if err := emitActivityEvent(ctx, tx, ActivityEventSaleCreated, businessId, visitId, agentId, newSale.ID, activityPayload); err != nil {
			return &utils.StorageError{Err: err}
		}

		if err := tx.Commit().Error; err != nil {
			return &utils.StorageError{Err: err}
		}

		if input.PaymentMethod == PaymentMethodCredit {
			// The cached customer now carries a stale balance.
			_ = config.RemoveRedisKey(customerCacheKey(businessId, customer.ID))
		}

		subtotal, totalDiscount, _ := ComputeSaleTotals(input.Items)
		sale = &newSale
		invoice = &InvoiceSummary{
			InvoiceNumber: newSale.InvoiceNumber,
			CustomerName:  customer.Name,
			PaymentMethod: newSale.PaymentMethod,
			Subtotal:      subtotal,
			TotalDiscount: totalDiscount,
			TotalAmount:   newSale.TotalAmount,
			IssuedAt:      now,
			Items:         newSale.Items,
		}
		return nil
	}()
	if err != nil {
		return nil, nil, err
	}
	return sale, invoice, nil
}

func shortageValidationError(shortages []StockShortage) *utils.ValidationError {
	details := make([]utils.FieldError, 0, len(shortages))
	for _, s := range shortages {
		details = append(details, utils.FieldError{
			Field:   fmt.Sprintf("product_%d", s.ProductId),
			Message: s.Detail(),
		})
	}
	return utils.NewValidationError("insufficient stock", details...)
}

// GetVisitSale loads a sale belonging to the caller's visit.
func GetVisitSale(ctx context.Context, visitId, saleId int) (*Sale, error) {
	businessId, agentId, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var sale Sale
	err = db.WithContext(ctx).
		Preload("Items").
		Where("business_id = ? AND agent_id = ? AND visit_id = ? AND id = ?", businessId, agentId, visitId, saleId).
		First(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("sale")
		}
		return nil, err
	}
	return &sale, nil
}

// ExportInvoiceExcel renders a sale's invoice projection as an xlsx workbook.
func ExportInvoiceExcel(ctx context.Context, visitId, saleId int) (*excelize.File, error) {
	sale, err := GetVisitSale(ctx, visitId, saleId)
	if err != nil {
		return nil, err
	}
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	customer, err := GetCustomerById(ctx, businessId, sale.CustomerId)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Invoice"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	_ = f.DeleteSheet("Sheet1")

	f.SetCellValue(sheet, "A1", "Invoice")
	f.SetCellValue(sheet, "B1", sale.InvoiceNumber)
	f.SetCellValue(sheet, "A2", "Customer")
	f.SetCellValue(sheet, "B2", customer.Name)
	f.SetCellValue(sheet, "A3", "Payment Method")
	f.SetCellValue(sheet, "B3", string(sale.PaymentMethod))
	f.SetCellValue(sheet, "A4", "Date")
	f.SetCellValue(sheet, "B4", sale.SaleTime.Format("2006-01-02 15:04"))

	f.SetCellValue(sheet, "A6", "Product")
	f.SetCellValue(sheet, "B6", "Qty")
	f.SetCellValue(sheet, "C6", "Unit Rate")
	f.SetCellValue(sheet, "D6", "Discount")
	f.SetCellValue(sheet, "E6", "Amount")

	row := 7
	for _, item := range sale.Items {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), item.ProductName)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), item.Quantity.String())
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), item.UnitRate.String())
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), item.Discount.String())
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), item.Amount.String())
		row++
	}
	f.SetCellValue(sheet, fmt.Sprintf("D%d", row+1), "Total")
	f.SetCellValue(sheet, fmt.Sprintf("E%d", row+1), sale.TotalAmount.String())

	return f, nil
}

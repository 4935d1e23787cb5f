package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Customer struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;index;not null" json:"business_id"`
	Name          string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Email         string          `gorm:"size:100" json:"email"`
	Phone         string          `gorm:"size:20" json:"phone"`
	CustomerType  CustomerType    `gorm:"type:enum('Standard','KeyAccount');not null;default:'Standard'" json:"customer_type"`
	Latitude      float64         `gorm:"type:decimal(10,7)" json:"latitude"`
	Longitude     float64         `gorm:"type:decimal(10,7)" json:"longitude"`
	CreditLimit   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit_limit"`
	CreditBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit_balance"`
	Notes         string          `gorm:"type:text" json:"notes"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Customer) Location() Coordinate {
	return Coordinate{Latitude: c.Latitude, Longitude: c.Longitude}
}

const customerCacheTTL = 5 * time.Minute

func customerCacheKey(businessId string, id int) string {
	return fmt.Sprintf("customer:%s:%d", businessId, id)
}

// GetCustomerById reads through a short-lived Redis cache. The cache is
// advisory only: every mutation that the cached fields guard (the credit
// balance move) re-checks its condition in SQL, so a stale read can never
// over-approve.
func GetCustomerById(ctx context.Context, businessId string, id int) (*Customer, error) {
	cacheKey := customerCacheKey(businessId, id)
	var cached Customer
	if hit, err := config.GetRedisObject(cacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	db := config.GetDB()
	var customer Customer
	err := db.WithContext(ctx).
		Where("business_id = ? AND id = ?", businessId, id).
		First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("customer")
		}
		return nil, err
	}
	_ = config.SetRedisObject(cacheKey, customer, customerCacheTTL)
	return &customer, nil
}

// CreditDecision is the Credit Guard's structured verdict. Read-only: the
// balance mutation happens inside the sale transaction, never here.
type CreditDecision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// CheckCredit evaluates the customer's outstanding balance against its limit.
// Non-credit payment methods are approved unconditionally.
func (c *Customer) CheckCredit(amount decimal.Decimal, method PaymentMethod) CreditDecision {
	if method != PaymentMethodCredit {
		return CreditDecision{Approved: true}
	}
	projected := c.CreditBalance.Add(amount)
	if projected.GreaterThan(c.CreditLimit) {
		return CreditDecision{
			Approved: false,
			Reason: "credit limit exceeded: balance " + c.CreditBalance.String() +
				" + amount " + amount.String() + " > limit " + c.CreditLimit.String(),
		}
	}
	return CreditDecision{Approved: true}
}

func countryCodeFromEnv() string {
	if v := os.Getenv("PHONE_REGION"); v != "" {
		return v
	}
	return "ZA"
}

type NewCustomer struct {
	Name         string          `json:"name" binding:"required"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	CustomerType CustomerType    `json:"customer_type"`
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	CreditLimit  decimal.Decimal `json:"credit_limit"`
	Notes        string          `json:"notes"`
}

func (input *NewCustomer) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateUnique[Customer](ctx, businessId, "name", input.Name, 0); err != nil {
		return utils.NewValidationError(err.Error())
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, countryCodeFromEnv()); err != nil {
			return utils.NewValidationError("invalid phone number",
				utils.FieldError{Field: "phone", Message: err.Error()})
		}
	}
	if input.CustomerType == "" {
		input.CustomerType = CustomerTypeStandard
	}
	if input.CustomerType != CustomerTypeStandard && input.CustomerType != CustomerTypeKeyAccount {
		return utils.NewValidationError("invalid customer type")
	}
	return nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	customer := Customer{
		BusinessId:   businessId,
		Name:         input.Name,
		Email:        input.Email,
		Phone:        input.Phone,
		CustomerType: input.CustomerType,
		Latitude:     input.Latitude,
		Longitude:    input.Longitude,
		CreditLimit:  input.CreditLimit,
		Notes:        input.Notes,
		IsActive:     utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, &utils.StorageError{Err: err}
	}
	return &customer, nil
}

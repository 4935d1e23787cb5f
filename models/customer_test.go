package models

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCheckCredit_CashApprovedRegardlessOfBalance(t *testing.T) {
	customer := &Customer{
		CreditLimit:   decimal.NewFromInt(100),
		CreditBalance: decimal.NewFromInt(500),
	}

	decision := customer.CheckCredit(decimal.NewFromInt(1000), PaymentMethodCash)

	if !decision.Approved {
		t.Fatalf("cash sale must not be credit gated: %+v", decision)
	}
}

func TestCheckCredit_WithinLimitApproved(t *testing.T) {
	customer := &Customer{
		CreditLimit:   decimal.NewFromInt(1000),
		CreditBalance: decimal.NewFromInt(400),
	}

	decision := customer.CheckCredit(decimal.NewFromInt(600), PaymentMethodCredit)

	if !decision.Approved {
		t.Fatalf("balance+amount equal to limit must be approved: %+v", decision)
	}
}

func TestCheckCredit_OverLimitRejectedWithReason(t *testing.T) {
	customer := &Customer{
		CreditLimit:   decimal.NewFromInt(1000),
		CreditBalance: decimal.NewFromInt(400),
	}

	decision := customer.CheckCredit(decimal.NewFromFloat(600.01), PaymentMethodCredit)

	if decision.Approved {
		t.Fatal("expected rejection over the limit")
	}
	if !strings.Contains(decision.Reason, "credit limit exceeded") {
		t.Fatalf("expected a structured reason, got %q", decision.Reason)
	}
	if !strings.Contains(decision.Reason, "1000") {
		t.Fatalf("reason should name the limit, got %q", decision.Reason)
	}
}

func TestCheckCredit_MobileMoneyApproved(t *testing.T) {
	customer := &Customer{
		CreditLimit:   decimal.Zero,
		CreditBalance: decimal.Zero,
	}

	if decision := customer.CheckCredit(decimal.NewFromInt(50), PaymentMethodMobileMoney); !decision.Approved {
		t.Fatalf("mobile money must not be credit gated: %+v", decision)
	}
}

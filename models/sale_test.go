package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeSaleTotals(t *testing.T) {
	items := []*NewSaleItem{
		{ProductId: 1, Quantity: decimal.NewFromInt(2), UnitRate: decimal.NewFromFloat(10.5)},
		{ProductId: 2, Quantity: decimal.NewFromInt(1), UnitRate: decimal.NewFromInt(100), Discount: decimal.NewFromInt(5)},
	}

	subtotal, totalDiscount, total := ComputeSaleTotals(items)

	if !subtotal.Equal(decimal.NewFromInt(121)) {
		t.Fatalf("expected subtotal 121, got %s", subtotal)
	}
	if !totalDiscount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected discount 5, got %s", totalDiscount)
	}
	if !total.Equal(decimal.NewFromInt(116)) {
		t.Fatalf("expected total 116, got %s", total)
	}
}

func TestNewSaleValidate_RejectsNonPositiveQuantity(t *testing.T) {
	input := &NewSale{
		PaymentMethod: PaymentMethodCash,
		Items: []*NewSaleItem{
			{ProductId: 1, Quantity: decimal.Zero, UnitRate: decimal.NewFromInt(10)},
		},
	}

	if err := input.validate(); err == nil {
		t.Fatal("expected validation error for zero quantity")
	}
}

func TestNewSaleValidate_RejectsUnknownPaymentMethod(t *testing.T) {
	input := &NewSale{
		PaymentMethod: PaymentMethod("BARTER"),
		Items: []*NewSaleItem{
			{ProductId: 1, Quantity: decimal.NewFromInt(1), UnitRate: decimal.NewFromInt(10)},
		},
	}

	if err := input.validate(); err == nil {
		t.Fatal("expected validation error for unknown payment method")
	}
}

func TestNewSaleValidate_RejectsNegativeDiscount(t *testing.T) {
	input := &NewSale{
		PaymentMethod: PaymentMethodCredit,
		Items: []*NewSaleItem{
			{ProductId: 1, Quantity: decimal.NewFromInt(1), UnitRate: decimal.NewFromInt(10), Discount: decimal.NewFromInt(-1)},
		},
	}

	if err := input.validate(); err == nil {
		t.Fatal("expected validation error for negative discount")
	}
}

func TestNewSaleValidate_AcceptsWellFormedSale(t *testing.T) {
	input := &NewSale{
		PaymentMethod: PaymentMethodMobileMoney,
		Items: []*NewSaleItem{
			{ProductId: 1, Quantity: decimal.NewFromFloat(2.5), UnitRate: decimal.NewFromInt(8)},
		},
	}

	if err := input.validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

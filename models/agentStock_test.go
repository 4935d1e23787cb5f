package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEvaluateStockRequest_SufficientStock(t *testing.T) {
	carried := map[int]decimal.Decimal{
		1: decimal.NewFromInt(10),
		2: decimal.NewFromInt(5),
	}
	lines := []StockLine{
		{ProductId: 1, Quantity: decimal.NewFromInt(4)},
		{ProductId: 2, Quantity: decimal.NewFromInt(5)},
	}

	result := EvaluateStockRequest(carried, lines)

	if !result.OK {
		t.Fatalf("expected stock check to pass, shortages: %v", result.Shortages)
	}
}

func TestEvaluateStockRequest_ShortageReportsRequestedAndAvailable(t *testing.T) {
	carried := map[int]decimal.Decimal{
		1: decimal.NewFromInt(5),
	}
	lines := []StockLine{
		{ProductId: 1, Quantity: decimal.NewFromInt(6)},
	}

	result := EvaluateStockRequest(carried, lines)

	if result.OK {
		t.Fatal("expected shortage")
	}
	if len(result.Shortages) != 1 {
		t.Fatalf("expected 1 shortage, got %d", len(result.Shortages))
	}
	s := result.Shortages[0]
	if !s.Requested.Equal(decimal.NewFromInt(6)) || !s.Available.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected shortage numbers: %+v", s)
	}
	if s.Detail() != "product 1: requested 6, available 5" {
		t.Fatalf("unexpected shortage detail: %q", s.Detail())
	}
}

func TestEvaluateStockRequest_CollectsAllShortages(t *testing.T) {
	carried := map[int]decimal.Decimal{
		1: decimal.NewFromInt(1),
		2: decimal.NewFromInt(0),
		3: decimal.NewFromInt(100),
	}
	lines := []StockLine{
		{ProductId: 1, Quantity: decimal.NewFromInt(2)},
		{ProductId: 2, Quantity: decimal.NewFromInt(1)},
		{ProductId: 3, Quantity: decimal.NewFromInt(50)},
	}

	result := EvaluateStockRequest(carried, lines)

	if result.OK {
		t.Fatal("expected shortages")
	}
	if len(result.Shortages) != 2 {
		t.Fatalf("expected both shortages reported, got %v", result.Shortages)
	}
}

func TestEvaluateStockRequest_DuplicateLinesAccumulate(t *testing.T) {
	// Two lines of the same product must be checked against their sum.
	carried := map[int]decimal.Decimal{
		1: decimal.NewFromInt(5),
	}
	lines := []StockLine{
		{ProductId: 1, Quantity: decimal.NewFromInt(3)},
		{ProductId: 1, Quantity: decimal.NewFromInt(3)},
	}

	result := EvaluateStockRequest(carried, lines)

	if result.OK {
		t.Fatal("expected accumulated request of 6 to exceed 5 available")
	}
	if !result.Shortages[0].Requested.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("expected accumulated requested quantity 6, got %s", result.Shortages[0].Requested)
	}
}

func TestEvaluateStockRequest_UnknownProductTreatedAsZero(t *testing.T) {
	result := EvaluateStockRequest(map[int]decimal.Decimal{}, []StockLine{
		{ProductId: 9, Quantity: decimal.NewFromInt(1)},
	})

	if result.OK {
		t.Fatal("expected shortage for product the agent does not carry")
	}
	if !result.Shortages[0].Available.IsZero() {
		t.Fatalf("expected zero available, got %s", result.Shortages[0].Available)
	}
}

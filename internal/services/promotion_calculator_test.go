package services

import (
	"testing"
	"time"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
)

func TestApplyDiscountFloorsPercentages(t *testing.T) {
	cases := []struct {
		name     string
		subtotal int64
		promos   []Promotion
		want     int64
	}{
		{"percentage floors", 99999, []Promotion{{Code: "A", Type: domain.PromotionTypePercentage, Value: 10}}, 9999},
		{"fractional percent", 100000, []Promotion{{Code: "A", Type: domain.PromotionTypePercentage, Value: 12.5}}, 12500},
		{"fixed", 100000, []Promotion{{Code: "B", Type: domain.PromotionTypeFixed, Value: 20000}}, 20000},
		{"stacked", 100000, []Promotion{
			{Code: "A", Type: domain.PromotionTypePercentage, Value: 10},
			{Code: "B", Type: domain.PromotionTypeFixed, Value: 20000},
		}, 30000},
		{"duplicates count once", 100000, []Promotion{
			{Code: "A", Type: domain.PromotionTypePercentage, Value: 10},
			{Code: "a", Type: domain.PromotionTypePercentage, Value: 10},
		}, 10000},
		{"uncapped", 10000, []Promotion{
			{Code: "A", Type: domain.PromotionTypeFixed, Value: 8000},
			{Code: "B", Type: domain.PromotionTypeFixed, Value: 8000},
		}, 16000},
		{"unknown type", 10000, []Promotion{{Code: "C", Type: "bogus", Value: 50}}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ApplyDiscount(tc.subtotal, tc.promos); got != tc.want {
				t.Fatalf("ApplyDiscount = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestApplyDiscountIsOrderIndependent(t *testing.T) {
	promos := []Promotion{
		{Code: "A", Type: domain.PromotionTypePercentage, Value: 7},
		{Code: "B", Type: domain.PromotionTypeFixed, Value: 12345},
		{Code: "C", Type: domain.PromotionTypePercentage, Value: 3.5},
		{Code: "A", Type: domain.PromotionTypePercentage, Value: 7},
	}
	subtotal := int64(987654)
	want := ApplyDiscount(subtotal, promos)

	permutations := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	for _, perm := range permutations {
		shuffled := make([]Promotion, 0, len(promos))
		for _, i := range perm {
			shuffled = append(shuffled, promos[i])
		}
		if got := ApplyDiscount(subtotal, shuffled); got != want {
			t.Fatalf("permutation %v: got %d want %d", perm, got, want)
		}
	}
}

func TestOrderTotalClampsAtZero(t *testing.T) {
	if got := OrderTotal(10000, 16000); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := OrderTotal(10000, 2500); got != 7500 {
		t.Fatalf("expected 7500, got %d", got)
	}
}

func TestEligiblePromotions(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	all := []Promotion{
		{Code: "OK", Active: true},
		{Code: "FUTURE", Active: true, ExpiresAt: now.Add(time.Minute)},
		{Code: "EXPIRED", Active: true, ExpiresAt: now},
		{Code: "MIN", Active: true, MinimumPurchase: 50001},
		{Code: "OFF"},
	}
	got := EligiblePromotions(50000, all, now)
	if len(got) != 2 || got[0].Code != "OK" || got[1].Code != "FUTURE" {
		t.Fatalf("unexpected eligible set %+v", got)
	}
}

package market

import (
	"math"
	"testing"
)

func TestRoyaltyOn(t *testing.T) {
	cases := []struct {
		rate  uint8
		price uint64
		want  uint64
	}{
		{5, 1_500_000, 75_000},
		{5, 100, 5},
		{5, 19, 0}, // truncates toward zero
		{0, 1_000_000, 0},
		{100, 1_000_000, 1_000_000},
		{33, 999_999, 329_999},
		{5, math.MaxUint64, math.MaxUint64 / 100 * 5 + math.MaxUint64%100*5/100},
	}
	for _, tc := range cases {
		m := Marketplace{RoyaltyPercentage: tc.rate}
		if got := m.RoyaltyOn(tc.price); got != tc.want {
			t.Errorf("rate %d on %d: expected %d, got %d", tc.rate, tc.price, tc.want, got)
		}
	}
}

func TestRoyaltyNeverExceedsPrice(t *testing.T) {
	for _, rate := range []uint8{0, 1, 50, 99, 100} {
		m := Marketplace{RoyaltyPercentage: rate}
		for _, price := range []uint64{0, 1, 99, 100, math.MaxUint64} {
			if got := m.RoyaltyOn(price); got > price {
				t.Errorf("rate %d on %d produced royalty %d above price", rate, price, got)
			}
		}
	}
}

func TestCountListingSaturates(t *testing.T) {
	m := Marketplace{TotalServices: math.MaxUint64 - 1}
	m.CountListing()
	if m.TotalServices != math.MaxUint64 {
		t.Fatalf("expected max, got %d", m.TotalServices)
	}
	m.CountListing()
	if m.TotalServices != math.MaxUint64 {
		t.Fatalf("counter wrapped: %d", m.TotalServices)
	}
}

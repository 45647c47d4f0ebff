package loyalty

import "testing"

func TestQuoteSuggestsUpToSubtotal(t *testing.T) {
	var r Rates
	q := r.Quote(QuoteInput{UserPoints: 500, Subtotal: 18000, Shipping: 1500, Tax: 900})
	if q.PointsSuggested != 180 {
		t.Fatalf("PointsSuggested = %d, want 180", q.PointsSuggested)
	}
	if q.PointsValue != 18000 {
		t.Fatalf("PointsValue = %d, want 18000", q.PointsValue)
	}
	if q.TotalAfterPoints != 0 {
		t.Fatalf("TotalAfterPoints = %d, want 0", q.TotalAfterPoints)
	}
	if q.TotalPayable != 2400 {
		t.Fatalf("TotalPayable = %d, want 2400", q.TotalPayable)
	}
}

func TestQuoteCappedByBalance(t *testing.T) {
	var r Rates
	q := r.Quote(QuoteInput{UserPoints: 150, Subtotal: 18000})
	if q.PointsSuggested != 150 {
		t.Fatalf("PointsSuggested = %d, want 150", q.PointsSuggested)
	}
	if q.PointsValue != 15000 {
		t.Fatalf("PointsValue = %d, want 15000", q.PointsValue)
	}
	if q.TotalAfterPoints != 3000 {
		t.Fatalf("TotalAfterPoints = %d, want 3000", q.TotalAfterPoints)
	}
}

func TestQuoteRespectsMaxPoints(t *testing.T) {
	var r Rates
	max := int64(50)
	q := r.Quote(QuoteInput{UserPoints: 500, Subtotal: 18000, MaxPoints: &max})
	if q.PointsSuggested != 50 {
		t.Fatalf("PointsSuggested = %d, want 50", q.PointsSuggested)
	}
	if q.TotalAfterPoints != 13000 {
		t.Fatalf("TotalAfterPoints = %d, want 13000", q.TotalAfterPoints)
	}
}

func TestQuoteZeroBalance(t *testing.T) {
	var r Rates
	q := r.Quote(QuoteInput{UserPoints: 0, Subtotal: 9900, Shipping: 1000})
	if q.PointsSuggested != 0 || q.PointsValue != 0 {
		t.Fatalf("expected no redemption, got %+v", q)
	}
	if q.TotalPayable != 10900 {
		t.Fatalf("TotalPayable = %d, want 10900", q.TotalPayable)
	}
}

func TestQuoteNeverExceedsBalanceOrSubtotal(t *testing.T) {
	var r Rates
	cases := []QuoteInput{
		{UserPoints: 1, Subtotal: 99},
		{UserPoints: 1000000, Subtotal: 1},
		{UserPoints: 7, Subtotal: 750},
		{UserPoints: -5, Subtotal: 10000},
	}
	for _, in := range cases {
		q := r.Quote(in)
		balance := in.UserPoints
		if balance < 0 {
			balance = 0
		}
		if q.PointsSuggested > balance {
			t.Fatalf("suggested %d exceeds balance %d", q.PointsSuggested, balance)
		}
		if q.PointsValue > in.Subtotal {
			t.Fatalf("value %d exceeds subtotal %d", q.PointsValue, in.Subtotal)
		}
		if q.TotalAfterPoints < 0 {
			t.Fatalf("negative total after points: %d", q.TotalAfterPoints)
		}
	}
}

func TestEarnEstimate(t *testing.T) {
	var r Rates
	if got := r.EarnEstimate(13000); got != 13 {
		t.Fatalf("EarnEstimate(13000) = %d, want 13", got)
	}
	if got := r.EarnEstimate(999); got != 0 {
		t.Fatalf("EarnEstimate(999) = %d, want 0", got)
	}
	if got := r.EarnEstimate(-100); got != 0 {
		t.Fatalf("EarnEstimate(-100) = %d, want 0", got)
	}
}

func TestCustomRates(t *testing.T) {
	r := Rates{RedeemRateMinor: 50, EarnDivisorMinor: 500}
	q := r.Quote(QuoteInput{UserPoints: 10, Subtotal: 1000})
	if q.PointsSuggested != 10 || q.PointsValue != 500 {
		t.Fatalf("unexpected quote %+v", q)
	}
	if got := r.EarnEstimate(1000); got != 2 {
		t.Fatalf("EarnEstimate(1000) = %d, want 2", got)
	}
}

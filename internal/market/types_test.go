package market

import (
	"testing"
	"time"
)

func TestParseProductType(t *testing.T) {
	cases := []struct {
		in      string
		want    ProductType
		wantErr bool
	}{
		{"spot", ProductSpot, false},
		{"FUTURES", ProductFutures, false},
		{" Spot ", ProductSpot, false},
		{"margin", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := ParseProductType(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseProductType(%q) expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseProductType(%q) returned error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseProductType(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTimeframeDuration(t *testing.T) {
	d, err := TimeframeDuration("4h")
	if err != nil {
		t.Fatalf("TimeframeDuration returned error: %v", err)
	}
	if d != 4*time.Hour {
		t.Errorf("duration = %v, want 4h", d)
	}

	if _, err := TimeframeDuration("7m"); err == nil {
		t.Errorf("expected error for unsupported timeframe")
	}
}

func TestPeriodsPerYear(t *testing.T) {
	periods, err := PeriodsPerYear("1d")
	if err != nil {
		t.Fatalf("PeriodsPerYear returned error: %v", err)
	}
	if periods != 365 {
		t.Errorf("periods per year for 1d = %f, want 365", periods)
	}
}

func TestNormalize(t *testing.T) {
	if got := NormalizeSymbol(" btc/usdt "); got != "BTC/USDT" {
		t.Errorf("NormalizeSymbol = %q, want BTC/USDT", got)
	}
	if got := NormalizeExchange(" Binance "); got != "binance" {
		t.Errorf("NormalizeExchange = %q, want binance", got)
	}
}

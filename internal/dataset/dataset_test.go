package dataset

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"backtester/internal/config"
	"backtester/internal/market"
	"backtester/internal/store"
)

func newTestBarStore(t *testing.T) *store.BarStore {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	bars, err := store.NewBarStore(st, nil)
	if err != nil {
		t.Fatalf("NewBarStore returned error: %v", err)
	}
	return bars
}

func seedBars(t *testing.T, bs *store.BarStore, key store.MarketKey, start time.Time, step time.Duration, n int) {
	t.Helper()
	bars := make([]market.Bar, n)
	for i := range bars {
		price := 100 + float64(i)
		bars[i] = market.Bar{
			Timestamp: start.Add(time.Duration(i) * step),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.5,
			Volume:    10,
		}
	}
	if err := bs.WriteBars(context.Background(), key, bars); err != nil {
		t.Fatalf("seed bars: %v", err)
	}
}

var (
	testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testKey   = store.MarketKey{Exchange: "binance", Symbol: "BTC/USDT", ProductType: market.ProductSpot, Timeframe: "1h"}
)

func testRequest(start, end time.Time) Request {
	return Request{
		Exchange:    "binance",
		Symbol:      "BTC/USDT",
		ProductType: market.ProductSpot,
		Timeframe:   "1h",
		Start:       start,
		End:         end,
	}
}

func TestValidator_ExactMatchAvailable(t *testing.T) {
	bs := newTestBarStore(t)
	seedBars(t, bs, testKey, testStart, time.Hour, 48)

	v, err := NewValidator(bs, nil)
	if err != nil {
		t.Fatalf("NewValidator returned error: %v", err)
	}

	verdict, err := v.Validate(context.Background(), testRequest(testStart, testStart.Add(47*time.Hour)))
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !verdict.Available {
		t.Fatalf("expected available, got %+v", verdict.Err)
	}
	if verdict.Coverage.Count != 48 {
		t.Errorf("coverage count = %d, want 48", verdict.Coverage.Count)
	}
}

func TestValidator_WrongExchangeSuggestsRealInventory(t *testing.T) {
	bs := newTestBarStore(t)
	seedBars(t, bs, testKey, testStart, time.Hour, 48)

	v, err := NewValidator(bs, nil)
	if err != nil {
		t.Fatalf("NewValidator returned error: %v", err)
	}

	req := testRequest(testStart, testStart.Add(time.Hour))
	req.Exchange = "okx"
	verdict, err := v.Validate(context.Background(), req)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if verdict.Available {
		t.Fatalf("okx data does not exist, must never substitute binance data")
	}
	if verdict.Err == nil || len(verdict.Err.Suggestions) == 0 {
		t.Fatalf("expected suggestions naming real inventory, got %+v", verdict.Err)
	}
	s := verdict.Err.Suggestions[0]
	if s.Exchange != "binance" || s.Symbol != "BTC/USDT" {
		t.Errorf("suggestion = %+v, want the stored binance BTC/USDT inventory", s)
	}
}

func TestValidator_ProductTypeNeverMixed(t *testing.T) {
	bs := newTestBarStore(t)
	seedBars(t, bs, testKey, testStart, time.Hour, 48)

	v, err := NewValidator(bs, nil)
	if err != nil {
		t.Fatalf("NewValidator returned error: %v", err)
	}

	req := testRequest(testStart, testStart.Add(time.Hour))
	req.ProductType = market.ProductFutures
	verdict, err := v.Validate(context.Background(), req)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if verdict.Available {
		t.Fatalf("futures request must not be served with spot data")
	}
}

func TestValidator_PartialCoverageReportsRange(t *testing.T) {
	bs := newTestBarStore(t)
	seedBars(t, bs, testKey, testStart, time.Hour, 24)

	v, err := NewValidator(bs, nil)
	if err != nil {
		t.Fatalf("NewValidator returned error: %v", err)
	}

	// 请求窗口超出库存尾部，必须整体判不可用而不是静默截断。
	verdict, err := v.Validate(context.Background(), testRequest(testStart, testStart.Add(72*time.Hour)))
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if verdict.Available {
		t.Fatalf("partial coverage must be unavailable")
	}
	if verdict.Err == nil || !strings.Contains(verdict.Err.Reason, "仅覆盖") {
		t.Errorf("reason should name the covered sub-range, got %+v", verdict.Err)
	}
	if verdict.Coverage.Count != 24 {
		t.Errorf("coverage count = %d, want 24", verdict.Coverage.Count)
	}
}

func TestValidator_EndBeforeStart(t *testing.T) {
	bs := newTestBarStore(t)
	v, err := NewValidator(bs, nil)
	if err != nil {
		t.Fatalf("NewValidator returned error: %v", err)
	}

	if _, err := v.Validate(context.Background(), testRequest(testStart.Add(time.Hour), testStart)); err == nil {
		t.Errorf("expected error when end precedes start")
	}
}

func TestLoader_LoadsOrderedWindow(t *testing.T) {
	bs := newTestBarStore(t)
	seedBars(t, bs, testKey, testStart, time.Hour, 48)

	l, err := NewLoader(bs, nil)
	if err != nil {
		t.Fatalf("NewLoader returned error: %v", err)
	}

	bars, err := l.Load(context.Background(), testRequest(testStart, testStart.Add(47*time.Hour)))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(bars) != 48 {
		t.Fatalf("loaded %d bars, want 48", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			t.Fatalf("bars not strictly increasing at index %d", i)
		}
	}
}

func TestLoader_DetectsGap(t *testing.T) {
	bs := newTestBarStore(t)
	// 前12根连续，随后跳过3根再写入12根。
	seedBars(t, bs, testKey, testStart, time.Hour, 12)
	seedBars(t, bs, testKey, testStart.Add(15*time.Hour), time.Hour, 12)

	l, err := NewLoader(bs, nil)
	if err != nil {
		t.Fatalf("NewLoader returned error: %v", err)
	}

	_, err = l.Load(context.Background(), testRequest(testStart, testStart.Add(26*time.Hour)))
	var gapErr *GapError
	if !errors.As(err, &gapErr) {
		t.Fatalf("expected *GapError, got %v", err)
	}
	if gapErr.Missing != 3 {
		t.Errorf("missing bars = %d, want 3", gapErr.Missing)
	}
	if !gapErr.Before.Equal(testStart.Add(11 * time.Hour)) {
		t.Errorf("gap starts after %s, want %s", gapErr.Before, testStart.Add(11*time.Hour))
	}
}

func TestLoader_EmptyWindow(t *testing.T) {
	bs := newTestBarStore(t)

	l, err := NewLoader(bs, nil)
	if err != nil {
		t.Fatalf("NewLoader returned error: %v", err)
	}

	_, err = l.Load(context.Background(), testRequest(testStart, testStart.Add(time.Hour)))
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected *UnavailableError, got %v", err)
	}
}

package engine

import (
	"context"
	"testing"
	"time"

	"backtester/internal/config"
	"backtester/internal/sim"
	"backtester/internal/store"
	"backtester/internal/strategy"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	recorder, err := NewRecorder(st, nil)
	if err != nil {
		t.Fatalf("NewRecorder returned error: %v", err)
	}
	return recorder
}

func TestRecorder_PersistsRunTimeline(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()

	recorder.RecordStarted(ctx, "run-1", validRunConfig())
	recorder.RecordState(ctx, "run-1", "", StateValidating)
	recorder.RecordState(ctx, "run-1", StateValidating, StateLoading)
	recorder.RecordFill(ctx, "run-1", sim.Fill{
		Symbol:    "BTC/USDT",
		Side:      strategy.SideBuy,
		Type:      sim.OrderMarket,
		Quantity:  0.1,
		Price:     50000,
		Fee:       15,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	recorder.RecordRejection(ctx, "run-1", sim.Rejection{Symbol: "BTC/USDT", Side: strategy.SideSell, Reason: "test"})
	recorder.RecordFinished(ctx, "run-1", FinishedPayload{State: StateCompleted, FinalCapital: 10100, TradesCount: 1})

	all, err := recorder.ListEvents(ctx, "run-1", "", 0)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("persisted %d events, want 6", len(all))
	}
	if all[0].Type != EventRunStarted || all[len(all)-1].Type != EventRunFinished {
		t.Errorf("timeline order wrong: first %s, last %s", all[0].Type, all[len(all)-1].Type)
	}

	fills, err := recorder.ListEvents(ctx, "run-1", EventFill, 0)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("filtered %d fill events, want 1", len(fills))
	}

	other, err := recorder.ListEvents(ctx, "run-2", "", 0)
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("run-2 should have no events, got %d", len(other))
	}
}

func TestRecorder_NilReceiverIsSafe(t *testing.T) {
	var recorder *Recorder
	ctx := context.Background()

	recorder.RecordStarted(ctx, "run-1", validRunConfig())
	recorder.RecordState(ctx, "run-1", "", StateValidating)
	recorder.RecordFill(ctx, "run-1", sim.Fill{})
	recorder.RecordRejection(ctx, "run-1", sim.Rejection{})
	recorder.RecordFinished(ctx, "run-1", FinishedPayload{})

	events, err := recorder.ListEvents(ctx, "run-1", "", 0)
	if err != nil || events != nil {
		t.Errorf("nil recorder should be inert, got %v, %v", events, err)
	}
}

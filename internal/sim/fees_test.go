package sim

import (
	"math"
	"testing"

	"backtester/internal/config"
)

func TestFeeSchedule_Tier(t *testing.T) {
	schedule, err := NewFeeSchedule(config.FeesConfig{
		DefaultTier: "vip0",
		Tiers: map[string]config.FeeTier{
			"vip0": {MakerBps: 10, TakerBps: 30},
			"vip1": {MakerBps: 8, TakerBps: 25},
		},
	})
	if err != nil {
		t.Fatalf("NewFeeSchedule returned error: %v", err)
	}

	tier, err := schedule.Tier("vip1")
	if err != nil {
		t.Fatalf("Tier returned error: %v", err)
	}
	if tier.MakerBps != 8 || tier.TakerBps != 25 {
		t.Errorf("tier = %+v, want maker 8 taker 25", tier)
	}

	if _, err := schedule.Tier("vip9"); err == nil {
		t.Errorf("expected error for unknown tier")
	}
}

func TestNewFeeSchedule_EmptyTiers(t *testing.T) {
	if _, err := NewFeeSchedule(config.FeesConfig{}); err == nil {
		t.Errorf("expected error for empty tier table")
	}
}

func TestFee_MakerTakerSplit(t *testing.T) {
	tier := config.FeeTier{MakerBps: 10, TakerBps: 30}

	if got := Fee(tier, OrderMarket, 10000); math.Abs(got-30) > 1e-9 {
		t.Errorf("taker fee = %f, want 30", got)
	}
	if got := Fee(tier, OrderLimit, 10000); math.Abs(got-10) > 1e-9 {
		t.Errorf("maker fee = %f, want 10", got)
	}
}

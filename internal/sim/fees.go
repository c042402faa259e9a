package sim

import (
	"fmt"

	"backtester/internal/config"
)

// FeeSchedule 为按档位索引的费率表，数值由外部配置提供而非写死常量。
type FeeSchedule struct {
	tiers map[string]config.FeeTier
}

// NewFeeSchedule 从配置构建费率表。
func NewFeeSchedule(cfg config.FeesConfig) (*FeeSchedule, error) {
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("sim: 费率表为空")
	}
	tiers := make(map[string]config.FeeTier, len(cfg.Tiers))
	for name, tier := range cfg.Tiers {
		tiers[name] = tier
	}
	return &FeeSchedule{tiers: tiers}, nil
}

// Tier 返回指定档位，不存在时报错而不是退回默认值。
func (f *FeeSchedule) Tier(name string) (config.FeeTier, error) {
	tier, ok := f.tiers[name]
	if !ok {
		return config.FeeTier{}, fmt.Errorf("sim: 未知的费率档位 %q", name)
	}
	return tier, nil
}

// Fee 计算一笔成交的手续费。市价单按 taker、限价单按 maker 计费。
func Fee(tier config.FeeTier, orderType OrderType, notional float64) float64 {
	bps := tier.TakerBps
	if orderType == OrderLimit {
		bps = tier.MakerBps
	}
	return notional * bps / 10000
}

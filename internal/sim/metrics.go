package sim

import (
	"math"

	"backtester/internal/market"
)

// MetricsSnapshot 记录回测绩效指标。
// SharpeRatio 在收益序列标准差为0时为 nil，而不是被除零污染。
type MetricsSnapshot struct {
	TotalReturn   float64  `json:"total_return"`
	MaxDrawdown   float64  `json:"max_drawdown"`
	SharpeRatio   *float64 `json:"sharpe_ratio"`
	WinRate       float64  `json:"win_rate"`
	TradeCount    int      `json:"trade_count"`
	WinningTrades int      `json:"winning_trades"`
	LosingTrades  int      `json:"losing_trades"`
	TotalFees     float64  `json:"total_fees"`
	FinalEquity   float64  `json:"final_equity"`
}

// Summarize 从完成的账本与净值曲线计算汇总指标。
// 零成交的运行同样返回有效的零活动快照，而不是错误。
func Summarize(ledger *Ledger, equityCurve []float64, timeframe string) (MetricsSnapshot, error) {
	snapshot := MetricsSnapshot{}

	initial := ledger.InitialCapital()
	final := initial
	if len(equityCurve) > 0 {
		final = equityCurve[len(equityCurve)-1]
	}
	snapshot.FinalEquity = final
	if initial > 0 {
		snapshot.TotalReturn = final/initial - 1
	}

	snapshot.MaxDrawdown = computeDrawdown(equityCurve)
	snapshot.TotalFees = ledger.TotalFees()

	sharpe, err := computeSharpe(equityCurve, timeframe)
	if err != nil {
		return MetricsSnapshot{}, err
	}
	snapshot.SharpeRatio = sharpe

	entries := ledger.Entries()
	snapshot.TradeCount = len(entries)
	for _, entry := range entries {
		if entry.RealizedPnL == 0 {
			continue
		}
		if entry.RealizedPnL > 0 {
			snapshot.WinningTrades++
		} else {
			snapshot.LosingTrades++
		}
	}
	closing := snapshot.WinningTrades + snapshot.LosingTrades
	if closing > 0 {
		snapshot.WinRate = float64(snapshot.WinningTrades) / float64(closing)
	}

	return snapshot, nil
}

func computeDrawdown(equity []float64) float64 {
	var peak float64
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (v - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return math.Abs(maxDD)
}

// computeSharpe 用K线周期收益计算年化夏普比率。标准差为0时返回 nil。
func computeSharpe(equity []float64, timeframe string) (*float64, error) {
	if len(equity) < 3 {
		return nil, nil
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	if len(returns) < 2 {
		return nil, nil
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return nil, nil
	}

	periods, err := market.PeriodsPerYear(timeframe)
	if err != nil {
		return nil, err
	}

	sharpe := mean / std * math.Sqrt(periods)
	return &sharpe, nil
}

package strategy

import (
	"backtester/internal/market"
)

// Side 表示信号方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
	SideHold Side = "hold"
)

// Signal 为策略在某根K线上发出的交易意图。
// Quantity 为 0 表示交由模拟器按默认规则确定数量（买入用尽可用现金，卖出平掉全部仓位）。
// LimitPrice 大于 0 时按限价单处理，否则为市价单。
type Signal struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Quantity   float64 `json:"quantity,omitempty"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	Reason     string  `json:"reason"`
}

// DataRequest 声明策略需要的数据：时间框架与最小回看K线数。
type DataRequest struct {
	Timeframe string
	Lookback  int
}

// Window 为策略在单步中可见的数据视图。
// 只包含截至当前K线（含）的历史，未来K线在结构上不可见。
type Window struct {
	Symbol string
	Index  int
	Bars   []market.Bar
	// Context 按时间框架提供辅助序列，均已截断到当前时间戳。
	Context map[string][]market.Bar
}

// Current 返回当前K线。
func (w Window) Current() market.Bar {
	return w.Bars[len(w.Bars)-1]
}

// Closes 返回驱动序列的收盘价。
func (w Window) Closes() []float64 {
	closes := make([]float64, len(w.Bars))
	for i, bar := range w.Bars {
		closes[i] = bar.Close
	}
	return closes
}

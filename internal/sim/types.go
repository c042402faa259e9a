package sim

import (
	"time"

	"backtester/internal/strategy"
)

// OrderType 区分市价与限价委托。
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// Order 为一笔待撮合的模拟委托。
// 市价单在下一根K线开盘价上成交；限价单在价格区间触及限价时成交。
// 不模拟部分成交：要么全部成交，要么跳过本根K线等待下一根。
type Order struct {
	Symbol     string        `json:"symbol"`
	Side       strategy.Side `json:"side"`
	Type       OrderType     `json:"type"`
	Quantity   float64       `json:"quantity"`
	LimitPrice float64       `json:"limit_price,omitempty"`
	Reason     string        `json:"reason"`
	CreatedBar int           `json:"created_bar"`
}

// Fill 为一笔模拟成交。
type Fill struct {
	Symbol    string        `json:"symbol"`
	Side      strategy.Side `json:"side"`
	Type      OrderType     `json:"type"`
	Quantity  float64       `json:"quantity"`
	Price     float64       `json:"price"`
	Fee       float64       `json:"fee"`
	Timestamp time.Time     `json:"timestamp"`
	BarIndex  int           `json:"bar_index"`
	Reason    string        `json:"reason"`
}

// Rejection 记录一次因约束被拒绝的信号，原因始终显式给出，绝不静默收缩数量。
type Rejection struct {
	Symbol   string        `json:"symbol"`
	Side     strategy.Side `json:"side"`
	Quantity float64       `json:"quantity"`
	BarIndex int           `json:"bar_index"`
	Reason   string        `json:"reason"`
}

// Position 为某交易对的带符号持仓。
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgCost       float64 `json:"avg_cost"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// LedgerEntry 记录一笔成交对现金与仓位的影响。账本只追加，从不修改或删除。
type LedgerEntry struct {
	Seq           int     `json:"seq"`
	Fill          Fill    `json:"fill"`
	CashDelta     float64 `json:"cash_delta"`
	RealizedPnL   float64 `json:"realized_pnl"`
	PositionAfter float64 `json:"position_after"`
}

// Snapshot 为某一时点折算出的账户状态。
type Snapshot struct {
	Cash      float64             `json:"cash"`
	Positions map[string]Position `json:"positions"`
	Equity    float64             `json:"equity"`
}

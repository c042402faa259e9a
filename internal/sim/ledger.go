package sim

import (
	"fmt"
	"math"
	"sort"

	"backtester/internal/strategy"
)

// Ledger 为只追加的成交账本，是现金与仓位的唯一事实来源。
// 任何余额都通过对全部条目做纯折叠得出，不存在独立维护的计数器，从根上杜绝漂移。
type Ledger struct {
	initialCapital float64
	entries        []LedgerEntry
}

// NewLedger 创建账本。
func NewLedger(initialCapital float64) *Ledger {
	return &Ledger{initialCapital: initialCapital}
}

// InitialCapital 返回初始资金。
func (l *Ledger) InitialCapital() float64 {
	return l.initialCapital
}

// Len 返回条目数。
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries 返回全部条目的副本。
func (l *Ledger) Entries() []LedgerEntry {
	return append([]LedgerEntry(nil), l.entries...)
}

type foldPosition struct {
	qty     float64
	avgCost float64
}

// fold 从头折叠全部条目，得出现金与各交易对仓位。
func (l *Ledger) fold() (float64, map[string]foldPosition) {
	cash := l.initialCapital
	positions := make(map[string]foldPosition)

	for _, entry := range l.entries {
		cash += entry.CashDelta
		pos := positions[entry.Fill.Symbol]
		pos = applyToPosition(pos, entry.Fill)
		positions[entry.Fill.Symbol] = pos
	}

	return cash, positions
}

func signedQuantity(fill Fill) float64 {
	if fill.Side == strategy.SideSell {
		return -fill.Quantity
	}
	return fill.Quantity
}

func applyToPosition(pos foldPosition, fill Fill) foldPosition {
	delta := signedQuantity(fill)
	newQty := pos.qty + delta

	switch {
	case pos.qty == 0 || sameSign(pos.qty, delta):
		// 开仓或加仓，更新加权平均成本。
		total := math.Abs(pos.qty) + math.Abs(delta)
		if total > 0 {
			pos.avgCost = (math.Abs(pos.qty)*pos.avgCost + math.Abs(delta)*fill.Price) / total
		}
	case sameSign(pos.qty, newQty) || newQty == 0:
		// 部分或全部平仓，平均成本不变。
	default:
		// 反向穿越，剩余部分以成交价重新开仓。
		pos.avgCost = fill.Price
	}

	pos.qty = newQty
	if pos.qty == 0 {
		pos.avgCost = 0
	}
	return pos
}

func sameSign(a, b float64) bool {
	if a == 0 || b == 0 {
		return false
	}
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// realizedPnL 计算一笔成交相对当前仓位的已实现盈亏（不含手续费）。
func realizedPnL(pos foldPosition, fill Fill) float64 {
	delta := signedQuantity(fill)
	if pos.qty == 0 || sameSign(pos.qty, delta) {
		return 0
	}
	closed := math.Min(math.Abs(delta), math.Abs(pos.qty))
	if pos.qty > 0 {
		return (fill.Price - pos.avgCost) * closed
	}
	return (pos.avgCost - fill.Price) * closed
}

// Apply 追加一笔成交并返回生成的账本条目。
func (l *Ledger) Apply(fill Fill) (LedgerEntry, error) {
	if fill.Quantity <= 0 {
		return LedgerEntry{}, fmt.Errorf("sim: 成交数量必须为正，got %f", fill.Quantity)
	}
	if fill.Price <= 0 {
		return LedgerEntry{}, fmt.Errorf("sim: 成交价格必须为正，got %f", fill.Price)
	}
	if fill.Side != strategy.SideBuy && fill.Side != strategy.SideSell {
		return LedgerEntry{}, fmt.Errorf("sim: 不支持的成交方向 %q", fill.Side)
	}

	_, positions := l.fold()
	pos := positions[fill.Symbol]

	notional := fill.Price * fill.Quantity
	cashDelta := -notional - fill.Fee
	if fill.Side == strategy.SideSell {
		cashDelta = notional - fill.Fee
	}

	entry := LedgerEntry{
		Seq:           len(l.entries),
		Fill:          fill,
		CashDelta:     cashDelta,
		RealizedPnL:   realizedPnL(pos, fill),
		PositionAfter: pos.qty + signedQuantity(fill),
	}

	l.entries = append(l.entries, entry)
	return entry, nil
}

// Snapshot 折算当前账户状态。lastClose 按交易对给出最近一次收盘价，用于盯市。
// 交易对按字典序累加，同一账本状态永远折算出逐位一致的净值。
func (l *Ledger) Snapshot(lastClose map[string]float64) Snapshot {
	cash, folded := l.fold()

	symbols := make([]string, 0, len(folded))
	for symbol := range folded {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	positions := make(map[string]Position, len(folded))
	equity := cash
	for _, symbol := range symbols {
		pos := folded[symbol]
		if pos.qty == 0 {
			continue
		}
		close := lastClose[symbol]
		unrealized := 0.0
		if close > 0 {
			unrealized = (close - pos.avgCost) * pos.qty
			equity += pos.qty * close
		}
		positions[symbol] = Position{
			Symbol:        symbol,
			Quantity:      pos.qty,
			AvgCost:       pos.avgCost,
			UnrealizedPnL: unrealized,
		}
	}

	return Snapshot{Cash: cash, Positions: positions, Equity: equity}
}

// TotalFees 返回累计手续费。
func (l *Ledger) TotalFees() float64 {
	var fees float64
	for _, entry := range l.entries {
		fees += entry.Fill.Fee
	}
	return fees
}

// TotalRealized 返回累计已实现盈亏（不含手续费）。
func (l *Ledger) TotalRealized() float64 {
	var realized float64
	for _, entry := range l.entries {
		realized += entry.RealizedPnL
	}
	return realized
}

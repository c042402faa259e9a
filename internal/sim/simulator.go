package sim

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"backtester/internal/config"
	"backtester/internal/market"
	"backtester/internal/strategy"
)

// Simulator 将策略信号撮合为模拟成交，并通过账本维护账户状态。
// 每次回测运行都会创建独立实例，内部不持有任何跨运行共享的状态。
type Simulator struct {
	product     market.ProductType
	tier        config.FeeTier
	slippageBps float64
	rng         *rand.Rand
	ledger      *Ledger
	logger      *zap.Logger

	pending    []Order
	rejections []Rejection
	lastClose  map[string]float64
}

// NewSimulator 创建模拟撮合器。rng 必须是运行专属的已播种随机源，以保证可复现。
func NewSimulator(product market.ProductType, tier config.FeeTier, slippageBps float64, rng *rand.Rand, ledger *Ledger, logger *zap.Logger) (*Simulator, error) {
	if rng == nil {
		return nil, fmt.Errorf("sim: rng 不能为空")
	}
	if ledger == nil {
		return nil, fmt.Errorf("sim: ledger 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		product:     product,
		tier:        tier,
		slippageBps: slippageBps,
		rng:         rng,
		ledger:      ledger,
		logger:      logger,
		lastClose:   make(map[string]float64),
	}, nil
}

// Submit 接收策略信号并转换为挂单。hold 信号被忽略。
// 非法数量会立即以拒绝记录的形式返回，不会进入挂单队列。
func (s *Simulator) Submit(signal strategy.Signal, barIndex int) {
	if signal.Side == strategy.SideHold || signal.Side == "" {
		return
	}
	if signal.Side != strategy.SideBuy && signal.Side != strategy.SideSell {
		s.reject(signal, barIndex, fmt.Sprintf("不支持的信号方向 %q", signal.Side))
		return
	}
	if signal.Quantity < 0 {
		s.reject(signal, barIndex, "信号数量不能为负")
		return
	}

	orderType := OrderMarket
	if signal.LimitPrice > 0 {
		orderType = OrderLimit
	}

	s.pending = append(s.pending, Order{
		Symbol:     signal.Symbol,
		Side:       signal.Side,
		Type:       orderType,
		Quantity:   signal.Quantity,
		LimitPrice: signal.LimitPrice,
		Reason:     signal.Reason,
		CreatedBar: barIndex,
	})
}

// OnBar 用新到的K线撮合该交易对的挂单并更新盯市价，返回本根K线产生的成交。
// 市价单在本根K线开盘价上按滑点成交；限价单在价格区间触及限价时以限价成交。
func (s *Simulator) OnBar(bar market.Bar, barIndex int) ([]Fill, error) {
	var fills []Fill
	remaining := s.pending[:0]

	for _, order := range s.pending {
		if order.Symbol != bar.Symbol {
			remaining = append(remaining, order)
			continue
		}

		price, crossed := s.fillPrice(order, bar)
		if !crossed {
			// 限价未触及，保留至下一根K线继续评估。
			remaining = append(remaining, order)
			continue
		}

		fill, rejection, err := s.tryFill(order, price, bar, barIndex)
		if err != nil {
			return nil, err
		}
		if rejection != nil {
			s.rejections = append(s.rejections, *rejection)
			continue
		}
		fills = append(fills, *fill)
	}

	s.pending = remaining
	s.lastClose[bar.Symbol] = bar.Close
	return fills, nil
}

// fillPrice 计算成交价。第二个返回值表示本根K线是否可成交。
func (s *Simulator) fillPrice(order Order, bar market.Bar) (float64, bool) {
	if order.Type == OrderLimit {
		switch order.Side {
		case strategy.SideBuy:
			if bar.Low <= order.LimitPrice {
				return order.LimitPrice, true
			}
		case strategy.SideSell:
			if bar.High >= order.LimitPrice {
				return order.LimitPrice, true
			}
		}
		return 0, false
	}

	// 市价单：开盘价叠加随机滑点，买入向上、卖出向下。
	dir := 1.0
	if order.Side == strategy.SideSell {
		dir = -1.0
	}
	slip := s.slippageBps / 10000 * s.rng.Float64()
	return bar.Open * (1 + dir*slip), true
}

func (s *Simulator) tryFill(order Order, price float64, bar market.Bar, barIndex int) (*Fill, *Rejection, error) {
	snap := s.ledger.Snapshot(s.lastClose)

	quantity := order.Quantity
	if quantity == 0 {
		var rejection *Rejection
		quantity, rejection = s.defaultQuantity(order, price, snap, barIndex)
		if rejection != nil {
			return nil, rejection, nil
		}
	}

	notional := price * quantity
	fee := Fee(s.tier, order.Type, notional)

	switch order.Side {
	case strategy.SideBuy:
		cost := notional + fee
		if cost > snap.Cash+cashEpsilon {
			return nil, &Rejection{
				Symbol:   order.Symbol,
				Side:     order.Side,
				Quantity: quantity,
				BarIndex: barIndex,
				Reason:   fmt.Sprintf("买入所需资金 %.8f 超出可用现金 %.8f", cost, snap.Cash),
			}, nil
		}
	case strategy.SideSell:
		held := snap.Positions[order.Symbol].Quantity
		if s.product != market.ProductFutures && quantity > held+quantityEpsilon {
			return nil, &Rejection{
				Symbol:   order.Symbol,
				Side:     order.Side,
				Quantity: quantity,
				BarIndex: barIndex,
				Reason:   fmt.Sprintf("现货不可做空: 卖出数量 %.8f 超出持仓 %.8f", quantity, held),
			}, nil
		}
	}

	fill := Fill{
		Symbol:    order.Symbol,
		Side:      order.Side,
		Type:      order.Type,
		Quantity:  quantity,
		Price:     price,
		Fee:       fee,
		Timestamp: bar.Timestamp,
		BarIndex:  barIndex,
		Reason:    order.Reason,
	}

	if _, err := s.ledger.Apply(fill); err != nil {
		return nil, nil, err
	}

	s.logger.Debug("模拟成交",
		zap.String("symbol", fill.Symbol),
		zap.String("side", string(fill.Side)),
		zap.Float64("quantity", fill.Quantity),
		zap.Float64("price", fill.Price),
		zap.Float64("fee", fill.Fee),
	)

	return &fill, nil, nil
}

// defaultQuantity 解析数量为0的信号：买入用尽可用现金，卖出平掉全部持仓。
func (s *Simulator) defaultQuantity(order Order, price float64, snap Snapshot, barIndex int) (float64, *Rejection) {
	switch order.Side {
	case strategy.SideBuy:
		bps := s.tier.TakerBps
		if order.Type == OrderLimit {
			bps = s.tier.MakerBps
		}
		quantity := snap.Cash / (price * (1 + bps/10000))
		if quantity <= quantityEpsilon {
			return 0, &Rejection{
				Symbol:   order.Symbol,
				Side:     order.Side,
				BarIndex: barIndex,
				Reason:   "可用现金不足以买入任何数量",
			}
		}
		return quantity, nil
	default:
		held := snap.Positions[order.Symbol].Quantity
		if held <= quantityEpsilon {
			return 0, &Rejection{
				Symbol:   order.Symbol,
				Side:     order.Side,
				BarIndex: barIndex,
				Reason:   "没有可平仓的持仓",
			}
		}
		return held, nil
	}
}

func (s *Simulator) reject(signal strategy.Signal, barIndex int, reason string) {
	s.rejections = append(s.rejections, Rejection{
		Symbol:   signal.Symbol,
		Side:     signal.Side,
		Quantity: signal.Quantity,
		BarIndex: barIndex,
		Reason:   reason,
	})
}

// Snapshot 返回按最近收盘价盯市的账户状态。
func (s *Simulator) Snapshot() Snapshot {
	return s.ledger.Snapshot(s.lastClose)
}

// PendingCount 返回当前挂单数。
func (s *Simulator) PendingCount() int {
	return len(s.pending)
}

// RejectionCount 返回累计拒绝次数。
func (s *Simulator) RejectionCount() int {
	return len(s.rejections)
}

// Rejections 返回全部拒绝记录的副本。
func (s *Simulator) Rejections() []Rejection {
	return append([]Rejection(nil), s.rejections...)
}

const (
	cashEpsilon     = 1e-9
	quantityEpsilon = 1e-12
)

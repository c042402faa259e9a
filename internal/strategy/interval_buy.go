package strategy

import "context"

// IntervalBuy 每隔固定根数K线买入固定名义金额，从不卖出。
// 主要用于回测引擎的确定性验证。
type IntervalBuy struct {
	every    int
	notional float64
	seen     int
}

// NewIntervalBuy 创建定投策略，every 为间隔K线数，notional 为每次买入的计价货币金额。
func NewIntervalBuy(every int, notional float64) *IntervalBuy {
	if every <= 0 {
		every = 10
	}
	if notional <= 0 {
		notional = 100
	}
	return &IntervalBuy{every: every, notional: notional}
}

func (s *IntervalBuy) Name() string {
	return "interval-buy"
}

func (s *IntervalBuy) DataRequirements() []DataRequest {
	return []DataRequest{{Lookback: 1}}
}

func (s *IntervalBuy) OnBar(ctx context.Context, window Window) ([]Signal, error) {
	s.seen++
	if s.seen%s.every != 0 {
		return nil, nil
	}

	close := window.Current().Close
	if close <= 0 {
		return nil, nil
	}

	return []Signal{{
		Symbol:   window.Symbol,
		Side:     SideBuy,
		Quantity: s.notional / close,
		Reason:   "定投周期到达",
	}}, nil
}

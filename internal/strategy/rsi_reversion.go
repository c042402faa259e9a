package strategy

import (
	"context"

	talib "github.com/markcheno/go-talib"
)

// RSIReversion 为超买超卖反转策略：RSI 跌破下轨买入，突破上轨卖出。
type RSIReversion struct {
	period int
	lower  float64
	upper  float64
	held   bool
}

// NewRSIReversion 创建 RSI 反转策略。
func NewRSIReversion(period int, lower, upper float64) *RSIReversion {
	if period <= 1 {
		period = 14
	}
	if lower <= 0 || upper <= lower {
		lower, upper = 30, 70
	}
	return &RSIReversion{period: period, lower: lower, upper: upper}
}

func (s *RSIReversion) Name() string {
	return "rsi-reversion"
}

func (s *RSIReversion) DataRequirements() []DataRequest {
	return []DataRequest{{Lookback: s.period + 1}}
}

func (s *RSIReversion) OnBar(ctx context.Context, window Window) ([]Signal, error) {
	closes := window.Closes()
	if len(closes) < s.period+1 {
		return nil, nil
	}

	rsi := talib.Rsi(closes, s.period)
	last := rsi[len(rsi)-1]

	switch {
	case last < s.lower && !s.held:
		s.held = true
		return []Signal{{
			Symbol: window.Symbol,
			Side:   SideBuy,
			Reason: "RSI进入超卖区",
		}}, nil
	case last > s.upper && s.held:
		s.held = false
		return []Signal{{
			Symbol: window.Symbol,
			Side:   SideSell,
			Reason: "RSI进入超买区",
		}}, nil
	}
	return nil, nil
}

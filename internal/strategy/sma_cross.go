package strategy

import (
	"context"

	talib "github.com/markcheno/go-talib"
)

// SMACross 为均线交叉策略：短均线上穿长均线买入，下穿卖出。
type SMACross struct {
	short int
	long  int
	held  bool
}

// NewSMACross 创建均线交叉策略。
func NewSMACross(short, long int) *SMACross {
	if short <= 0 {
		short = 10
	}
	if long <= short {
		long = short * 3
	}
	return &SMACross{short: short, long: long}
}

func (s *SMACross) Name() string {
	return "sma-cross"
}

func (s *SMACross) DataRequirements() []DataRequest {
	return []DataRequest{{Lookback: s.long + 1}}
}

func (s *SMACross) OnBar(ctx context.Context, window Window) ([]Signal, error) {
	closes := window.Closes()
	if len(closes) < s.long+1 {
		return nil, nil
	}

	fast := talib.Sma(closes, s.short)
	slow := talib.Sma(closes, s.long)

	n := len(closes)
	crossUp := fast[n-2] <= slow[n-2] && fast[n-1] > slow[n-1]
	crossDown := fast[n-2] >= slow[n-2] && fast[n-1] < slow[n-1]

	switch {
	case crossUp && !s.held:
		s.held = true
		return []Signal{{
			Symbol: window.Symbol,
			Side:   SideBuy,
			Reason: "短均线上穿长均线",
		}}, nil
	case crossDown && s.held:
		s.held = false
		return []Signal{{
			Symbol: window.Symbol,
			Side:   SideSell,
			Reason: "短均线下穿长均线",
		}}, nil
	}
	return nil, nil
}

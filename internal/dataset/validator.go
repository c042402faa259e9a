package dataset

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"backtester/internal/market"
	"backtester/internal/store"
)

// Request 描述一次数据请求：交易所、交易对、产品类型、时间框架与时间窗口。
type Request struct {
	Exchange    string
	Symbol      string
	ProductType market.ProductType
	Timeframe   string
	Start       time.Time
	End         time.Time
}

// Key 返回请求对应的库存键。
func (r Request) Key() store.MarketKey {
	return store.MarketKey{
		Exchange:    market.NormalizeExchange(r.Exchange),
		Symbol:      market.NormalizeSymbol(r.Symbol),
		ProductType: r.ProductType,
		Timeframe:   r.Timeframe,
	}
}

// Verdict 为校验结论。Available 为 false 时 Err 必定携带原因与建议。
type Verdict struct {
	Available bool
	Coverage  store.Coverage
	Err       *UnavailableError
}

// Validator 对请求做严格的库存校验。交易所、交易对、产品类型与时间框架
// 全部精确匹配，绝不做模糊替换，也不混用现货与合约数据。
type Validator struct {
	bars   *store.BarStore
	logger *zap.Logger
}

// NewValidator 创建校验器。
func NewValidator(bars *store.BarStore, logger *zap.Logger) (*Validator, error) {
	if bars == nil {
		return nil, fmt.Errorf("dataset: bar store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{bars: bars, logger: logger}, nil
}

// Validate 检查请求窗口是否被持久化数据完整覆盖。
// 部分覆盖会被明确报告为不可用，并指出实际覆盖的子区间，绝不静默截断。
func (v *Validator) Validate(ctx context.Context, req Request) (Verdict, error) {
	if req.End.Before(req.Start) {
		return Verdict{}, fmt.Errorf("dataset: 结束时间 %s 早于开始时间 %s",
			req.End.Format(time.RFC3339), req.Start.Format(time.RFC3339))
	}
	if _, err := market.TimeframeDuration(req.Timeframe); err != nil {
		return Verdict{}, err
	}

	key := req.Key()
	cov, err := v.bars.QueryCoverage(ctx, key)
	if err != nil {
		return Verdict{}, err
	}

	if cov.Count == 0 {
		suggestions, sugErr := v.suggestions(ctx, key)
		if sugErr != nil {
			v.logger.Warn("生成数据建议失败", zap.Error(sugErr))
		}
		return Verdict{
			Available: false,
			Err: &UnavailableError{
				Reason:      fmt.Sprintf("库中不存在 %s 的任何数据", key),
				Suggestions: suggestions,
			},
		}, nil
	}

	if cov.First.After(req.Start) || cov.Last.Before(req.End) {
		suggestions, sugErr := v.suggestions(ctx, key)
		if sugErr != nil {
			v.logger.Warn("生成数据建议失败", zap.Error(sugErr))
		}
		return Verdict{
			Available: false,
			Coverage:  cov,
			Err: &UnavailableError{
				Reason: fmt.Sprintf("%s 仅覆盖 %s ~ %s，无法完整覆盖请求窗口 %s ~ %s",
					key,
					cov.First.Format(time.RFC3339), cov.Last.Format(time.RFC3339),
					req.Start.Format(time.RFC3339), req.End.Format(time.RFC3339)),
				Suggestions: suggestions,
			},
		}, nil
	}

	return Verdict{Available: true, Coverage: cov}, nil
}

// suggestions 从真实库存中挑选与请求最接近的替代项。
func (v *Validator) suggestions(ctx context.Context, key store.MarketKey) ([]Suggestion, error) {
	coverages, err := v.bars.ListCoverage(ctx)
	if err != nil {
		return nil, err
	}

	ranked := make([]Suggestion, 0, len(coverages))
	var fallback []Suggestion
	for _, cov := range coverages {
		s := Suggestion{
			Exchange:    cov.Key.Exchange,
			Symbol:      cov.Key.Symbol,
			ProductType: string(cov.Key.ProductType),
			Timeframe:   cov.Key.Timeframe,
			First:       cov.First,
			Last:        cov.Last,
		}
		// 同交易对的其他组合优先，其次列出其余库存。
		if cov.Key.Symbol == key.Symbol {
			ranked = append(ranked, s)
		} else {
			fallback = append(fallback, s)
		}
	}

	ranked = append(ranked, fallback...)
	const maxSuggestions = 5
	if len(ranked) > maxSuggestions {
		ranked = ranked[:maxSuggestions]
	}
	return ranked, nil
}

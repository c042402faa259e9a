package dataset

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"backtester/internal/market"
	"backtester/internal/store"
)

// Loader 在校验通过后加载不可变的K线序列。
// 它没有任何能返回合成K线的代码路径：数据缺失只会以错误形式向上抛出。
type Loader struct {
	bars   *store.BarStore
	logger *zap.Logger
}

// NewLoader 创建加载器。
func NewLoader(bars *store.BarStore, logger *zap.Logger) (*Loader, error) {
	if bars == nil {
		return nil, fmt.Errorf("dataset: bar store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{bars: bars, logger: logger}, nil
}

// Load 返回窗口内按时间升序排列的K线序列。
// 序列必须严格递增且无缺口，否则返回 *GapError。只应在 Validator 通过后调用。
func (l *Loader) Load(ctx context.Context, req Request) ([]market.Bar, error) {
	step, err := market.TimeframeDuration(req.Timeframe)
	if err != nil {
		return nil, err
	}

	bars, err := l.bars.QueryBars(ctx, req.Key(), req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, &UnavailableError{
			Reason: fmt.Sprintf("窗口 %s ~ %s 内没有 %s 的数据",
				req.Start.Format("2006-01-02"), req.End.Format("2006-01-02"), req.Key()),
		}
	}

	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		if !cur.Timestamp.After(prev.Timestamp) {
			return nil, fmt.Errorf("dataset: %s %s 时间戳未严格递增: %s -> %s",
				req.Symbol, req.Timeframe, prev.Timestamp, cur.Timestamp)
		}
		gap := cur.Timestamp.Sub(prev.Timestamp)
		if gap > step {
			return nil, &GapError{
				Symbol:    req.Symbol,
				Timeframe: req.Timeframe,
				Before:    prev.Timestamp,
				After:     cur.Timestamp,
				Missing:   int(gap/step) - 1,
			}
		}
	}

	l.logger.Debug("历史数据加载完成",
		zap.String("key", req.Key().String()),
		zap.Int("bars", len(bars)),
		zap.Time("first", bars[0].Timestamp),
		zap.Time("last", bars[len(bars)-1].Timestamp),
	)

	return bars, nil
}

package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// StepError 表示策略在某根K线上执行失败，保留出错的K线下标。
type StepError struct {
	Strategy string
	Symbol   string
	BarIndex int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("strategy: %s 在 %s 第 %d 根K线执行失败: %v", e.Strategy, e.Symbol, e.BarIndex, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Runtime 包裹单个策略实例，为每一步提供故障隔离。
// 用户策略抛出的 panic 会被捕获并转换为 *StepError，不会影响其他并发运行。
type Runtime struct {
	strategy Strategy
	logger   *zap.Logger
}

// NewRuntime 创建策略运行时。
func NewRuntime(s Strategy, logger *zap.Logger) (*Runtime, error) {
	if s == nil {
		return nil, fmt.Errorf("strategy: 策略实例不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{strategy: s, logger: logger}, nil
}

// Name 返回策略名。
func (r *Runtime) Name() string {
	return r.strategy.Name()
}

// DataRequirements 返回策略声明的数据需求。
func (r *Runtime) DataRequirements() []DataRequest {
	return r.strategy.DataRequirements()
}

// Step 执行一步并返回信号。panic 与错误都以 *StepError 形式返回。
func (r *Runtime) Step(ctx context.Context, window Window) (signals []Signal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("策略执行发生panic",
				zap.String("strategy", r.strategy.Name()),
				zap.String("symbol", window.Symbol),
				zap.Int("bar_index", window.Index),
				zap.Any("panic", rec),
			)
			signals = nil
			err = &StepError{
				Strategy: r.strategy.Name(),
				Symbol:   window.Symbol,
				BarIndex: window.Index,
				Err:      fmt.Errorf("panic: %v", rec),
			}
		}
	}()

	signals, stepErr := r.strategy.OnBar(ctx, window)
	if stepErr != nil {
		return nil, &StepError{
			Strategy: r.strategy.Name(),
			Symbol:   window.Symbol,
			BarIndex: window.Index,
			Err:      stepErr,
		}
	}
	return signals, nil
}

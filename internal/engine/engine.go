package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"backtester/internal/config"
	"backtester/internal/dataset"
	"backtester/internal/market"
	"backtester/internal/sim"
	"backtester/internal/strategy"
)

// Dependencies 汇集一次运行所需的外部协作方。
// 校验器、加载器与注册表可以在运行之间共享（均为只读），
// 账本、策略实例、撮合器与随机源都在 Run 内部按运行新建。
type Dependencies struct {
	Validator        *dataset.Validator
	Loader           *dataset.Loader
	Registry         *strategy.Registry
	Fees             *sim.FeeSchedule
	Execution        config.ExecutionConfig
	ProgressInterval int
	Recorder         *Recorder
	Sink             ProgressSink
	Logger           *zap.Logger
}

// Engine 驱动单次回测运行的状态机：
// Validating → Loading → Replaying → Aggregating → {Completed | Failed | Cancelled}。
type Engine struct {
	runID string
	cfg   RunConfig
	deps  Dependencies

	mu      sync.RWMutex
	state   State
	failure *RunError
}

// NewEngine 创建运行引擎。cfg 在此处拷贝，运行期间不再变更。
func NewEngine(runID string, cfg RunConfig, deps Dependencies) (*Engine, error) {
	if deps.Validator == nil {
		return nil, fmt.Errorf("engine: validator 不能为空")
	}
	if deps.Loader == nil {
		return nil, fmt.Errorf("engine: loader 不能为空")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("engine: strategy registry 不能为空")
	}
	if deps.Fees == nil {
		return nil, fmt.Errorf("engine: fee schedule 不能为空")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.ProgressInterval <= 0 {
		deps.ProgressInterval = 50
	}

	return &Engine{runID: runID, cfg: cfg, deps: deps}, nil
}

// RunID 返回运行标识。
func (e *Engine) RunID() string {
	return e.runID
}

// State 返回当前状态。
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Failure 返回失败详情，仅在状态为 Failed 时非空。
func (e *Engine) Failure() *RunError {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.failure
}

func (e *Engine) transition(ctx context.Context, to State) error {
	e.mu.Lock()
	from := e.state
	if !canTransition(from, to) {
		e.mu.Unlock()
		return fmt.Errorf("engine: 非法状态迁移 %s -> %s", from, to)
	}
	e.state = to
	e.mu.Unlock()

	e.deps.Recorder.RecordState(ctx, e.runID, from, to)
	return nil
}

func (e *Engine) report(pct float64, step State) {
	if e.deps.Sink == nil {
		return
	}
	e.deps.Sink.Report(e.runID, pct, string(step))
}

func (e *Engine) fail(ctx context.Context, component Component, err error) error {
	runErr := &RunError{Component: component, Err: err}

	e.mu.Lock()
	e.state = StateFailed
	e.failure = runErr
	e.mu.Unlock()

	e.deps.Recorder.RecordFinished(ctx, e.runID, FinishedPayload{State: StateFailed, Error: runErr.Error()})
	e.deps.Logger.Warn("回测运行失败",
		zap.String("run_id", e.runID),
		zap.String("component", string(component)),
		zap.Error(err),
	)
	return runErr
}

func (e *Engine) cancel(ctx context.Context) error {
	e.mu.Lock()
	e.state = StateCancelled
	e.mu.Unlock()

	e.deps.Recorder.RecordFinished(ctx, e.runID, FinishedPayload{State: StateCancelled})
	e.deps.Logger.Info("回测运行已取消", zap.String("run_id", e.runID))
	return ErrCancelled
}

// event 为回放序列中的单个K线事件。多交易对按时间戳合并，同刻按配置顺序。
type event struct {
	symbol string
	pos    int
	bar    market.Bar
}

// Run 执行完整回测流程并在成功时返回结果。
// 取消或失败时不产出任何部分结果。
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	startedAt := time.Now().UTC()
	e.deps.Recorder.RecordStarted(ctx, e.runID, e.cfg)

	if err := e.transition(ctx, StateValidating); err != nil {
		return nil, err
	}
	e.report(0, StateValidating)

	if err := e.cfg.Validate(); err != nil {
		return nil, e.fail(ctx, ComponentConfig, err)
	}

	product, err := market.ParseProductType(e.cfg.ProductType)
	if err != nil {
		return nil, e.fail(ctx, ComponentConfig, err)
	}
	tier, err := e.deps.Fees.Tier(e.cfg.FeeTier)
	if err != nil {
		return nil, e.fail(ctx, ComponentConfig, err)
	}

	instance, err := e.deps.Registry.New(e.cfg.Strategy)
	if err != nil {
		return nil, e.fail(ctx, ComponentConfig, err)
	}
	runtime, err := strategy.NewRuntime(instance, e.deps.Logger)
	if err != nil {
		return nil, e.fail(ctx, ComponentStrategy, err)
	}

	driveTF := e.cfg.Timeframes[0]
	configured := make(map[string]bool, len(e.cfg.Timeframes))
	for _, tf := range e.cfg.Timeframes {
		configured[tf] = true
	}
	for _, req := range runtime.DataRequirements() {
		if req.Timeframe != "" && !configured[req.Timeframe] {
			return nil, e.fail(ctx, ComponentConfig, &ConfigError{
				Err: fmt.Errorf("策略 %s 需要时间框架 %s，但运行配置未包含", runtime.Name(), req.Timeframe),
			})
		}
	}

	ctxDurations := make(map[string]time.Duration, len(e.cfg.Timeframes))
	for _, tf := range e.cfg.Timeframes {
		if tf == driveTF {
			continue
		}
		d, dErr := market.TimeframeDuration(tf)
		if dErr != nil {
			return nil, e.fail(ctx, ComponentConfig, dErr)
		}
		ctxDurations[tf] = d
	}

	start, end, err := e.cfg.Window()
	if err != nil {
		return nil, e.fail(ctx, ComponentConfig, &ConfigError{Err: err})
	}

	requests := make([]dataset.Request, 0, len(e.cfg.Symbols)*len(e.cfg.Timeframes))
	for _, symbol := range e.cfg.Symbols {
		for _, tf := range e.cfg.Timeframes {
			requests = append(requests, dataset.Request{
				Exchange:    e.cfg.Exchange,
				Symbol:      symbol,
				ProductType: product,
				Timeframe:   tf,
				Start:       start,
				End:         end,
			})
		}
	}
	vg, vctx := errgroup.WithContext(ctx)
	for _, req := range requests {
		req := req
		vg.Go(func() error {
			verdict, vErr := e.deps.Validator.Validate(vctx, req)
			if vErr != nil {
				return vErr
			}
			if !verdict.Available {
				return verdict.Err
			}
			return nil
		})
	}
	if err := vg.Wait(); err != nil {
		if ctxDone(err) {
			return nil, e.cancel(context.WithoutCancel(ctx))
		}
		return nil, e.fail(ctx, ComponentValidator, err)
	}

	if err := e.transition(ctx, StateLoading); err != nil {
		return nil, err
	}
	e.report(5, StateLoading)

	series := make(map[string][]market.Bar, len(e.cfg.Symbols))
	contexts := make(map[string]map[string][]market.Bar, len(e.cfg.Symbols))
	for _, req := range requests {
		key := market.NormalizeSymbol(req.Symbol)
		bars, lErr := e.deps.Loader.Load(ctx, req)
		if lErr != nil {
			if ctxDone(lErr) {
				return nil, e.cancel(context.WithoutCancel(ctx))
			}
			return nil, e.fail(ctx, ComponentLoader, lErr)
		}
		if req.Timeframe == driveTF {
			series[key] = bars
			continue
		}
		if contexts[key] == nil {
			contexts[key] = make(map[string][]market.Bar)
		}
		contexts[key][req.Timeframe] = bars
	}

	symbols := make([]string, 0, len(e.cfg.Symbols))
	for _, symbol := range e.cfg.Symbols {
		symbols = append(symbols, market.NormalizeSymbol(symbol))
	}
	events := mergeEvents(symbols, series)
	total := len(events)
	if total == 0 {
		return nil, e.fail(ctx, ComponentLoader, &dataset.UnavailableError{Reason: "请求窗口内没有任何K线"})
	}

	if err := e.transition(ctx, StateReplaying); err != nil {
		return nil, err
	}
	e.report(10, StateReplaying)

	rng := rand.New(rand.NewSource(e.cfg.Seed()))
	ledger := sim.NewLedger(e.cfg.InitialCapital)
	simulator, err := sim.NewSimulator(product, tier, e.deps.Execution.SlippageBps, rng, ledger, e.deps.Logger)
	if err != nil {
		return nil, e.fail(ctx, ComponentSimulator, err)
	}

	equityCurve := make([]float64, 0, total+1)
	equityCurve = append(equityCurve, e.cfg.InitialCapital)

	// 辅助时间框架的推进游标，保证上下文序列只暴露截至当前时间戳的数据。
	cursors := make(map[string]map[string]int, len(symbols))
	for _, symbol := range symbols {
		cursors[symbol] = make(map[string]int, len(contexts[symbol]))
	}

	recordedRejects := 0
	for i, ev := range events {
		select {
		case <-ctx.Done():
			return nil, e.cancel(context.WithoutCancel(ctx))
		default:
		}

		fills, fErr := simulator.OnBar(ev.bar, i)
		if fErr != nil {
			return nil, e.fail(ctx, ComponentSimulator, fErr)
		}
		for _, fill := range fills {
			e.deps.Recorder.RecordFill(ctx, e.runID, fill)
		}

		window := strategy.Window{
			Symbol:  ev.symbol,
			Index:   ev.pos,
			Bars:    series[ev.symbol][:ev.pos+1],
			Context: contextWindow(contexts[ev.symbol], cursors[ev.symbol], ctxDurations, ev.bar.Timestamp),
		}

		signals, sErr := runtime.Step(ctx, window)
		if sErr != nil {
			return nil, e.fail(ctx, ComponentStrategy, sErr)
		}
		for _, signal := range signals {
			if signal.Symbol == "" {
				signal.Symbol = ev.symbol
			}
			simulator.Submit(signal, i)
		}

		if cnt := simulator.RejectionCount(); cnt > recordedRejects {
			rejections := simulator.Rejections()
			for _, rejection := range rejections[recordedRejects:] {
				e.deps.Recorder.RecordRejection(ctx, e.runID, rejection)
			}
			recordedRejects = cnt
			if e.deps.Execution.MaxRejects > 0 && cnt > e.deps.Execution.MaxRejects {
				return nil, e.fail(ctx, ComponentSimulator,
					fmt.Errorf("约束拒绝次数 %d 超过上限 %d", cnt, e.deps.Execution.MaxRejects))
			}
		}

		// 同一时间戳可能有多个交易对事件，净值只在该时刻全部处理完后采样，
		// 净值曲线每个周期恰好一点，夏普年化才与驱动时间框架一致。
		if i+1 == total || !events[i+1].bar.Timestamp.Equal(ev.bar.Timestamp) {
			equityCurve = append(equityCurve, simulator.Snapshot().Equity)
		}

		if (i+1)%e.deps.ProgressInterval == 0 {
			e.report(10+80*float64(i+1)/float64(total), StateReplaying)
		}
	}

	if err := e.transition(ctx, StateAggregating); err != nil {
		return nil, err
	}
	e.report(95, StateAggregating)

	metrics, err := sim.Summarize(ledger, equityCurve, driveTF)
	if err != nil {
		return nil, e.fail(ctx, ComponentAggregator, err)
	}

	result := &Result{
		RunID:        e.runID,
		Success:      true,
		FinalCapital: metrics.FinalEquity,
		TotalReturn:  metrics.TotalReturn,
		TradesCount:  metrics.TradeCount,
		Performance:  metrics,
		Ledger:       ledger.Entries(),
		Rejections:   simulator.Rejections(),
		EquityCurve:  equityCurve,
		StartedAt:    startedAt,
		FinishedAt:   time.Now().UTC(),
	}

	if err := e.transition(ctx, StateCompleted); err != nil {
		return nil, err
	}
	e.report(100, StateCompleted)
	e.deps.Recorder.RecordFinished(ctx, e.runID, FinishedPayload{
		State:        StateCompleted,
		FinalCapital: result.FinalCapital,
		TradesCount:  result.TradesCount,
	})

	return result, nil
}

// mergeEvents 把多交易对的驱动序列按时间戳升序合并为单一事件流。
// 时间戳相同的K线按配置中的交易对顺序排列，保证回放顺序确定。
func mergeEvents(symbols []string, series map[string][]market.Bar) []event {
	idx := make([]int, len(symbols))
	total := 0
	for _, symbol := range symbols {
		total += len(series[symbol])
	}

	events := make([]event, 0, total)
	for {
		best := -1
		for si, symbol := range symbols {
			bars := series[symbol]
			if idx[si] >= len(bars) {
				continue
			}
			if best == -1 || bars[idx[si]].Timestamp.Before(series[symbols[best]][idx[best]].Timestamp) {
				best = si
			}
		}
		if best == -1 {
			break
		}
		symbol := symbols[best]
		events = append(events, event{symbol: symbol, pos: idx[best], bar: series[symbol][idx[best]]})
		idx[best]++
	}
	return events
}

// contextWindow 返回各辅助时间框架截至 ts 的序列。游标单调推进，整体线性扫描。
// K线按开盘时间戳存储，只有收盘时间（开盘时间+周期）不晚于 ts 的K线才可见，
// 尚未走完的高时间框架K线携带未来区间的高低收，绝不能暴露给策略。
func contextWindow(all map[string][]market.Bar, cursors map[string]int, durations map[string]time.Duration, ts time.Time) map[string][]market.Bar {
	if len(all) == 0 {
		return nil
	}
	out := make(map[string][]market.Bar, len(all))
	for tf, bars := range all {
		cur := cursors[tf]
		d := durations[tf]
		for cur < len(bars) && !bars[cur].Timestamp.Add(d).After(ts) {
			cur++
		}
		cursors[tf] = cur
		out[tf] = bars[:cur]
	}
	return out
}

// ctxDone 判断错误链是否源于上下文取消或超时。
func ctxDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

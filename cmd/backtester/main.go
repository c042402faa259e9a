package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"backtester/internal/config"
	"backtester/internal/dataset"
	"backtester/internal/engine"
	"backtester/internal/log"
	"backtester/internal/sim"
	"backtester/internal/store"
	"backtester/internal/strategy"
)

func main() {
	var (
		configPath     string
		runPath        string
		listStrategies bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&runPath, "run", "", "运行参数JSON文件路径")
	flag.BoolVar(&listStrategies, "list-strategies", false, "列出内置策略后退出")
	flag.Parse()

	registry := strategy.Builtins()
	if listStrategies {
		for _, name := range registry.List() {
			fmt.Println(name)
		}
		return
	}

	if runPath == "" {
		fmt.Fprintln(os.Stderr, "缺少 -run 参数")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	runCfg, err := loadRunConfig(runPath)
	if err != nil {
		logger.Error("解析运行参数失败", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, status, err := execute(ctx, cfg, registry, sqliteStore, runCfg, logger)
	if err != nil {
		logger.Error("回测运行失败", zap.Error(err))
		printFailure(status)
		os.Exit(1)
	}

	printResult(result)
}

func loadRunConfig(path string) (engine.RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.RunConfig{}, fmt.Errorf("读取运行参数文件失败: %w", err)
	}
	var cfg engine.RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return engine.RunConfig{}, fmt.Errorf("解析运行参数失败: %w", err)
	}
	return cfg, nil
}

func execute(ctx context.Context, cfg *config.Config, registry *strategy.Registry, sqliteStore *store.Store, runCfg engine.RunConfig, logger *zap.Logger) (*engine.Result, engine.RunStatus, error) {
	bars, err := store.NewBarStore(sqliteStore, logger)
	if err != nil {
		return nil, engine.RunStatus{}, err
	}
	validator, err := dataset.NewValidator(bars, logger)
	if err != nil {
		return nil, engine.RunStatus{}, err
	}
	loader, err := dataset.NewLoader(bars, logger)
	if err != nil {
		return nil, engine.RunStatus{}, err
	}
	fees, err := sim.NewFeeSchedule(cfg.Fees)
	if err != nil {
		return nil, engine.RunStatus{}, err
	}
	recorder, err := engine.NewRecorder(sqliteStore, logger)
	if err != nil {
		return nil, engine.RunStatus{}, err
	}

	deps := engine.Dependencies{
		Validator:        validator,
		Loader:           loader,
		Registry:         registry,
		Fees:             fees,
		Execution:        cfg.Execution,
		ProgressInterval: cfg.Engine.ProgressInterval,
		Recorder:         recorder,
		Sink: engine.ProgressFunc(func(runID string, pct float64, step string) {
			logger.Info("回测进度",
				zap.String("run_id", runID),
				zap.Float64("pct", pct),
				zap.String("step", step),
			)
		}),
	}

	manager, err := engine.NewManager(deps, cfg.Engine.RunTimeout, logger)
	if err != nil {
		return nil, engine.RunStatus{}, err
	}

	if runCfg.FeeTier == "" {
		runCfg.FeeTier = cfg.Fees.DefaultTier
	}

	runID, err := manager.Start(ctx, runCfg)
	if err != nil {
		return nil, engine.RunStatus{}, err
	}
	if err := manager.Wait(ctx, runID); err != nil {
		return nil, engine.RunStatus{}, err
	}

	status, err := manager.Status(runID)
	if err != nil {
		return nil, engine.RunStatus{}, err
	}

	result, err := manager.Result(runID)
	if err != nil {
		return nil, status, err
	}
	return result, status, nil
}

func printFailure(status engine.RunStatus) {
	if status.Error == "" {
		return
	}
	fmt.Fprintf(os.Stderr, "\n运行终止于 %s: %s\n", status.State, status.Error)
	if len(status.Suggestions) > 0 {
		parts := make([]string, 0, len(status.Suggestions))
		for _, s := range status.Suggestions {
			parts = append(parts, s.String())
		}
		fmt.Fprintf(os.Stderr, "可用数据建议:\n  %s\n", strings.Join(parts, "\n  "))
	}
}

func printResult(result *engine.Result) {
	sharpe := "n/a"
	if result.Performance.SharpeRatio != nil {
		sharpe = fmt.Sprintf("%.4f", *result.Performance.SharpeRatio)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Final Capital", "Return", "Trades", "Win Rate", "Max DD", "Sharpe", "Fees")
	table.Append(
		fmt.Sprintf("%.2f", result.FinalCapital),
		fmt.Sprintf("%.2f%%", result.TotalReturn*100),
		fmt.Sprintf("%d", result.TradesCount),
		fmt.Sprintf("%.1f%%", result.Performance.WinRate*100),
		fmt.Sprintf("%.2f%%", result.Performance.MaxDrawdown*100),
		sharpe,
		fmt.Sprintf("%.2f", result.Performance.TotalFees),
	)
	table.Render()

	if len(result.Rejections) > 0 {
		fmt.Printf("被拒绝的信号: %d（详见运行事件记录）\n", len(result.Rejections))
	}
}

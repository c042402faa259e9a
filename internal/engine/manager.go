package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backtester/internal/dataset"
)

// RunStatus 为对外暴露的运行状态摘要。
type RunStatus struct {
	RunID       string               `json:"run_id"`
	State       State                `json:"state"`
	Component   Component            `json:"component,omitempty"`
	Error       string               `json:"error,omitempty"`
	Suggestions []dataset.Suggestion `json:"suggestions,omitempty"`
}

type runHandle struct {
	engine *Engine
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result *Result
	err    error
}

// Manager 调度多个互相独立的回测运行。
// 每个运行都由全新构建的引擎驱动，运行之间不共享任何可变状态，
// 唯一的共享资源是只读的行情存储。
type Manager struct {
	deps       Dependencies
	runTimeout time.Duration
	logger     *zap.Logger

	mu   sync.RWMutex
	runs map[string]*runHandle
}

// NewManager 创建运行管理器。
func NewManager(deps Dependencies, runTimeout time.Duration, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps.Logger = logger

	if deps.Validator == nil || deps.Loader == nil || deps.Registry == nil || deps.Fees == nil {
		return nil, fmt.Errorf("engine: manager 依赖不完整")
	}

	return &Manager{
		deps:       deps,
		runTimeout: runTimeout,
		logger:     logger,
		runs:       make(map[string]*runHandle),
	}, nil
}

// Start 启动一次新的回测运行并立即返回运行标识。
func (m *Manager) Start(ctx context.Context, cfg RunConfig) (string, error) {
	runID := uuid.NewString()

	engine, err := NewEngine(runID, cfg, m.deps)
	if err != nil {
		return "", err
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if m.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, m.runTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	handle := &runHandle{
		engine: engine,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.runs[runID] = handle
	m.mu.Unlock()

	go func() {
		defer cancel()
		defer close(handle.done)

		result, runErr := engine.Run(runCtx)

		handle.mu.Lock()
		handle.result = result
		handle.err = runErr
		handle.mu.Unlock()
	}()

	m.logger.Info("回测运行已启动",
		zap.String("run_id", runID),
		zap.String("strategy", cfg.Strategy),
		zap.Strings("symbols", cfg.Symbols),
	)
	return runID, nil
}

func (m *Manager) handle(runID string) (*runHandle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handle, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("engine: 未知的运行 %q", runID)
	}
	return handle, nil
}

// Cancel 请求协作式取消。已进入终态的运行不受影响。
func (m *Manager) Cancel(runID string) error {
	handle, err := m.handle(runID)
	if err != nil {
		return err
	}
	handle.cancel()
	return nil
}

// Status 返回运行状态摘要，失败时携带组件、错误与数据建议。
func (m *Manager) Status(runID string) (RunStatus, error) {
	handle, err := m.handle(runID)
	if err != nil {
		return RunStatus{}, err
	}

	status := RunStatus{RunID: runID, State: handle.engine.State()}
	if failure := handle.engine.Failure(); failure != nil {
		status.Component = failure.Component
		status.Error = failure.Error()

		var unavailable *dataset.UnavailableError
		if errors.As(failure, &unavailable) {
			status.Suggestions = unavailable.Suggestions
		}
	}
	return status, nil
}

// Result 返回已完成运行的结果。未完成或未成功的运行返回错误。
func (m *Manager) Result(runID string) (*Result, error) {
	handle, err := m.handle(runID)
	if err != nil {
		return nil, err
	}

	handle.mu.Lock()
	defer handle.mu.Unlock()

	state := handle.engine.State()
	switch {
	case handle.result != nil:
		return handle.result, nil
	case state == StateCancelled:
		return nil, ErrCancelled
	case handle.err != nil:
		return nil, handle.err
	default:
		return nil, fmt.Errorf("engine: 运行 %q 尚未完成，当前状态 %s", runID, state)
	}
}

// Wait 阻塞等待运行结束或 ctx 到期。
func (m *Manager) Wait(ctx context.Context, runID string) error {
	handle, err := m.handle(runID)
	if err != nil {
		return err
	}
	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

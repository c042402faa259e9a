package engine

import (
	"errors"
	"fmt"
)

// Component 标识运行失败时出错的组件。
type Component string

const (
	ComponentConfig     Component = "config"
	ComponentValidator  Component = "validator"
	ComponentLoader     Component = "loader"
	ComponentStrategy   Component = "strategy"
	ComponentSimulator  Component = "simulator"
	ComponentAggregator Component = "aggregator"
)

// ErrCancelled 表示运行被协作式取消。取消不是失败，对应独立的终态。
var ErrCancelled = errors.New("engine: 运行已取消")

// ConfigError 表示运行配置本身不合法，在任何数据访问之前就被拒绝。
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("engine: 运行配置不合法: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// RunError 携带失败组件与底层错误，向外部调用方提供可定位的结构化上下文。
type RunError struct {
	Component Component
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("engine: [%s] %v", e.Component, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

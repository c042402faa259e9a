package strategy

import (
	"context"
	"fmt"
	"sort"
)

// Strategy 为固定能力集接口：声明数据需求并逐根K线产生信号。
// 任何用户逻辑（指标、仓位管理、进出场规则）都只能通过该接口表达，
// 引擎本身不依赖任何具体策略类型。
type Strategy interface {
	Name() string
	DataRequirements() []DataRequest
	OnBar(ctx context.Context, window Window) ([]Signal, error)
}

// Factory 构造全新的策略实例。每次回测运行都会获得一个独立实例，
// 策略在步与步之间携带的状态随运行结束一并丢弃，杜绝跨运行污染。
type Factory func() Strategy

// Registry 按名称管理策略工厂。
type Registry struct {
	factories map[string]Factory
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register 注册策略工厂，同名覆盖。
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// New 按名称构造一个全新的策略实例。
func (r *Registry) New(name string) (Strategy, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("strategy: 未注册的策略 %q", name)
	}
	return factory(), nil
}

// List 返回已注册策略名，按字典序排列。
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtins 返回预装内置策略的注册表。
func Builtins() *Registry {
	r := NewRegistry()
	r.Register("sma-cross", func() Strategy { return NewSMACross(10, 30) })
	r.Register("rsi-reversion", func() Strategy { return NewRSIReversion(14, 30, 70) })
	r.Register("interval-buy", func() Strategy { return NewIntervalBuy(10, 100) })
	return r
}

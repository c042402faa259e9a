package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了回测系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Fees      FeesConfig      `mapstructure:"fees"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Engine    EngineConfig    `mapstructure:"engine"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig 管理行情数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// FeeTier 描述单个费率档位，单位为基点。
type FeeTier struct {
	MakerBps float64 `mapstructure:"maker_bps"`
	TakerBps float64 `mapstructure:"taker_bps"`
}

// FeesConfig 为外部提供的费率表，按档位名索引。
type FeesConfig struct {
	DefaultTier string             `mapstructure:"default_tier"`
	Tiers       map[string]FeeTier `mapstructure:"tiers"`
}

// ExecutionConfig 控制模拟成交行为。
type ExecutionConfig struct {
	SlippageBps float64 `mapstructure:"slippage_bps"`
	MaxRejects  int     `mapstructure:"max_rejects"`
}

// EngineConfig 控制回测引擎的调度行为。
type EngineConfig struct {
	ProgressInterval int           `mapstructure:"progress_interval"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if len(c.Fees.Tiers) == 0 {
		err = multierr.Append(err, errors.New("fees.tiers 至少包含一个费率档位"))
	}
	if c.Fees.DefaultTier == "" {
		err = multierr.Append(err, errors.New("fees.default_tier 不能为空"))
	} else if _, ok := c.Fees.Tiers[c.Fees.DefaultTier]; len(c.Fees.Tiers) > 0 && !ok {
		err = multierr.Append(err, fmt.Errorf("fees.default_tier %q 未出现在 fees.tiers 中", c.Fees.DefaultTier))
	}
	for name, tier := range c.Fees.Tiers {
		if tier.MakerBps < 0 || tier.TakerBps < 0 {
			err = multierr.Append(err, fmt.Errorf("fees.tiers.%s 费率不能为负", name))
		}
	}
	if c.Execution.SlippageBps < 0 || c.Execution.SlippageBps > 500 {
		err = multierr.Append(err, errors.New("execution.slippage_bps 应位于[0,500]"))
	}
	if c.Execution.MaxRejects < 0 {
		err = multierr.Append(err, errors.New("execution.max_rejects 不能为负"))
	}
	if c.Engine.ProgressInterval <= 0 {
		err = multierr.Append(err, errors.New("engine.progress_interval 必须大于0"))
	}
	if c.Engine.RunTimeout < 0 {
		err = multierr.Append(err, errors.New("engine.run_timeout 不能为负"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

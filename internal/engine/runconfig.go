package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"backtester/internal/market"
)

// defaultSeed 为未显式提供随机种子时使用的固定值，保证默认即可复现。
const defaultSeed int64 = 20240101

// RunConfig 定义一次回测运行的全部参数，运行开始后不再变更。
type RunConfig struct {
	Strategy       string   `json:"strategy"`
	Exchange       string   `json:"exchange"`
	ProductType    string   `json:"product_type"`
	Symbols        []string `json:"symbols"`
	Timeframes     []string `json:"timeframes"`
	FeeTier        string   `json:"fee_tier"`
	InitialCapital float64  `json:"initial_capital"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	RandomSeed     *int64   `json:"random_seed,omitempty"`
}

// Seed 返回本次运行使用的随机种子。
func (c *RunConfig) Seed() int64 {
	if c.RandomSeed != nil {
		return *c.RandomSeed
	}
	return defaultSeed
}

// Validate 校验运行配置，任何问题都在访问数据之前以 *ConfigError 返回。
func (c *RunConfig) Validate() error {
	var err error

	if c.Strategy == "" {
		err = multierr.Append(err, errors.New("strategy 不能为空"))
	}
	if c.Exchange == "" {
		err = multierr.Append(err, errors.New("exchange 不能为空"))
	}
	if _, parseErr := market.ParseProductType(c.ProductType); parseErr != nil {
		err = multierr.Append(err, parseErr)
	}
	if len(c.Symbols) == 0 {
		err = multierr.Append(err, errors.New("symbols 至少包含一个交易对"))
	}
	if len(c.Timeframes) == 0 {
		err = multierr.Append(err, errors.New("timeframes 至少包含一个时间框架"))
	}
	for _, tf := range c.Timeframes {
		if _, tfErr := market.TimeframeDuration(tf); tfErr != nil {
			err = multierr.Append(err, tfErr)
		}
	}
	if c.FeeTier == "" {
		err = multierr.Append(err, errors.New("fee_tier 不能为空"))
	}
	if c.InitialCapital <= 0 {
		err = multierr.Append(err, errors.New("initial_capital 必须大于0"))
	}

	start, startErr := parseDate(c.StartDate)
	if startErr != nil {
		err = multierr.Append(err, fmt.Errorf("start_date 无法解析: %w", startErr))
	}
	end, endErr := parseDate(c.EndDate)
	if endErr != nil {
		err = multierr.Append(err, fmt.Errorf("end_date 无法解析: %w", endErr))
	}
	if startErr == nil && endErr == nil && !end.After(start) {
		err = multierr.Append(err, fmt.Errorf("end_date %s 必须晚于 start_date %s", c.EndDate, c.StartDate))
	}

	if err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

// Window 返回解析后的时间窗口。只应在 Validate 通过后调用。
func (c *RunConfig) Window() (time.Time, time.Time, error) {
	start, err := parseDate(c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("日期为空")
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

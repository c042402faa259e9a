package market

import (
	"fmt"
	"strings"
	"time"
)

// ProductType 区分现货与合约数据，两者即使符号相同也绝不混用。
type ProductType string

const (
	ProductSpot    ProductType = "spot"
	ProductFutures ProductType = "futures"
)

// ParseProductType 解析产品类型字符串。
func ParseProductType(s string) (ProductType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ProductSpot):
		return ProductSpot, nil
	case string(ProductFutures):
		return ProductFutures, nil
	default:
		return "", fmt.Errorf("market: 未知的产品类型 %q", s)
	}
}

// Bar 代表单根K线。
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// timeframeDurations 列出支持的时间框架及其周期。
var timeframeDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// TimeframeDuration 返回时间框架对应的周期。
func TimeframeDuration(timeframe string) (time.Duration, error) {
	d, ok := timeframeDurations[strings.ToLower(strings.TrimSpace(timeframe))]
	if !ok {
		return 0, fmt.Errorf("market: 不支持的时间框架 %q", timeframe)
	}
	return d, nil
}

// PeriodsPerYear 返回时间框架对应的年化周期数，用于夏普比率换算。
func PeriodsPerYear(timeframe string) (float64, error) {
	d, err := TimeframeDuration(timeframe)
	if err != nil {
		return 0, err
	}
	return float64(365*24*time.Hour) / float64(d), nil
}

// NormalizeSymbol 统一交易对书写形式。
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeExchange 统一交易所名称书写形式。
func NormalizeExchange(exchange string) string {
	return strings.ToLower(strings.TrimSpace(exchange))
}

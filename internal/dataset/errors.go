package dataset

import (
	"fmt"
	"strings"
	"time"
)

// Suggestion 指向库中真实存在的一份可替代数据。
type Suggestion struct {
	Exchange    string    `json:"exchange"`
	Symbol      string    `json:"symbol"`
	ProductType string    `json:"product_type"`
	Timeframe   string    `json:"timeframe"`
	First       time.Time `json:"first"`
	Last        time.Time `json:"last"`
}

func (s Suggestion) String() string {
	return fmt.Sprintf("%s %s %s %s [%s ~ %s]",
		s.Exchange, s.Symbol, s.ProductType, s.Timeframe,
		s.First.Format("2006-01-02"), s.Last.Format("2006-01-02"))
}

// UnavailableError 表示请求的数据不存在或仅部分覆盖请求窗口。
// 引擎绝不会用替代数据或合成数据来满足这类请求。
type UnavailableError struct {
	Reason      string
	Suggestions []Suggestion
}

func (e *UnavailableError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("dataset: 数据不可用: %s", e.Reason)
	}
	parts := make([]string, 0, len(e.Suggestions))
	for _, s := range e.Suggestions {
		parts = append(parts, s.String())
	}
	return fmt.Sprintf("dataset: 数据不可用: %s（可用替代: %s）", e.Reason, strings.Join(parts, "; "))
}

// GapError 表示已加载序列中检测到缺口。缺口只会报错，绝不会被合成K线填补。
type GapError struct {
	Symbol    string
	Timeframe string
	Before    time.Time
	After     time.Time
	Missing   int
}

func (e *GapError) Error() string {
	return fmt.Sprintf("dataset: %s %s 数据存在缺口: %s 与 %s 之间缺少 %d 根K线",
		e.Symbol, e.Timeframe,
		e.Before.Format(time.RFC3339), e.After.Format(time.RFC3339), e.Missing)
}

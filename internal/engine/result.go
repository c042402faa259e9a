package engine

import (
	"time"

	"backtester/internal/sim"
)

// Result 为一次完成运行的完整产出，只在状态到达 Completed 时生成。
// 账本与成交历史完整保留，供外部审计。
type Result struct {
	RunID        string              `json:"run_id"`
	Success      bool                `json:"success"`
	FinalCapital float64             `json:"final_capital"`
	TotalReturn  float64             `json:"total_return"`
	TradesCount  int                 `json:"trades_count"`
	Performance  sim.MetricsSnapshot `json:"performance"`
	Ledger       []sim.LedgerEntry   `json:"ledger"`
	Rejections   []sim.Rejection     `json:"rejections,omitempty"`
	EquityCurve  []float64           `json:"equity_curve"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}

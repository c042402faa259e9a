package engine

// State 表示单次运行在状态机中的位置。
// 合法路径为 Validating → Loading → Replaying → Aggregating → Completed，
// 任何非终态都可以转入 Failed 或 Cancelled，两者均为终态。
type State string

const (
	StateValidating  State = "validating"
	StateLoading     State = "loading"
	StateReplaying   State = "replaying"
	StateAggregating State = "aggregating"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Terminal 判断状态是否为终态。
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

var forward = map[State]State{
	StateValidating:  StateLoading,
	StateLoading:     StateReplaying,
	StateReplaying:   StateAggregating,
	StateAggregating: StateCompleted,
}

// canTransition 检查一次状态迁移是否合法，不允许跳过中间状态。
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	if from == "" {
		return to == StateValidating
	}
	return forward[from] == to
}

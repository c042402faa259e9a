package engine

// ProgressSink 接收运行进度。引擎只向外单向推送，绝不从外部回写状态。
type ProgressSink interface {
	Report(runID string, progressPct float64, step string)
}

// ProgressFunc 允许使用函数作为进度接收方。
type ProgressFunc func(runID string, progressPct float64, step string)

func (f ProgressFunc) Report(runID string, progressPct float64, step string) {
	if f != nil {
		f(runID, progressPct, step)
	}
}

package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"backtester/internal/sim"
	"backtester/internal/store"
)

// EventType 表示运行事件类型。
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventStateChanged EventType = "state_changed"
	EventFill         EventType = "fill"
	EventRejection    EventType = "rejection"
	EventRunFinished  EventType = "run_finished"
)

// Event 封装通用运行事件。
type Event struct {
	RunID     string      `json:"run_id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// StatePayload 记录状态迁移。
type StatePayload struct {
	From State `json:"from"`
	To   State `json:"to"`
}

// FinishedPayload 记录运行结束摘要。
type FinishedPayload struct {
	State        State   `json:"state"`
	Error        string  `json:"error,omitempty"`
	FinalCapital float64 `json:"final_capital,omitempty"`
	TradesCount  int     `json:"trades_count,omitempty"`
}

// Recorder 将运行事件持久化到 SQLite，按 run_id 索引。
// 所有记录方法对 nil 接收者安全，引擎可以在无存储场景下直接跳过记录。
type Recorder struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRecorder 初始化事件记录器，创建所需表结构。
func NewRecorder(store *store.Store, logger *zap.Logger) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Recorder{db: store.DB(), logger: logger}
	if err := r.initSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS run_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, event_type);
`
	if _, err := r.db.Exec(stmt); err != nil {
		return fmt.Errorf("engine: 初始化事件表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (r *Recorder) Record(ctx context.Context, event Event) error {
	if r == nil {
		return nil
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("engine: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO run_events (run_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		event.RunID, string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("engine: 写入事件失败: %w", err)
	}
	return nil
}

// RecordState 记录状态迁移。
func (r *Recorder) RecordState(ctx context.Context, runID string, from, to State) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, Event{
		RunID:   runID,
		Type:    EventStateChanged,
		Payload: StatePayload{From: from, To: to},
	}); err != nil {
		r.logger.Warn("记录状态事件失败", zap.Error(err))
	}
}

// RecordFill 记录一笔成交。
func (r *Recorder) RecordFill(ctx context.Context, runID string, fill sim.Fill) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, Event{RunID: runID, Type: EventFill, Payload: fill}); err != nil {
		r.logger.Warn("记录成交事件失败", zap.Error(err))
	}
}

// RecordRejection 记录一次约束拒绝。
func (r *Recorder) RecordRejection(ctx context.Context, runID string, rejection sim.Rejection) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, Event{RunID: runID, Type: EventRejection, Payload: rejection}); err != nil {
		r.logger.Warn("记录拒绝事件失败", zap.Error(err))
	}
}

// RecordStarted 记录运行开始。
func (r *Recorder) RecordStarted(ctx context.Context, runID string, cfg RunConfig) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, Event{RunID: runID, Type: EventRunStarted, Payload: cfg}); err != nil {
		r.logger.Warn("记录启动事件失败", zap.Error(err))
	}
}

// RecordFinished 记录运行结束摘要。
func (r *Recorder) RecordFinished(ctx context.Context, runID string, payload FinishedPayload) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, Event{RunID: runID, Type: EventRunFinished, Payload: payload}); err != nil {
		r.logger.Warn("记录结束事件失败", zap.Error(err))
	}
}

// ListEvents 按运行与类型检索事件，limit 为最大返回条数。
func (r *Recorder) ListEvents(ctx context.Context, runID string, eventType EventType, limit int) ([]Event, error) {
	if r == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT run_id, event_type, payload, created_at FROM run_events WHERE run_id = ?`
	args := []interface{}{runID}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("engine: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			run     string
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&run, &typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("engine: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			RunID:     run,
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("engine: 读取事件失败: %w", err)
	}

	return events, nil
}

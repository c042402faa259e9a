package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"backtester/internal/market"
)

// MarketKey 唯一标识一份行情库存：交易所、交易对、产品类型与时间框架精确匹配。
type MarketKey struct {
	Exchange    string             `json:"exchange"`
	Symbol      string             `json:"symbol"`
	ProductType market.ProductType `json:"product_type"`
	Timeframe   string             `json:"timeframe"`
}

func (k MarketKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Exchange, k.Symbol, k.ProductType, k.Timeframe)
}

// Coverage 描述某个库存键在时间轴上的覆盖范围。
type Coverage struct {
	Key   MarketKey
	Count int64
	First time.Time
	Last  time.Time
}

// BarStore 提供K线数据的读写。回测引擎只使用读取接口，写入由外部采集管道完成。
type BarStore struct {
	store  *Store
	logger *zap.Logger
}

// NewBarStore 初始化K线存储并创建所需表结构。
func NewBarStore(store *Store, logger *zap.Logger) (*BarStore, error) {
	if store == nil {
		return nil, fmt.Errorf("store: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &BarStore{store: store, logger: logger}
	if err := b.initSchema(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *BarStore) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS bars (
	exchange TEXT NOT NULL,
	symbol TEXT NOT NULL,
	product_type TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	ts INTEGER NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	volume REAL NOT NULL,
	PRIMARY KEY (exchange, symbol, product_type, timeframe, ts)
);
CREATE INDEX IF NOT EXISTS idx_bars_key_ts ON bars(exchange, symbol, product_type, timeframe, ts);
`
	if _, err := b.store.DB().Exec(stmt); err != nil {
		return fmt.Errorf("store: 初始化K线表失败: %w", err)
	}
	return nil
}

// WriteBars 批量写入K线，供采集管道与测试使用。
func (b *BarStore) WriteBars(ctx context.Context, key MarketKey, bars []market.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := b.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: 开启事务失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO bars (exchange, symbol, product_type, timeframe, ts, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: 预编译写入语句失败: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.ExecContext(ctx,
			key.Exchange, key.Symbol, string(key.ProductType), key.Timeframe,
			bar.Timestamp.UTC().Unix(), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: 写入K线失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: 提交K线写入失败: %w", err)
	}
	return nil
}

// QueryBars 按时间升序返回窗口内的K线。只读操作，可安全并发调用。
func (b *BarStore) QueryBars(ctx context.Context, key MarketKey, start, end time.Time) ([]market.Bar, error) {
	rows, err := b.store.DB().QueryContext(ctx,
		`SELECT ts, open, high, low, close, volume FROM bars
		 WHERE exchange = ? AND symbol = ? AND product_type = ? AND timeframe = ? AND ts >= ? AND ts <= ?
		 ORDER BY ts ASC`,
		key.Exchange, key.Symbol, string(key.ProductType), key.Timeframe,
		start.UTC().Unix(), end.UTC().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("store: 查询K线失败: %w", err)
	}
	defer rows.Close()

	bars := make([]market.Bar, 0, 256)
	for rows.Next() {
		var (
			ts  int64
			bar market.Bar
		)
		if scanErr := rows.Scan(&ts, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); scanErr != nil {
			return nil, fmt.Errorf("store: 解析K线失败: %w", scanErr)
		}
		bar.Symbol = key.Symbol
		bar.Timeframe = key.Timeframe
		bar.Timestamp = time.Unix(ts, 0).UTC()
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 读取K线失败: %w", err)
	}

	return bars, nil
}

// QueryCoverage 返回某个库存键的覆盖范围，不存在时 Count 为 0。
func (b *BarStore) QueryCoverage(ctx context.Context, key MarketKey) (Coverage, error) {
	row := b.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MIN(ts), 0), COALESCE(MAX(ts), 0) FROM bars
		 WHERE exchange = ? AND symbol = ? AND product_type = ? AND timeframe = ?`,
		key.Exchange, key.Symbol, string(key.ProductType), key.Timeframe,
	)

	var (
		count       int64
		first, last int64
	)
	if err := row.Scan(&count, &first, &last); err != nil {
		return Coverage{}, fmt.Errorf("store: 查询数据覆盖范围失败: %w", err)
	}

	cov := Coverage{Key: key, Count: count}
	if count > 0 {
		cov.First = time.Unix(first, 0).UTC()
		cov.Last = time.Unix(last, 0).UTC()
	}
	return cov, nil
}

// ListCoverage 列出库中全部库存键及其覆盖范围，供校验器生成建议。
func (b *BarStore) ListCoverage(ctx context.Context) ([]Coverage, error) {
	rows, err := b.store.DB().QueryContext(ctx,
		`SELECT exchange, symbol, product_type, timeframe, COUNT(*), MIN(ts), MAX(ts)
		 FROM bars GROUP BY exchange, symbol, product_type, timeframe
		 ORDER BY exchange, symbol, product_type, timeframe`)
	if err != nil {
		return nil, fmt.Errorf("store: 查询库存清单失败: %w", err)
	}
	defer rows.Close()

	coverages := make([]Coverage, 0, 16)
	for rows.Next() {
		var (
			cov          Coverage
			product      string
			first, last  int64
		)
		if scanErr := rows.Scan(&cov.Key.Exchange, &cov.Key.Symbol, &product, &cov.Key.Timeframe, &cov.Count, &first, &last); scanErr != nil {
			return nil, fmt.Errorf("store: 解析库存清单失败: %w", scanErr)
		}
		cov.Key.ProductType = market.ProductType(product)
		cov.First = time.Unix(first, 0).UTC()
		cov.Last = time.Unix(last, 0).UTC()
		coverages = append(coverages, cov)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 读取库存清单失败: %w", err)
	}

	return coverages, nil
}

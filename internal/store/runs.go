package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"batch-trader/internal/broker"
	"batch-trader/internal/order"
)

// RunStore 持久化每次运行的委托与对账结果。
type RunStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// RunRecord 描述一次运行的概要。
type RunRecord struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	FinalState  string    `json:"final_state"`
	Round1Count int       `json:"round1_count"`
	Round2Count int       `json:"round2_count"`
	ExecCount   int       `json:"exec_count"`
	Error       string    `json:"error,omitempty"`
}

// NewRunStore 初始化运行存储, 创建所需表结构。
func NewRunStore(store *Store, logger *zap.Logger) (*RunStore, error) {
	if store == nil {
		return nil, fmt.Errorf("store: 连接不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &RunStore{db: store.DB(), logger: logger}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func newRunStoreWithDB(db *sql.DB, logger *zap.Logger) *RunStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunStore{db: db, logger: logger}
}

func (s *RunStore) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			final_state TEXT NOT NULL,
			round1_count INTEGER NOT NULL DEFAULT 0,
			round2_count INTEGER NOT NULL DEFAULT 0,
			exec_count INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS placed_orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			client_id INTEGER NOT NULL,
			order_id INTEGER NOT NULL,
			account TEXT NOT NULL,
			symbol TEXT NOT NULL,
			sec_type TEXT NOT NULL,
			currency TEXT NOT NULL,
			exchange TEXT NOT NULL,
			primary_exchange TEXT NOT NULL,
			action TEXT NOT NULL,
			quantity REAL NOT NULL,
			order_type TEXT NOT NULL,
			tif TEXT NOT NULL,
			lmt_price TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_placed_orders_run ON placed_orders(run_id);`,
		`CREATE TABLE IF NOT EXISTS executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			perm_id INTEGER NOT NULL,
			exec_id TEXT NOT NULL,
			client_id INTEGER NOT NULL,
			order_id INTEGER NOT NULL,
			account TEXT NOT NULL,
			symbol TEXT NOT NULL,
			sec_type TEXT NOT NULL,
			side TEXT NOT NULL,
			shares REAL NOT NULL,
			price TEXT NOT NULL,
			executed_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_executions_run ON executions(run_id);`,
		`CREATE TABLE IF NOT EXISTS commissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			exec_id TEXT NOT NULL,
			commission TEXT NOT NULL,
			currency TEXT NOT NULL,
			realized_pnl TEXT NOT NULL,
			yield REAL NOT NULL,
			yield_redemption_date TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commissions_run ON commissions(run_id);`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: 初始化表结构失败: %w", err)
		}
	}
	return nil
}

// BeginRun 登记一次新的运行。
func (s *RunStore) BeginRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, final_state) VALUES (?, ?, ?)`,
		runID, startedAt.UTC().Format(time.RFC3339), "INIT",
	)
	if err != nil {
		return fmt.Errorf("store: 登记运行失败: %w", err)
	}
	return nil
}

// FinishRun 回写一次运行的终态。
func (s *RunStore) FinishRun(ctx context.Context, rec RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, final_state = ?, round1_count = ?, round2_count = ?, exec_count = ?, error = ? WHERE id = ?`,
		rec.FinishedAt.UTC().Format(time.RFC3339), rec.FinalState,
		rec.Round1Count, rec.Round2Count, rec.ExecCount, rec.Error, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("store: 回写运行终态失败: %w", err)
	}
	return nil
}

// SavePlacedOrders 写入某一轮的提交结果。
func (s *RunStore) SavePlacedOrders(ctx context.Context, runID string, round int, orders []order.PlacedOrder) error {
	for _, o := range orders {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO placed_orders (run_id, round, client_id, order_id, account, symbol, sec_type, currency, exchange, primary_exchange, action, quantity, order_type, tif, lmt_price)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, round, o.ClientID, o.OrderID, o.Account, o.Symbol, o.SecType,
			o.Currency, o.Exchange, o.PrimaryExchange, string(o.Action), o.Quantity,
			o.OrderType, o.TimeInForce, o.LimitPrice.String(),
		)
		if err != nil {
			return fmt.Errorf("store: 写入提交记录失败: %w", err)
		}
	}
	return nil
}

// SaveReconciled 写入过滤后的成交与佣金。
func (s *RunStore) SaveReconciled(ctx context.Context, runID string, executions []broker.Execution, commissions []broker.Commission) error {
	for _, e := range executions {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO executions (run_id, perm_id, exec_id, client_id, order_id, account, symbol, sec_type, side, shares, price, executed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, e.PermID, e.ExecID, e.ClientID, e.OrderID, e.Account,
			e.Symbol, e.SecType, e.Side, e.Shares, e.Price.String(),
			e.Time.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("store: 写入成交记录失败: %w", err)
		}
	}

	for _, c := range commissions {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO commissions (run_id, exec_id, commission, currency, realized_pnl, yield, yield_redemption_date)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, c.ExecID, c.Commission.String(), c.Currency,
			c.RealizedPnL.String(), c.Yield, c.YieldRedemptionDate,
		)
		if err != nil {
			return fmt.Errorf("store: 写入佣金记录失败: %w", err)
		}
	}

	return nil
}

// ListRuns 按开始时间倒序返回最近的运行记录。
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, ''), final_state, round1_count, round2_count, exec_count, COALESCE(error, '')
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: 查询运行记录失败: %w", err)
	}
	defer rows.Close()

	records := make([]RunRecord, 0, limit)
	for rows.Next() {
		var rec RunRecord
		var started, finished string
		if err := rows.Scan(&rec.ID, &started, &finished, &rec.FinalState,
			&rec.Round1Count, &rec.Round2Count, &rec.ExecCount, &rec.Error); err != nil {
			return nil, fmt.Errorf("store: 扫描运行记录失败: %w", err)
		}
		if rec.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			s.logger.Warn("运行开始时间解析失败", zap.String("run_id", rec.ID), zap.Error(err))
		}
		if finished != "" {
			if rec.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
				s.logger.Warn("运行结束时间解析失败", zap.String("run_id", rec.ID), zap.Error(err))
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 遍历运行记录失败: %w", err)
	}

	return records, nil
}

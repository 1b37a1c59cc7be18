package artifact

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"batch-trader/internal/broker"
	"batch-trader/internal/order"
)

// 每次运行的产物目录结构, 与各阶段的原始/过滤后表格输出一一对应。
const (
	folderPlacedOrders = "placed_orders"
	folderOpenOrders   = "open_orders"
	folderCallback     = "callback"
	folderAccount      = "account"

	fileTimestampLayout = "20060102_150405"
)

// Writer 把每个阶段的表格输出写为按时间戳命名的 CSV 文件。
type Writer struct {
	runDir string
	logger *zap.Logger
	now    func() time.Time
}

// NewWriter 在 root 下创建本次运行的产物目录。
func NewWriter(root, runID string, startedAt time.Time, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	runDir := filepath.Join(root, fmt.Sprintf("%s_%s", startedAt.Format(fileTimestampLayout), runID))
	for _, sub := range []string{folderPlacedOrders, folderOpenOrders, folderCallback, folderAccount} {
		if err := os.MkdirAll(filepath.Join(runDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("artifact: 创建产物目录失败: %w", err)
		}
	}

	return &Writer{runDir: runDir, logger: logger, now: time.Now}, nil
}

// RunDir 返回本次运行的产物根目录。
func (w *Writer) RunDir() string {
	return w.runDir
}

func (w *Writer) writeCSV(folder, name string, header []string, rows [][]string) error {
	path := filepath.Join(w.runDir, folder, fmt.Sprintf("%s_%s.csv", w.now().Format(fileTimestampLayout), name))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("artifact: 创建文件 %q 失败: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("artifact: 写表头失败: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("artifact: 写数据行失败: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("artifact: 刷新文件失败: %w", err)
	}

	w.logger.Debug("产物已写入", zap.String("path", path), zap.Int("rows", len(rows)))
	return nil
}

// WritePlacedOrders 导出一轮提交结果。
func (w *Writer) WritePlacedOrders(name string, orders []order.PlacedOrder) error {
	header := []string{"ClientId", "OrderId", "Account", "Symbol", "SecType", "Currency", "Exchange", "PrimaryExchange", "Action", "TotalQuantity", "OrderType", "Tif", "LmtPrice"}
	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, []string{
			fmt.Sprintf("%d", o.ClientID),
			fmt.Sprintf("%d", o.OrderID),
			o.Account, o.Symbol, o.SecType, o.Currency, o.Exchange, o.PrimaryExchange,
			string(o.Action),
			formatFloat(o.Quantity),
			o.OrderType, o.TimeInForce,
			o.LimitPrice.String(),
		})
	}
	return w.writeCSV(folderPlacedOrders, name, header, rows)
}

// WriteOpenOrders 导出一次在途委托快照。
func (w *Writer) WriteOpenOrders(name string, records []broker.OpenOrderRecord, statuses []broker.OpenOrderStatus) error {
	header := []string{"PermId", "ClientId", "OrderId", "Status", "Symbol", "SecType", "Action", "TotalQuantity", "OrderType", "LmtPrice", "Tif"}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.PermID),
			fmt.Sprintf("%d", r.ClientID),
			fmt.Sprintf("%d", r.OrderID),
			r.Status, r.Symbol, r.SecType,
			string(r.Action),
			formatFloat(r.Quantity),
			r.OrderType,
			r.LimitPrice.String(),
			r.TimeInForce,
		})
	}
	if err := w.writeCSV(folderOpenOrders, name+"_openOrder", header, rows); err != nil {
		return err
	}

	statusHeader := []string{"PermId", "ClientId", "OrderId", "Status", "Filled", "Remaining", "AvgFillPrice", "LastFillPrice"}
	statusRows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		statusRows = append(statusRows, []string{
			fmt.Sprintf("%d", st.PermID),
			fmt.Sprintf("%d", st.ClientID),
			fmt.Sprintf("%d", st.OrderID),
			st.Status,
			formatFloat(st.Filled),
			formatFloat(st.Remaining),
			st.AvgFillPrice.String(),
			st.LastFillPrice.String(),
		})
	}
	return w.writeCSV(folderOpenOrders, name+"_openOrderStatus", statusHeader, statusRows)
}

// WriteExecutions 导出成交回报。
func (w *Writer) WriteExecutions(name string, executions []broker.Execution) error {
	header := []string{"PermId", "ExecId", "ClientId", "OrderId", "Account", "Symbol", "SecType", "Side", "Shares", "Price", "Time"}
	rows := make([][]string, 0, len(executions))
	for _, e := range executions {
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.PermID),
			e.ExecID,
			fmt.Sprintf("%d", e.ClientID),
			fmt.Sprintf("%d", e.OrderID),
			e.Account, e.Symbol, e.SecType, e.Side,
			formatFloat(e.Shares),
			e.Price.String(),
			e.Time.UTC().Format(time.RFC3339),
		})
	}
	return w.writeCSV(folderCallback, name, header, rows)
}

// WriteCommissions 导出佣金回报。
func (w *Writer) WriteCommissions(name string, commissions []broker.Commission) error {
	header := []string{"ExecId", "Commission", "Currency", "RealizedPNL", "Yield", "YieldRedemptionDate"}
	rows := make([][]string, 0, len(commissions))
	for _, c := range commissions {
		rows = append(rows, []string{
			c.ExecID,
			c.Commission.String(),
			c.Currency,
			c.RealizedPnL.String(),
			formatFloat(c.Yield),
			c.YieldRedemptionDate,
		})
	}
	return w.writeCSV(folderCallback, name, header, rows)
}

// WriteAccountSummary 导出账户汇总。
func (w *Writer) WriteAccountSummary(name string, rows []broker.AccountSummaryRow) error {
	header := []string{"ReqId", "Account", "Tag", "Value", "Currency"}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			fmt.Sprintf("%d", r.ReqID),
			r.Account, r.Tag, r.Value, r.Currency,
		})
	}
	return w.writeCSV(folderAccount, name, header, out)
}

// WriteAccountUpdates 导出账户价值与持仓更新。
func (w *Writer) WriteAccountUpdates(name string, values []broker.AccountValueUpdate, portfolio []broker.PortfolioUpdate) error {
	valueHeader := []string{"Account", "Key", "Val", "Currency"}
	valueRows := make([][]string, 0, len(values))
	for _, v := range values {
		valueRows = append(valueRows, []string{v.Account, v.Key, v.Value, v.Currency})
	}
	if err := w.writeCSV(folderAccount, name+"_accountValue", valueHeader, valueRows); err != nil {
		return err
	}

	portfolioHeader := []string{"Account", "Symbol", "SecType", "Position", "MarketPrice", "MarketValue", "AverageCost", "UnrealizedPNL", "RealizedPNL"}
	portfolioRows := make([][]string, 0, len(portfolio))
	for _, p := range portfolio {
		portfolioRows = append(portfolioRows, []string{
			p.Account, p.Symbol, p.SecType,
			formatFloat(p.Position),
			p.MarketPrice.String(),
			p.MarketValue.String(),
			p.AverageCost.String(),
			p.UnrealizedPnL.String(),
			p.RealizedPnL.String(),
		})
	}
	return w.writeCSV(folderAccount, name+"_portfolio", portfolioHeader, portfolioRows)
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}

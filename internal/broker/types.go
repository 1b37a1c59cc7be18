package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"batch-trader/internal/order"
)

// Adapter 是核心流程消费的券商网关接口。
// 所有操作均为阻塞调用：每次调用内部完成一次完整的
// 连接 → 请求 → 等待终止信号 → 断开 的会话周期。
type Adapter interface {
	// SubmitOrders 提交一批委托，订单号由会话下发的起始编号顺序分配。
	// 空输入直接返回空结果，不建立会话。
	SubmitOrders(ctx context.Context, orders []order.OrderRequest) ([]order.PlacedOrder, error)
	// FetchOpenOrders 拉取全部在途委托及其状态快照。
	FetchOpenOrders(ctx context.Context) ([]OpenOrderRecord, []OpenOrderStatus, error)
	// FetchExecutionsAndCommissions 拉取成交与佣金回报。
	FetchExecutionsAndCommissions(ctx context.Context) ([]Execution, []Commission, error)
	// FetchAccountSummary 拉取账户汇总，仅供报表流程使用。
	FetchAccountSummary(ctx context.Context) ([]AccountSummaryRow, error)
	// FetchAccountUpdates 拉取账户价值与持仓更新，仅供报表流程使用。
	FetchAccountUpdates(ctx context.Context) ([]AccountValueUpdate, []PortfolioUpdate, error)
}

// OpenOrderRecord 是券商侧在途委托的瞬时快照，每次拉取都是全量替换。
type OpenOrderRecord struct {
	PermID      int64
	ClientID    int64
	OrderID     int64
	Status      string
	Symbol      string
	SecType     string
	Action      order.Action
	Quantity    float64
	OrderType   string
	LimitPrice  decimal.Decimal
	TimeInForce string
}

// OpenOrderStatus 是在途委托的成交进度快照。
type OpenOrderStatus struct {
	PermID        int64
	ClientID      int64
	OrderID       int64
	Status        string
	Filled        float64
	Remaining     float64
	AvgFillPrice  decimal.Decimal
	LastFillPrice decimal.Decimal
}

// Execution 是一笔成交回报。
// ExecID 唯一标识单笔成交；同一逻辑订单被拆分成交时各笔共享 PermID。
type Execution struct {
	PermID   int64
	ExecID   string
	ClientID int64
	OrderID  int64
	Account  string
	Symbol   string
	SecType  string
	Side     string
	Shares   float64
	Price    decimal.Decimal
	Time     time.Time // UTC
}

// Commission 是与成交一一对应的佣金回报，通过 ExecID 关联。
type Commission struct {
	ExecID              string
	Commission          decimal.Decimal
	Currency            string
	RealizedPnL         decimal.Decimal
	Yield               float64
	YieldRedemptionDate string
}

// AccountSummaryRow 是账户汇总的一行。
type AccountSummaryRow struct {
	ReqID    int64
	Account  string
	Tag      string
	Value    string
	Currency string
}

// AccountValueUpdate 是账户价值更新的一行。
type AccountValueUpdate struct {
	Account  string
	Key      string
	Value    string
	Currency string
}

// PortfolioUpdate 是持仓更新的一行。
type PortfolioUpdate struct {
	Account       string
	Symbol        string
	SecType       string
	Position      float64
	MarketPrice   decimal.Decimal
	MarketValue   decimal.Decimal
	AverageCost   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
}

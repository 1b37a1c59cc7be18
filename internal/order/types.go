package order

import "github.com/shopspring/decimal"

// Action 表示委托方向。
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// 时效常量：第一轮委托以开盘价成交，第二轮在常规交易时段内有效。
const (
	TifAtOpen = "OPG"
	TifDay    = "DAY"
)

// OrderRequest 描述一笔待提交的委托，创建后不再修改。
// TimeInForce 由编排器按所属轮次赋值，调用方无需填写。
type OrderRequest struct {
	AccountName string
	Symbol      string
	SecType     string
	Action      Action
	Quantity    float64
	OrderType   string
	LimitPrice  decimal.Decimal
	TimeInForce string
}

// InstrumentKey 标识一个标的，仅用于轮次划分。
type InstrumentKey struct {
	Symbol  string
	SecType string
}

// Key 返回委托对应的标的键。
func (o OrderRequest) Key() InstrumentKey {
	return InstrumentKey{Symbol: o.Symbol, SecType: o.SecType}
}

// PlacedOrder 是一次成功提交的结果：原始委托加上券商分配的订单号。
type PlacedOrder struct {
	ClientID        int64
	OrderID         int64
	Account         string
	Symbol          string
	SecType         string
	Currency        string
	Exchange        string
	PrimaryExchange string
	Action          Action
	Quantity        float64
	OrderType       string
	TimeInForce     string
	LimitPrice      decimal.Decimal
}

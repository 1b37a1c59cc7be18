package broker

import (
	"github.com/shopspring/decimal"
	jsoniter "github.com/json-iterator/go"
)

// 网关会话使用换行分隔的 JSON 消息，消息内容由 type 字段区分。
// 线格式完全由网关侧拥有，核心流程只消费 Adapter 接口。

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// 客户端请求类型。
const (
	typeStartAPI          = "startApi"
	typePlaceOrder        = "placeOrder"
	typeReqAllOpenOrders  = "reqAllOpenOrders"
	typeReqExecutions     = "reqExecutions"
	typeReqAccountSummary = "reqAccountSummary"
	typeReqAccountUpdates = "reqAccountUpdates"
)

// 网关回报类型。
const (
	typeNextValidID        = "nextValidId"
	typeOpenOrder          = "openOrder"
	typeOrderStatus        = "orderStatus"
	typeOpenOrderEnd       = "openOrderEnd"
	typeExecDetails        = "execDetails"
	typeCommissionReport   = "commissionReport"
	typeExecDetailsEnd     = "execDetailsEnd"
	typeAccountSummary     = "accountSummary"
	typeAccountSummaryEnd  = "accountSummaryEnd"
	typeUpdateAccountValue = "updateAccountValue"
	typeUpdatePortfolio    = "updatePortfolio"
	typeAccountDownloadEnd = "accountDownloadEnd"
	typeError              = "error"
)

// wireOrder 是随 placeOrder 请求发送的委托描述。
type wireOrder struct {
	Account         string          `json:"account"`
	Symbol          string          `json:"symbol"`
	SecType         string          `json:"secType"`
	Currency        string          `json:"currency"`
	Exchange        string          `json:"exchange"`
	PrimaryExchange string          `json:"primaryExchange"`
	Action          string          `json:"action"`
	TotalQuantity   float64         `json:"totalQuantity"`
	OrderType       string          `json:"orderType"`
	Tif             string          `json:"tif"`
	LmtPrice        decimal.Decimal `json:"lmtPrice"`
	OpenClose       string          `json:"openClose"`
}

// message 是会话双向复用的扁平消息体，未使用的字段省略。
type message struct {
	Type string `json:"type"`

	// 请求字段
	ClientID  int64      `json:"clientId,omitempty"`
	OrderID   int64      `json:"orderId,omitempty"`
	Order     *wireOrder `json:"order,omitempty"`
	ReqID     int64      `json:"reqId,omitempty"`
	Group     string     `json:"group,omitempty"`
	Tags      string     `json:"tags,omitempty"`
	Subscribe *bool      `json:"subscribe,omitempty"`

	// 在途委托回报
	PermID        int64           `json:"permId,omitempty"`
	Status        string          `json:"status,omitempty"`
	Symbol        string          `json:"symbol,omitempty"`
	SecType       string          `json:"secType,omitempty"`
	Action        string          `json:"action,omitempty"`
	TotalQuantity float64         `json:"totalQuantity,omitempty"`
	OrderType     string          `json:"orderType,omitempty"`
	LmtPrice      decimal.Decimal `json:"lmtPrice,omitempty"`
	Tif           string          `json:"tif,omitempty"`
	Filled        float64         `json:"filled,omitempty"`
	Remaining     float64         `json:"remaining,omitempty"`
	AvgFillPrice  decimal.Decimal `json:"avgFillPrice,omitempty"`
	LastFillPrice decimal.Decimal `json:"lastFillPrice,omitempty"`

	// 成交与佣金回报
	ExecID              string          `json:"execId,omitempty"`
	Account             string          `json:"account,omitempty"`
	Side                string          `json:"side,omitempty"`
	Shares              float64         `json:"shares,omitempty"`
	Price               decimal.Decimal `json:"price,omitempty"`
	Time                string          `json:"time,omitempty"`
	Commission          decimal.Decimal `json:"commission,omitempty"`
	Currency            string          `json:"currency,omitempty"`
	RealizedPnL         decimal.Decimal `json:"realizedPnl,omitempty"`
	Yield               float64         `json:"yield,omitempty"`
	YieldRedemptionDate string          `json:"yieldRedemptionDate,omitempty"`

	// 账户回报
	Tag           string          `json:"tag,omitempty"`
	Value         string          `json:"value,omitempty"`
	Key           string          `json:"key,omitempty"`
	Position      float64         `json:"position,omitempty"`
	MarketPrice   decimal.Decimal `json:"marketPrice,omitempty"`
	MarketValue   decimal.Decimal `json:"marketValue,omitempty"`
	AverageCost   decimal.Decimal `json:"averageCost,omitempty"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl,omitempty"`

	// 错误回报
	Code    int64  `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func encodeMessage(msg message) ([]byte, error) {
	data, err := wireJSON.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func decodeMessage(line []byte) (message, error) {
	var msg message
	err := wireJSON.Unmarshal(line, &msg)
	return msg, err
}

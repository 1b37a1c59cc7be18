package broker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"batch-trader/internal/order"
)

// 委托统一路由到的交易所与主交易所。
const (
	defaultCurrency        = "USD"
	defaultExchange        = "SMART"
	defaultPrimaryExchange = "ARCA"
)

// Config 描述网关连接参数。
type Config struct {
	Host            string
	Port            int
	ClientID        int64
	DisconnectDelay time.Duration
}

// Gateway 通过本地交易网关实现 Adapter。
//
// 每个操作都建立独立会话，顺序执行，不复用连接也不重试；
// 任何会话级错误直接向上传播。
type Gateway struct {
	cfg    Config
	logger *zap.Logger
}

var _ Adapter = (*Gateway)(nil)

// NewGateway 创建网关客户端。
func NewGateway(cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DisconnectDelay <= 0 {
		cfg.DisconnectDelay = 3 * time.Second
	}
	return &Gateway{cfg: cfg, logger: logger}
}

func (g *Gateway) addr() string {
	return fmt.Sprintf("%s:%d", g.cfg.Host, g.cfg.Port)
}

// ClientID 返回本会话归属的客户端编号。
func (g *Gateway) ClientID() int64 {
	return g.cfg.ClientID
}

func (g *Gateway) open(ctx context.Context) (*session, error) {
	return dialSession(ctx, g.addr(), g.cfg.ClientID, g.cfg.DisconnectDelay, g.logger)
}

// SubmitOrders 提交一批委托。订单号从会话下发的起始编号顺序分配，
// 发送完成后按固定延迟断开。空输入不建立会话。
func (g *Gateway) SubmitOrders(ctx context.Context, orders []order.OrderRequest) ([]order.PlacedOrder, error) {
	placed := make([]order.PlacedOrder, 0, len(orders))
	if len(orders) == 0 {
		return placed, nil
	}

	s, err := g.open(ctx)
	if err != nil {
		return nil, err
	}

	nextID, err := s.awaitNextValidID()
	if err != nil {
		_ = s.finish()
		return nil, err
	}

	for _, o := range orders {
		openClose := "O"
		if o.Action == order.ActionSell {
			openClose = "C"
		}
		msg := message{
			Type:    typePlaceOrder,
			OrderID: nextID,
			Order: &wireOrder{
				Account:         o.AccountName,
				Symbol:          o.Symbol,
				SecType:         o.SecType,
				Currency:        defaultCurrency,
				Exchange:        defaultExchange,
				PrimaryExchange: defaultPrimaryExchange,
				Action:          string(o.Action),
				TotalQuantity:   o.Quantity,
				OrderType:       o.OrderType,
				Tif:             o.TimeInForce,
				LmtPrice:        o.LimitPrice,
				OpenClose:       openClose,
			},
		}
		if err := s.send(msg); err != nil {
			s.close()
			_ = s.finish()
			return nil, err
		}

		placed = append(placed, order.PlacedOrder{
			ClientID:        g.cfg.ClientID,
			OrderID:         nextID,
			Account:         o.AccountName,
			Symbol:          o.Symbol,
			SecType:         o.SecType,
			Currency:        defaultCurrency,
			Exchange:        defaultExchange,
			PrimaryExchange: defaultPrimaryExchange,
			Action:          o.Action,
			Quantity:        o.Quantity,
			OrderType:       o.OrderType,
			TimeInForce:     o.TimeInForce,
			LimitPrice:      o.LimitPrice,
		})
		nextID++
	}

	// 全部发送完毕后延迟断开，期间继续消化网关回报
	s.scheduleDisconnect()
	for msg := range s.messages {
		if msg.Type == typeError {
			s.logVenueError(msg)
		}
	}

	if err := s.finish(); err != nil {
		return nil, err
	}
	return placed, nil
}

// FetchOpenOrders 拉取在途委托及状态快照。
func (g *Gateway) FetchOpenOrders(ctx context.Context) ([]OpenOrderRecord, []OpenOrderStatus, error) {
	s, err := g.open(ctx)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.awaitNextValidID(); err != nil {
		_ = s.finish()
		return nil, nil, err
	}
	if err := s.send(message{Type: typeReqAllOpenOrders}); err != nil {
		s.close()
		_ = s.finish()
		return nil, nil, err
	}

	records := make([]OpenOrderRecord, 0)
	statuses := make([]OpenOrderStatus, 0)
	done := false

	for msg := range s.messages {
		switch msg.Type {
		case typeOpenOrder:
			records = append(records, OpenOrderRecord{
				PermID:      msg.PermID,
				ClientID:    msg.ClientID,
				OrderID:     msg.OrderID,
				Status:      msg.Status,
				Symbol:      msg.Symbol,
				SecType:     msg.SecType,
				Action:      order.Action(msg.Action),
				Quantity:    msg.TotalQuantity,
				OrderType:   msg.OrderType,
				LimitPrice:  msg.LmtPrice,
				TimeInForce: msg.Tif,
			})
		case typeOrderStatus:
			statuses = append(statuses, OpenOrderStatus{
				PermID:        msg.PermID,
				ClientID:      msg.ClientID,
				OrderID:       msg.OrderID,
				Status:        msg.Status,
				Filled:        msg.Filled,
				Remaining:     msg.Remaining,
				AvgFillPrice:  msg.AvgFillPrice,
				LastFillPrice: msg.LastFillPrice,
			})
		case typeOpenOrderEnd:
			if !done {
				done = true
				s.scheduleDisconnect()
			}
		case typeError:
			s.logVenueError(msg)
		}
	}

	if err := s.finish(); err != nil {
		return nil, nil, err
	}
	if !done {
		return nil, nil, fmt.Errorf("%w: 未收到 openOrderEnd", ErrSessionClosed)
	}
	return records, statuses, nil
}

// FetchExecutionsAndCommissions 拉取成交与佣金回报。
func (g *Gateway) FetchExecutionsAndCommissions(ctx context.Context) ([]Execution, []Commission, error) {
	s, err := g.open(ctx)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.awaitNextValidID(); err != nil {
		_ = s.finish()
		return nil, nil, err
	}
	if err := s.send(message{Type: typeReqExecutions}); err != nil {
		s.close()
		_ = s.finish()
		return nil, nil, err
	}

	executions := make([]Execution, 0)
	commissions := make([]Commission, 0)
	done := false

	for msg := range s.messages {
		switch msg.Type {
		case typeExecDetails:
			ts, err := parseExecutionTime(msg.Time)
			if err != nil {
				s.logger.Warn("成交时间解析失败", zap.String("exec_id", msg.ExecID), zap.Error(err))
			}
			executions = append(executions, Execution{
				PermID:   msg.PermID,
				ExecID:   msg.ExecID,
				ClientID: msg.ClientID,
				OrderID:  msg.OrderID,
				Account:  msg.Account,
				Symbol:   msg.Symbol,
				SecType:  msg.SecType,
				Side:     msg.Side,
				Shares:   msg.Shares,
				Price:    msg.Price,
				Time:     ts,
			})
		case typeCommissionReport:
			commissions = append(commissions, Commission{
				ExecID:              msg.ExecID,
				Commission:          msg.Commission,
				Currency:            msg.Currency,
				RealizedPnL:         msg.RealizedPnL,
				Yield:               msg.Yield,
				YieldRedemptionDate: msg.YieldRedemptionDate,
			})
		case typeExecDetailsEnd:
			if !done {
				done = true
				s.scheduleDisconnect()
			}
		case typeError:
			s.logVenueError(msg)
		}
	}

	if err := s.finish(); err != nil {
		return nil, nil, err
	}
	if !done {
		return nil, nil, fmt.Errorf("%w: 未收到 execDetailsEnd", ErrSessionClosed)
	}
	return executions, commissions, nil
}

// FetchAccountSummary 拉取账户汇总。
func (g *Gateway) FetchAccountSummary(ctx context.Context) ([]AccountSummaryRow, error) {
	s, err := g.open(ctx)
	if err != nil {
		return nil, err
	}

	reqID, err := s.awaitNextValidID()
	if err != nil {
		_ = s.finish()
		return nil, err
	}
	if err := s.send(message{Type: typeReqAccountSummary, ReqID: reqID, Group: "All", Tags: "All"}); err != nil {
		s.close()
		_ = s.finish()
		return nil, err
	}

	rows := make([]AccountSummaryRow, 0)
	done := false

	for msg := range s.messages {
		switch msg.Type {
		case typeAccountSummary:
			rows = append(rows, AccountSummaryRow{
				ReqID:    msg.ReqID,
				Account:  msg.Account,
				Tag:      msg.Tag,
				Value:    msg.Value,
				Currency: msg.Currency,
			})
		case typeAccountSummaryEnd:
			if !done {
				done = true
				s.scheduleDisconnect()
			}
		case typeError:
			s.logVenueError(msg)
		}
	}

	if err := s.finish(); err != nil {
		return nil, err
	}
	if !done {
		return nil, fmt.Errorf("%w: 未收到 accountSummaryEnd", ErrSessionClosed)
	}
	return rows, nil
}

// FetchAccountUpdates 订阅账户更新, 首轮下载完成后退订并断开。
func (g *Gateway) FetchAccountUpdates(ctx context.Context) ([]AccountValueUpdate, []PortfolioUpdate, error) {
	s, err := g.open(ctx)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.awaitNextValidID(); err != nil {
		_ = s.finish()
		return nil, nil, err
	}
	subscribe := true
	if err := s.send(message{Type: typeReqAccountUpdates, Subscribe: &subscribe}); err != nil {
		s.close()
		_ = s.finish()
		return nil, nil, err
	}

	values := make([]AccountValueUpdate, 0)
	portfolio := make([]PortfolioUpdate, 0)
	done := false

	for msg := range s.messages {
		switch msg.Type {
		case typeUpdateAccountValue:
			values = append(values, AccountValueUpdate{
				Account:  msg.Account,
				Key:      msg.Key,
				Value:    msg.Value,
				Currency: msg.Currency,
			})
		case typeUpdatePortfolio:
			portfolio = append(portfolio, PortfolioUpdate{
				Account:       msg.Account,
				Symbol:        msg.Symbol,
				SecType:       msg.SecType,
				Position:      msg.Position,
				MarketPrice:   msg.MarketPrice,
				MarketValue:   msg.MarketValue,
				AverageCost:   msg.AverageCost,
				UnrealizedPnL: msg.UnrealizedPnL,
				RealizedPnL:   msg.RealizedPnL,
			})
		case typeAccountDownloadEnd:
			if !done {
				done = true
				unsubscribe := false
				if err := s.send(message{Type: typeReqAccountUpdates, Subscribe: &unsubscribe}); err != nil {
					s.logger.Warn("退订账户更新失败", zap.Error(err))
				}
				s.scheduleDisconnect()
			}
		case typeError:
			s.logVenueError(msg)
		}
	}

	if err := s.finish(); err != nil {
		return nil, nil, err
	}
	if !done {
		return nil, nil, fmt.Errorf("%w: 未收到 accountDownloadEnd", ErrSessionClosed)
	}
	return values, portfolio, nil
}

// parseExecutionTime 解析网关回报中的成交时间，统一折算为 UTC。
func parseExecutionTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "20060102 15:04:05", "20060102-15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("broker: 无法解析成交时间 %q", s)
}

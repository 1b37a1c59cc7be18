package broker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"batch-trader/internal/order"
)

// testVenue 在回环地址上回放脚本化的网关回报。
type testVenue struct {
	listener net.Listener
	handler  func(send func(message), closeConn func(), req message)

	mu       sync.Mutex
	requests []message

	wg sync.WaitGroup
}

func newTestVenue(t *testing.T, handler func(send func(message), closeConn func(), req message)) *testVenue {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("监听回环地址失败: %v", err)
	}
	v := &testVenue{listener: ln, handler: handler}
	v.wg.Add(1)
	go v.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		v.wg.Wait()
	})
	return v
}

func (v *testVenue) serve() {
	defer v.wg.Done()
	for {
		conn, err := v.listener.Accept()
		if err != nil {
			return
		}
		v.wg.Add(1)
		go func() {
			defer v.wg.Done()
			defer conn.Close()

			send := func(msg message) {
				data, err := encodeMessage(msg)
				if err != nil {
					return
				}
				_, _ = conn.Write(data)
			}
			closeConn := func() {
				_ = conn.Close()
			}

			scanner := bufio.NewScanner(conn)
			for scanner.Scan() {
				req, err := decodeMessage(scanner.Bytes())
				if err != nil {
					continue
				}
				v.mu.Lock()
				v.requests = append(v.requests, req)
				v.mu.Unlock()
				v.handler(send, closeConn, req)
			}
		}()
	}
}

func (v *testVenue) recorded() []message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]message, len(v.requests))
	copy(out, v.requests)
	return out
}

func (v *testVenue) config() Config {
	addr := v.listener.Addr().(*net.TCPAddr)
	return Config{
		Host:            "127.0.0.1",
		Port:            addr.Port,
		ClientID:        7,
		DisconnectDelay: 20 * time.Millisecond,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("等待条件超时")
}

func TestGatewaySubmitOrders(t *testing.T) {
	venue := newTestVenue(t, func(send func(message), _ func(), req message) {
		if req.Type == typeStartAPI {
			send(message{Type: typeNextValidID, OrderID: 5})
		}
	})
	gw := NewGateway(venue.config(), zap.NewNop())

	orders := []order.OrderRequest{
		{AccountName: "U100", Symbol: "AAPL", SecType: "STK", Action: order.ActionBuy, Quantity: 100, OrderType: "LIMIT", LimitPrice: decimal.NewFromFloat(187.5), TimeInForce: order.TifAtOpen},
		{AccountName: "U100", Symbol: "MSFT", SecType: "STK", Action: order.ActionSell, Quantity: 50, OrderType: "LIMIT", LimitPrice: decimal.NewFromFloat(410), TimeInForce: order.TifDay},
	}

	placed, err := gw.SubmitOrders(context.Background(), orders)
	if err != nil {
		t.Fatalf("提交失败: %v", err)
	}
	if len(placed) != 2 {
		t.Fatalf("提交结果数量错误: %d", len(placed))
	}
	if placed[0].OrderID != 5 || placed[1].OrderID != 6 {
		t.Errorf("订单号分配错误: %d, %d", placed[0].OrderID, placed[1].OrderID)
	}
	if placed[0].ClientID != 7 {
		t.Errorf("clientId 错误: %d", placed[0].ClientID)
	}
	if placed[0].Exchange != defaultExchange || placed[0].Currency != defaultCurrency {
		t.Errorf("路由字段错误: %+v", placed[0])
	}

	waitFor(t, func() bool { return len(venue.recorded()) == 3 })
	reqs := venue.recorded()
	if reqs[0].Type != typeStartAPI || reqs[0].ClientID != 7 {
		t.Errorf("握手请求错误: %+v", reqs[0])
	}
	if reqs[1].Order == nil || reqs[1].Order.OpenClose != "O" || reqs[1].Order.Tif != order.TifAtOpen {
		t.Errorf("买单请求错误: %+v", reqs[1].Order)
	}
	if reqs[2].Order == nil || reqs[2].Order.OpenClose != "C" || reqs[2].Order.Tif != order.TifDay {
		t.Errorf("卖单请求错误: %+v", reqs[2].Order)
	}
}

func TestGatewaySubmitOrdersEmptyBatch(t *testing.T) {
	venue := newTestVenue(t, func(send func(message), _ func(), req message) {
		t.Errorf("空批次不应建立会话: %+v", req)
	})
	gw := NewGateway(venue.config(), zap.NewNop())

	placed, err := gw.SubmitOrders(context.Background(), nil)
	if err != nil {
		t.Fatalf("空批次提交失败: %v", err)
	}
	if len(placed) != 0 {
		t.Errorf("空批次提交结果应为空: %d", len(placed))
	}
}

func TestGatewayFetchOpenOrders(t *testing.T) {
	venue := newTestVenue(t, func(send func(message), _ func(), req message) {
		switch req.Type {
		case typeStartAPI:
			send(message{Type: typeNextValidID, OrderID: 1})
		case typeReqAllOpenOrders:
			send(message{
				Type: typeOpenOrder, PermID: 11, ClientID: 7, OrderID: 5,
				Status: "Submitted", Symbol: "AAPL", SecType: "STK", Action: "BUY",
				TotalQuantity: 100, OrderType: "LIMIT",
				LmtPrice: decimal.NewFromFloat(187.5), Tif: order.TifAtOpen,
			})
			send(message{
				Type: typeOrderStatus, PermID: 11, ClientID: 7, OrderID: 5,
				Status: "Submitted", Filled: 40, Remaining: 60,
				AvgFillPrice: decimal.NewFromFloat(187.4),
			})
			send(message{Type: typeOpenOrderEnd})
		}
	})
	gw := NewGateway(venue.config(), zap.NewNop())

	records, statuses, err := gw.FetchOpenOrders(context.Background())
	if err != nil {
		t.Fatalf("拉取在途委托失败: %v", err)
	}
	if len(records) != 1 || len(statuses) != 1 {
		t.Fatalf("回报数量错误: records=%d statuses=%d", len(records), len(statuses))
	}
	rec := records[0]
	if rec.PermID != 11 || rec.OrderID != 5 || rec.Symbol != "AAPL" || rec.Action != order.ActionBuy {
		t.Errorf("在途委托字段错误: %+v", rec)
	}
	if statuses[0].Remaining != 60 {
		t.Errorf("状态字段错误: %+v", statuses[0])
	}
}

func TestGatewayFetchExecutionsAndCommissions(t *testing.T) {
	venue := newTestVenue(t, func(send func(message), _ func(), req message) {
		switch req.Type {
		case typeStartAPI:
			send(message{Type: typeNextValidID, OrderID: 1})
		case typeReqExecutions:
			send(message{
				Type: typeExecDetails, ExecID: "e1", ClientID: 7, OrderID: 5,
				Account: "U100", Symbol: "AAPL", SecType: "STK", Side: "SLD",
				Shares: 100, Price: decimal.NewFromFloat(187.5),
				Time: "20240315 18:00:00",
			})
			send(message{
				Type: typeCommissionReport, ExecID: "e1",
				Commission: decimal.NewFromFloat(1.1), Currency: "USD",
			})
			send(message{Type: typeExecDetailsEnd})
		}
	})
	gw := NewGateway(venue.config(), zap.NewNop())

	executions, commissions, err := gw.FetchExecutionsAndCommissions(context.Background())
	if err != nil {
		t.Fatalf("拉取成交回报失败: %v", err)
	}
	if len(executions) != 1 || len(commissions) != 1 {
		t.Fatalf("回报数量错误: executions=%d commissions=%d", len(executions), len(commissions))
	}
	exec := executions[0]
	if exec.ExecID != "e1" || exec.ClientID != 7 || exec.OrderID != 5 {
		t.Errorf("成交字段错误: %+v", exec)
	}
	want := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)
	if !exec.Time.Equal(want) {
		t.Errorf("成交时间解析错误: got %v, want %v", exec.Time, want)
	}
	if commissions[0].ExecID != "e1" || !commissions[0].Commission.Equal(decimal.NewFromFloat(1.1)) {
		t.Errorf("佣金字段错误: %+v", commissions[0])
	}
}

func TestGatewayMissingTerminalMessage(t *testing.T) {
	venue := newTestVenue(t, func(send func(message), closeConn func(), req message) {
		switch req.Type {
		case typeStartAPI:
			send(message{Type: typeNextValidID, OrderID: 1})
		case typeReqExecutions:
			send(message{
				Type: typeExecDetails, ExecID: "e1", ClientID: 7, OrderID: 5,
				Side: "SLD", Shares: 100, Price: decimal.NewFromFloat(187.5),
			})
			closeConn()
		}
	})
	gw := NewGateway(venue.config(), zap.NewNop())

	_, _, err := gw.FetchExecutionsAndCommissions(context.Background())
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("期望会话中断错误, got %v", err)
	}
}

func TestSessionFinishUnblocksFloodedReader(t *testing.T) {
	flood := sessionChannelDepth + 100
	venue := newTestVenue(t, func(send func(message), _ func(), req message) {
		if req.Type == typeStartAPI {
			send(message{Type: typeNextValidID, OrderID: 1})
			for i := 0; i < flood; i++ {
				send(message{Type: typeOrderStatus, OrderID: int64(i + 1), Status: "Submitted"})
			}
		}
	})
	cfg := venue.config()

	s, err := dialSession(context.Background(), fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), cfg.ClientID, cfg.DisconnectDelay, zap.NewNop())
	if err != nil {
		t.Fatalf("建立会话失败: %v", err)
	}

	// 等读协程填满通道并阻塞在下一条写入上
	waitFor(t, func() bool { return len(s.messages) == sessionChannelDepth })

	// 前台不排空直接关闭，finish 必须仍能让读协程退出并返回
	s.close()
	done := make(chan error, 1)
	go func() { done <- s.finish() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("finish 返回错误: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("finish 在通道积压时未返回")
	}
}

func TestGatewayFetchAccountSummary(t *testing.T) {
	venue := newTestVenue(t, func(send func(message), _ func(), req message) {
		switch req.Type {
		case typeStartAPI:
			send(message{Type: typeNextValidID, OrderID: 9})
		case typeReqAccountSummary:
			send(message{Type: typeAccountSummary, ReqID: req.ReqID, Account: "U100", Tag: "NetLiquidation", Value: "250000.00", Currency: "USD"})
			send(message{Type: typeAccountSummaryEnd, ReqID: req.ReqID})
		}
	})
	gw := NewGateway(venue.config(), zap.NewNop())

	rows, err := gw.FetchAccountSummary(context.Background())
	if err != nil {
		t.Fatalf("拉取账户摘要失败: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("摘要行数错误: %d", len(rows))
	}
	if rows[0].Tag != "NetLiquidation" || rows[0].Value != "250000.00" {
		t.Errorf("摘要字段错误: %+v", rows[0])
	}
}

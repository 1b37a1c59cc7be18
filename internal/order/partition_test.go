package order

import (
	"testing"

	"github.com/shopspring/decimal"
)

func makeOrder(action Action, symbol string, qty float64) OrderRequest {
	return OrderRequest{
		AccountName: "U100",
		Symbol:      symbol,
		SecType:     "STK",
		Action:      action,
		Quantity:    qty,
		OrderType:   "LIMIT",
		LimitPrice:  decimal.NewFromInt(100),
	}
}

func TestPartition_CrossingPairSplitsRounds(t *testing.T) {
	input := []OrderRequest{
		makeOrder(ActionSell, "AAPL", 100),
		makeOrder(ActionBuy, "AAPL", 50),
		makeOrder(ActionBuy, "MSFT", 20),
	}

	round1, round2 := Partition(input)

	if len(round1) != 2 {
		t.Fatalf("expected 2 orders in round1, got %d", len(round1))
	}
	if round1[0].Symbol != "AAPL" || round1[0].Action != ActionSell {
		t.Errorf("round1[0] should be SELL AAPL, got %s %s", round1[0].Action, round1[0].Symbol)
	}
	if round1[1].Symbol != "MSFT" || round1[1].Action != ActionBuy {
		t.Errorf("round1[1] should be BUY MSFT, got %s %s", round1[1].Action, round1[1].Symbol)
	}
	if len(round2) != 1 {
		t.Fatalf("expected 1 order in round2, got %d", len(round2))
	}
	if round2[0].Symbol != "AAPL" || round2[0].Action != ActionBuy || round2[0].Quantity != 50 {
		t.Errorf("round2[0] should be BUY AAPL 50, got %+v", round2[0])
	}
}

func TestPartition_OnlyBuysPassThrough(t *testing.T) {
	input := []OrderRequest{
		makeOrder(ActionBuy, "AAPL", 10),
		makeOrder(ActionBuy, "MSFT", 5),
	}

	round1, round2 := Partition(input)

	if len(round1) != len(input) {
		t.Fatalf("expected round1 to equal input, got %d orders", len(round1))
	}
	for i := range input {
		if round1[i] != input[i] {
			t.Errorf("round1[%d] mismatch: got %+v want %+v", i, round1[i], input[i])
		}
	}
	if len(round2) != 0 {
		t.Errorf("expected empty round2, got %d orders", len(round2))
	}
}

func TestPartition_EmptyInput(t *testing.T) {
	round1, round2 := Partition(nil)
	if len(round1) != 0 || len(round2) != 0 {
		t.Fatalf("expected both rounds empty, got %d and %d", len(round1), len(round2))
	}
}

func TestPartition_SecTypeDistinguishesInstruments(t *testing.T) {
	// 同代码不同类型的标的不构成交叉对
	input := []OrderRequest{
		{Symbol: "AAPL", SecType: "OPT", Action: ActionSell, Quantity: 1},
		{Symbol: "AAPL", SecType: "STK", Action: ActionBuy, Quantity: 10},
	}

	round1, round2 := Partition(input)

	if len(round1) != 2 || len(round2) != 0 {
		t.Fatalf("expected no crossing across sec types, got round1=%d round2=%d", len(round1), len(round2))
	}
}

func TestPartition_CompletenessAndDisjointness(t *testing.T) {
	input := []OrderRequest{
		makeOrder(ActionSell, "AAPL", 100),
		makeOrder(ActionBuy, "AAPL", 50),
		makeOrder(ActionSell, "TSLA", 30),
		makeOrder(ActionBuy, "MSFT", 20),
		makeOrder(ActionBuy, "TSLA", 30),
		makeOrder(ActionSell, "NVDA", 5),
	}

	round1, round2 := Partition(input)

	if len(round1)+len(round2) != len(input) {
		t.Fatalf("union size mismatch: %d + %d != %d", len(round1), len(round2), len(input))
	}

	counts := make(map[OrderRequest]int)
	for _, o := range input {
		counts[o]++
	}
	for _, o := range append(append([]OrderRequest{}, round1...), round2...) {
		counts[o]--
	}
	for o, n := range counts {
		if n != 0 {
			t.Errorf("multiset mismatch for %+v: residual %d", o, n)
		}
	}

	// 交叉不变量：有交叉对的标的，卖单全部在第一轮，买单全部在第二轮
	for _, o := range round1 {
		if o.Action == ActionBuy && (o.Symbol == "AAPL" || o.Symbol == "TSLA") {
			t.Errorf("crossing buy %s leaked into round1", o.Symbol)
		}
	}
	for _, o := range round2 {
		if o.Action != ActionBuy {
			t.Errorf("non-buy order in round2: %+v", o)
		}
	}
}

func TestAssignTimeInForce(t *testing.T) {
	input := []OrderRequest{makeOrder(ActionBuy, "AAPL", 10)}

	out := AssignTimeInForce(input, TifAtOpen)

	if out[0].TimeInForce != TifAtOpen {
		t.Errorf("expected tif %s, got %s", TifAtOpen, out[0].TimeInForce)
	}
	if input[0].TimeInForce != "" {
		t.Errorf("input must stay immutable, got tif %q", input[0].TimeInForce)
	}
}

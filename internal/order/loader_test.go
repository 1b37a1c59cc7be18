package order

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

const validHeader = "AccountName,Symbol,SecType,Action,TotalQuantity,OrderType,LmtPrice\n"

func writeBatchFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeBatchFile(t, validHeader+
		"U100,aapl,stk,sell,100,limit,187.5\n"+
		"U100,MSFT,STK,BUY,75,LIMIT,410\n")

	orders, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("读取批次失败: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("委托数量错误: %d", len(orders))
	}

	first := orders[0]
	if first.Symbol != "AAPL" || first.SecType != "STK" || first.Action != ActionSell || first.OrderType != "LIMIT" {
		t.Errorf("字段未归一化: %+v", first)
	}
	if first.Quantity != 100 {
		t.Errorf("数量解析错误: %v", first.Quantity)
	}
	if !first.LimitPrice.Equal(decimal.NewFromFloat(187.5)) {
		t.Errorf("限价解析错误: %s", first.LimitPrice)
	}
}

func TestLoadCSVRejectsBadHeader(t *testing.T) {
	path := writeBatchFile(t, "Account,Symbol,SecType,Action,TotalQuantity,OrderType,LmtPrice\n"+
		"U100,AAPL,STK,BUY,100,LIMIT,187.5\n")
	if _, err := LoadCSV(path); err == nil {
		t.Fatal("错误表头应当被拒绝")
	}
}

func TestLoadCSVRejectsMalformedRows(t *testing.T) {
	cases := []struct {
		name string
		row  string
	}{
		{"未知方向", "U100,AAPL,STK,HOLD,100,LIMIT,187.5"},
		{"数量非法", "U100,AAPL,STK,BUY,abc,LIMIT,187.5"},
		{"数量非正", "U100,AAPL,STK,BUY,0,LIMIT,187.5"},
		{"限价非法", "U100,AAPL,STK,BUY,100,LIMIT,x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeBatchFile(t, validHeader+tc.row+"\n")
			if _, err := LoadCSV(path); err == nil {
				t.Fatal("非法行应当被拒绝")
			}
		})
	}
}

func TestLoadCSVEmptyFile(t *testing.T) {
	path := writeBatchFile(t, "")
	if _, err := LoadCSV(path); err == nil {
		t.Fatal("空文件应当被拒绝")
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("缺失文件应当被拒绝")
	}
}

package order

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// 输入批次文件的表头，顺序与原始委托单一致。
var csvHeader = []string{"AccountName", "Symbol", "SecType", "Action", "TotalQuantity", "OrderType", "LmtPrice"}

// LoadCSV 从 CSV 文件读取一批委托。
// 文件首行必须为表头，字段缺失或非法视为输入错误。
func LoadCSV(path string) ([]OrderRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开委托文件失败: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析委托文件失败: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("委托文件 %q 为空", path)
	}

	if err := checkHeader(rows[0]); err != nil {
		return nil, err
	}

	orders := make([]OrderRequest, 0, len(rows)-1)
	for i, row := range rows[1:] {
		o, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行委托非法: %w", i+2, err)
		}
		orders = append(orders, o)
	}

	return orders, nil
}

func checkHeader(row []string) error {
	if len(row) != len(csvHeader) {
		return fmt.Errorf("表头字段数不符: 期望 %d 实际 %d", len(csvHeader), len(row))
	}
	for i, name := range csvHeader {
		if !strings.EqualFold(strings.TrimSpace(row[i]), name) {
			return fmt.Errorf("表头第 %d 列应为 %s, 实际为 %s", i+1, name, row[i])
		}
	}
	return nil
}

func parseRow(row []string) (OrderRequest, error) {
	if len(row) != len(csvHeader) {
		return OrderRequest{}, fmt.Errorf("字段数不符: 期望 %d 实际 %d", len(csvHeader), len(row))
	}

	action := Action(strings.ToUpper(strings.TrimSpace(row[3])))
	if action != ActionBuy && action != ActionSell {
		return OrderRequest{}, fmt.Errorf("未知的委托方向 %q", row[3])
	}

	qty, err := strconv.ParseFloat(strings.TrimSpace(row[4]), 64)
	if err != nil {
		return OrderRequest{}, fmt.Errorf("数量解析失败: %w", err)
	}
	if qty <= 0 {
		return OrderRequest{}, fmt.Errorf("数量必须为正: %v", qty)
	}

	price, err := decimal.NewFromString(strings.TrimSpace(row[6]))
	if err != nil {
		return OrderRequest{}, fmt.Errorf("限价解析失败: %w", err)
	}

	return OrderRequest{
		AccountName: strings.TrimSpace(row[0]),
		Symbol:      strings.ToUpper(strings.TrimSpace(row[1])),
		SecType:     strings.ToUpper(strings.TrimSpace(row[2])),
		Action:      action,
		Quantity:    qty,
		OrderType:   strings.ToUpper(strings.TrimSpace(row[5])),
		LimitPrice:  price,
	}, nil
}

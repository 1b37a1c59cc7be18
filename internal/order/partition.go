package order

// Partition 将一批委托划分为两个先后提交的轮次。
//
// 同一账户组不允许在同一标的上同时持有买卖双向的在途委托，
// 因此同批次内同一标的既买又卖（交叉对）时必须先卖后买：
// 第一轮包含全部卖单以及未交叉的买单，第二轮包含交叉的买单。
// 若批次中只有买单或只有卖单，则不存在交叉，第一轮即为全部输入。
//
// 纯函数：轮次内保持输入顺序，两轮不相交且并集等于输入。
func Partition(orders []OrderRequest) (round1, round2 []OrderRequest) {
	round1 = make([]OrderRequest, 0, len(orders))
	round2 = make([]OrderRequest, 0)

	if len(orders) == 0 {
		return round1, round2
	}

	sellKeys := make(map[InstrumentKey]struct{})
	hasBuy := false
	for _, o := range orders {
		switch o.Action {
		case ActionSell:
			sellKeys[o.Key()] = struct{}{}
		case ActionBuy:
			hasBuy = true
		}
	}

	if !hasBuy || len(sellKeys) == 0 {
		round1 = append(round1, orders...)
		return round1, round2
	}

	for _, o := range orders {
		if o.Action == ActionBuy {
			if _, crossing := sellKeys[o.Key()]; crossing {
				round2 = append(round2, o)
				continue
			}
		}
		round1 = append(round1, o)
	}

	return round1, round2
}

// AssignTimeInForce 为一轮委托统一赋予时效，返回新的切片。
func AssignTimeInForce(orders []OrderRequest, tif string) []OrderRequest {
	out := make([]OrderRequest, len(orders))
	for i, o := range orders {
		o.TimeInForce = tif
		out[i] = o
	}
	return out
}

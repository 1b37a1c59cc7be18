package reconcile

import (
	"errors"
	"sort"
	"time"

	"batch-trader/internal/broker"
)

// ErrEmptyReconciliationSet 表示对空的对账结果请求了最新交易日。
var ErrEmptyReconciliationSet = errors.New("reconcile: empty reconciliation set")

// 桶键使用 YYYY-MM-DD, 字典序即日期序。
const dateLayout = "2006-01-02"

// DateBucket 是一个交易日内配对后的成交与佣金。
type DateBucket struct {
	Executions  []broker.Execution
	Commissions []broker.Commission
}

// Owner 限定对账归属的客户端。Filter 为 false 时不做归属过滤。
type Owner struct {
	ClientID int64
	Filter   bool
}

// DedupExecutionsLastWins 按 ExecID 去重, 保留最后一条记录。
// 部分成交的修正回报会携带相同的 ExecID, 以最后到达者为准。
// 输出顺序为各 ExecID 最后一次出现的顺序; 对已去重数据再调用结果不变。
func DedupExecutionsLastWins(executions []broker.Execution) []broker.Execution {
	lastIndex := make(map[string]int, len(executions))
	for i, e := range executions {
		lastIndex[e.ExecID] = i
	}
	out := make([]broker.Execution, 0, len(lastIndex))
	for i, e := range executions {
		if lastIndex[e.ExecID] == i {
			out = append(out, e)
		}
	}
	return out
}

// DedupCommissionsLastWins 与 DedupExecutionsLastWins 策略一致。
func DedupCommissionsLastWins(commissions []broker.Commission) []broker.Commission {
	lastIndex := make(map[string]int, len(commissions))
	for i, c := range commissions {
		lastIndex[c.ExecID] = i
	}
	out := make([]broker.Commission, 0, len(lastIndex))
	for i, c := range commissions {
		if lastIndex[c.ExecID] == i {
			out = append(out, c)
		}
	}
	return out
}

// GroupByTradingDate 按交易日分桶成交与佣金。
//
// 先以 ExecID 内连接两侧 (任一侧缺失配对的行被丢弃, 这是刻意的过滤而非错误),
// 再把成交的 UTC 时间折算到报表时区 loc 取日历日期分桶。
// owner.Filter 为 true 时, 各桶仅保留归属 owner.ClientID 的行。
func GroupByTradingDate(executions []broker.Execution, commissions []broker.Commission, loc *time.Location, owner Owner) map[string]DateBucket {
	if loc == nil {
		loc = time.UTC
	}

	commissionByExecID := make(map[string]broker.Commission, len(commissions))
	for _, c := range commissions {
		commissionByExecID[c.ExecID] = c
	}

	buckets := make(map[string]DateBucket)
	for _, e := range executions {
		c, ok := commissionByExecID[e.ExecID]
		if !ok {
			continue
		}
		if owner.Filter && e.ClientID != owner.ClientID {
			continue
		}

		date := e.Time.In(loc).Format(dateLayout)
		bucket := buckets[date]
		bucket.Executions = append(bucket.Executions, e)
		bucket.Commissions = append(bucket.Commissions, c)
		buckets[date] = bucket
	}

	return buckets
}

// LatestDate 返回最大日期键对应的桶; 结果集为空时返回 ErrEmptyReconciliationSet。
func LatestDate(buckets map[string]DateBucket) (DateBucket, string, error) {
	if len(buckets) == 0 {
		return DateBucket{}, "", ErrEmptyReconciliationSet
	}

	dates := make([]string, 0, len(buckets))
	for date := range buckets {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	latest := dates[len(dates)-1]
	return buckets[latest], latest, nil
}

// FilterByOwnerAndOrderIDs 把对账范围收窄到本次运行:
// 成交仅保留归属 clientID 且订单号属于 orderIDs 的行,
// 佣金随后按过滤后成交的 ExecID 交集保留, 无配对成交的佣金行被丢弃。
func FilterByOwnerAndOrderIDs(executions []broker.Execution, commissions []broker.Commission, clientID int64, orderIDs []int64) ([]broker.Execution, []broker.Commission) {
	validOrders := make(map[int64]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		validOrders[id] = struct{}{}
	}

	filteredExecs := make([]broker.Execution, 0, len(executions))
	validExecIDs := make(map[string]struct{})
	for _, e := range executions {
		if e.ClientID != clientID {
			continue
		}
		if _, ok := validOrders[e.OrderID]; !ok {
			continue
		}
		filteredExecs = append(filteredExecs, e)
		validExecIDs[e.ExecID] = struct{}{}
	}

	filteredComms := make([]broker.Commission, 0, len(filteredExecs))
	for _, c := range commissions {
		if _, ok := validExecIDs[c.ExecID]; ok {
			filteredComms = append(filteredComms, c)
		}
	}

	return filteredExecs, filteredComms
}

package app

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ordersSubmitted 按轮次统计已提交的委托数量。
var ordersSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "batch_trader",
		Subsystem: "orders",
		Name:      "submitted_total",
		Help:      "Total number of orders submitted, by round",
	},
	[]string{"round"},
)

// pollIterations 统计在途委托轮询次数。
var pollIterations = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "batch_trader",
		Subsystem: "poller",
		Name:      "iterations_total",
		Help:      "Total number of open-order poll iterations",
	},
)

// pendingOpenOrders 记录最近一次轮询观察到的在途委托数量。
var pendingOpenOrders = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "batch_trader",
		Subsystem: "poller",
		Name:      "pending_open_orders",
		Help:      "Open orders observed by the most recent poll",
	},
)

// runsTotal 按终态统计运行次数。
var runsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "batch_trader",
		Subsystem: "runs",
		Name:      "total",
		Help:      "Total number of runs, by final state",
	},
	[]string{"state"},
)

func recordRoundSubmitted(round, count int) {
	ordersSubmitted.WithLabelValues(strconv.Itoa(round)).Add(float64(count))
}

func recordPoll(pending int) {
	pollIterations.Inc()
	pendingOpenOrders.Set(float64(pending))
}

func recordRunOutcome(state string) {
	runsTotal.WithLabelValues(state).Inc()
}

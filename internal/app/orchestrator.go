package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"batch-trader/internal/broker"
	"batch-trader/internal/config"
	"batch-trader/internal/gate"
	"batch-trader/internal/order"
	"batch-trader/internal/poller"
	"batch-trader/internal/reconcile"
	"batch-trader/internal/store"
)

// State 表示一次运行所处的阶段。
type State string

const (
	StateInit               State = "INIT"
	StateDeadlineCheck      State = "DEADLINE_CHECK"
	StateRound1Submit       State = "ROUND1_SUBMIT"
	StateRound1SettleProbe  State = "ROUND1_SETTLE_PROBE"
	StateRound1CompleteWait State = "ROUND1_COMPLETE_WAIT"
	StateGateWait           State = "GATE_WAIT"
	StateRound2Submit       State = "ROUND2_SUBMIT"
	StateRound2CompleteWait State = "ROUND2_COMPLETE_WAIT"
	StateReconcile          State = "RECONCILE"
	StateDone               State = "DONE"
	StateFailed             State = "FAILED"
)

// stateTransitions 列出允许的状态迁移。FAILED 只能从 DEADLINE_CHECK 进入,
// 其余阶段出错时直接中止并保留当前状态。
var stateTransitions = map[State][]State{
	StateInit:               {StateDeadlineCheck},
	StateDeadlineCheck:      {StateRound1Submit, StateFailed},
	StateRound1Submit:       {StateRound1SettleProbe},
	StateRound1SettleProbe:  {StateRound1CompleteWait},
	StateRound1CompleteWait: {StateGateWait},
	StateGateWait:           {StateRound2Submit, StateReconcile},
	StateRound2Submit:       {StateRound2CompleteWait},
	StateRound2CompleteWait: {StateReconcile},
	StateReconcile:          {StateDone},
}

// deadlineGate 抽象释放时刻的检查与等待，便于在测试中替换时钟。
type deadlineGate interface {
	AssertNotExpired(deadline gate.TimeOfDay, safetyMargin time.Duration) error
	AwaitDeadline(deadline gate.TimeOfDay, safetyMargin time.Duration) bool
}

// artifactSink 抽象运行产物的落盘。
type artifactSink interface {
	WritePlacedOrders(name string, orders []order.PlacedOrder) error
	WriteOpenOrders(name string, records []broker.OpenOrderRecord, statuses []broker.OpenOrderStatus) error
	WriteExecutions(name string, executions []broker.Execution) error
	WriteCommissions(name string, commissions []broker.Commission) error
}

// runRecorder 抽象运行记录的持久化。
type runRecorder interface {
	BeginRun(ctx context.Context, runID string, startedAt time.Time) error
	FinishRun(ctx context.Context, rec store.RunRecord) error
	SavePlacedOrders(ctx context.Context, runID string, round int, orders []order.PlacedOrder) error
	SaveReconciled(ctx context.Context, runID string, executions []broker.Execution, commissions []broker.Commission) error
}

type orchestrator struct {
	runID    string
	clientID int64

	adapter   broker.Adapter
	gate      deadlineGate
	poller    *poller.Poller
	artifacts artifactSink
	records   runRecorder
	logger    *zap.Logger

	releaseTime   gate.TimeOfDay
	startupMargin time.Duration
	gateMargin    time.Duration
	settleGrace   time.Duration
	pollInterval  time.Duration
	pollTimeout   time.Duration
	reportLoc     *time.Location

	now   func() time.Time
	sleep func(time.Duration)

	state State

	round1Count int
	round2Count int
	execCount   int
}

type orchestratorConfig struct {
	runID    string
	clientID int64
	trading  config.TradingConfig
}

func newOrchestrator(cfg orchestratorConfig, adapter broker.Adapter, g deadlineGate, artifacts artifactSink, records runRecorder, logger *zap.Logger) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if adapter == nil {
		return nil, errors.New("经纪适配器不能为空")
	}

	releaseTime, err := gate.ParseTimeOfDay(cfg.trading.ReleaseTime)
	if err != nil {
		return nil, fmt.Errorf("解析释放时刻失败: %w", err)
	}
	loc, err := time.LoadLocation(cfg.trading.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("加载报表时区失败: %w", err)
	}
	if g == nil {
		g = gate.New(logger)
	}

	observer := func(pending int) {
		recordPoll(pending)
	}

	return &orchestrator{
		runID:         cfg.runID,
		clientID:      cfg.clientID,
		adapter:       adapter,
		gate:          g,
		poller:        poller.New(logger, observer),
		artifacts:     artifacts,
		records:       records,
		logger:        logger,
		releaseTime:   releaseTime,
		startupMargin: cfg.trading.StartupSafetyMargin,
		gateMargin:    cfg.trading.GateSafetyMargin,
		settleGrace:   cfg.trading.SettleGrace,
		pollInterval:  cfg.trading.PollInterval,
		pollTimeout:   cfg.trading.PollTimeout,
		reportLoc:     loc,
		now:           time.Now,
		sleep:         time.Sleep,
		state:         StateInit,
	}, nil
}

func (o *orchestrator) transition(next State) {
	allowed := false
	for _, s := range stateTransitions[o.state] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		o.logger.Error("非法状态切换",
			zap.String("from", string(o.state)),
			zap.String("to", string(next)),
		)
	}
	o.logger.Info("状态切换",
		zap.String("from", string(o.state)),
		zap.String("to", string(next)),
	)
	o.state = next
}

// Run 驱动一次完整的两轮提交流程，返回首个致命错误。
func (o *orchestrator) Run(ctx context.Context, batch []order.OrderRequest) error {
	startedAt := o.now()
	if o.records != nil {
		if err := o.records.BeginRun(ctx, o.runID, startedAt); err != nil {
			o.logger.Warn("写入运行记录失败", zap.Error(err))
		}
	}

	err := o.execute(ctx, batch)

	rec := store.RunRecord{
		ID:          o.runID,
		StartedAt:   startedAt,
		FinishedAt:  o.now(),
		FinalState:  string(o.state),
		Round1Count: o.round1Count,
		Round2Count: o.round2Count,
		ExecCount:   o.execCount,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	recordRunOutcome(string(o.state))
	if o.records != nil {
		if ferr := o.records.FinishRun(ctx, rec); ferr != nil {
			o.logger.Warn("回写运行终态失败", zap.Error(ferr))
		}
	}
	return err
}

func (o *orchestrator) execute(ctx context.Context, batch []order.OrderRequest) error {
	o.transition(StateDeadlineCheck)
	if err := o.gate.AssertNotExpired(o.releaseTime, o.startupMargin); err != nil {
		o.transition(StateFailed)
		return fmt.Errorf("启动闸门检查未通过: %w", err)
	}

	round1, round2 := order.Partition(batch)
	round1 = order.AssignTimeInForce(round1, order.TifAtOpen)
	round2 = order.AssignTimeInForce(round2, order.TifDay)
	o.logger.Info("批次拆分完成",
		zap.Int("round1", len(round1)),
		zap.Int("round2", len(round2)),
	)

	o.transition(StateRound1Submit)
	placed1, err := o.submitRound(ctx, 1, round1)
	if err != nil {
		return err
	}
	o.round1Count = len(placed1)

	o.transition(StateRound1SettleProbe)
	if len(placed1) > 0 {
		o.sleep(o.settleGrace)
		records, statuses, err := o.adapter.FetchOpenOrders(ctx)
		if err != nil {
			return fmt.Errorf("首轮提交后快照失败: %w", err)
		}
		o.logger.Info("首轮提交后在途委托快照", zap.Int("pending", len(records)))
		o.writeOpenOrders("round1_settle_probe", records, statuses)
	}

	o.transition(StateRound1CompleteWait)
	if err := o.awaitBookFlat(ctx, "round1"); err != nil {
		return err
	}

	o.transition(StateGateWait)
	released := o.gate.AwaitDeadline(o.releaseTime, o.gateMargin)
	if released {
		o.transition(StateRound2Submit)
		placed2, err := o.submitRound(ctx, 2, round2)
		if err != nil {
			return err
		}
		o.round2Count = len(placed2)

		o.transition(StateRound2CompleteWait)
		if err := o.awaitBookFlat(ctx, "round2"); err != nil {
			return err
		}
		placed1 = append(placed1, placed2...)
	} else {
		o.logger.Warn("释放时刻已过, 跳过第二轮提交", zap.Int("skipped", len(round2)))
	}

	o.transition(StateReconcile)
	if err := o.reconcileRun(ctx, placed1); err != nil {
		return err
	}

	o.transition(StateDone)
	return nil
}

func (o *orchestrator) submitRound(ctx context.Context, round int, orders []order.OrderRequest) ([]order.PlacedOrder, error) {
	if len(orders) == 0 {
		o.logger.Info("本轮无委托需要提交", zap.Int("round", round))
		return nil, nil
	}

	placed, err := o.adapter.SubmitOrders(ctx, orders)
	if err != nil {
		return nil, fmt.Errorf("第%d轮提交失败: %w", round, err)
	}
	recordRoundSubmitted(round, len(placed))
	o.logger.Info("委托提交完成", zap.Int("round", round), zap.Int("count", len(placed)))

	if o.artifacts != nil {
		if werr := o.artifacts.WritePlacedOrders(fmt.Sprintf("round%d_placed_orders", round), placed); werr != nil {
			o.logger.Warn("写入提交产物失败", zap.Int("round", round), zap.Error(werr))
		}
	}
	if o.records != nil {
		if serr := o.records.SavePlacedOrders(ctx, o.runID, round, placed); serr != nil {
			o.logger.Warn("持久化提交结果失败", zap.Int("round", round), zap.Error(serr))
		}
	}
	return placed, nil
}

// awaitBookFlat 轮询在途委托直至清空，可选地受 poll_timeout 约束。
func (o *orchestrator) awaitBookFlat(ctx context.Context, phase string) error {
	pollCtx := ctx
	if o.pollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, o.pollTimeout)
		defer cancel()
	}

	fetch := func() ([]broker.OpenOrderRecord, error) {
		records, statuses, err := o.adapter.FetchOpenOrders(pollCtx)
		if err != nil {
			return nil, err
		}
		o.writeOpenOrders(phase+"_open_orders", records, statuses)
		return records, nil
	}

	if err := o.poller.AwaitAllComplete(pollCtx, fetch, o.pollInterval); err != nil {
		return fmt.Errorf("等待在途委托清空失败 (%s): %w", phase, err)
	}
	return nil
}

func (o *orchestrator) writeOpenOrders(name string, records []broker.OpenOrderRecord, statuses []broker.OpenOrderStatus) {
	if o.artifacts == nil {
		return
	}
	if err := o.artifacts.WriteOpenOrders(name, records, statuses); err != nil {
		o.logger.Warn("写入在途委托快照失败", zap.String("name", name), zap.Error(err))
	}
}

// reconcileRun 拉取成交与佣金回报，按本次运行的归属过滤后持久化，
// 并按报表时区汇总最近交易日。
func (o *orchestrator) reconcileRun(ctx context.Context, placed []order.PlacedOrder) error {
	executions, commissions, err := o.adapter.FetchExecutionsAndCommissions(ctx)
	if err != nil {
		return fmt.Errorf("拉取成交回报失败: %w", err)
	}

	if o.artifacts != nil {
		if werr := o.artifacts.WriteExecutions("executions_raw", executions); werr != nil {
			o.logger.Warn("写入成交产物失败", zap.Error(werr))
		}
		if werr := o.artifacts.WriteCommissions("commissions_raw", commissions); werr != nil {
			o.logger.Warn("写入佣金产物失败", zap.Error(werr))
		}
	}

	orderIDs := make([]int64, 0, len(placed))
	for _, p := range placed {
		orderIDs = append(orderIDs, p.OrderID)
	}

	ownExecs, ownComms := reconcile.FilterByOwnerAndOrderIDs(executions, commissions, o.clientID, orderIDs)
	ownExecs = reconcile.DedupExecutionsLastWins(ownExecs)
	ownComms = reconcile.DedupCommissionsLastWins(ownComms)
	o.execCount = len(ownExecs)

	if o.records != nil {
		if serr := o.records.SaveReconciled(ctx, o.runID, ownExecs, ownComms); serr != nil {
			o.logger.Warn("持久化对账结果失败", zap.Error(serr))
		}
	}
	if o.artifacts != nil {
		if werr := o.artifacts.WriteExecutions("executions_reconciled", ownExecs); werr != nil {
			o.logger.Warn("写入对账成交失败", zap.Error(werr))
		}
		if werr := o.artifacts.WriteCommissions("commissions_reconciled", ownComms); werr != nil {
			o.logger.Warn("写入对账佣金失败", zap.Error(werr))
		}
	}

	// 数据已按归属过滤，此处无需再按 clientId 过滤。
	buckets := reconcile.GroupByTradingDate(ownExecs, ownComms, o.reportLoc, reconcile.Owner{})
	latest, day, err := reconcile.LatestDate(buckets)
	if err != nil {
		if errors.Is(err, reconcile.ErrEmptyReconciliationSet) {
			o.logger.Info("本次运行没有可对账的成交")
			return nil
		}
		return fmt.Errorf("汇总最近交易日失败: %w", err)
	}

	o.logger.Info("对账完成",
		zap.String("latest_date", day),
		zap.Int("executions", len(latest.Executions)),
		zap.Int("commissions", len(latest.Commissions)),
	)
	return nil
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"batch-trader/internal/artifact"
	"batch-trader/internal/broker"
	"batch-trader/internal/config"
	"batch-trader/internal/log"
	"batch-trader/internal/order"
	"batch-trader/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 执行一次完整的两轮提交运行：读取批次文件、连接网关并驱动状态机。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("批量提交系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("gateway", fmt.Sprintf("%s:%d", a.cfg.Broker.Host, a.cfg.Broker.Port)),
		zap.Int64("client_id", a.cfg.Broker.ClientID),
		zap.String("release_time", a.cfg.Trading.ReleaseTime),
	)

	batch, err := order.LoadCSV(a.cfg.Orders.Path)
	if err != nil {
		return fmt.Errorf("读取批次文件失败: %w", err)
	}
	a.logger.Info("批次文件已加载", zap.String("path", a.cfg.Orders.Path), zap.Int("orders", len(batch)))

	runStore, err := store.NewRunStore(a.store, a.logger)
	if err != nil {
		return err
	}

	if a.cfg.Monitor.Enabled {
		if err := startMonitorServer(ctx, runStore, a.cfg.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	runID := uuid.NewString()
	runLogger := log.WithRun(a.logger, runID)
	startedAt := time.Now()
	writer, err := artifact.NewWriter(a.cfg.Artifacts.Root, runID, startedAt, runLogger)
	if err != nil {
		return fmt.Errorf("创建产物目录失败: %w", err)
	}

	gateway := broker.NewGateway(broker.Config{
		Host:            a.cfg.Broker.Host,
		Port:            a.cfg.Broker.Port,
		ClientID:        a.cfg.Broker.ClientID,
		DisconnectDelay: a.cfg.Broker.DisconnectDelay,
	}, runLogger)

	orch, err := newOrchestrator(orchestratorConfig{
		runID:    runID,
		clientID: gateway.ClientID(),
		trading:  a.cfg.Trading,
	}, gateway, nil, writer, runStore, runLogger)
	if err != nil {
		return err
	}

	if err := orch.Run(ctx, batch); err != nil {
		return err
	}
	a.logger.Info("本次运行已完成", zap.String("run_id", runID), zap.String("artifacts", writer.RunDir()))
	return nil
}

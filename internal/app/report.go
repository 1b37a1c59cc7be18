package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"batch-trader/internal/artifact"
	"batch-trader/internal/broker"
	"batch-trader/internal/log"
)

// RunAccountReport 拉取账户摘要与账户更新并落盘，不提交任何委托。
func (a *App) RunAccountReport(ctx context.Context) error {
	runID := uuid.NewString()
	runLogger := log.WithRun(a.logger, runID)
	writer, err := artifact.NewWriter(a.cfg.Artifacts.Root, runID, time.Now(), runLogger)
	if err != nil {
		return fmt.Errorf("创建产物目录失败: %w", err)
	}

	gateway := broker.NewGateway(broker.Config{
		Host:            a.cfg.Broker.Host,
		Port:            a.cfg.Broker.Port,
		ClientID:        a.cfg.Broker.ClientID,
		DisconnectDelay: a.cfg.Broker.DisconnectDelay,
	}, runLogger)

	summary, err := gateway.FetchAccountSummary(ctx)
	if err != nil {
		return fmt.Errorf("拉取账户摘要失败: %w", err)
	}
	if err := writer.WriteAccountSummary("account_summary", summary); err != nil {
		return err
	}

	values, portfolio, err := gateway.FetchAccountUpdates(ctx)
	if err != nil {
		return fmt.Errorf("拉取账户更新失败: %w", err)
	}
	if err := writer.WriteAccountUpdates("account_updates", values, portfolio); err != nil {
		return err
	}

	runLogger.Info("账户报表已生成",
		zap.Int("summary_rows", len(summary)),
		zap.Int("account_values", len(values)),
		zap.Int("portfolio_rows", len(portfolio)),
		zap.String("artifacts", writer.RunDir()),
	)
	return nil
}

package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"batch-trader/internal/broker"
)

// FetchOpenOrders 返回券商侧在途委托的全量快照。
type FetchOpenOrders func() ([]broker.OpenOrderRecord, error)

// Observer 在每轮询问后收到仍在途的委托数量。
type Observer func(pending int)

// Poller 反复询问在途委托, 直到委托簿清空。
//
// 没有迭代上限: 取消语义完全由调用方传入的 ctx 决定,
// 默认配置不设超时, 需要硬上限的调用方应使用 context.WithTimeout 包裹。
type Poller struct {
	logger   *zap.Logger
	observer Observer
	sleep    func(context.Context, time.Duration) error
}

// New 创建 Poller。observer 可以为 nil。
func New(logger *zap.Logger, observer Observer) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		logger:   logger,
		observer: observer,
		sleep:    sleepCtx,
	}
}

// AwaitAllComplete 阻塞直到 fetch 返回空快照。
// 每轮询问后记录仍在途的数量, 再睡眠 interval 进入下一轮。
func (p *Poller) AwaitAllComplete(ctx context.Context, fetch FetchOpenOrders, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}

	for {
		open, err := fetch()
		if err != nil {
			return err
		}

		pending := len(open)
		p.logger.Info("在途委托待完成", zap.Int("pending", pending))
		if p.observer != nil {
			p.observer(pending)
		}

		if pending == 0 {
			return nil
		}

		if err := p.sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

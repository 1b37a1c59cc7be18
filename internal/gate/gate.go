package gate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrDeadlinePassed 表示当前时间加安全余量已越过截止时间。
var ErrDeadlinePassed = errors.New("gate: deadline already passed")

// TimeOfDay 表示一天内的时刻（本地时钟，24小时制）。
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String 以 HH:MM 格式输出。
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay 解析 "HH:MM" 格式的时刻。
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("gate: 时刻格式应为 HH:MM, 实际为 %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("gate: 小时解析失败: %w", err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("gate: 分钟解析失败: %w", err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("gate: 时刻 %q 超出范围", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// Gate 基于墙钟时间控制第二轮委托的释放时机。
//
// 截止时刻始终按"今天"的本地时钟解释：若当前时间加安全余量已越过该时刻，
// 不会顺延到次日，而是立即判定过期。调用方需保证在截止时刻之前启动。
type Gate struct {
	logger *zap.Logger
	now    func() time.Time
	sleep  func(time.Duration)
}

// New 创建 Gate。
func New(logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		logger: logger,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// deadlineToday 返回截止时刻在当天的具体时间。
func (g *Gate) deadlineToday(deadline TimeOfDay) time.Time {
	now := g.now()
	return time.Date(now.Year(), now.Month(), now.Day(), deadline.Hour, deadline.Minute, 0, 0, now.Location())
}

// AssertNotExpired 校验当前时间加安全余量尚未越过截止时刻，
// 否则返回 ErrDeadlinePassed。
func (g *Gate) AssertNotExpired(deadline TimeOfDay, safetyMargin time.Duration) error {
	now := g.now()
	target := g.deadlineToday(deadline)
	if !now.Add(safetyMargin).Before(target) {
		return fmt.Errorf("%w: 当前时间 %s 加安全余量 %s 已越过 %s",
			ErrDeadlinePassed, now.Format("15:04:05"), safetyMargin, deadline)
	}
	return nil
}

// AwaitDeadline 阻塞等待至截止时刻后返回 true。
// 若校验已过期则立即返回 false，由调用方决定是否跳过被门控的阶段。
//
// 等待采用粗粒度睡眠，不提供取消手段；需要中途放弃只能在进程层面处理。
func (g *Gate) AwaitDeadline(deadline TimeOfDay, safetyMargin time.Duration) bool {
	if err := g.AssertNotExpired(deadline, safetyMargin); err != nil {
		g.logger.Warn("释放时刻已过, 跳过等待", zap.String("deadline", deadline.String()), zap.Error(err))
		return false
	}

	wait := g.deadlineToday(deadline).Sub(g.now())
	g.logger.Info("等待释放时刻",
		zap.String("deadline", deadline.String()),
		zap.Duration("wait", wait),
	)
	g.sleep(wait)
	return true
}

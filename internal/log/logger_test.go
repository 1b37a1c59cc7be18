package log

import (
	"testing"

	"batch-trader/internal/config"
)

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "verbose", Encoding: "console"})
	if err == nil {
		t.Fatal("未知日志级别应当报错")
	}
}

func TestNewLoggerDefaultsOutputs(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "info", Encoding: "json"})
	if err != nil {
		t.Fatalf("创建日志失败: %v", err)
	}
	logger.Info("初始化完成")
	_ = logger.Sync()
}

func TestWithRunNilLogger(t *testing.T) {
	logger := WithRun(nil, "run-1")
	if logger == nil {
		t.Fatal("空日志实例应退化为 Nop")
	}
	logger.Info("不应崩溃")
}

package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"batch-trader/internal/gate"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Orders    OrdersConfig    `mapstructure:"orders"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// BrokerConfig 描述交易网关连接信息。
type BrokerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ClientID        int64         `mapstructure:"client_id"`
	DisconnectDelay time.Duration `mapstructure:"disconnect_delay"`
}

// TradingConfig 控制两轮提交流程。
type TradingConfig struct {
	// ReleaseTime 为第二轮委托的释放时刻, HH:MM, 本地时钟, 仅限当日
	ReleaseTime         string        `mapstructure:"release_time"`
	OrderType           string        `mapstructure:"order_type"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	PollTimeout         time.Duration `mapstructure:"poll_timeout"` // 0 表示不设上限
	StartupSafetyMargin time.Duration `mapstructure:"startup_safety_margin"`
	GateSafetyMargin    time.Duration `mapstructure:"gate_safety_margin"`
	SettleGrace         time.Duration `mapstructure:"settle_grace"`
	ReportTimezone      string        `mapstructure:"report_timezone"`
}

// OrdersConfig 指定输入批次文件。
type OrdersConfig struct {
	Path string `mapstructure:"path"`
}

// ArtifactsConfig 指定运行产物根目录。
type ArtifactsConfig struct {
	Root string `mapstructure:"root"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控 HTTP 服务。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Broker.Host == "" {
		err = multierr.Append(err, errors.New("broker.host 不能为空"))
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		err = multierr.Append(err, errors.New("broker.port 必须位于(0,65535]"))
	}
	if c.Broker.ClientID < 0 {
		err = multierr.Append(err, errors.New("broker.client_id 不能为负"))
	}
	if c.Broker.DisconnectDelay <= 0 {
		err = multierr.Append(err, errors.New("broker.disconnect_delay 必须大于0"))
	}
	if _, parseErr := gate.ParseTimeOfDay(c.Trading.ReleaseTime); parseErr != nil {
		err = multierr.Append(err, fmt.Errorf("trading.release_time 非法: %w", parseErr))
	}
	if c.Trading.OrderType == "" {
		err = multierr.Append(err, errors.New("trading.order_type 不能为空"))
	}
	if c.Trading.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("trading.poll_interval 必须大于0"))
	}
	if c.Trading.PollTimeout < 0 {
		err = multierr.Append(err, errors.New("trading.poll_timeout 不能为负"))
	}
	if c.Trading.StartupSafetyMargin < 10*time.Second {
		err = multierr.Append(err, errors.New("trading.startup_safety_margin 不能小于10s"))
	}
	if c.Trading.GateSafetyMargin <= 0 {
		err = multierr.Append(err, errors.New("trading.gate_safety_margin 必须大于0"))
	}
	if c.Trading.SettleGrace < 0 {
		err = multierr.Append(err, errors.New("trading.settle_grace 不能为负"))
	}
	if _, tzErr := time.LoadLocation(c.Trading.ReportTimezone); tzErr != nil {
		err = multierr.Append(err, fmt.Errorf("trading.report_timezone 非法: %w", tzErr))
	}
	if c.Artifacts.Root == "" {
		err = multierr.Append(err, errors.New("artifacts.root 不能为空"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

// ReleaseTimeOfDay 返回解析后的释放时刻, 须先通过 Validate。
func (c *Config) ReleaseTimeOfDay() (gate.TimeOfDay, error) {
	return gate.ParseTimeOfDay(c.Trading.ReleaseTime)
}

// ReportLocation 返回报表时区, 须先通过 Validate。
func (c *Config) ReportLocation() (*time.Location, error) {
	return time.LoadLocation(c.Trading.ReportTimezone)
}

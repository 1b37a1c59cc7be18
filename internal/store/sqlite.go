package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"batch-trader/internal/config"
)

// Store 封装 SQLite 连接，表结构由各自的存储对象负责初始化。
type Store struct {
	db       *sql.DB
	inMemory bool
}

// NewSQLite 打开 SQLite 数据库并校验连接可用。
// 进程是一次性的批处理运行，单写入方，WAL 足够；检查点推迟到 Close。
func NewSQLite(cfg config.DatabaseConfig) (*Store, error) {
	if !cfg.InMemory {
		if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 数据库失败: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("连接 SQLite 数据库失败: %w", err)
	}

	if _, err := conn.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("设置 SQLite 同步级别失败: %w", err)
	}

	return &Store{db: conn, inMemory: cfg.InMemory}, nil
}

// dsn 组装连接串。内存库必须带共享缓存，
// 否则连接池里的每个连接各自打开一个独立的空库。
func dsn(cfg config.DatabaseConfig) string {
	if cfg.InMemory {
		return "file::memory:?cache=shared&_busy_timeout=5000&_foreign_keys=on"
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", cfg.Path)
}

// DB 返回底层 *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close 在退出前做一次 WAL 检查点，运行结束后只留下单个数据库文件。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if !s.inMemory {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
			_ = s.db.Close()
			return fmt.Errorf("WAL 检查点失败: %w", err)
		}
	}
	return s.db.Close()
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("创建目录 %q 失败: %w", path, err)
	}
	return nil
}

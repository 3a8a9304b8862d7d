package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lldsync/lldsync/internal/config"
	"github.com/lldsync/lldsync/internal/model"
	"github.com/lldsync/lldsync/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

var db *gorm.DB

// InitSQLite 初始化全局 SQLite 数据库
func InitSQLite(cfg config.SQLiteConfig) error {
	conn, err := Open(cfg)
	if err != nil {
		return err
	}
	db = conn
	logger.WithField("path", cfg.Path).Info("SQLite database initialized successfully")
	return nil
}

// Open 打开文件数据库并迁移表结构
func Open(cfg config.SQLiteConfig) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 15 * time.Second
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		cfg.Path, busy.Milliseconds())

	level := gormLogger.Warn
	if cfg.LogSQL {
		level = gormLogger.Info
	}
	conn, err := open(dsn, level, cfg.SlowThreshold)
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return conn, nil
}

// OpenMemory 打开内存数据库，供测试使用
func OpenMemory() (*gorm.DB, error) {
	return open("file::memory:", gormLogger.Silent, 0)
}

func open(dsn string, level gormLogger.LogLevel, slow time.Duration) (*gorm.DB, error) {
	if slow <= 0 {
		slow = time.Second
	}
	gormConfig := &gorm.Config{
		Logger: gormLogger.New(
			logger.GetLogger(),
			gormLogger.Config{
				SlowThreshold:             slow,
				LogLevel:                  level,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		// 写入均在显式事务中完成
		SkipDefaultTransaction: true,
	}

	conn, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dsn,
	}, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// 单连接：PRAGMA 与内存库都只对当前连接有效，同时串行化写事务
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(conn); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return conn, nil
}

// AutoMigrate 创建/更新全部表结构
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&model.LLDRule{},
		&model.Host{},
		&model.HostPrototype{},
		&model.HostDiscovery{},
		&model.HostGroup{},
		&model.GroupPrototype{},
		&model.GroupDiscovery{},
		&model.HostGroupLink{},
		&model.Interface{},
		&model.InterfaceSNMP{},
		&model.InterfaceDiscovery{},
		&model.HostMacro{},
		&model.HostTag{},
		&model.HostTemplate{},
		&model.Item{},
		&model.Right{},
		&model.ID{},
		&model.AuditLog{},
	)
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return db
}

// noRetryError 标记不可重试的错误
type noRetryError struct {
	err error
}

func (e *noRetryError) Error() string { return e.err.Error() }
func (e *noRetryError) Unwrap() error { return e.err }

// NoRetry 包装错误使 TransactionWithRetry 不再重试
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &noRetryError{err: err}
}

// IsBusyError 判断是否为 SQLite 并发锁相关错误
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	var nr *noRetryError
	if errors.As(err, &nr) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "cannot start a transaction within a transaction")
}

// RetryGuard 事务失败后调用，返回 false 时即使是并发锁错误也不再重试
type RetryGuard func() bool

// TransactionWithRetry 在事务级别检测并发锁错误并重试
//
// fn 返回 nil 而提交失败时 fn 无法用 NoRetry 标记错误，此时由 guards 决定是否重试。
func TransactionWithRetry(ctx context.Context, conn *gorm.DB, fn func(*gorm.DB) error, attempts int, sleep time.Duration, guards ...RetryGuard) error {
	if attempts < 1 {
		attempts = 1
	}
	if sleep <= 0 {
		sleep = 50 * time.Millisecond
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = conn.WithContext(ctx).Transaction(fn)
		if err == nil || !IsBusyError(err) {
			return err
		}
		for _, guard := range guards {
			if !guard() {
				return err
			}
		}
		logger.WithField("attempt", i+1).Warnf("database busy, retrying transaction: %v", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		if sleep < 500*time.Millisecond {
			sleep *= 2
		}
	}
	return err
}

// Close 关闭全局数据库连接
func Close() error {
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func Health() error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// GetStats 获取连接池统计信息
func GetStats() map[string]interface{} {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil
	}
	stats := sqlDB.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration,
	}
}

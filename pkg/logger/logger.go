package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	log  *logrus.Logger
	mu   sync.Mutex
	file *lumberjack.Logger
)

// Config 日志配置
type Config struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"` // console | stderr | file | both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
	Compress   bool   `json:"compress"`
}

func (c Config) toFile() bool {
	return c.Output == "file" || c.Output == "both"
}

// New 按配置创建独立的日志实例
func New(config Config) (*logrus.Logger, error) {
	l := logrus.New()
	out, _, err := openOutput(config)
	if err != nil {
		return nil, err
	}
	apply(l, config, out)
	return l, nil
}

// Init 初始化全局日志；已初始化时原地替换级别、格式与输出，并关闭旧的日志文件
func Init(config Config) error {
	out, fw, err := openOutput(config)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		log = logrus.New()
	}
	apply(log, config, out)

	if file != nil {
		_ = file.Close()
	}
	file = fw
	return nil
}

func apply(l *logrus.Logger, config Config, out io.Writer) {
	l.SetLevel(parseLevel(config.Level))
	l.SetFormatter(newFormatter(config.Format))
	if out != nil {
		l.SetOutput(out)
	}
}

func newFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat:   "2006-01-02 15:04:05",
			DisableHTMLEscape: true,
		}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
}

// openOutput 返回组合后的输出与其中的滚动文件（未写文件时为 nil）
func openOutput(config Config) (io.Writer, *lumberjack.Logger, error) {
	var writers []io.Writer
	switch config.Output {
	case "", "console", "both":
		writers = append(writers, os.Stdout)
	case "stderr":
		writers = append(writers, os.Stderr)
	}

	var fw *lumberjack.Logger
	if config.toFile() {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, nil, err
		}
		fw = &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		writers = append(writers, fw)
	}

	if len(writers) == 0 {
		return nil, nil, nil
	}
	return io.MultiWriter(writers...), fw, nil
}

func parseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// SetLevel 运行期调整日志级别
func SetLevel(level string) {
	GetLogger().SetLevel(parseLevel(level))
}

// GetLogger 获取日志实例
func GetLogger() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		log = logrus.New()
	}
	return log
}

// Run 一次发现运行的日志上下文
func Run(ruleID uint64, runID string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{"rule_id": ruleID, "run_id": runID})
}

// Debugf 格式化调试日志
func Debugf(format string, args ...interface{}) {
	GetLogger().Debugf(format, args...)
}

// Info 信息日志
func Info(args ...interface{}) {
	GetLogger().Info(args...)
}

// Infof 格式化信息日志
func Infof(format string, args ...interface{}) {
	GetLogger().Infof(format, args...)
}

// Warn 警告日志
func Warn(args ...interface{}) {
	GetLogger().Warn(args...)
}

// Warnf 格式化警告日志
func Warnf(format string, args ...interface{}) {
	GetLogger().Warnf(format, args...)
}

// Errorf 格式化错误日志
func Errorf(format string, args ...interface{}) {
	GetLogger().Errorf(format, args...)
}

// Fatalf 格式化致命错误日志
func Fatalf(format string, args ...interface{}) {
	GetLogger().Fatalf(format, args...)
}

// WithField 添加字段
func WithField(key string, value interface{}) *logrus.Entry {
	return GetLogger().WithField(key, value)
}

// WithFields 添加多个字段
func WithFields(fields logrus.Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lldsync/lldsync/api/router"
	"github.com/lldsync/lldsync/internal/config"
	"github.com/lldsync/lldsync/internal/database"
	"github.com/lldsync/lldsync/internal/loader"
	"github.com/lldsync/lldsync/internal/service"
	"github.com/lldsync/lldsync/pkg/logger"
)

func loggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(loggerConfig(cfg)); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Infof("Starting lldsync server (workers=%d, archive=%s)", cfg.LLD.Workers, cfg.Audit.Archive)

	// 初始化数据库
	if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	lldService := service.NewLLDService(cfg, database.GetDB())
	ctx := context.Background()

	// 导入启动规则
	if cfg.Seed != "" {
		set, err := loader.LoadYAML(cfg.Seed, cfg.LLD.DefaultLifetime)
		if err != nil {
			logger.Fatalf("Failed to load rules from %s: %v", cfg.Seed, err)
		}
		if err := lldService.Seed(ctx, set); err != nil {
			logger.Fatalf("Failed to import rules: %v", err)
		}
		logger.Infof("Imported %d rules from %s", len(set.Rules), cfg.Seed)
	}

	if err := lldService.Start(ctx); err != nil {
		logger.Fatalf("Failed to start lld service: %v", err)
	}
	defer lldService.Stop()

	r := router.SetupRouter(cfg, lldService)

	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Infof("Server listening on %s (mode=%s)", server.Addr, cfg.Server.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 配置文件监听与热更新
	go watchConfig(*configPath, lldService)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Info("Server shutdown complete")
	}
}

// watchConfig 配置变更后去抖重载：刷新日志与发现服务，监听地址与数据库需重启生效
func watchConfig(path string, lldService *service.LLDService) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("Config watch init failed: %v", err)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		logger.Warnf("Config watch add failed: %v", err)
		return
	}

	var debounce *time.Timer
	debounceInterval := 300 * time.Millisecond
	trigger := func() {
		newCfg, err := config.Load(path)
		if err != nil {
			logger.Warnf("Config reload failed: %v", err)
			return
		}
		if err := logger.Init(loggerConfig(newCfg)); err != nil {
			logger.Warnf("Logger reload failed: %v", err)
		}
		lldService.Reload(newCfg)
		logger.Info("Config reloaded")
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceInterval, trigger)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("Config watch error: %v", err)
		}
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	v1 "planimport/internal/api/v1"
	"planimport/internal/config"
	"planimport/internal/importer"
	"planimport/internal/reconcile"
	"planimport/internal/server"
	"planimport/internal/store"
)

var (
	port       = flag.Int("port", 0, "服务端口 (config.toml 优先；仅当未显式配置 port 时生效)")
	devMode    = flag.Bool("dev", false, "开发模式")
	dataDir    = flag.String("dataDir", "", "数据目录 (覆盖配置文件)")
	configPath = flag.String("config", "", "配置文件路径 (默认为可执行文件同目录的 config.toml)")
)

func main() {
	flag.Parse()

	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg, info, err := loadConfig()
	if err != nil {
		log.Printf("加载配置失败，使用默认配置: %v", err)
		cfg = config.DefaultConfig()
		info = config.LoadConfigInfo{}
	}

	// 命令行参数覆盖配置
	if *port > 0 && !info.PortSpecified {
		cfg.Server.Port = *port
	}
	if *devMode {
		cfg.Server.DevMode = true
	}
	if *dataDir != "" {
		cfg.Data.DataDir = *dataDir
	}

	logger, err := newLogger(cfg.Server.DevMode)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}

	if code := finish(logger, run(cfg, logger)); code != 0 {
		os.Exit(code)
	}
}

// finish 记录退出错误并刷新日志，返回进程退出码
func finish(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("server exited", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	return code
}

func loadConfig() (*config.AppConfig, config.LoadConfigInfo, error) {
	if *configPath != "" {
		return config.LoadFile(*configPath)
	}
	return config.LoadConfigWithInfo()
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.AppConfig, logger *zap.Logger) error {
	dir, err := config.EnsureDataDir(cfg)
	if err != nil {
		return fmt.Errorf("failed to prepare data dir: %w", err)
	}
	logger.Info("data dir ready", zap.String("path", dir))

	st, err := store.New(filepath.Join(dir, "planimport.db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer st.Close()

	handler := v1.NewHandler(v1.Deps{
		Store:       st,
		Coordinator: importer.NewCoordinator(st, logger.Named("importer"), cfg.ImportOptions()),
		Reconcile:   reconcile.NewService(st, reconcile.NewEngine(cfg.Reconcile.Epsilon), uuid.NewString),
		Logger:      logger.Named("api"),
		UploadDir:   filepath.Join(dir, "uploads"),
	})
	srv := server.NewServer(cfg, handler, logger.Named("http"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/content-ops/config"
	"github.com/d60-Lab/content-ops/internal/api/handler"
	"github.com/d60-Lab/content-ops/internal/api/router"
	"github.com/d60-Lab/content-ops/internal/model"
	"github.com/d60-Lab/content-ops/internal/publisher"
	"github.com/d60-Lab/content-ops/internal/queue"
	"github.com/d60-Lab/content-ops/internal/repository"
	"github.com/d60-Lab/content-ops/pkg/cache"
	"github.com/d60-Lab/content-ops/pkg/database"
	"github.com/d60-Lab/content-ops/pkg/logger"
	"github.com/d60-Lab/content-ops/pkg/tracing"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func main() {
	cfg := must(config.Load())
	if err := logger.Init(cfg.Log.Level); err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if cfg.Tracing.Endpoint != "" {
		shutdown := must(tracing.Init(ctx, cfg.Tracing))
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutCtx)
		}()
	}

	db := must(database.InitDB(cfg))
	taskRepo := repository.NewTaskRepository(db)
	userRepo := repository.NewUserRepository(db)
	seedAdmin(ctx, userRepo, cfg)

	var statsCache *cache.Cache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, statistics cache disabled", zap.Error(err))
		} else {
			statsCache = cache.New(rdb, cfg.Redis.StatsTTL)
		}
	}

	engine := queue.NewEngine(taskRepo, statsCache, cfg.Queue.StuckAfter)
	registry := queue.NewRegistry()
	registerPublishers(registry, cfg)

	dispatcher := queue.NewDispatcher(engine, registry, cfg.Publishers.RateLimit)
	if cfg.Sentry.DSN != "" {
		dispatcher.OnTerminalFailure(func(task *model.PublishTask, cause string) {
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("platform", task.Platform)
				scope.SetTag("task_id", task.ID)
				sentry.CaptureMessage(fmt.Sprintf("publish task failed: %s", cause))
			})
		})
	}

	worker := queue.NewWorker(ctx, engine, dispatcher, cfg.Queue.PollInterval, cfg.Queue.BatchSize)
	worker.Start()

	janitor := queue.NewJanitor(engine, cfg.Queue.CleanupCron, cfg.Queue.RetentionDays)
	if err := janitor.Start(); err != nil {
		panic(err)
	}

	h := handler.NewHandler(engine, registry, worker, userRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router.New(cfg, h)}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutCtx)
	if err := worker.Stop(shutCtx); err != nil {
		logger.Warn("worker did not stop cleanly", zap.Error(err))
	}
	janitor.Stop()
}

// seedAdmin 配置了管理员密码时种子一个运营账号（已存在则跳过）
func seedAdmin(ctx context.Context, users repository.UserRepository, cfg *config.Config) {
	if cfg.Auth.AdminUser == "" || cfg.Auth.AdminPassword == "" {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Auth.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("hash admin password", zap.Error(err))
		return
	}
	if err := users.Create(ctx, &model.User{
		Username: cfg.Auth.AdminUser,
		Password: string(hash),
	}); err != nil {
		logger.Error("seed admin user", zap.Error(err))
	}
}

// registerPublishers 凭据齐全的平台才注册；未注册平台的任务会直接终态失败
func registerPublishers(registry *queue.Registry, cfg *config.Config) {
	if cfg.Publishers.Wechat.AppID != "" && cfg.Publishers.Wechat.AppSecret != "" {
		registry.Register(model.PlatformWechat, publisher.NewWechat(cfg.Publishers.Wechat))
	}
	if cfg.Publishers.Zhihu.AccessToken != "" {
		registry.Register(model.PlatformZhihu, publisher.NewZhihu(cfg.Publishers.Zhihu))
	}
	if cfg.Publishers.Xiaohongshu.AccessToken != "" && cfg.Publishers.Xiaohongshu.UserID != "" {
		registry.Register(model.PlatformXiaohongshu, publisher.NewXiaohongshu(cfg.Publishers.Xiaohongshu))
	}
}

package handler

import (
	"time"

	"github.com/d60-Lab/content-ops/internal/queue"
	"github.com/d60-Lab/content-ops/internal/repository"
)

// Handler 聚合各路由依赖
type Handler struct {
	engine   *queue.Engine
	registry *queue.Registry
	worker   *queue.Worker
	users    repository.UserRepository

	jwtSecret string
	tokenTTL  time.Duration
}

func NewHandler(engine *queue.Engine, registry *queue.Registry, worker *queue.Worker,
	users repository.UserRepository, jwtSecret string, tokenTTL time.Duration) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Handler{
		engine:    engine,
		registry:  registry,
		worker:    worker,
		users:     users,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

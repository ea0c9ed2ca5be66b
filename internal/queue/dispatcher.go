package queue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/content-ops/internal/model"
	"github.com/d60-Lab/content-ops/pkg/logger"
)

// Dispatcher 把通用任务翻译成平台发布调用，并把结果映射回状态迁移。
// 发布期错误在这里消化为重试或终态失败，不会向上抛给 Worker。
type Dispatcher struct {
	engine   *Engine
	registry *Registry

	// 目标平台都有限流，统一在调用前按平台限速
	rateLimit float64
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter

	// 终态失败通知钩子（Sentry 上报等），可为 nil
	onTerminalFailure func(task *model.PublishTask, cause string)
}

func NewDispatcher(engine *Engine, registry *Registry, rateLimit float64) *Dispatcher {
	if rateLimit <= 0 {
		rateLimit = 1
	}
	return &Dispatcher{
		engine:    engine,
		registry:  registry,
		rateLimit: rateLimit,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// OnTerminalFailure 注册终态失败回调
func (d *Dispatcher) OnTerminalFailure(fn func(task *model.PublishTask, cause string)) {
	d.onTerminalFailure = fn
}

// Dispatch 执行单个任务。返回错误仅代表状态无法落库，发布失败本身不是错误。
func (d *Dispatcher) Dispatch(ctx context.Context, task *model.PublishTask) error {
	publisher, ok := d.registry.Resolve(task.Platform)
	if !ok {
		// 配置缺失，重试无意义，直接终态失败
		cause := fmt.Sprintf("no publisher for platform %s", task.Platform)
		logger.Error("publisher missing", zap.String("task_id", task.ID), zap.String("platform", task.Platform))
		return d.failTerminal(ctx, task, cause)
	}

	if err := d.limiter(task.Platform).Wait(ctx); err != nil {
		return err
	}

	if err := d.engine.UpdateTaskStatus(ctx, task.ID, model.StatusProcessing, "", nil); err != nil {
		return err
	}

	logger.Info("publishing task",
		zap.String("task_id", task.ID),
		zap.String("platform", task.Platform),
		zap.Int("attempt", task.RetryCount+1))

	result, err := publisher.Publish(ctx, d.translate(task))
	switch {
	case err != nil:
		return d.handleFailure(ctx, task, err.Error())
	case result == nil || !result.Success:
		cause := "publish failed"
		if result != nil && result.Error != "" {
			cause = result.Error
		}
		return d.handleFailure(ctx, task, cause)
	default:
		return d.engine.UpdateTaskStatus(ctx, task.ID, model.StatusSuccess, "", result.Data)
	}
}

// translate 通用任务 -> 平台字段子集；扩展字段只在这一层解释
func (d *Dispatcher) translate(task *model.PublishTask) *PublishRequest {
	return &PublishRequest{
		TaskID:        task.ID,
		Title:         task.Title,
		Content:       task.Content,
		Author:        task.AttrString(model.AttrAuthor),
		Digest:        task.AttrString(model.AttrDigest),
		CoverImageURL: task.AttrString(model.AttrCoverImageURL),
		VideoURL:      task.AttrString(model.AttrVideoURL),
		ImageURLs:     task.AttrStrings(model.AttrImageURLs),
		Topics:        task.AttrStrings(model.AttrTopics),
		Tags:          task.AttrStrings(model.AttrTags),
	}
}

func (d *Dispatcher) handleFailure(ctx context.Context, task *model.PublishTask, cause string) error {
	logger.Warn("publish attempt failed",
		zap.String("task_id", task.ID),
		zap.String("platform", task.Platform),
		zap.String("error", cause))

	if task.RetryCount < task.MaxRetries {
		_, err := d.engine.IncrementRetry(ctx, task.ID)
		return err
	}
	return d.failTerminal(ctx, task, cause)
}

// failTerminal 先落库再触发回调，失败告警只对已持久化的终态发出
func (d *Dispatcher) failTerminal(ctx context.Context, task *model.PublishTask, cause string) error {
	if err := d.engine.UpdateTaskStatus(ctx, task.ID, model.StatusFailed, cause, nil); err != nil {
		return err
	}
	if d.onTerminalFailure != nil {
		d.onTerminalFailure(task, cause)
	}
	return nil
}

func (d *Dispatcher) limiter(platform string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[platform]
	if !ok {
		l = rate.NewLimiter(rate.Limit(d.rateLimit), 1)
		d.limiters[platform] = l
	}
	return l
}

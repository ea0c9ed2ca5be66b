package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/content-ops/internal/model"
	"github.com/d60-Lab/content-ops/internal/repository"
	"github.com/d60-Lab/content-ops/pkg/cache"
	"github.com/d60-Lab/content-ops/pkg/logger"
)

const (
	defaultMaxRetries   = 3
	defaultPendingLimit = 10
	statsCacheKey       = "publish:stats"
)

// Statistics 运营统计；StuckProcessing 为进程崩溃遗留的 processing 任务数（运维告警信号）
type Statistics struct {
	repository.Statistics
	StuckProcessing int64 `json:"stuck_processing"`
}

// Engine 队列引擎：任务 CRUD、状态迁移、重试记账与统计查询的唯一入口。
// 所有组件都经由 Engine 访问任务表，状态机不变量在这一处收口。
type Engine struct {
	repo       repository.TaskRepository
	statsCache *cache.Cache // 可为 nil
	stuckAfter time.Duration
}

func NewEngine(repo repository.TaskRepository, statsCache *cache.Cache, stuckAfter time.Duration) *Engine {
	if stuckAfter <= 0 {
		stuckAfter = 10 * time.Minute
	}
	return &Engine{repo: repo, statsCache: statsCache, stuckAfter: stuckAfter}
}

// AddTask 入队；ID 为空时生成 uuid，重复 ID 返回 repository.ErrDuplicateTask。
// MaxRetries 为负表示未指定，取默认值；0 是显式的"失败即终态"，原样保留。
func (e *Engine) AddTask(ctx context.Context, task *model.PublishTask) (string, error) {
	if task.Platform == "" {
		return "", fmt.Errorf("%w: platform is required", ErrValidation)
	}
	if task.Title == "" {
		return "", fmt.Errorf("%w: title is required", ErrValidation)
	}
	if task.Content == "" {
		return "", fmt.Errorf("%w: content is required", ErrValidation)
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.MaxRetries < 0 {
		task.MaxRetries = defaultMaxRetries
	}
	task.Status = model.StatusPending
	task.RetryCount = 0
	task.ErrorMessage = ""
	task.Result = nil
	task.PublishedAt = nil

	if err := e.repo.Insert(ctx, task); err != nil {
		return "", err
	}
	logger.Info("task enqueued",
		zap.String("task_id", task.ID),
		zap.String("platform", task.Platform),
		zap.String("title", task.Title))
	return task.ID, nil
}

func (e *Engine) GetTask(ctx context.Context, id string) (*model.PublishTask, error) {
	return e.repo.Get(ctx, id)
}

// GetPendingTasks 按创建时间先入先出返回可执行任务
func (e *Engine) GetPendingTasks(ctx context.Context, limit int) ([]*model.PublishTask, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	return e.repo.ListEligible(ctx, time.Now(), limit)
}

// UpdateTaskStatus 状态迁移；终态任务拒绝变更，success 时落 published_at 并清空错误
func (e *Engine) UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus, errMsg string, result map[string]any) error {
	current, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, current.Status)
	}

	fields := map[string]any{"status": status}
	if errMsg != "" {
		fields["error_message"] = errMsg
	}
	if result != nil {
		fields["result"] = model.JSONMap(result)
	}
	if status == model.StatusSuccess {
		fields["published_at"] = time.Now()
		fields["error_message"] = ""
	}
	if err := e.repo.Update(ctx, id, fields); err != nil {
		return err
	}
	logger.Info("task status updated", zap.String("task_id", id), zap.String("status", string(status)))
	return nil
}

// IncrementRetry 原子自增重试计数并置为 retrying；上限约束在存储层条件更新里兜底
func (e *Engine) IncrementRetry(ctx context.Context, id string) (int, error) {
	current, err := e.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if current.Status.Terminal() {
		return 0, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, current.Status)
	}
	count, err := e.repo.IncrementRetry(ctx, id)
	if errors.Is(err, repository.ErrRetryExhausted) {
		return current.RetryCount, fmt.Errorf("%w: %s at %d/%d", ErrRetryExhausted, id, current.RetryCount, current.MaxRetries)
	}
	if err != nil {
		return 0, err
	}
	logger.Info("task retry scheduled",
		zap.String("task_id", id),
		zap.Int("retry_count", count),
		zap.Int("max_retries", current.MaxRetries))
	return count, nil
}

// CancelTask 仅 pending / retrying 可取消；执行中与终态任务返回 false
func (e *Engine) CancelTask(ctx context.Context, id string) (bool, error) {
	if _, err := e.repo.Get(ctx, id); err != nil {
		return false, err
	}
	ok, err := e.repo.Cancel(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		logger.Info("task cancelled", zap.String("task_id", id))
	}
	return ok, nil
}

func (e *Engine) GetHistory(ctx context.Context, filter repository.HistoryFilter) ([]*model.PublishTask, error) {
	return e.repo.ListHistory(ctx, filter)
}

// GetStatistics 聚合统计；命中缓存直接返回（TTL 级新鲜度足够）
func (e *Engine) GetStatistics(ctx context.Context, start, end *time.Time) (*Statistics, error) {
	key := statsKey(start, end)
	if e.statsCache != nil {
		var cached Statistics
		if e.statsCache.GetJSON(ctx, key, &cached) {
			return &cached, nil
		}
	}

	base, err := e.repo.Statistics(ctx, start, end)
	if err != nil {
		return nil, err
	}
	stuck, err := e.repo.CountProcessingBefore(ctx, time.Now().Add(-e.stuckAfter))
	if err != nil {
		return nil, err
	}
	stats := &Statistics{Statistics: *base, StuckProcessing: stuck}
	if e.statsCache != nil {
		e.statsCache.SetJSON(ctx, key, stats)
	}
	return stats, nil
}

// ClearCompleted 清理保留期之外的终态任务，返回删除条数
func (e *Engine) ClearCompleted(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := e.repo.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	logger.Info("completed tasks cleared", zap.Int64("deleted", deleted), zap.Int("retention_days", retentionDays))
	return deleted, nil
}

func statsKey(start, end *time.Time) string {
	key := statsCacheKey
	if start != nil {
		key += ":" + start.UTC().Format(time.RFC3339)
	} else {
		key += ":"
	}
	if end != nil {
		key += ":" + end.UTC().Format(time.RFC3339)
	}
	return key
}

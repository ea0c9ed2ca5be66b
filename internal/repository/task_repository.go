package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/content-ops/internal/model"
)

var (
	// ErrDuplicateTask 任务 ID 冲突（ID 即幂等键）
	ErrDuplicateTask = errors.New("task already exists")
	// ErrTaskNotFound 任务不存在
	ErrTaskNotFound = errors.New("task not found")
	// ErrRetryExhausted 重试计数已达上限，条件更新未命中
	ErrRetryExhausted = errors.New("retry count at limit")
)

// HistoryFilter 历史查询过滤条件；零值字段不参与过滤
type HistoryFilter struct {
	Platform string
	Status   model.TaskStatus
	Start    *time.Time
	End      *time.Time
	Limit    int
}

// Statistics 按平台/状态聚合的任务统计
type Statistics struct {
	Total      int64                       `json:"total"`
	ByPlatform map[string]map[string]int64 `json:"by_platform"`
	ByStatus   map[string]int64            `json:"by_status"`
}

// TaskRepository 任务表仓储；所有时间戳在这里统一落库
type TaskRepository interface {
	Insert(ctx context.Context, task *model.PublishTask) error
	Get(ctx context.Context, id string) (*model.PublishTask, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	IncrementRetry(ctx context.Context, id string) (int, error)
	Cancel(ctx context.Context, id string) (bool, error)
	ListEligible(ctx context.Context, now time.Time, limit int) ([]*model.PublishTask, error)
	ListHistory(ctx context.Context, filter HistoryFilter) ([]*model.PublishTask, error)
	Statistics(ctx context.Context, start, end *time.Time) (*Statistics, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountProcessingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type taskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) TaskRepository { return &taskRepository{db: db} }

func (r *taskRepository) Insert(ctx context.Context, task *model.PublishTask) error {
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = task.CreatedAt
	err := r.db.WithContext(ctx).Create(task).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateTask
	}
	return err
}

func (r *taskRepository) Get(ctx context.Context, id string) (*model.PublishTask, error) {
	var task model.PublishTask
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Update 部分字段更新，updated_at 总是一并刷新
func (r *taskRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&model.PublishTask{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// IncrementRetry 单条条件 UPDATE 内自增并置为 retrying，再读回计数。
// 上限约束放在 WHERE 里，并发调用也不会把计数推过 max_retries。
func (r *taskRepository) IncrementRetry(ctx context.Context, id string) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.PublishTask{}).
			Where("id = ? AND retry_count < max_retries", id).
			Updates(map[string]any{
				"retry_count": gorm.Expr("retry_count + 1"),
				"status":      model.StatusRetrying,
				"updated_at":  time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&model.PublishTask{}).Where("id = ?", id).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return ErrTaskNotFound
			}
			return ErrRetryExhausted
		}
		return tx.Model(&model.PublishTask{}).Select("retry_count").Where("id = ?", id).Scan(&count).Error
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Cancel 仅对 pending / retrying 生效；返回是否有行被更新
func (r *taskRepository) Cancel(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.PublishTask{}).
		Where("id = ? AND status IN ?", id, []model.TaskStatus{model.StatusPending, model.StatusRetrying}).
		Updates(map[string]any{
			"status":     model.StatusCancelled,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListEligible 可领取任务：pending/retrying 且到达计划时间，按创建时间先入先出
func (r *taskRepository) ListEligible(ctx context.Context, now time.Time, limit int) ([]*model.PublishTask, error) {
	var tasks []*model.PublishTask
	err := r.db.WithContext(ctx).
		Where("status IN ?", []model.TaskStatus{model.StatusPending, model.StatusRetrying}).
		Where("scheduled_at IS NULL OR scheduled_at <= ?", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *taskRepository) ListHistory(ctx context.Context, filter HistoryFilter) ([]*model.PublishTask, error) {
	q := r.db.WithContext(ctx).Model(&model.PublishTask{})
	if filter.Platform != "" {
		q = q.Where("platform = ?", filter.Platform)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Start != nil {
		q = q.Where("created_at >= ?", *filter.Start)
	}
	if filter.End != nil {
		q = q.Where("created_at <= ?", *filter.End)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var tasks []*model.PublishTask
	err := q.Order("created_at DESC").Limit(limit).Find(&tasks).Error
	return tasks, err
}

func (r *taskRepository) Statistics(ctx context.Context, start, end *time.Time) (*Statistics, error) {
	type row struct {
		Platform string
		Status   string
		Count    int64
	}
	q := r.db.WithContext(ctx).Model(&model.PublishTask{}).
		Select("platform, status, count(*) as count").
		Group("platform, status")
	if start != nil {
		q = q.Where("created_at >= ?", *start)
	}
	if end != nil {
		q = q.Where("created_at <= ?", *end)
	}
	var rows []row
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &Statistics{
		ByPlatform: map[string]map[string]int64{},
		ByStatus:   map[string]int64{},
	}
	for _, r := range rows {
		stats.Total += r.Count
		if stats.ByPlatform[r.Platform] == nil {
			stats.ByPlatform[r.Platform] = map[string]int64{}
		}
		stats.ByPlatform[r.Platform][r.Status] = r.Count
		stats.ByStatus[r.Status] += r.Count
	}
	return stats, nil
}

// DeleteCompletedBefore 只清理终态任务，运行中/待处理任务不受保留期影响
func (r *taskRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ?", []model.TaskStatus{model.StatusSuccess, model.StatusFailed, model.StatusCancelled}).
		Where("created_at < ?", cutoff).
		Delete(&model.PublishTask{})
	return res.RowsAffected, res.Error
}

// CountProcessingBefore 统计疑似卡死的 processing 任务（进程崩溃遗留，不会自愈）
func (r *taskRepository) CountProcessingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.PublishTask{}).
		Where("status = ? AND updated_at < ?", model.StatusProcessing, cutoff).
		Count(&count).Error
	return count, err
}

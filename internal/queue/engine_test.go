package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/content-ops/internal/model"
	"github.com/d60-Lab/content-ops/internal/repository"
)

func setupEngine(t *testing.T) (*Engine, repository.TaskRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.PublishTask{}))
	repo := repository.NewTaskRepository(db)
	return NewEngine(repo, nil, 10*time.Minute), repo, db
}

func validTask(id string) *model.PublishTask {
	return &model.PublishTask{
		ID:       id,
		Platform: model.PlatformWechat,
		Title:    "标题",
		Content:  "正文",
	}
}

func TestAddTaskValidation(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		task *model.PublishTask
	}{
		{"missing platform", &model.PublishTask{Title: "t", Content: "c"}},
		{"missing title", &model.PublishTask{Platform: "wechat", Content: "c"}},
		{"missing content", &model.PublishTask{Platform: "wechat", Title: "t"}},
	}
	for _, tc := range cases {
		_, err := engine.AddTask(ctx, tc.task)
		require.ErrorIs(t, err, ErrValidation, tc.name)
	}
}

func TestAddTaskDefaults(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	// -1 表示未指定，取默认重试次数
	id, err := engine.AddTask(ctx, &model.PublishTask{Platform: "wechat", Title: "t", Content: "c", MaxRetries: -1})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task, err := engine.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, task.Status)
	require.Equal(t, 3, task.MaxRetries)
	require.Equal(t, 0, task.RetryCount)
	require.Nil(t, task.PublishedAt)
	require.False(t, task.CreatedAt.IsZero())
}

func TestAddTaskHonorsZeroMaxRetries(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	// 显式 0 原样保留，不被默认值覆盖
	id, err := engine.AddTask(ctx, &model.PublishTask{Platform: "wechat", Title: "t", Content: "c", MaxRetries: 0})
	require.NoError(t, err)

	task, err := engine.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 0, task.MaxRetries)

	// 上限 0 意味着一次重试都不允许
	_, err = engine.IncrementRetry(ctx, id)
	require.ErrorIs(t, err, ErrRetryExhausted)
}

func TestAddTaskDuplicateIDStrict(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	_, err := engine.AddTask(ctx, validTask("t1"))
	require.NoError(t, err)

	_, err = engine.AddTask(ctx, validTask("t1"))
	require.ErrorIs(t, err, repository.ErrDuplicateTask)

	// 第二次入队不产生新行
	history, err := engine.GetHistory(ctx, repository.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestTerminalStateImmutable(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	for _, terminal := range []model.TaskStatus{model.StatusSuccess, model.StatusFailed, model.StatusCancelled} {
		id := "t-" + string(terminal)
		_, err := engine.AddTask(ctx, validTask(id))
		require.NoError(t, err)
		require.NoError(t, engine.UpdateTaskStatus(ctx, id, terminal, "boom", nil))

		before, err := engine.GetTask(ctx, id)
		require.NoError(t, err)

		err = engine.UpdateTaskStatus(ctx, id, model.StatusProcessing, "", nil)
		require.ErrorIs(t, err, ErrInvalidTransition)

		_, err = engine.IncrementRetry(ctx, id)
		require.ErrorIs(t, err, ErrInvalidTransition)

		ok, err := engine.CancelTask(ctx, id)
		require.NoError(t, err)
		require.False(t, ok)

		// 行未被改动
		after, err := engine.GetTask(ctx, id)
		require.NoError(t, err)
		require.Equal(t, before.Status, after.Status)
		require.Equal(t, before.UpdatedAt, after.UpdatedAt)
		require.Equal(t, before.RetryCount, after.RetryCount)
	}
}

func TestPublishedAtIffSuccess(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	_, err := engine.AddTask(ctx, validTask("fail"))
	require.NoError(t, err)
	require.NoError(t, engine.UpdateTaskStatus(ctx, "fail", model.StatusFailed, "err", nil))
	task, err := engine.GetTask(ctx, "fail")
	require.NoError(t, err)
	require.Nil(t, task.PublishedAt)
	require.Equal(t, "err", task.ErrorMessage)

	_, err = engine.AddTask(ctx, validTask("ok"))
	require.NoError(t, err)
	require.NoError(t, engine.UpdateTaskStatus(ctx, "ok", model.StatusProcessing, "transient", nil))
	require.NoError(t, engine.UpdateTaskStatus(ctx, "ok", model.StatusSuccess, "", map[string]any{"post_id": "p1"}))

	task, err = engine.GetTask(ctx, "ok")
	require.NoError(t, err)
	require.NotNil(t, task.PublishedAt)
	// 成功后错误信息被清空，结果落库
	require.Empty(t, task.ErrorMessage)
	require.Equal(t, "p1", task.Result["post_id"])
}

func TestIncrementRetryBound(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	task := validTask("t1")
	task.MaxRetries = 2
	_, err := engine.AddTask(ctx, task)
	require.NoError(t, err)

	count, err := engine.IncrementRetry(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	count, err = engine.IncrementRetry(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, err = engine.IncrementRetry(ctx, "t1")
	require.ErrorIs(t, err, ErrRetryExhausted)

	got, err := engine.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 2, got.RetryCount)
}

func TestCancelPendingAndRetrying(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	_, err := engine.AddTask(ctx, validTask("t1"))
	require.NoError(t, err)
	ok, err := engine.CancelTask(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = engine.AddTask(ctx, validTask("t2"))
	require.NoError(t, err)
	require.NoError(t, engine.UpdateTaskStatus(ctx, "t2", model.StatusProcessing, "", nil))
	// 执行中的任务不可取消
	ok, err = engine.CancelTask(ctx, "t2")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = engine.CancelTask(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrTaskNotFound)
}

func TestGetPendingTasksEligibility(t *testing.T) {
	engine, repo, _ := setupEngine(t)
	ctx := context.Background()

	_, err := engine.AddTask(ctx, validTask("now"))
	require.NoError(t, err)

	scheduled := validTask("later")
	future := time.Now().Add(time.Hour)
	scheduled.ScheduledAt = &future
	_, err = engine.AddTask(ctx, scheduled)
	require.NoError(t, err)

	tasks, err := engine.GetPendingTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "now", tasks[0].ID)

	// 计划时间到达后可领取
	past := time.Now().Add(-time.Minute)
	require.NoError(t, repo.Update(ctx, "later", map[string]any{"scheduled_at": past}))
	tasks, err = engine.GetPendingTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
}

func TestClearCompletedRetention(t *testing.T) {
	engine, repo, _ := setupEngine(t)
	ctx := context.Background()
	now := time.Now()

	mk := func(id string, status model.TaskStatus, ageDays int) {
		task := validTask(id)
		task.Status = status
		task.CreatedAt = now.AddDate(0, 0, -ageDays)
		require.NoError(t, repo.Insert(ctx, task))
	}
	mk("old-done", model.StatusSuccess, 40)
	mk("old-pending", model.StatusPending, 40)
	mk("new-done", model.StatusSuccess, 5)

	deleted, err := engine.ClearCompleted(ctx, 30)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	_, err = engine.GetTask(ctx, "old-done")
	require.ErrorIs(t, err, repository.ErrTaskNotFound)
	_, err = engine.GetTask(ctx, "old-pending")
	require.NoError(t, err)
	_, err = engine.GetTask(ctx, "new-done")
	require.NoError(t, err)
}

func TestGetStatisticsStuckProcessing(t *testing.T) {
	engine, _, db := setupEngine(t)
	ctx := context.Background()

	_, err := engine.AddTask(ctx, validTask("t1"))
	require.NoError(t, err)
	require.NoError(t, engine.UpdateTaskStatus(ctx, "t1", model.StatusProcessing, "", nil))
	// 回拨 updated_at 模拟崩溃遗留
	require.NoError(t, db.Model(&model.PublishTask{}).Where("id = ?", "t1").
		Update("updated_at", time.Now().Add(-time.Hour)).Error)

	stats, err := engine.GetStatistics(ctx, nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Total)
	require.EqualValues(t, 1, stats.StuckProcessing)
}

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/content-ops/internal/model"
	"github.com/d60-Lab/content-ops/internal/repository"
)

func TestJanitorInvalidSpec(t *testing.T) {
	engine, _, _ := setupEngine(t)
	j := NewJanitor(engine, "not a cron spec", 30)
	require.Error(t, j.Start())
}

func TestJanitorCleansExpiredTerminalTasks(t *testing.T) {
	engine, repo, db := setupEngine(t)
	ctx := context.Background()

	id, err := engine.AddTask(ctx, validTask("expired"))
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, id, map[string]any{"status": model.StatusSuccess}))
	// 把任务做旧到保留期之外
	old := time.Now().AddDate(0, 0, -40)
	require.NoError(t, db.Model(&model.PublishTask{}).Where("id = ?", id).
		Updates(map[string]any{"created_at": old, "updated_at": old}).Error)

	j := NewJanitor(engine, "@every 50ms", 30)
	require.NoError(t, j.Start())
	defer j.Stop()

	require.Eventually(t, func() bool {
		_, err := engine.GetTask(ctx, id)
		return errors.Is(err, repository.ErrTaskNotFound)
	}, 3*time.Second, 25*time.Millisecond)
}

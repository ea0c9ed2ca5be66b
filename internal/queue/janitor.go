package queue

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/d60-Lab/content-ops/pkg/logger"
)

// Janitor 定时清理保留期之外的终态任务
type Janitor struct {
	engine        *Engine
	spec          string
	retentionDays int
	cron          *cron.Cron
}

func NewJanitor(engine *Engine, spec string, retentionDays int) *Janitor {
	if spec == "" {
		spec = "0 3 * * *"
	}
	return &Janitor{engine: engine, spec: spec, retentionDays: retentionDays}
}

func (j *Janitor) Start() error {
	c := cron.New()
	_, err := c.AddFunc(j.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := j.engine.ClearCompleted(ctx, j.retentionDays); err != nil {
			logger.Error("retention cleanup failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	j.cron = c
	c.Start()
	logger.Info("retention janitor started", zap.String("cron", j.spec), zap.Int("retention_days", j.retentionDays))
	return nil
}

// Stop 停止调度并等待在途清理结束
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/content-ops/internal/model"
	"github.com/d60-Lab/content-ops/pkg/logger"
)

// Worker 单逻辑工作者：定时拉取可执行任务，经 Dispatcher 串行执行。
// 批内按 created_at 顺序执行，单条任务异常不影响同批其余任务。
type Worker struct {
	engine     *Engine
	dispatcher *Dispatcher
	interval   time.Duration
	batchSize  int

	baseCtx context.Context

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewWorker(ctx context.Context, engine *Engine, dispatcher *Dispatcher, interval time.Duration, batchSize int) *Worker {
	if ctx == nil {
		ctx = context.Background()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = defaultPendingLimit
	}
	return &Worker{
		engine:     engine,
		dispatcher: dispatcher,
		interval:   interval,
		batchSize:  batchSize,
		baseCtx:    ctx,
	}
}

// Start 启动轮询；重复调用为 no-op
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		logger.Warn("worker already running")
		return
	}
	ctx, cancel := context.WithCancel(w.baseCtx)
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx)
	logger.Info("publish worker started", zap.Duration("interval", w.interval), zap.Int("batch_size", w.batchSize))
}

// Stop 通知退出并等待循环结束，超时由 ctx 控制
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.done
	w.running = false
	w.mu.Unlock()

	cancel()
	select {
	case <-done:
		logger.Info("publish worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	// 启动先处理一轮，积压任务不用等满一个轮询间隔
	if err := w.ProcessOnce(ctx); err != nil {
		logger.Error("queue poll failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessOnce(ctx); err != nil {
				logger.Error("queue poll failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce 拉取一批可执行任务并逐个执行；供轮询与手动触发共用
func (w *Worker) ProcessOnce(ctx context.Context) error {
	tasks, err := w.engine.GetPendingTasks(ctx, w.batchSize)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		w.executeTask(ctx, task)
	}
	return nil
}

func (w *Worker) executeTask(ctx context.Context, task *model.PublishTask) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task execution panicked",
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()
	if err := w.dispatcher.Dispatch(ctx, task); err != nil {
		logger.Error("task dispatch failed", zap.String("task_id", task.ID), zap.Error(err))
	}
}

package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/content-ops/internal/model"
	"github.com/d60-Lab/content-ops/internal/queue"
	"github.com/d60-Lab/content-ops/internal/repository"
)

func must[T any](v T, err error) T { if err != nil { panic(err) }; return v }

// 队列吞吐/时延基准：N 条任务入队后由 worker 批量消费，发布器为本地模拟
func main() {
	N := 1000
	if s := os.Getenv("N"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 { N = n }
	}
	FAILRATE := 0.1
	if s := os.Getenv("FAILRATE"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f < 1 { FAILRATE = f }
	}
	LAT := 2 * time.Millisecond
	if s := os.Getenv("LAT_MS"); s != "" {
		if ms, err := strconv.Atoi(s); err == nil && ms >= 0 { LAT = time.Duration(ms) * time.Millisecond }
	}

	db := must(gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}))
	if err := db.AutoMigrate(&model.PublishTask{}); err != nil { panic(err) }

	repo := repository.NewTaskRepository(db)
	engine := queue.NewEngine(repo, nil, 10*time.Minute)
	registry := queue.NewRegistry()

	// 模拟发布器：固定时延 + 随机失败
	doneCh := make(chan time.Duration, N)
	created := make(map[string]time.Time, N)
	registry.Register("bench", queue.PublisherFunc(func(ctx context.Context, req *queue.PublishRequest) (*queue.PublishResult, error) {
		time.Sleep(LAT)
		if rand.Float64() < FAILRATE {
			return &queue.PublishResult{Success: false, Error: "simulated failure"}, nil
		}
		if t0, ok := created[req.TaskID]; ok {
			doneCh <- time.Since(t0)
		}
		return &queue.PublishResult{Success: true, Data: map[string]any{"post_id": req.TaskID}}, nil
	}))

	dispatcher := queue.NewDispatcher(engine, registry, 1e6)
	worker := queue.NewWorker(context.Background(), engine, dispatcher, time.Hour, 100)

	ctx := context.Background()

	// enqueue
	t0 := time.Now()
	for i := 0; i < N; i++ {
		id := fmt.Sprintf("bench-%06d", i)
		created[id] = time.Now()
		_ = must(engine.AddTask(ctx, &model.PublishTask{
			ID:         id,
			Platform:   "bench",
			Title:      "bench title",
			Content:    "bench content",
			MaxRetries: 3,
		}))
	}
	enqDur := time.Since(t0)

	// drain：反复 ProcessOnce 直到没有可执行任务
	t1 := time.Now()
	for {
		pending := must(engine.GetPendingTasks(ctx, 1))
		if len(pending) == 0 { break }
		_ = worker.ProcessOnce(ctx)
	}
	drainDur := time.Since(t1)

	close(doneCh)
	lats := make([]time.Duration, 0, N)
	for d := range doneCh { lats = append(lats, d) }

	pct := func(vs []time.Duration, p float64) time.Duration {
		if len(vs) == 0 { return 0 }
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(math.Ceil(p*float64(len(xs)))) - 1
		if k < 0 { k = 0 }
		if k >= len(xs) { k = len(xs) - 1 }
		return xs[k]
	}

	stats := must(engine.GetStatistics(ctx, nil, nil))
	fmt.Printf("N=%d, FAILRATE=%.2f, LAT=%v\n", N, FAILRATE, LAT)
	fmt.Printf("Enqueue total: %v, per op: %v\n", enqDur, enqDur/time.Duration(N))
	fmt.Printf("Drain total: %v, throughput: %.1f tasks/s\n", drainDur, float64(N)/drainDur.Seconds())
	fmt.Printf("Enqueue->published: p50=%v, p95=%v, p99=%v (samples=%d)\n",
		pct(lats, 0.50), pct(lats, 0.95), pct(lats, 0.99), len(lats))
	fmt.Printf("Final statuses: %v\n", stats.ByStatus)
}

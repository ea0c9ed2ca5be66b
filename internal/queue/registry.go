package queue

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/d60-Lab/content-ops/pkg/logger"
)

// Registry 平台 -> 发布器映射；后注册覆盖先注册（启动期重配置用）
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
}

func NewRegistry() *Registry {
	return &Registry{publishers: make(map[string]Publisher)}
}

func (r *Registry) Register(platform string, p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.publishers[platform]; exists {
		logger.Warn("publisher re-registered", zap.String("platform", platform))
	}
	r.publishers[platform] = p
	logger.Info("publisher registered", zap.String("platform", platform))
}

func (r *Registry) Resolve(platform string) (Publisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[platform]
	return p, ok
}

// Platforms 已注册平台列表（排序后返回，便于展示）
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.publishers))
	for k := range r.publishers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

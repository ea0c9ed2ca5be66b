package queue

import "context"

// PublishRequest 发给平台发布器的字段子集，由 Dispatcher 从通用任务翻译而来
type PublishRequest struct {
	TaskID        string
	Title         string
	Content       string
	Author        string
	Digest        string
	CoverImageURL string
	VideoURL      string
	ImageURLs     []string
	Topics        []string
	Tags          []string
}

// PublishResult 平台发布结果
type PublishResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"` // 平台返回的帖子 ID / URL 等
	Error   string         `json:"error,omitempty"`
}

// Publisher 平台发布能力；实现方负责平台协议细节
type Publisher interface {
	Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error)
}

// PublisherFunc 便于测试和轻量实现
type PublisherFunc func(ctx context.Context, req *PublishRequest) (*PublishResult, error)

func (f PublisherFunc) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	return f(ctx, req)
}

package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/d60-Lab/content-ops/config"
	"github.com/d60-Lab/content-ops/internal/queue"
)

const defaultZhihuBaseURL = "https://api.zhihu.com"

// Zhihu 知乎文章发布器（OAuth2 bearer token）
type Zhihu struct {
	accessToken string
	baseURL     string
	client      *http.Client
}

func NewZhihu(cfg config.ZhihuConfig) *Zhihu {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultZhihuBaseURL
	}
	return &Zhihu{
		accessToken: cfg.AccessToken,
		baseURL:     baseURL,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (z *Zhihu) Publish(ctx context.Context, req *queue.PublishRequest) (*queue.PublishResult, error) {
	payload := map[string]any{
		"title":   req.Title,
		"content": req.Content,
		"topics":  req.Topics,
	}
	if req.CoverImageURL != "" {
		payload["image_url"] = req.CoverImageURL
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, z.baseURL+"/articles", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+z.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := z.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("zhihu create article: status %d: %s", resp.StatusCode, body)
	}

	var body struct {
		ID  json.Number `json:"id"`
		URL string      `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &queue.PublishResult{
		Success: true,
		Data:    map[string]any{"article_id": body.ID.String(), "url": body.URL},
	}, nil
}

package publisher

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/d60-Lab/content-ops/config"
	"github.com/d60-Lab/content-ops/internal/queue"
)

const defaultXiaohongshuBaseURL = "https://edith.xiaohongshu.com/api/sns/web/v1"

// Xiaohongshu 小红书笔记发布器；请求按平台要求携带参数签名
type Xiaohongshu struct {
	accessToken string
	userID      string
	baseURL     string
	client      *http.Client
}

func NewXiaohongshu(cfg config.XiaohongshuConfig) *Xiaohongshu {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultXiaohongshuBaseURL
	}
	return &Xiaohongshu{
		accessToken: cfg.AccessToken,
		userID:      cfg.UserID,
		baseURL:     baseURL,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (x *Xiaohongshu) Publish(ctx context.Context, req *queue.PublishRequest) (*queue.PublishResult, error) {
	noteType := "normal"
	if req.VideoURL != "" {
		noteType = "video"
	}
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	payload := map[string]any{
		"user_id":   x.userID,
		"type":      noteType,
		"title":     req.Title,
		"content":   req.Content,
		"images":    req.ImageURLs,
		"video":     req.VideoURL,
		"topics":    req.Topics,
		"tags":      req.Tags,
		"timestamp": timestamp,
	}
	payload["sign"] = sign(map[string]string{
		"user_id":   x.userID,
		"type":      noteType,
		"title":     req.Title,
		"timestamp": timestamp,
	})

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/note", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Cookie", "access_token="+x.accessToken)

	resp, err := x.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Success bool   `json:"success"`
		Msg     string `json:"msg"`
		Data    struct {
			NoteID string `json:"note_id"`
			URL    string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, fmt.Errorf("xiaohongshu note: %s", body.Msg)
	}
	return &queue.PublishResult{
		Success: true,
		Data:    map[string]any{"note_id": body.Data.NoteID, "url": body.Data.URL},
	}, nil
}

// sign 参数排序拼接后取 md5
func sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := md5.Sum([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(sum[:])
}

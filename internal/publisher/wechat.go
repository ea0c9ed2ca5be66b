package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/d60-Lab/content-ops/config"
	"github.com/d60-Lab/content-ops/internal/queue"
)

const defaultWechatBaseURL = "https://api.weixin.qq.com/cgi-bin"

// 令牌提前 5 分钟过期，避免边界上用到失效令牌
const tokenExpirySlack = 300 * time.Second

// Wechat 微信公众号发布器：先入草稿箱再提交群发
type Wechat struct {
	appID     string
	appSecret string
	baseURL   string
	client    *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewWechat(cfg config.WechatConfig) *Wechat {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultWechatBaseURL
	}
	return &Wechat{
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Wechat) Publish(ctx context.Context, req *queue.PublishRequest) (*queue.PublishResult, error) {
	token, err := w.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	mediaID, err := w.addDraft(ctx, token, req)
	if err != nil {
		return nil, err
	}

	publishID, err := w.submitPublish(ctx, token, mediaID)
	if err != nil {
		return nil, err
	}

	return &queue.PublishResult{
		Success: true,
		Data:    map[string]any{"media_id": mediaID, "publish_id": publishID},
	}, nil
}

func (w *Wechat) getAccessToken(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.accessToken != "" && time.Now().Before(w.tokenExpiry) {
		return w.accessToken, nil
	}

	q := url.Values{}
	q.Set("grant_type", "client_credential")
	q.Set("appid", w.appID)
	q.Set("secret", w.appSecret)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/token?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := w.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		ErrCode     int    `json:"errcode"`
		ErrMsg      string `json:"errmsg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("wechat token: %d %s", body.ErrCode, body.ErrMsg)
	}

	w.accessToken = body.AccessToken
	w.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - tokenExpirySlack)
	return w.accessToken, nil
}

func (w *Wechat) addDraft(ctx context.Context, token string, req *queue.PublishRequest) (string, error) {
	payload := map[string]any{
		"articles": []map[string]any{{
			"title":              req.Title,
			"author":             req.Author,
			"digest":             req.Digest,
			"content":            req.Content,
			"content_source_url": req.CoverImageURL,
		}},
	}
	var body struct {
		MediaID string `json:"media_id"`
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := w.postJSON(ctx, "/draft/add", token, payload, &body); err != nil {
		return "", err
	}
	if body.MediaID == "" {
		return "", fmt.Errorf("wechat draft: %d %s", body.ErrCode, body.ErrMsg)
	}
	return body.MediaID, nil
}

func (w *Wechat) submitPublish(ctx context.Context, token, mediaID string) (string, error) {
	var body struct {
		ErrCode   int         `json:"errcode"`
		ErrMsg    string      `json:"errmsg"`
		PublishID json.Number `json:"publish_id"`
	}
	if err := w.postJSON(ctx, "/freepublish/submit", token, map[string]any{"media_id": mediaID}, &body); err != nil {
		return "", err
	}
	if body.ErrCode != 0 {
		return "", fmt.Errorf("wechat publish: %d %s", body.ErrCode, body.ErrMsg)
	}
	return body.PublishID.String(), nil
}

func (w *Wechat) postJSON(ctx context.Context, path, token string, payload, dest any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.baseURL+path+"?access_token="+url.QueryEscape(token), bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(dest)
}

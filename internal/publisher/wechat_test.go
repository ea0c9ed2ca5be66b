package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/content-ops/config"
	"github.com/d60-Lab/content-ops/internal/queue"
)

func newWechatServer(t *testing.T, tokenCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		require.Equal(t, "client_credential", r.URL.Query().Get("grant_type"))
		require.Equal(t, "app-id", r.URL.Query().Get("appid"))
		require.Equal(t, "app-secret", r.URL.Query().Get("secret"))
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 7200})
	})
	mux.HandleFunc("/draft/add", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "tok-1", r.URL.Query().Get("access_token"))
		var body struct {
			Articles []map[string]any `json:"articles"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Articles, 1)
		require.Equal(t, "周报", body.Articles[0]["title"])
		json.NewEncoder(w).Encode(map[string]any{"media_id": "media-1"})
	})
	mux.HandleFunc("/freepublish/submit", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			MediaID string `json:"media_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "media-1", body.MediaID)
		json.NewEncoder(w).Encode(map[string]any{"errcode": 0, "publish_id": 2247483647})
	})
	return httptest.NewServer(mux)
}

func TestWechatPublish(t *testing.T) {
	var tokenCalls int32
	srv := newWechatServer(t, &tokenCalls)
	defer srv.Close()

	w := NewWechat(config.WechatConfig{AppID: "app-id", AppSecret: "app-secret", BaseURL: srv.URL})
	res, err := w.Publish(context.Background(), &queue.PublishRequest{
		TaskID:  "t1",
		Title:   "周报",
		Content: "<p>正文</p>",
		Author:  "运营",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "media-1", res.Data["media_id"])
	require.Equal(t, "2247483647", res.Data["publish_id"])

	// 第二次发布复用缓存的 access_token
	_, err = w.Publish(context.Background(), &queue.PublishRequest{Title: "周报", Content: "c"})
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestWechatTokenError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"errcode": 40013, "errmsg": "invalid appid"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	w := NewWechat(config.WechatConfig{AppID: "bad", AppSecret: "bad", BaseURL: srv.URL})
	_, err := w.Publish(context.Background(), &queue.PublishRequest{Title: "t", Content: "c"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid appid")
}

func TestWechatDraftError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 7200})
	})
	mux.HandleFunc("/draft/add", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"errcode": 45009, "errmsg": "reach max api daily quota limit"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	w := NewWechat(config.WechatConfig{AppID: "a", AppSecret: "s", BaseURL: srv.URL})
	_, err := w.Publish(context.Background(), &queue.PublishRequest{Title: "t", Content: "c"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "45009")
}

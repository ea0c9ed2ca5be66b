package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"    // 待处理
	StatusProcessing TaskStatus = "processing" // 处理中
	StatusSuccess    TaskStatus = "success"    // 成功
	StatusFailed     TaskStatus = "failed"     // 失败
	StatusRetrying   TaskStatus = "retrying"   // 重试中
	StatusCancelled  TaskStatus = "cancelled"  // 已取消
)

// Terminal 终态不允许再迁移
func (s TaskStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// 发布平台
const (
	PlatformWechat      = "wechat"
	PlatformZhihu       = "zhihu"
	PlatformXiaohongshu = "xiaohongshu"
)

// 平台扩展字段键名；新平台按需补充，不改表结构
const (
	AttrAuthor        = "author"
	AttrDigest        = "digest"
	AttrCoverImageURL = "thumb_image_url"
	AttrImageURLs     = "image_urls"
	AttrVideoURL      = "video_url"
	AttrTopics        = "topics"
	AttrTags          = "tags"
)

// JSONMap TEXT 列上的 JSON 对象（平台扩展字段、发布结果）
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for JSONMap")
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// PublishTask 发布任务
type PublishTask struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Platform     string     `json:"platform" gorm:"type:varchar(32);index:idx_task_platform;not null"`
	Title        string     `json:"title" gorm:"type:varchar(256);not null"`
	Content      string     `json:"content" gorm:"type:text;not null"`
	Attributes   JSONMap    `json:"attributes,omitempty" gorm:"type:text"`
	Status       TaskStatus `json:"status" gorm:"type:varchar(16);index:idx_task_status;not null;default:'pending'"`
	RetryCount   int        `json:"retry_count" gorm:"not null;default:0"`
	MaxRetries   int        `json:"max_retries" gorm:"not null;default:3"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"type:text"`
	Result       JSONMap    `json:"result,omitempty" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index:idx_task_created;not null"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"not null"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}

func (PublishTask) TableName() string { return "publish_tasks" }

// AttrString 读取字符串扩展字段
func (t *PublishTask) AttrString(key string) string {
	if t.Attributes == nil {
		return ""
	}
	if s, ok := t.Attributes[key].(string); ok {
		return s
	}
	return ""
}

// AttrStrings 读取字符串列表扩展字段；兼容 JSON 反序列化出的 []any
func (t *PublishTask) AttrStrings(key string) []string {
	if t.Attributes == nil {
		return nil
	}
	switch v := t.Attributes[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, it := range v {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

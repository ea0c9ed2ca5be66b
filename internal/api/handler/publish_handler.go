package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/content-ops/internal/model"
	"github.com/d60-Lab/content-ops/internal/queue"
	"github.com/d60-Lab/content-ops/internal/repository"
	"github.com/d60-Lab/content-ops/pkg/response"
)

type createTaskRequest struct {
	ID            string   `json:"id"`
	Platform      string   `json:"platform" binding:"required"`
	Title         string   `json:"title" binding:"required"`
	Content       string   `json:"content" binding:"required"`
	Author        string   `json:"author"`
	Digest        string   `json:"digest"`
	ThumbImageURL string   `json:"thumb_image_url"`
	ImageURLs     []string `json:"image_urls"`
	VideoURL      string   `json:"video_url"`
	Topics        []string `json:"topics"`
	Tags          []string `json:"tags"`
	MaxRetries    *int     `json:"max_retries" binding:"omitempty,gte=0"` // 缺省取默认值，0 表示不重试
	ScheduledAt   string   `json:"scheduled_at" binding:"omitempty,rfc3339"`
}

// CreateTask 提交发布任务
// @Summary 提交发布任务
// @Tags 发布
// @Accept json
// @Produce json
// @Param request body createTaskRequest true "任务信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/publish/tasks [post]
func (h *Handler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	maxRetries := -1 // 未指定，由引擎取默认值
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	task := &model.PublishTask{
		ID:         req.ID,
		Platform:   req.Platform,
		Title:      req.Title,
		Content:    req.Content,
		MaxRetries: maxRetries,
		Attributes: buildAttributes(&req),
	}
	if req.ScheduledAt != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			response.BadRequest(c, "scheduled_at must be RFC3339")
			return
		}
		task.ScheduledAt = &t
	}

	id, err := h.engine.AddTask(c.Request.Context(), task)
	switch {
	case errors.Is(err, queue.ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, repository.ErrDuplicateTask):
		response.Conflict(c, "task id already exists")
	case err != nil:
		response.InternalError(c, err)
	default:
		response.Success(c, gin.H{"task_id": id})
	}
}

func buildAttributes(req *createTaskRequest) model.JSONMap {
	attrs := model.JSONMap{}
	if req.Author != "" {
		attrs[model.AttrAuthor] = req.Author
	}
	if req.Digest != "" {
		attrs[model.AttrDigest] = req.Digest
	}
	if req.ThumbImageURL != "" {
		attrs[model.AttrCoverImageURL] = req.ThumbImageURL
	}
	if req.VideoURL != "" {
		attrs[model.AttrVideoURL] = req.VideoURL
	}
	if len(req.ImageURLs) > 0 {
		attrs[model.AttrImageURLs] = req.ImageURLs
	}
	if len(req.Topics) > 0 {
		attrs[model.AttrTopics] = req.Topics
	}
	if len(req.Tags) > 0 {
		attrs[model.AttrTags] = req.Tags
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

// GetTask 查询任务
// @Summary 查询任务状态
// @Tags 发布
// @Param id path string true "任务 ID"
// @Success 200 {object} response.Response{data=model.PublishTask}
// @Failure 404 {object} response.Response
// @Router /api/v1/publish/tasks/{id} [get]
func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.engine.GetTask(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrTaskNotFound) {
		response.NotFound(c, "task not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, task)
}

// CancelTask 取消任务
// @Summary 取消任务（仅 pending / retrying 可取消）
// @Tags 发布
// @Param id path string true "任务 ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/publish/tasks/{id}/cancel [post]
func (h *Handler) CancelTask(c *gin.Context) {
	ok, err := h.engine.CancelTask(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrTaskNotFound) {
		response.NotFound(c, "task not found")
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !ok {
		response.BadRequest(c, "task cannot be cancelled in current status")
		return
	}
	response.Success(c, nil)
}

// ListHistory 查询发布历史
// @Summary 查询发布历史
// @Tags 发布
// @Param platform query string false "平台过滤"
// @Param status query string false "状态过滤"
// @Param start query string false "开始时间（RFC3339）"
// @Param end query string false "结束时间（RFC3339）"
// @Param limit query int false "数量限制" default(100)
// @Success 200 {object} response.Response
// @Router /api/v1/publish/history [get]
func (h *Handler) ListHistory(c *gin.Context) {
	filter := repository.HistoryFilter{
		Platform: c.Query("platform"),
		Status:   model.TaskStatus(c.Query("status")),
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "100")); err == nil {
		if limit > 500 {
			limit = 500
		}
		filter.Limit = limit
	}
	var parseErr error
	filter.Start, parseErr = parseTimeQuery(c, "start")
	if parseErr != nil {
		response.BadRequest(c, parseErr.Error())
		return
	}
	filter.End, parseErr = parseTimeQuery(c, "end")
	if parseErr != nil {
		response.BadRequest(c, parseErr.Error())
		return
	}

	tasks, err := h.engine.GetHistory(c.Request.Context(), filter)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"tasks": tasks, "total": len(tasks)})
}

// GetStatistics 发布统计
// @Summary 发布统计（含疑似卡死任务计数）
// @Tags 发布
// @Param start query string false "开始时间（RFC3339）"
// @Param end query string false "结束时间（RFC3339）"
// @Success 200 {object} response.Response{data=queue.Statistics}
// @Router /api/v1/publish/statistics [get]
func (h *Handler) GetStatistics(c *gin.Context) {
	start, err := parseTimeQuery(c, "start")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	end, err := parseTimeQuery(c, "end")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	stats, err := h.engine.GetStatistics(c.Request.Context(), start, end)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, stats)
}

// ListPlatforms 已注册平台
// @Summary 查询已注册的发布平台
// @Tags 发布
// @Success 200 {object} response.Response
// @Router /api/v1/publish/platforms [get]
func (h *Handler) ListPlatforms(c *gin.Context) {
	response.Success(c, gin.H{"platforms": h.registry.Platforms()})
}

// ProcessQueue 手动触发一轮队列处理
// @Summary 手动处理队列
// @Tags 发布
// @Success 200 {object} response.Response
// @Router /api/v1/publish/queue/process [post]
func (h *Handler) ProcessQueue(c *gin.Context) {
	if err := h.worker.ProcessOnce(c.Request.Context()); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}

// CleanupHistory 清理历史
// @Summary 清理保留期之外的终态任务
// @Tags 发布
// @Param days query int false "保留天数" default(30)
// @Success 200 {object} response.Response
// @Router /api/v1/publish/history [delete]
func (h *Handler) CleanupHistory(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days < 1 {
		response.BadRequest(c, "days must be a positive integer")
		return
	}
	deleted, err := h.engine.ClearCompleted(c.Request.Context(), days)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": deleted})
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.New(name + " must be RFC3339")
	}
	return &t, nil
}

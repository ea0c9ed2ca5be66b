package queue

import "errors"

var (
	// ErrValidation 入参缺失必填字段
	ErrValidation = errors.New("invalid task")
	// ErrInvalidTransition 终态任务不允许再变更
	ErrInvalidTransition = errors.New("task in terminal status")
	// ErrRetryExhausted 重试次数已达上限
	ErrRetryExhausted = errors.New("retry limit reached")
)

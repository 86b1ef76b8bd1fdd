package models

import (
	"time"
)

// TaskStatus 定义了派发任务的几种可能状态
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
)

// TaskRecord 代表一次派发的持久化记录，在 worker 返回完成报告后更新。
type TaskRecord struct {
	ID             string                 `bson:"_id" json:"id"`                         // 任务唯一ID，与 TaskEnvelope 的 message_id 相同
	ConversationID string                 `bson:"conversation_id" json:"conversationID"` // 发起该任务的会话ID
	AgentID        string                 `bson:"agent_id" json:"agentID"`               // 目标 agent
	Status         TaskStatus             `bson:"status" json:"status"`                  // 任务当前状态
	Payload        map[string]interface{} `bson:"payload" json:"payload"`                // 派发时的参数载荷
	Result         interface{}            `bson:"result,omitempty" json:"result,omitempty"` // 任务成功后的输出结果
	Error          string                 `bson:"error,omitempty" json:"error,omitempty"`   // 任务失败时的错误信息
	Cached         bool                   `bson:"cached" json:"cached"`                  // 结果是否来自 LTM 缓存
	SubmittedAt    time.Time              `bson:"submitted_at" json:"submittedAt"`       // 任务派发时间
	CompletedAt    time.Time              `bson:"completed_at,omitempty" json:"completedAt,omitempty"` // 任务完成时间
}

// Package protocol 定义了 supervisor 与 worker agent 之间的消息协议。
// 这里只有纯数据结构和纯构造函数，没有任何 I/O；
// 它是其他所有组件在网络边界上序列化的共享词汇表。
package protocol

import (
	"time"

	"github.com/google/uuid"
)

// 消息类型标签。
const (
	TypeTaskAssignment   = "task_assignment"
	TypeCompletionReport = "completion_report"
)

// 完成报告的状态。
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Task 描述了要求 worker 执行的任务：名称加参数映射。
type Task struct {
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// TaskEnvelope 是发送给 worker 的不可变工作单元。
// 由派发器在转发的那一刻创建，创建后不再修改。
type TaskEnvelope struct {
	MessageID string    `json:"message_id"` // 全局唯一的消息ID
	Sender    string    `json:"sender"`     // 发送方标识 (supervisor)
	Recipient string    `json:"recipient"`  // 目标 agent ID
	Type      string    `json:"type"`       // 恒为 "task_assignment"
	Task      Task      `json:"task"`       // 任务内容
	Timestamp time.Time `json:"timestamp"`  // 创建时间
}

// CompletionReport 是 worker 返回的不可变结果单元。
// RelatedMessageID 回指产生它的 TaskEnvelope；每个信封恰好对应一份报告。
type CompletionReport struct {
	MessageID        string                 `json:"message_id"`
	Sender           string                 `json:"sender"`
	Recipient        string                 `json:"recipient"`
	Type             string                 `json:"type"` // 恒为 "completion_report"
	RelatedMessageID string                 `json:"related_message_id"`
	Status           string                 `json:"status"` // "SUCCESS" 或 "FAILURE"
	Results          map[string]interface{} `json:"results"`
	Timestamp        time.Time              `json:"timestamp"`
}

// NewEnvelope 构造一个新的任务信封：生成唯一消息ID并打上当前时间戳。
func NewEnvelope(sender, agentID, taskName string, params map[string]interface{}) TaskEnvelope {
	return TaskEnvelope{
		MessageID: uuid.New().String(),
		Sender:    sender,
		Recipient: agentID,
		Type:      TypeTaskAssignment,
		Task:      Task{Name: taskName, Parameters: params},
		Timestamp: time.Now(),
	}
}

// NewFailureReport 为给定信封在本地合成一份失败报告。
// 用于 worker 不可达或返回无效响应等无法取得真实报告的场景。
func NewFailureReport(env TaskEnvelope, errorMessage string) CompletionReport {
	return CompletionReport{
		MessageID:        uuid.New().String(),
		Sender:           env.Recipient,
		Recipient:        env.Sender,
		Type:             TypeCompletionReport,
		RelatedMessageID: env.MessageID,
		Status:           StatusFailure,
		Results:          map[string]interface{}{"error": errorMessage},
		Timestamp:        time.Now(),
	}
}

// NewSuccessReport 构造一份成功报告，output 作为结果载荷。
// worker 实现和缓存命中合成都会用到它。
func NewSuccessReport(env TaskEnvelope, output interface{}) CompletionReport {
	return CompletionReport{
		MessageID:        uuid.New().String(),
		Sender:           env.Recipient,
		Recipient:        env.Sender,
		Type:             TypeCompletionReport,
		RelatedMessageID: env.MessageID,
		Status:           StatusSuccess,
		Results:          map[string]interface{}{"output": output},
		Timestamp:        time.Now(),
	}
}

// MarkCached 在报告的结果中标记其来源于 LTM 缓存。
func MarkCached(report CompletionReport) CompletionReport {
	results := make(map[string]interface{}, len(report.Results)+1)
	for k, v := range report.Results {
		results[k] = v
	}
	results["cached"] = true
	report.Results = results
	return report
}

// IsCached 报告结果是否被标记为缓存命中。
func (r CompletionReport) IsCached() bool {
	cached, _ := r.Results["cached"].(bool)
	return cached
}

// Output 返回成功报告的结果载荷。
func (r CompletionReport) Output() interface{} {
	return r.Results["output"]
}

// ErrorMessage 返回失败报告中的错误描述。
func (r CompletionReport) ErrorMessage() string {
	msg, _ := r.Results["error"].(string)
	return msg
}

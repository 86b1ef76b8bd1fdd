package logger

import (
	"Minerva_2.0/internal/models"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger 是对 logrus 的封装，以提供更方便的结构化日志记录功能。
type Logger struct {
	entry *logrus.Entry
}

// Init 初始化全局的 logrus 配置。
// level: 配置文件中的日志级别字符串 (e.g., "info", "debug")，非法值回退为 info。
func Init(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}

	// 设置日志格式为 JSON，这对于后续的日志采集和分析至关重要。
	logrus.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	// 设置日志输出到标准输出（终端）。
	logrus.SetOutput(os.Stdout)

	// 设置全局日志级别。
	logrus.SetLevel(parsed)
}

// New 创建一个新的 Logger 实例，并可以预设一些初始字段。
func New(serviceName, traceID, conversationID string) *Logger {
	return &Logger{
		entry: logrus.WithFields(logrus.Fields{
			"service_name":    serviceName,
			"trace_id":        traceID,
			"conversation_id": conversationID,
		}),
	}
}

// WithConversation 返回一个绑定了会话ID的新 Logger。
func (l *Logger) WithConversation(conversationID string) *Logger {
	return &Logger{entry: l.entry.WithField("conversation_id", conversationID)}
}

// WithAgent 返回一个绑定了 agent ID 的新 Logger。
func (l *Logger) WithAgent(agentID string) *Logger {
	return &Logger{entry: l.entry.WithField("agent_id", agentID)}
}

// WithRequest 将请求信息添加到日志条目中。
func (l *Logger) WithRequest(req models.RequestInfo) *Logger {
	return &Logger{entry: l.entry.WithField("request_info", req)}
}

// WithError 将错误信息添加到日志条目中。
func (l *Logger) WithError(err error) *Logger {
	info := models.ErrorInfo{Message: err.Error()}
	if se, ok := models.AsSupervisorError(err); ok {
		info.Type = string(se.Code)
	}
	return &Logger{entry: l.entry.WithField("error", info)}
}

// WithPayload 将自定义的业务数据添加到日志条目中。
func (l *Logger) WithPayload(payload map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithField("payload", payload)}
}

// Info 记录一条信息级别的日志。
func (l *Logger) Info(message string) {
	l.entry.Info(message)
}

// Warn 记录一条警告级别的日志。
func (l *Logger) Warn(message string) {
	l.entry.Warn(message)
}

// Error 记录一条错误级别的日志。
func (l *Logger) Error(message string) {
	l.entry.Error(message)
}

// Debug 记录一条调试级别的日志。
func (l *Logger) Debug(message string) {
	l.entry.Debug(message)
}

// Fatal 记录一条致命错误级别的日志，并终止程序。
func (l *Logger) Fatal(message string) {
	l.entry.Fatal(message)
}

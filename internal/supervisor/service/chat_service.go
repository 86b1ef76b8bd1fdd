package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"Minerva_2.0/internal/dispatcher"
	"Minerva_2.0/internal/memory"
	"Minerva_2.0/internal/models"
	"Minerva_2.0/internal/orchestrator"
	"Minerva_2.0/internal/protocol"
	"Minerva_2.0/internal/registry"
	"Minerva_2.0/internal/supervisor/publisher"
	"Minerva_2.0/internal/supervisor/store"
	"Minerva_2.0/pkg/logger"
)

// Response types returned by Chat.
const (
	ResponseClarification = "clarification"
	ResponseResult        = "result"
)

// ChatResponse is the caller-facing outcome of one message: either a list
// of clarifying questions or a final (possibly cached) result.
type ChatResponse struct {
	ConversationID string      `json:"conversation_id"`
	Type           string      `json:"type"`
	AgentID        string      `json:"agent_id,omitempty"`
	Confidence     float64     `json:"confidence"`
	Reasoning      string      `json:"reasoning,omitempty"`
	Questions      []string    `json:"questions,omitempty"`
	Result         interface{} `json:"result,omitempty"`
	Cached         bool        `json:"cached"`
	TaskID         string      `json:"task_id,omitempty"`
}

// ChatService glues the orchestrator and dispatcher into the single
// request/response operation the API exposes, and owns the side channels:
// task records and completion events.
type ChatService struct {
	orch      *orchestrator.Orchestrator
	disp      *dispatcher.Dispatcher
	registry  *registry.Registry
	stm       *memory.ShortTermMemory
	recorder  store.TaskRecorder
	publisher publisher.EventPublisher
	log       *logger.Logger
}

func NewChatService(orch *orchestrator.Orchestrator, disp *dispatcher.Dispatcher, reg *registry.Registry, stm *memory.ShortTermMemory, recorder store.TaskRecorder, pub publisher.EventPublisher, log *logger.Logger) *ChatService {
	return &ChatService{
		orch:      orch,
		disp:      disp,
		registry:  reg,
		stm:       stm,
		recorder:  recorder,
		publisher: pub,
		log:       log,
	}
}

// Chat processes one user message end to end. A missing conversation id
// starts a new conversation. agentID, when non-empty, pins routing to that
// agent.
func (s *ChatService) Chat(ctx context.Context, conversationID, message, agentID string) (*ChatResponse, error) {
	if conversationID == "" {
		conversationID = uuid.New().String()
	}
	log := s.log.WithConversation(conversationID)

	res, err := s.orch.ProcessMessage(ctx, conversationID, message, agentID)
	if err != nil {
		return nil, err
	}

	if res.Kind == orchestrator.ResultClarificationNeeded {
		return &ChatResponse{
			ConversationID: conversationID,
			Type:           ResponseClarification,
			AgentID:        res.AgentID,
			Confidence:     res.Confidence,
			Reasoning:      res.Reasoning,
			Questions:      res.Questions,
		}, nil
	}

	report, err := s.dispatchAndRecord(ctx, conversationID, message, res)
	if err != nil {
		return nil, err
	}

	// The topic is done; the next message starts fresh parameter gathering.
	s.orch.Conversations().ClearAfterDispatch(conversationID)

	log.WithAgent(res.AgentID).WithPayload(map[string]interface{}{
		"cached": report.IsCached(),
	}).Info("task completed")

	return &ChatResponse{
		ConversationID: conversationID,
		Type:           ResponseResult,
		AgentID:        res.AgentID,
		Confidence:     res.Confidence,
		Reasoning:      res.Reasoning,
		Result:         report.Output(),
		Cached:         report.IsCached(),
		TaskID:         report.RelatedMessageID,
	}, nil
}

// dispatchAndRecord wraps the dispatch with task-record bookkeeping and
// completion-event publishing. Bookkeeping failures are logged, never
// allowed to affect the caller's result.
func (s *ChatService) dispatchAndRecord(ctx context.Context, conversationID, message string, res orchestrator.Result) (protocol.CompletionReport, error) {
	report, dispatchErr := s.disp.Dispatch(ctx, res.AgentID, res.TaskName, res.Payload, message)

	taskID := report.RelatedMessageID
	if taskID != "" {
		record := &models.TaskRecord{
			ID:             taskID,
			ConversationID: conversationID,
			AgentID:        res.AgentID,
			Status:         models.TaskStatusPending,
			Payload:        res.Payload,
			SubmittedAt:    time.Now(),
		}
		if err := s.recorder.RecordSubmission(ctx, record); err != nil {
			s.log.WithError(err).Warn("failed to record task submission")
		}
	}

	event := publisher.CompletionEvent{
		TaskID:         taskID,
		ConversationID: conversationID,
		AgentID:        res.AgentID,
		Cached:         report.IsCached(),
		Timestamp:      time.Now(),
	}

	if dispatchErr != nil {
		event.Status = string(models.TaskStatusFailed)
		event.Error = dispatchErr.Error()
		if taskID != "" {
			if err := s.recorder.RecordCompletion(ctx, taskID, models.TaskStatusFailed, dispatchErr.Error(), false); err != nil {
				s.log.WithError(err).Warn("failed to record task failure")
			}
		}
		s.publisher.PublishCompletion(ctx, event)
		return report, dispatchErr
	}

	event.Status = string(models.TaskStatusSuccess)
	event.Result = report.Output()
	if err := s.recorder.RecordCompletion(ctx, taskID, models.TaskStatusSuccess, report.Output(), report.IsCached()); err != nil {
		s.log.WithError(err).Warn("failed to record task completion")
	}
	s.publisher.PublishCompletion(ctx, event)

	return report, nil
}

// History returns the retained turns of a conversation, oldest first.
func (s *ChatService) History(conversationID string) []orchestrator.Turn {
	turns := s.orch.Conversations().History(conversationID)
	if turns == nil {
		turns = []orchestrator.Turn{}
	}
	return turns
}

// Reset discards a conversation's turns and gathered parameters.
func (s *ChatService) Reset(conversationID string) {
	s.orch.Conversations().Reset(conversationID)
}

// Agents returns the catalog snapshot with live health status.
func (s *ChatService) Agents() []models.AgentDescriptor {
	return s.registry.ListAgents()
}

// MemoryStats summarizes in-process memory state for the stats endpoint.
type MemoryStats struct {
	Conversations int                        `json:"conversations"`
	STMEntries    map[string]int             `json:"stm_entries"`
	AgentStatus   map[models.AgentStatus]int `json:"agent_status"`
}

func (s *ChatService) MemoryStats() MemoryStats {
	return MemoryStats{
		Conversations: s.orch.Conversations().Count(),
		STMEntries:    s.stm.Sizes(),
		AgentStatus:   s.registry.StatusCounts(),
	}
}

// Package orchestrator decides, once per user turn, which agent should
// handle a request and whether enough parameters exist to dispatch it.
// One model call per turn; everything else is deterministic gating.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"Minerva_2.0/internal/config"
	"Minerva_2.0/internal/llm"
	"Minerva_2.0/internal/models"
	"Minerva_2.0/internal/registry"
	"Minerva_2.0/pkg/logger"
)

// ResultKind tags the outcome of one orchestration turn.
type ResultKind string

const (
	ResultClarificationNeeded ResultKind = "CLARIFICATION_NEEDED"
	ResultReadyToDispatch     ResultKind = "READY_TO_DISPATCH"
)

// Result is the outcome of processing one user message. For
// CLARIFICATION_NEEDED the Questions field carries what to ask; for
// READY_TO_DISPATCH the Payload field carries the agent's shaped
// parameters, ready for the dispatcher.
type Result struct {
	Kind       ResultKind             `json:"kind"`
	AgentID    string                 `json:"agent_id,omitempty"`
	TaskName   string                 `json:"task_name,omitempty"`
	Confidence float64                `json:"confidence"`
	Reasoning  string                 `json:"reasoning,omitempty"`
	Questions  []string               `json:"questions,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Orchestrator is the per-turn state machine between the API and the
// dispatcher. It owns no I/O beyond the single model invocation.
type Orchestrator struct {
	registry          *registry.Registry
	model             llm.Client
	conversations     *ConversationManager
	dispatchThreshold float64
	clarifyThreshold  float64
	modelTimeout      time.Duration
	log               *logger.Logger
}

// fallbackConfidence is assigned to keyword-routed decisions: inside the
// middle band, so dispatch still requires every required parameter.
const fallbackConfidence = 0.60

func New(reg *registry.Registry, model llm.Client, cfg config.OrchestratorConfig, log *logger.Logger) (*Orchestrator, error) {
	modelTimeout, err := time.ParseDuration(cfg.ModelTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid modelTimeout: %w", err)
	}
	return &Orchestrator{
		registry:          reg,
		model:             model,
		conversations:     NewConversationManager(cfg.HistoryLimit),
		dispatchThreshold: cfg.DispatchThreshold,
		clarifyThreshold:  cfg.ClarifyThreshold,
		modelTimeout:      modelTimeout,
		log:               log,
	}, nil
}

// Conversations exposes the conversation manager so the service layer can
// reset conversations and close them out after dispatch.
func (o *Orchestrator) Conversations() *ConversationManager { return o.conversations }

// ProcessMessage runs one orchestration turn. agentOverride, when non-empty,
// pins the routing to that agent and restricts the model call to parameter
// extraction for it. The turn holds the conversation's lock from history
// append to result, so concurrent messages for one conversation serialize.
func (o *Orchestrator) ProcessMessage(ctx context.Context, conversationID, text, agentOverride string) (Result, error) {
	log := o.log.WithConversation(conversationID)

	catalog := o.registry.ListAgents()
	if agentOverride != "" {
		agent, err := o.registry.GetAgent(agentOverride)
		if err != nil {
			return Result{}, err
		}
		catalog = []models.AgentDescriptor{agent}
	}

	conv := o.conversations.acquire(conversationID)
	defer conv.release()

	conv.appendTurn(o.conversations.historyLimit, "user", text)

	decision, err := o.invokeModel(ctx, catalog, conv)
	if err != nil {
		switch models.ErrorCodeOf(err) {
		case models.CodeModelCallFailed:
			// Model boundary down: deterministic keyword fallback, then give
			// up into a clarification rather than a hard error.
			log.WithError(err).Warn("model call failed, trying keyword fallback")
			decision, err = o.keywordFallback(text, catalog)
			if err != nil {
				return o.clarify(conv, 0, "The assistant is temporarily degraded.",
					[]string{"Could you rephrase your request in a few keywords?"}), nil
			}
		default:
			// Malformed output never errors the caller; ask to rephrase.
			log.WithError(err).Warn("unparseable model output, asking for clarification")
			return o.clarify(conv, 0, "I could not interpret that request.",
				[]string{"Could you rephrase your request?"}), nil
		}
	}

	conv.mergeParameters(decision.Parameters)

	// Routing is sticky: keep the previous agent when the model returned null.
	if decision.AgentID != nil && *decision.AgentID != "" {
		conv.state.CurrentAgentID = *decision.AgentID
	}
	if agentOverride != "" {
		conv.state.CurrentAgentID = agentOverride
	}

	return o.gate(conv, decision, log)
}

// invokeModel performs the single bounded model call for this turn and
// parses its structured answer. Parse failures come back as
// MALFORMED_MODEL_OUTPUT, network failures as MODEL_CALL_FAILED.
func (o *Orchestrator) invokeModel(ctx context.Context, catalog []models.AgentDescriptor, conv *conversation) (routingDecision, error) {
	prompt := buildRoutingPrompt(catalog, conv.state.Turns, conv.state.AccumulatedParameters)

	callCtx, cancel := context.WithTimeout(ctx, o.modelTimeout)
	defer cancel()

	raw, err := o.model.Complete(callCtx, prompt)
	if err != nil {
		return routingDecision{}, models.NewSupervisorError(models.CodeModelCallFailed, "routing model call failed", err)
	}

	decision, err := parseRoutingDecision(raw)
	if err != nil {
		return routingDecision{}, models.NewSupervisorError(models.CodeMalformedModelOutput, "routing model output unparseable", err)
	}
	return decision, nil
}

// keywordFallback builds a synthetic decision from capability-tag matching.
// It only runs when the model call itself failed; malformed model output
// goes straight to clarification instead.
func (o *Orchestrator) keywordFallback(text string, catalog []models.AgentDescriptor) (routingDecision, error) {
	agent, ok := matchByKeywords(text, catalog)
	if !ok {
		return routingDecision{}, fmt.Errorf("no keyword match")
	}
	id := agent.ID
	return routingDecision{
		Decision:   "dispatch",
		AgentID:    &id,
		Confidence: fallbackConfidence,
		Reasoning:  "keyword fallback routing",
		Parameters: map[string]interface{}{},
	}, nil
}

// gate applies the confidence bands over the model's advisory decision tag:
//
//	< clarifyThreshold            always clarify
//	[clarify, dispatch)           dispatch only if every required parameter is present
//	>= dispatchThreshold          dispatch; missing required parameters at this
//	                              point are an orchestration bug, surfaced loudly
func (o *Orchestrator) gate(conv *conversation, decision routingDecision, log *logger.Logger) (Result, error) {
	agentID := conv.state.CurrentAgentID

	if decision.Confidence < o.clarifyThreshold || agentID == "" {
		return o.clarify(conv, decision.Confidence, decision.Reasoning, questionsOrDefault(decision.Questions)), nil
	}

	agent, err := o.registry.GetAgent(agentID)
	if err != nil {
		// Model invented an id outside the catalog. Not the caller's fault.
		log.WithAgent(agentID).Warn("model chose unknown agent, asking for clarification")
		return o.clarify(conv, decision.Confidence, decision.Reasoning, questionsOrDefault(nil)), nil
	}

	missing := missingRequired(agent, conv.state.AccumulatedParameters)

	if decision.Confidence < o.dispatchThreshold {
		if len(missing) > 0 {
			return o.clarify(conv, decision.Confidence, decision.Reasoning, askForMissing(agent, missing)), nil
		}
		return o.ready(conv, agent, decision), nil
	}

	if len(missing) > 0 {
		err := models.NewSupervisorError(models.CodeMissingParameter,
			fmt.Sprintf("dispatch-eligible turn for agent %q is missing required parameters %v", agent.ID, missing), nil)
		log.WithAgent(agent.ID).WithError(err).Error("refusing to dispatch incomplete payload")
		return Result{}, err
	}
	return o.ready(conv, agent, decision), nil
}

func (o *Orchestrator) clarify(conv *conversation, confidence float64, reasoning string, questions []string) Result {
	conv.appendTurn(o.conversations.historyLimit, "assistant", joinQuestions(questions))
	return Result{
		Kind:       ResultClarificationNeeded,
		AgentID:    conv.state.CurrentAgentID,
		Confidence: confidence,
		Reasoning:  reasoning,
		Questions:  questions,
	}
}

// ready shapes the accumulated parameters into the agent's declared payload:
// unknown fields are dropped, everything else passes through for the
// dispatcher's typed validation.
func (o *Orchestrator) ready(conv *conversation, agent models.AgentDescriptor, decision routingDecision) Result {
	payload := make(map[string]interface{}, len(agent.Parameters))
	for _, p := range agent.Parameters {
		if v, ok := conv.state.AccumulatedParameters[p.Name]; ok {
			payload[p.Name] = v
		}
	}
	return Result{
		Kind:       ResultReadyToDispatch,
		AgentID:    agent.ID,
		TaskName:   agent.ID,
		Confidence: decision.Confidence,
		Reasoning:  decision.Reasoning,
		Payload:    payload,
	}
}

func missingRequired(agent models.AgentDescriptor, params map[string]interface{}) []string {
	var missing []string
	for _, name := range agent.RequiredParameters() {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func askForMissing(agent models.AgentDescriptor, missing []string) []string {
	questions := make([]string, 0, len(missing))
	for _, name := range missing {
		desc := name
		for _, p := range agent.Parameters {
			if p.Name == name && p.Description != "" {
				desc = p.Description
				break
			}
		}
		questions = append(questions, fmt.Sprintf("Please provide %s (%s).", name, desc))
	}
	return questions
}

func questionsOrDefault(questions []string) []string {
	if len(questions) > 0 {
		return questions
	}
	return []string{"Could you tell me more about what you need help with?"}
}

func joinQuestions(questions []string) string {
	out := ""
	for i, q := range questions {
		if i > 0 {
			out += " "
		}
		out += q
	}
	return out
}

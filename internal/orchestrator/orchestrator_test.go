package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"Minerva_2.0/internal/config"
	"Minerva_2.0/internal/models"
	"Minerva_2.0/internal/registry"
	"Minerva_2.0/pkg/logger"
)

// scriptedModel returns canned responses in sequence, one per call.
type scriptedModel struct {
	responses []string
	err       error
	calls     int
}

func (m *scriptedModel) Complete(ctx context.Context, prompt string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.calls >= len(m.responses) {
		return "", fmt.Errorf("no scripted response for call %d", m.calls)
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func testLogger() *logger.Logger {
	logger.Init("error")
	return logger.New("orchestrator_test", "trace-test", "")
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Load(config.RegistryConfig{
		HealthInterval: "15s",
		ProbeTimeout:   "2s",
		Agents: []models.AgentDescriptor{
			{
				ID:           "quiz_agent",
				Name:         "Quiz Agent",
				Description:  "Generates quizzes",
				Address:      "http://127.0.0.1:9001",
				Capabilities: []string{"quiz", "questions"},
				Keywords:     []string{"quiz", "test me"},
				Parameters: []models.ParameterSpec{
					{Name: "topic", Type: "string", Required: true},
					{Name: "num_questions", Type: "int", Required: true},
					{Name: "difficulty", Type: "string", Required: false},
				},
				Memory: models.MemoryStrategyExact,
			},
			{
				ID:           "assignment_agent",
				Name:         "Assignment Agent",
				Description:  "Helps with assignments",
				Address:      "http://127.0.0.1:9002",
				Capabilities: []string{"assignment", "homework"},
				Keywords:     []string{"assignment", "homework"},
				Parameters: []models.ParameterSpec{
					{Name: "subject", Type: "string", Required: true},
				},
				Memory: models.MemoryStrategySemantic,
			},
			{
				ID:           "tutor_agent",
				Name:         "Tutor Agent",
				Description:  "General tutoring chat",
				Address:      "http://127.0.0.1:9003",
				Capabilities: []string{"explain", "tutor"},
				Keywords:     []string{"explain"},
				Memory:       models.MemoryStrategyNone,
			},
		},
	}, testLogger())
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	return reg
}

func newOrchestrator(t *testing.T, model *scriptedModel) *Orchestrator {
	t.Helper()
	o, err := New(testRegistry(t), model, config.OrchestratorConfig{
		HistoryLimit:      10,
		DispatchThreshold: 0.70,
		ClarifyThreshold:  0.50,
		ModelTimeout:      "5s",
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestHighConfidenceFullParamsDispatches(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"decision":"dispatch","agent_id":"quiz_agent","confidence":0.95,"reasoning":"clear quiz request","parameters":{"topic":"Python","num_questions":10,"difficulty":"beginner"}}`,
	}}
	o := newOrchestrator(t, model)

	res, err := o.ProcessMessage(context.Background(), "c1", "Create a 10-question Python quiz at beginner level", "")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Kind != ResultReadyToDispatch {
		t.Fatalf("kind = %v, want READY_TO_DISPATCH", res.Kind)
	}
	if res.AgentID != "quiz_agent" {
		t.Fatalf("agent = %q", res.AgentID)
	}
	if model.calls != 1 {
		t.Fatalf("model calls = %d, want exactly 1", model.calls)
	}
	if res.Payload["topic"] != "Python" || res.Payload["difficulty"] != "beginner" {
		t.Fatalf("payload = %+v", res.Payload)
	}
}

func TestLowConfidenceAlwaysClarifies(t *testing.T) {
	// Full parameters, but confidence below the floor: must still clarify.
	model := &scriptedModel{responses: []string{
		`{"decision":"dispatch","agent_id":"quiz_agent","confidence":0.3,"parameters":{"topic":"Python","num_questions":5},"questions":["Do you want a quiz?"]}`,
	}}
	o := newOrchestrator(t, model)

	res, err := o.ProcessMessage(context.Background(), "c1", "I need help", "")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Kind != ResultClarificationNeeded {
		t.Fatalf("kind = %v, want CLARIFICATION_NEEDED", res.Kind)
	}
	if len(res.Questions) == 0 {
		t.Fatal("expected at least one question")
	}
}

func TestClarifyThenDispatchAcrossTurns(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"decision":"clarify","agent_id":null,"confidence":0.2,"questions":["What do you need help with?"]}`,
		`{"decision":"dispatch","agent_id":"assignment_agent","confidence":0.85,"parameters":{"subject":"Python sorting"}}`,
	}}
	o := newOrchestrator(t, model)

	res, err := o.ProcessMessage(context.Background(), "c1", "I need help", "")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if res.Kind != ResultClarificationNeeded {
		t.Fatalf("turn 1 kind = %v", res.Kind)
	}

	res, err = o.ProcessMessage(context.Background(), "c1", "Python assignment on sorting", "")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if res.Kind != ResultReadyToDispatch || res.AgentID != "assignment_agent" {
		t.Fatalf("turn 2 = %+v", res)
	}
	if res.Payload["subject"] != "Python sorting" {
		t.Fatalf("payload = %+v", res.Payload)
	}
}

func TestMidBandRequiresAllRequiredParams(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"decision":"dispatch","agent_id":"quiz_agent","confidence":0.6,"parameters":{"topic":"Go"}}`,
		`{"decision":"dispatch","agent_id":"quiz_agent","confidence":0.6,"parameters":{"num_questions":5}}`,
	}}
	o := newOrchestrator(t, model)

	// Missing num_questions: ask for it specifically.
	res, err := o.ProcessMessage(context.Background(), "c1", "quiz me on Go", "")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if res.Kind != ResultClarificationNeeded {
		t.Fatalf("turn 1 kind = %v", res.Kind)
	}
	found := false
	for _, q := range res.Questions {
		if strings.Contains(q, "num_questions") {
			found = true
		}
	}
	if !found {
		t.Fatalf("questions %v do not name the missing parameter", res.Questions)
	}

	// Second turn fills the gap; same mid-band confidence now dispatches.
	res, err = o.ProcessMessage(context.Background(), "c1", "5 questions", "")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if res.Kind != ResultReadyToDispatch {
		t.Fatalf("turn 2 kind = %v", res.Kind)
	}
}

func TestParameterAccumulationIsMonotonic(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"decision":"clarify","agent_id":"quiz_agent","confidence":0.6,"parameters":{"topic":"Go"}}`,
		`{"decision":"dispatch","agent_id":"quiz_agent","confidence":0.9,"parameters":{"topic":null,"num_questions":5}}`,
	}}
	o := newOrchestrator(t, model)

	if _, err := o.ProcessMessage(context.Background(), "c1", "quiz me on Go", ""); err != nil {
		t.Fatalf("turn 1: %v", err)
	}

	// Turn 2 reports topic as null; the earlier value must survive.
	res, err := o.ProcessMessage(context.Background(), "c1", "5 questions please", "")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if res.Kind != ResultReadyToDispatch {
		t.Fatalf("kind = %v", res.Kind)
	}
	if res.Payload["topic"] != "Go" {
		t.Fatalf("topic was lost: payload = %+v", res.Payload)
	}
}

func TestHighConfidenceMissingRequiredIsLoudError(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"decision":"dispatch","agent_id":"quiz_agent","confidence":0.9,"parameters":{"topic":"Go"}}`,
	}}
	o := newOrchestrator(t, model)

	_, err := o.ProcessMessage(context.Background(), "c1", "quiz me on Go", "")
	if models.ErrorCodeOf(err) != models.CodeMissingParameter {
		t.Fatalf("error = %v, want MISSING_REQUIRED_PARAMETER", err)
	}
}

func TestMalformedModelOutputClarifies(t *testing.T) {
	model := &scriptedModel{responses: []string{"I refuse to answer in JSON."}}
	o := newOrchestrator(t, model)

	res, err := o.ProcessMessage(context.Background(), "c1", "quiz me", "")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Kind != ResultClarificationNeeded {
		t.Fatalf("kind = %v, want CLARIFICATION_NEEDED", res.Kind)
	}
	if len(res.Questions) == 0 {
		t.Fatal("expected a rephrase question")
	}
}

func TestModelDownFallsBackToKeywords(t *testing.T) {
	model := &scriptedModel{err: errors.New("connection refused")}
	o := newOrchestrator(t, model)

	// tutor_agent has no required parameters, so the fallback's mid-band
	// confidence is enough to dispatch.
	res, err := o.ProcessMessage(context.Background(), "c1", "please explain recursion", "")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Kind != ResultReadyToDispatch || res.AgentID != "tutor_agent" {
		t.Fatalf("result = %+v, want keyword dispatch to tutor_agent", res)
	}
}

func TestModelDownNoKeywordMatchClarifies(t *testing.T) {
	model := &scriptedModel{err: errors.New("connection refused")}
	o := newOrchestrator(t, model)

	res, err := o.ProcessMessage(context.Background(), "c1", "zzzz", "")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Kind != ResultClarificationNeeded {
		t.Fatalf("kind = %v", res.Kind)
	}
}

func TestAgentOverridePinsRouting(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"decision":"dispatch","agent_id":null,"confidence":0.9,"parameters":{"topic":"Go","num_questions":3}}`,
	}}
	o := newOrchestrator(t, model)

	res, err := o.ProcessMessage(context.Background(), "c1", "3 questions on Go", "quiz_agent")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.AgentID != "quiz_agent" {
		t.Fatalf("agent = %q, want pinned quiz_agent", res.AgentID)
	}
}

func TestAgentOverrideUnknownID(t *testing.T) {
	o := newOrchestrator(t, &scriptedModel{})
	_, err := o.ProcessMessage(context.Background(), "c1", "hello", "nope")
	if models.ErrorCodeOf(err) != models.CodeAgentNotFound {
		t.Fatalf("error = %v, want AGENT_NOT_FOUND", err)
	}
}

func TestResetClearsAccumulatedParameters(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"decision":"clarify","agent_id":"quiz_agent","confidence":0.6,"parameters":{"topic":"Go"}}`,
		`{"decision":"dispatch","agent_id":"quiz_agent","confidence":0.6,"parameters":{"num_questions":5}}`,
	}}
	o := newOrchestrator(t, model)

	if _, err := o.ProcessMessage(context.Background(), "c1", "quiz on Go", ""); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	o.Conversations().Reset("c1")

	// After reset the earlier topic is gone, so mid-band must clarify again.
	res, err := o.ProcessMessage(context.Background(), "c1", "5 questions", "")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if res.Kind != ResultClarificationNeeded {
		t.Fatalf("kind = %v, want clarification after reset", res.Kind)
	}
}


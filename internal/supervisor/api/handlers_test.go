package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"Minerva_2.0/internal/config"
	"Minerva_2.0/internal/dispatcher"
	"Minerva_2.0/internal/memory"
	"Minerva_2.0/internal/models"
	"Minerva_2.0/internal/orchestrator"
	"Minerva_2.0/internal/protocol"
	"Minerva_2.0/internal/registry"
	"Minerva_2.0/internal/supervisor/publisher"
	"Minerva_2.0/internal/supervisor/service"
	"Minerva_2.0/internal/supervisor/store"
	pkghttp "Minerva_2.0/pkg/http"
	"Minerva_2.0/pkg/logger"
	"Minerva_2.0/pkg/ratelimiter"
)

type scriptedModel struct {
	responses []string
	calls     int
}

func (m *scriptedModel) Complete(ctx context.Context, prompt string) (string, error) {
	if m.calls >= len(m.responses) {
		return "", fmt.Errorf("no scripted response for call %d", m.calls)
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

// newTestRouter assembles the full request path against an httptest worker.
func newTestRouter(t *testing.T, model *scriptedModel) (*gin.Engine, *int) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.Init("error")
	log := logger.New("api_test", "trace-test", "")

	processCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/process", func(w http.ResponseWriter, r *http.Request) {
		processCalls++
		var env protocol.TaskEnvelope
		json.NewDecoder(r.Body).Decode(&env)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(protocol.NewSuccessReport(env, "here is your quiz"))
	})
	worker := httptest.NewServer(mux)
	t.Cleanup(worker.Close)

	reg, err := registry.Load(config.RegistryConfig{
		HealthInterval: "15s",
		ProbeTimeout:   "2s",
		Agents: []models.AgentDescriptor{{
			ID:      "quiz_agent",
			Name:    "Quiz Agent",
			Address: worker.URL,
			Parameters: []models.ParameterSpec{
				{Name: "topic", Type: "string", Required: true},
			},
			Memory: models.MemoryStrategyExact,
		}},
	}, log)
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}

	orch, err := orchestrator.New(reg, model, config.OrchestratorConfig{
		HistoryLimit:      10,
		DispatchThreshold: 0.70,
		ClarifyThreshold:  0.50,
		ModelTimeout:      "5s",
	}, log)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}

	stm := memory.NewShortTermMemory(10)
	ltm := memory.NewLongTermMemory(memory.NewInMemoryExactStore(), nil, nil, 0.3, 5, log)
	disp := dispatcher.New(reg, dispatcher.NewWorkerClient(pkghttp.NewClient(15*time.Second, nil)), stm, ltm, "supervisor_test", log)

	svc := service.NewChatService(orch, disp, reg, stm, store.NoopTaskRecorder{}, publisher.NoopEventPublisher{}, log)

	router := gin.New()
	RegisterRoutes(router, NewAPI(svc, log), nil)
	return router, &processCalls
}

func postChat(t *testing.T, router *gin.Engine, body map[string]interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func TestChatDispatchFlow(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"decision":"dispatch","agent_id":"quiz_agent","confidence":0.9,"parameters":{"topic":"Python"}}`,
	}}
	router, processCalls := newTestRouter(t, model)

	rec, resp := postChat(t, router, map[string]interface{}{"message": "quiz me on Python"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if resp["type"] != "result" {
		t.Fatalf("type = %v", resp["type"])
	}
	if resp["result"] != "here is your quiz" {
		t.Fatalf("result = %v", resp["result"])
	}
	if resp["cached"] != false {
		t.Fatal("first result must not be cached")
	}
	if resp["conversation_id"] == "" {
		t.Fatal("missing generated conversation id")
	}
	if *processCalls != 1 {
		t.Fatalf("worker calls = %d", *processCalls)
	}
}

func TestChatClarificationFlow(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"decision":"clarify","agent_id":null,"confidence":0.3,"questions":["What topic?"]}`,
	}}
	router, processCalls := newTestRouter(t, model)

	rec, resp := postChat(t, router, map[string]interface{}{"message": "I need help"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp["type"] != "clarification" {
		t.Fatalf("type = %v", resp["type"])
	}
	if qs, ok := resp["questions"].([]interface{}); !ok || len(qs) == 0 {
		t.Fatalf("questions = %v", resp["questions"])
	}
	if *processCalls != 0 {
		t.Fatal("clarification must not reach the worker")
	}
}

func TestChatCachedOnRepeat(t *testing.T) {
	decision := `{"decision":"dispatch","agent_id":"quiz_agent","confidence":0.9,"parameters":{"topic":"Python"}}`
	model := &scriptedModel{responses: []string{decision, decision}}
	router, processCalls := newTestRouter(t, model)

	postChat(t, router, map[string]interface{}{"message": "quiz me on Python"})
	_, resp := postChat(t, router, map[string]interface{}{"message": "quiz me on Python"})

	if resp["cached"] != true {
		t.Fatalf("second identical request not served from cache: %v", resp)
	}
	if *processCalls != 1 {
		t.Fatalf("worker calls = %d, want 1", *processCalls)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedModel{})
	rec, _ := postChat(t, router, map[string]interface{}{"message": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAgentsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedModel{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Agents []models.AgentDescriptor `json:"agents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Agents) != 1 || resp.Agents[0].ID != "quiz_agent" {
		t.Fatalf("agents = %+v", resp.Agents)
	}
}

func TestResetEndpointClearsState(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"decision":"clarify","agent_id":"quiz_agent","confidence":0.6,"parameters":{"topic":"Go"}}`,
		`{"decision":"dispatch","agent_id":"quiz_agent","confidence":0.6,"parameters":{}}`,
	}}
	router, _ := newTestRouter(t, model)

	_, resp := postChat(t, router, map[string]interface{}{"conversation_id": "c1", "message": "quiz on Go"})
	if resp["type"] != "clarification" {
		t.Fatalf("turn 1 type = %v", resp["type"])
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/c1/reset", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}

	// The topic gathered before the reset is gone: mid-band clarifies again.
	_, resp = postChat(t, router, map[string]interface{}{"conversation_id": "c1", "message": "go on"})
	if resp["type"] != "clarification" {
		t.Fatalf("after reset type = %v", resp["type"])
	}
}

func TestConversationHistoryEndpoint(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"decision":"clarify","agent_id":null,"confidence":0.3,"questions":["What topic?"]}`,
	}}
	router, _ := newTestRouter(t, model)

	postChat(t, router, map[string]interface{}{"conversation_id": "h1", "message": "I need help"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/h1/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		ConversationID string              `json:"conversation_id"`
		Turns          []orchestrator.Turn `json:"turns"`
		Count          int                 `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// One user turn plus the clarifying question.
	if resp.Count != 2 || len(resp.Turns) != 2 {
		t.Fatalf("count = %d, turns = %+v", resp.Count, resp.Turns)
	}
	if resp.Turns[0].Role != "user" || resp.Turns[1].Role != "assistant" {
		t.Fatalf("roles = %q, %q", resp.Turns[0].Role, resp.Turns[1].Role)
	}

	// An unknown conversation reads as empty, not as an error.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/nope/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown id status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 0 || resp.Turns == nil {
		t.Fatalf("unknown id: count = %d, turns = %v", resp.Count, resp.Turns)
	}
}

func TestMemoryStatsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedModel{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/memory/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequestLoggingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger.Init("info")
	hook := logtest.NewGlobal()
	defer hook.Reset()

	router := gin.New()
	router.Use(RequestLogging(logger.New("api_test", "", "")))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("request must produce a log entry")
	}
	info, ok := entry.Data["request_info"].(models.RequestInfo)
	if !ok {
		t.Fatalf("request_info = %#v", entry.Data["request_info"])
	}
	if info.Method != http.MethodGet || info.Path != "/ping" {
		t.Fatalf("request_info = %+v", info)
	}
	payload, ok := entry.Data["payload"].(map[string]interface{})
	if !ok || payload["status"] != http.StatusOK {
		t.Fatalf("payload = %#v", entry.Data["payload"])
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limited := gin.New()
	limited.GET("/api/v1/agents", RateLimit(ratelimiter.NewTokenBucket(0.001, 1)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	first := httptest.NewRecorder()
	limited.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	limited.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
}

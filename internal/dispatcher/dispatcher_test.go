package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"Minerva_2.0/internal/config"
	"Minerva_2.0/internal/memory"
	"Minerva_2.0/internal/models"
	"Minerva_2.0/internal/protocol"
	"Minerva_2.0/internal/registry"
	pkghttp "Minerva_2.0/pkg/http"
	"Minerva_2.0/pkg/logger"
)

func testLogger() *logger.Logger {
	logger.Init("error")
	return logger.New("dispatcher_test", "trace-test", "")
}

// testWorker is an httptest server implementing the worker boundary.
type testWorker struct {
	srv          *httptest.Server
	processCalls int
	healthy      bool
	failWith     string // when set, /process answers with a FAILURE report
}

func newTestWorker(t *testing.T) *testWorker {
	t.Helper()
	w := &testWorker{healthy: true}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		if w.healthy {
			rw.WriteHeader(http.StatusOK)
		} else {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	mux.HandleFunc("/process", func(rw http.ResponseWriter, r *http.Request) {
		w.processCalls++
		var env protocol.TaskEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		var report protocol.CompletionReport
		if w.failWith != "" {
			report = protocol.NewFailureReport(env, w.failWith)
		} else {
			// Structured result, the same shape the echo agent returns.
			report = protocol.NewSuccessReport(env, map[string]interface{}{
				"task":       env.Task.Name,
				"parameters": env.Task.Parameters,
			})
		}
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(report)
	})
	w.srv = httptest.NewServer(mux)
	t.Cleanup(w.srv.Close)
	return w
}

func testSetup(t *testing.T, worker *testWorker, memStrategy models.MemoryStrategy) *Dispatcher {
	t.Helper()
	reg, err := registry.Load(config.RegistryConfig{
		HealthInterval: "15s",
		ProbeTimeout:   "2s",
		Agents: []models.AgentDescriptor{{
			ID:      "echo",
			Name:    "Echo",
			Address: worker.srv.URL,
			Parameters: []models.ParameterSpec{
				{Name: "topic", Type: "string", Required: true},
				{Name: "count", Type: "int", Required: false},
			},
			Memory: memStrategy,
		}},
	}, testLogger())
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}

	ltm := memory.NewLongTermMemory(memory.NewInMemoryExactStore(), nil, nil, 0.3, 5, testLogger())
	client := NewWorkerClient(pkghttp.NewClient(15*time.Second, nil))
	return New(reg, client, memory.NewShortTermMemory(10), ltm, "supervisor_test", testLogger())
}

func TestDispatchSuccessWritesMemory(t *testing.T) {
	worker := newTestWorker(t)
	d := testSetup(t, worker, models.MemoryStrategyExact)

	report, err := d.Dispatch(context.Background(), "echo", "echo", map[string]interface{}{"topic": "go"}, "tell me about go")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if report.Status != protocol.StatusSuccess {
		t.Fatalf("status = %q", report.Status)
	}
	if report.IsCached() {
		t.Fatal("first dispatch must not be cached")
	}
	if worker.processCalls != 1 {
		t.Fatalf("process calls = %d, want 1", worker.processCalls)
	}
	if d.stm.Size("echo") != 1 {
		t.Fatalf("stm size = %d, want 1", d.stm.Size("echo"))
	}
}

func TestRepeatedDispatchServedFromCache(t *testing.T) {
	worker := newTestWorker(t)
	d := testSetup(t, worker, models.MemoryStrategyExact)
	params := map[string]interface{}{"topic": "go"}

	fresh, err := d.Dispatch(context.Background(), "echo", "echo", params, "tell me about go")
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	report, err := d.Dispatch(context.Background(), "echo", "echo", params, "tell me about go")
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if !report.IsCached() {
		t.Fatal("second identical dispatch must be served from cache")
	}
	// The cached reply must replay the fresh result structurally intact,
	// not a stringified rendering of it.
	if !reflect.DeepEqual(report.Output(), fresh.Output()) {
		t.Fatalf("cached output = %#v, want %#v", report.Output(), fresh.Output())
	}
	if worker.processCalls != 1 {
		t.Fatalf("process calls = %d, worker must not be invoked on cache hit", worker.processCalls)
	}
	// Cache hits still refresh conversational recency.
	if d.stm.Size("echo") != 2 {
		t.Fatalf("stm size = %d, want 2", d.stm.Size("echo"))
	}
}

func TestDifferentParamsMissCache(t *testing.T) {
	worker := newTestWorker(t)
	d := testSetup(t, worker, models.MemoryStrategyExact)

	d.Dispatch(context.Background(), "echo", "echo", map[string]interface{}{"topic": "go"}, "")
	d.Dispatch(context.Background(), "echo", "echo", map[string]interface{}{"topic": "rust"}, "")

	if worker.processCalls != 2 {
		t.Fatalf("process calls = %d, want 2 (different params)", worker.processCalls)
	}
}

func TestUnhealthyAgentFailsFast(t *testing.T) {
	worker := newTestWorker(t)
	worker.healthy = false
	d := testSetup(t, worker, models.MemoryStrategyExact)

	_, err := d.Dispatch(context.Background(), "echo", "echo", map[string]interface{}{"topic": "go"}, "")
	if models.ErrorCodeOf(err) != models.CodeAgentUnavailable {
		t.Fatalf("error = %v, want AGENT_UNAVAILABLE", err)
	}
	if worker.processCalls != 0 {
		t.Fatalf("process calls = %d, unhealthy agent must not receive tasks", worker.processCalls)
	}
}

func TestWorkerFailureSurfaced(t *testing.T) {
	worker := newTestWorker(t)
	worker.failWith = "quota exhausted"
	d := testSetup(t, worker, models.MemoryStrategyExact)

	report, err := d.Dispatch(context.Background(), "echo", "echo", map[string]interface{}{"topic": "go"}, "")
	if models.ErrorCodeOf(err) != models.CodeWorkerFailure {
		t.Fatalf("error = %v, want WORKER_FAILURE", err)
	}
	if report.ErrorMessage() != "quota exhausted" {
		t.Fatalf("error detail = %q", report.ErrorMessage())
	}
	// A failed exchange must not poison the cache.
	if d.stm.Size("echo") != 0 {
		t.Fatal("failed dispatch must not be recorded in STM")
	}
}

func TestUnknownAgent(t *testing.T) {
	worker := newTestWorker(t)
	d := testSetup(t, worker, models.MemoryStrategyExact)

	_, err := d.Dispatch(context.Background(), "ghost", "task", nil, "")
	if models.ErrorCodeOf(err) != models.CodeAgentNotFound {
		t.Fatalf("error = %v, want AGENT_NOT_FOUND", err)
	}
}

func TestMissingRequiredParameterRejected(t *testing.T) {
	worker := newTestWorker(t)
	d := testSetup(t, worker, models.MemoryStrategyExact)

	_, err := d.Dispatch(context.Background(), "echo", "echo", map[string]interface{}{"count": 3}, "")
	if models.ErrorCodeOf(err) != models.CodeMissingParameter {
		t.Fatalf("error = %v, want MISSING_REQUIRED_PARAMETER", err)
	}
	if worker.processCalls != 0 {
		t.Fatal("incomplete payload must not reach the worker")
	}
}

func TestPayloadCoercionAndUnknownFieldDrop(t *testing.T) {
	agent := models.AgentDescriptor{
		ID: "a",
		Parameters: []models.ParameterSpec{
			{Name: "topic", Type: "string", Required: true},
			{Name: "count", Type: "int", Required: false},
			{Name: "ratio", Type: "float", Required: false},
			{Name: "strict", Type: "bool", Required: false},
			{Name: "tags", Type: "list", Required: false},
		},
	}

	// JSON decoding hands numbers over as float64 and strings stay strings.
	payload, err := coercePayload(agent, map[string]interface{}{
		"topic":    "go",
		"count":    float64(5),
		"ratio":    "0.5",
		"strict":   "true",
		"tags":     []interface{}{"a", "b"},
		"__extra":  "dropped",
		"ignored2": 42,
	})
	if err != nil {
		t.Fatalf("coercePayload: %v", err)
	}
	if payload["count"] != 5 {
		t.Fatalf("count = %#v, want int 5", payload["count"])
	}
	if payload["ratio"] != 0.5 {
		t.Fatalf("ratio = %#v", payload["ratio"])
	}
	if payload["strict"] != true {
		t.Fatalf("strict = %#v", payload["strict"])
	}
	if _, ok := payload["__extra"]; ok {
		t.Fatal("unknown field must be dropped")
	}

	// Uncoercible required value is a missing-parameter failure.
	_, err = coercePayload(agent, map[string]interface{}{"topic": []interface{}{"not", "a", "string"}})
	if models.ErrorCodeOf(err) != models.CodeMissingParameter {
		t.Fatalf("error = %v, want MISSING_REQUIRED_PARAMETER", err)
	}

	// Uncoercible optional value is silently dropped.
	payload, err = coercePayload(agent, map[string]interface{}{"topic": "go", "count": "many"})
	if err != nil {
		t.Fatalf("coercePayload: %v", err)
	}
	if _, ok := payload["count"]; ok {
		t.Fatal("uncoercible optional value must be dropped")
	}
}

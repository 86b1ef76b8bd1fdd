package protocol

import (
	"testing"
)

func TestNewEnvelope(t *testing.T) {
	params := map[string]interface{}{"topic": "Python", "num_questions": 10}
	env := NewEnvelope("supervisor_main", "adaptive_quiz_master_agent", "process_request", params)

	if env.MessageID == "" {
		t.Fatal("expected a generated message id")
	}
	if env.Type != TypeTaskAssignment {
		t.Errorf("expected type %q, got %q", TypeTaskAssignment, env.Type)
	}
	if env.Sender != "supervisor_main" || env.Recipient != "adaptive_quiz_master_agent" {
		t.Errorf("unexpected routing fields: sender=%q recipient=%q", env.Sender, env.Recipient)
	}
	if env.Task.Name != "process_request" {
		t.Errorf("unexpected task name: %q", env.Task.Name)
	}
	if env.Timestamp.IsZero() {
		t.Error("expected a non-zero timestamp")
	}
}

func TestNewEnvelope_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		env := NewEnvelope("s", "a", "t", nil)
		if seen[env.MessageID] {
			t.Fatalf("duplicate message id generated: %s", env.MessageID)
		}
		seen[env.MessageID] = true
	}
}

func TestNewFailureReport(t *testing.T) {
	env := NewEnvelope("supervisor_main", "exam_readiness_agent", "process_request", nil)
	report := NewFailureReport(env, "worker unreachable")

	if report.RelatedMessageID != env.MessageID {
		t.Errorf("expected back-reference %q, got %q", env.MessageID, report.RelatedMessageID)
	}
	if report.Status != StatusFailure {
		t.Errorf("expected status %q, got %q", StatusFailure, report.Status)
	}
	if report.ErrorMessage() != "worker unreachable" {
		t.Errorf("unexpected error message: %q", report.ErrorMessage())
	}
	if report.Sender != env.Recipient || report.Recipient != env.Sender {
		t.Error("report should invert the envelope's routing")
	}
}

func TestMarkCached(t *testing.T) {
	env := NewEnvelope("supervisor_main", "research_scout_agent", "process_request", nil)
	report := NewSuccessReport(env, map[string]interface{}{"papers": []string{"a", "b"}})

	if report.IsCached() {
		t.Fatal("fresh report should not be marked cached")
	}

	cached := MarkCached(report)
	if !cached.IsCached() {
		t.Fatal("expected cached flag on marked report")
	}
	// The original report must stay untouched.
	if report.IsCached() {
		t.Error("MarkCached mutated the original report")
	}
	if cached.Output() == nil {
		t.Error("cached report lost its output payload")
	}
}

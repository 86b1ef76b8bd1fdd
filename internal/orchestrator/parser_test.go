package orchestrator

import "testing"

func TestParseBareJSON(t *testing.T) {
	raw := `{"decision":"dispatch","agent_id":"quiz","confidence":0.92,"reasoning":"ok","parameters":{"topic":"Python"}}`
	d, err := parseRoutingDecision(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *d.AgentID != "quiz" || d.Confidence != 0.92 {
		t.Fatalf("decision = %+v", d)
	}
	if d.Parameters["topic"] != "Python" {
		t.Fatalf("parameters = %+v", d.Parameters)
	}
}

func TestParseFencedJSONWithProse(t *testing.T) {
	raw := "Sure, here is my routing decision:\n```json\n" +
		`{"decision":"clarify","agent_id":null,"confidence":0.4,"questions":["What subject?"]}` +
		"\n```\nLet me know if you need anything else."
	d, err := parseRoutingDecision(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.AgentID != nil {
		t.Fatalf("agent_id = %v, want nil", *d.AgentID)
	}
	if len(d.Questions) != 1 || d.Questions[0] != "What subject?" {
		t.Fatalf("questions = %v", d.Questions)
	}
}

func TestParseFenceWithoutInfoString(t *testing.T) {
	raw := "```\n{\"decision\":\"dispatch\",\"agent_id\":\"quiz\",\"confidence\":0.8}\n```"
	d, err := parseRoutingDecision(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *d.AgentID != "quiz" {
		t.Fatalf("agent_id = %v", d.AgentID)
	}
}

func TestParseClampsConfidence(t *testing.T) {
	d, err := parseRoutingDecision(`{"decision":"dispatch","confidence":1.7}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Confidence != 1 {
		t.Fatalf("confidence = %v, want clamped to 1", d.Confidence)
	}
}

func TestParseRejectsNonJSON(t *testing.T) {
	if _, err := parseRoutingDecision("I cannot answer that."); err == nil {
		t.Fatal("expected error for output with no JSON")
	}
	if _, err := parseRoutingDecision(`{"decision": "dispatch", broken`); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

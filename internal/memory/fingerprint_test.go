package memory

import "testing"

func TestFingerprintStableAcrossKeyOrder(t *testing.T) {
	a := Fingerprint("agent", "task", map[string]interface{}{
		"topic": "biology", "num_questions": float64(5),
	})
	b := Fingerprint("agent", "task", map[string]interface{}{
		"num_questions": float64(5), "topic": "biology",
	})
	if a != b {
		t.Fatalf("fingerprints differ for equal params: %s vs %s", a, b)
	}
}

func TestFingerprintSensitiveToValues(t *testing.T) {
	base := map[string]interface{}{"topic": "biology"}
	a := Fingerprint("agent", "task", base)

	if b := Fingerprint("agent", "task", map[string]interface{}{"topic": "physics"}); a == b {
		t.Fatal("different param values produced same fingerprint")
	}
	if b := Fingerprint("other", "task", base); a == b {
		t.Fatal("different agents produced same fingerprint")
	}
	if b := Fingerprint("agent", "other", base); a == b {
		t.Fatal("different tasks produced same fingerprint")
	}
}

func TestFingerprintNestedParams(t *testing.T) {
	a := Fingerprint("agent", "task", map[string]interface{}{
		"filters": map[string]interface{}{"x": float64(1), "y": float64(2)},
		"tags":    []interface{}{"a", "b"},
	})
	b := Fingerprint("agent", "task", map[string]interface{}{
		"tags":    []interface{}{"a", "b"},
		"filters": map[string]interface{}{"y": float64(2), "x": float64(1)},
	})
	if a != b {
		t.Fatal("nested map key order changed fingerprint")
	}

	// Lists are ordered, so element order matters.
	c := Fingerprint("agent", "task", map[string]interface{}{
		"tags": []interface{}{"b", "a"},
	})
	d := Fingerprint("agent", "task", map[string]interface{}{
		"tags": []interface{}{"a", "b"},
	})
	if c == d {
		t.Fatal("list element order should change fingerprint")
	}
}

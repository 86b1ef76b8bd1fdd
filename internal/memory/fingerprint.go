package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint derives a deterministic identity for a task request from the
// agent id, task name and the full parameter set. Two requests with the same
// parameters produce the same fingerprint regardless of map iteration order,
// whitespace, or the conversation they came from.
func Fingerprint(agentID, taskName string, params map[string]interface{}) string {
	var sb strings.Builder
	sb.WriteString(agentID)
	sb.WriteByte('\n')
	sb.WriteString(taskName)
	sb.WriteByte('\n')
	sb.WriteString(canonicalize(params))

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// canonicalize renders a value as JSON with all object keys sorted, so that
// logically equal parameter sets serialize to identical bytes.
func canonicalize(v interface{}) string {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			sb.Write(kb)
			sb.WriteByte(':')
			sb.WriteString(canonicalize(t[k]))
		}
		sb.WriteByte('}')
		return sb.String()
	case []interface{}:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(canonicalize(el))
		}
		sb.WriteByte(']')
		return sb.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

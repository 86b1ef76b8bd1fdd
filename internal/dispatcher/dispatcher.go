// Package dispatcher forwards fully-parameterized tasks to worker agents,
// consulting long-term memory first and recording completed exchanges into
// both memory tiers afterwards.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"Minerva_2.0/internal/memory"
	"Minerva_2.0/internal/models"
	"Minerva_2.0/internal/protocol"
	"Minerva_2.0/internal/registry"
	"Minerva_2.0/pkg/logger"
)

// Dispatcher is the last hop before the wire. It does not retry; retry
// policy belongs to the caller.
type Dispatcher struct {
	registry *registry.Registry
	worker   *WorkerClient
	stm      *memory.ShortTermMemory
	ltm      *memory.LongTermMemory
	senderID string
	log      *logger.Logger
}

func New(reg *registry.Registry, worker *WorkerClient, stm *memory.ShortTermMemory, ltm *memory.LongTermMemory, senderID string, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		worker:   worker,
		stm:      stm,
		ltm:      ltm,
		senderID: senderID,
		log:      log,
	}
}

// Dispatch sends one task to the agent and returns its completion report.
// queryText is the natural-language form of the request, used for semantic
// memory lookups. The flow: health gate, typed payload validation, memory
// consult, wire call, then memory writes only after the full round trip.
func (d *Dispatcher) Dispatch(ctx context.Context, agentID, taskName string, params map[string]interface{}, queryText string) (protocol.CompletionReport, error) {
	log := d.log.WithAgent(agentID)

	agent, err := d.registry.GetAgent(agentID)
	if err != nil {
		return protocol.CompletionReport{}, err
	}
	if err := d.registry.EnsureHealthy(ctx, agentID); err != nil {
		return protocol.CompletionReport{}, err
	}

	payload, err := coercePayload(agent, params)
	if err != nil {
		log.WithError(err).Error("payload failed schema validation")
		return protocol.CompletionReport{}, err
	}

	input := inputSnapshot(taskName, payload, queryText)

	if cached, hit := d.ltm.Lookup(ctx, agent, taskName, payload, input); hit {
		log.Info("serving result from long-term memory")
		env := protocol.NewEnvelope(d.senderID, agent.ID, taskName, payload)
		report := protocol.MarkCached(protocol.NewSuccessReport(env, decodeOutput(cached)))
		// Cache hits still count as completions for conversational recency.
		d.stm.Append(agent.ID, memory.STMRecord{
			MessageID: env.MessageID,
			Input:     input,
			Output:    cached,
			Timestamp: time.Now(),
		})
		return report, nil
	}

	env := protocol.NewEnvelope(d.senderID, agent.ID, taskName, payload)
	report, err := d.worker.Process(ctx, agent.Address, env)
	if err != nil {
		return protocol.CompletionReport{}, models.NewSupervisorError(
			models.CodeWorkerFailure, fmt.Sprintf("agent %q did not complete the task", agent.ID), err)
	}
	if report.Status == protocol.StatusFailure {
		return report, models.NewSupervisorError(
			models.CodeWorkerFailure, report.ErrorMessage(), nil)
	}

	// A canceled caller gets no partial writes.
	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	output := encodeOutput(report)
	d.stm.Append(agent.ID, memory.STMRecord{
		MessageID: env.MessageID,
		Input:     input,
		Output:    output,
		Timestamp: time.Now(),
	})
	d.ltm.Save(ctx, agent, taskName, payload, input, output)

	return report, nil
}

// inputSnapshot is the canonical input text stored in memory entries. The
// natural-language query wins for semantic agents; the fingerprintable
// parameter form is the fallback.
func inputSnapshot(taskName string, payload map[string]interface{}, queryText string) string {
	if queryText != "" {
		return queryText
	}
	return taskName + " " + fmt.Sprintf("%v", payload)
}

// encodeOutput serializes a worker result for memory storage so that a
// cache hit replays the same structure a fresh dispatch returned.
func encodeOutput(report protocol.CompletionReport) string {
	data, err := json.Marshal(report.Output())
	if err != nil {
		return fmt.Sprintf("%v", report.Output())
	}
	return string(data)
}

// decodeOutput is the inverse of encodeOutput. A value that does not parse
// as JSON is returned as the raw string.
func decodeOutput(stored string) interface{} {
	var out interface{}
	if err := json.Unmarshal([]byte(stored), &out); err != nil {
		return stored
	}
	return out
}

// coercePayload validates params against the agent's declared schema:
// unknown fields are dropped, values are coerced to their declared types,
// and a required field that is absent or uncoercible fails the dispatch.
func coercePayload(agent models.AgentDescriptor, params map[string]interface{}) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(agent.Parameters))
	for _, spec := range agent.Parameters {
		raw, present := params[spec.Name]
		if !present || raw == nil {
			if spec.Required {
				return nil, models.NewSupervisorError(models.CodeMissingParameter,
					fmt.Sprintf("required parameter %q is missing for agent %q", spec.Name, agent.ID), nil)
			}
			continue
		}
		value, err := coerceValue(raw, spec.Type)
		if err != nil {
			if spec.Required {
				return nil, models.NewSupervisorError(models.CodeMissingParameter,
					fmt.Sprintf("required parameter %q for agent %q: %v", spec.Name, agent.ID, err), nil)
			}
			// Optional and uncoercible: drop rather than forward garbage.
			continue
		}
		payload[spec.Name] = value
	}
	return payload, nil
}

func coerceValue(raw interface{}, typ string) (interface{}, error) {
	switch typ {
	case "string":
		switch v := raw.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(v), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
	case "int":
		switch v := raw.(type) {
		case int:
			return v, nil
		case float64:
			if v == float64(int64(v)) {
				return int(v), nil
			}
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n, nil
			}
		}
	case "float":
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, nil
			}
		}
	case "bool":
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b, nil
			}
		}
	case "list":
		switch v := raw.(type) {
		case []interface{}:
			return v, nil
		case []string:
			out := make([]interface{}, len(v))
			for i, s := range v {
				out[i] = s
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("value %v cannot be coerced to %s", raw, typ)
}

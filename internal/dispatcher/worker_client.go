package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"Minerva_2.0/internal/protocol"
	pkghttp "Minerva_2.0/pkg/http"
)

// WorkerClient speaks the worker wire protocol: POST /process with a task
// envelope, completion report back.
type WorkerClient struct {
	client *pkghttp.Client
}

// NewWorkerClient wraps the shared outbound HTTP client.
func NewWorkerClient(client *pkghttp.Client) *WorkerClient {
	return &WorkerClient{client: client}
}

// Process sends the envelope to the worker at addr and decodes its report.
// The client's timeout bounds the whole exchange.
func (w *WorkerClient) Process(ctx context.Context, addr string, env protocol.TaskEnvelope) (protocol.CompletionReport, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return protocol.CompletionReport{}, fmt.Errorf("encode envelope: %w", err)
	}

	url := strings.TrimRight(addr, "/") + "/process"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return protocol.CompletionReport{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return protocol.CompletionReport{}, fmt.Errorf("worker call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return protocol.CompletionReport{}, fmt.Errorf("worker returned status %d: %s", resp.StatusCode, string(raw))
	}

	var report protocol.CompletionReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return protocol.CompletionReport{}, fmt.Errorf("decode completion report: %w", err)
	}
	return report, nil
}

// Package httpclient implements remoteagent.Client over A2A-style JSON-RPC
// HTTP, using tasks/sendSubscribe semantics: the request is a single POST,
// the response body is a newline-delimited stream of JSON-RPC result
// frames carrying TaskStatus/Artifact/Message updates.
package httpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/stockbuddy/orchestrator/remoteagent"
)

// Client implements remoteagent.Client over JSON-RPC HTTP against a single
// remote agent endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   uint64
	retry    retryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithNoRetry disables the default connect-retry behavior, useful in tests
// that want a single deterministic attempt.
func WithNoRetry() Option {
	return func(cl *Client) { cl.retry = retryConfig{maxAttempts: 1} }
}

// New constructs a Client targeting endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{endpoint: endpoint, http: &http.Client{Timeout: 120 * time.Second}, retry: defaultRetryConfig}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params,omitempty"`
}

type sendTaskParams struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId,omitempty"`
	Message   taskMessage    `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type taskMessage struct {
	Role  string        `json:"role"`
	Parts []messagePart `json:"parts"`
}

type messagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type rpcStreamFrame struct {
	Result *taskEventFrame `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type taskEventFrame struct {
	Status   *taskStatusFrame `json:"status,omitempty"`
	Artifact *artifactFrame   `json:"artifact,omitempty"`
}

type taskStatusFrame struct {
	State   string       `json:"state"`
	Message *taskMessage `json:"message,omitempty"`
}

type artifactFrame struct {
	ToolName string          `json:"toolName,omitempty"`
	Kind     string          `json:"kind,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
}

// SendTask implements remoteagent.Client.
func (c *Client) SendTask(ctx context.Context, req remoteagent.SendTaskRequest) (<-chan remoteagent.StreamEvent, error) {
	id := atomic.AddUint64(&c.nextID, 1)
	params := sendTaskParams{
		ID:        req.RemoteTaskID,
		SessionID: req.SessionID,
		Message: taskMessage{
			Role:  "user",
			Parts: []messagePart{{Type: "text", Text: req.Query}},
		},
		Metadata: req.Metadata,
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: "tasks/sendSubscribe", ID: id, Params: params})
	if err != nil {
		return nil, fmt.Errorf("remoteagent/httpclient: encode request: %w", err)
	}

	var resp *http.Response
	err = retryWithBackoff(ctx, c.retry, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		r, err := c.http.Do(httpReq)
		if err != nil {
			return err
		}
		if r.StatusCode >= 300 {
			status := r.Status
			r.Body.Close()
			return &httpStatusError{statusCode: r.StatusCode, status: status}
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remoteagent/httpclient: send task: %w", err)
	}

	out := make(chan remoteagent.StreamEvent)
	go c.pump(ctx, resp, out)
	return out, nil
}

func (c *Client) pump(ctx context.Context, resp *http.Response, out chan<- remoteagent.StreamEvent) {
	defer close(out)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame rpcStreamFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			continue
		}
		if frame.Error != nil {
			select {
			case out <- remoteagent.StreamEvent{Kind: remoteagent.StreamEventStatus, State: remoteagent.StateFailed, Err: fmt.Errorf("a2a error %d: %s", frame.Error.Code, frame.Error.Message)}:
			case <-ctx.Done():
			}
			return
		}
		if frame.Result == nil {
			continue
		}
		for _, ev := range translateFrame(*frame.Result) {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Kind == remoteagent.StreamEventStatus && ev.State.IsTerminal() {
				return
			}
		}
	}
}

func translateFrame(f taskEventFrame) []remoteagent.StreamEvent {
	var evs []remoteagent.StreamEvent
	if f.Artifact != nil {
		switch f.Artifact.Kind {
		case "tool_call_started":
			evs = append(evs, remoteagent.StreamEvent{Kind: remoteagent.StreamEventToolCallStarted, ToolName: f.Artifact.ToolName})
		case "tool_call_completed":
			evs = append(evs, remoteagent.StreamEvent{Kind: remoteagent.StreamEventToolCallDone, ToolName: f.Artifact.ToolName})
		case "reasoning":
			evs = append(evs, remoteagent.StreamEvent{Kind: remoteagent.StreamEventReasoning, Text: string(f.Artifact.Content)})
		default:
			evs = append(evs, remoteagent.StreamEvent{Kind: remoteagent.StreamEventMessageChunk, Text: string(f.Artifact.Content)})
		}
	}
	if f.Status != nil {
		var text string
		if f.Status.Message != nil {
			for _, p := range f.Status.Message.Parts {
				text += p.Text
			}
		}
		if text != "" {
			evs = append(evs, remoteagent.StreamEvent{Kind: remoteagent.StreamEventMessageChunk, Text: text})
		}
		evs = append(evs, remoteagent.StreamEvent{Kind: remoteagent.StreamEventStatus, State: remoteagent.State(f.Status.State)})
	}
	return evs
}

// CancelTask implements remoteagent.Client.
func (c *Client) CancelTask(ctx context.Context, remoteTaskID string) error {
	id := atomic.AddUint64(&c.nextID, 1)
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "tasks/cancel",
		ID:      id,
		Params:  map[string]string{"id": remoteTaskID},
	})
	if err != nil {
		return fmt.Errorf("remoteagent/httpclient: encode cancel: %w", err)
	}

	err = retryWithBackoff(ctx, c.retry, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return &httpStatusError{statusCode: resp.StatusCode, status: resp.Status}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remoteagent/httpclient: send cancel: %w", err)
	}
	return nil
}

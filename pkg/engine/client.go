package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ami-agent/ami/pkg/logger"
)

// Client talks to an OpenAI-compatible chat-completions endpoint (LM Studio,
// llama.cpp server, and friends). One engine call may stream text fragments
// and tool-call deltas before completing.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient builds a client for host (e.g. "http://localhost:1234").
// The chat call itself carries no timeout: generation can legitimately take
// minutes, and cancellation flows through the context instead.
func NewClient(host string) *Client {
	return &Client{
		apiBase:    strings.TrimRight(strings.TrimSpace(host), "/"),
		httpClient: &http.Client{},
	}
}

// Ping verifies the engine is reachable. Called once at startup; an
// unreachable engine is fatal since no turn can proceed without it.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inference engine unreachable at %s: %w", c.apiBase, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("inference engine unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

type wireMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// toWire flattens part-structured messages into the string-content shape the
// chat-completions protocol expects. Media parts become textual markers; only
// the reference survives persistence anyway.
func toWire(messages []ChatMessage) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		content := m.Text()
		for _, p := range m.Content {
			if p.Type != PartText {
				content += fmt.Sprintf("\n[anexo: %s]", p.FileType)
			}
		}
		out = append(out, wireMessage{
			Role:       m.Role,
			Content:    content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

// Chat submits the conversation, the capability catalog, and the inference
// parameters, streaming text fragments into onFragment as they arrive.
// It returns once the engine produces a terminal chunk for this call.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, params Params, onFragment FragmentFunc) (*ChatResponse, error) {
	body := map[string]any{
		"model":    params.Model,
		"messages": toWire(messages),
		"stream":   true,
	}
	if len(tools) > 0 {
		body["tools"] = tools
		body["tool_choice"] = "auto"
	}
	if params.MaxTokens > 0 {
		body["max_tokens"] = params.MaxTokens
	}
	if params.Temperature > 0 {
		body["temperature"] = params.Temperature
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal engine request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send engine request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return c.consumeStream(resp.Body, onFragment)
}

// toolCallBuilder accumulates the per-index tool-call deltas the stream
// delivers piecemeal.
type toolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

func (c *Client) consumeStream(body io.Reader, onFragment FragmentFunc) (*ChatResponse, error) {
	var content strings.Builder
	builders := map[int64]*toolCallBuilder{}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		delta := gjson.Get(payload, "choices.0.delta")
		if !delta.Exists() {
			continue
		}

		if text := delta.Get("content"); text.Exists() && text.String() != "" {
			content.WriteString(text.String())
			if onFragment != nil {
				onFragment(text.String())
			}
		}

		delta.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
			idx := tc.Get("index").Int()
			b, ok := builders[idx]
			if !ok {
				b = &toolCallBuilder{}
				builders[idx] = b
			}
			if id := tc.Get("id").String(); id != "" {
				b.id = id
			}
			if name := tc.Get("function.name").String(); name != "" {
				b.name += name
			}
			b.args.WriteString(tc.Get("function.arguments").String())
			return true
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read engine stream: %w", err)
	}

	indexes := make([]int64, 0, len(builders))
	for idx := range builders {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	requests := make([]ToolRequest, 0, len(builders))
	for _, idx := range indexes {
		b := builders[idx]
		args := map[string]any{}
		raw := strings.TrimSpace(b.args.String())
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				logger.WarnCF("engine", "Malformed tool-call arguments from engine",
					map[string]any{"tool": b.name, "error": err.Error()})
				args = map[string]any{}
			}
		}
		requests = append(requests, ToolRequest{ID: b.id, Name: b.name, Arguments: args})
	}

	return &ChatResponse{
		Content:      content.String(),
		ToolRequests: requests,
	}, nil
}

// Complete is a non-streaming convenience used by secondary prompts such as
// file summarization. It discards fragments.
func (c *Client) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	resp, err := c.Chat(ctx, []ChatMessage{TextMessage(RoleUser, prompt)}, nil, params, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

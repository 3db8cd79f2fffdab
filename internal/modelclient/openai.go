// Package modelclient implements the kernel's one external dependency: a
// model backend satisfying engine.LLMClient. spec.md §6 only requires the
// OpenAI-shaped chat-completions wire schema (messages in, one assistant
// message with optional tool_calls and usage out); the provider-specific
// SDKs the teacher wired (Anthropic, Ollama, Gemini, ...) are explicitly
// non-core, so this talks the wire protocol directly over net/http rather
// than reintroducing one.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dohr-michael/selfware-kernel/internal/kernel"
	"github.com/dohr-michael/selfware-kernel/internal/kernel/engine"
)

// Client talks to any OpenAI-compatible /chat/completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// New creates a Client. baseURL defaults to the public OpenAI API if empty.
func New(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements engine.LLMClient.
func (c *Client) Complete(ctx context.Context, messages []kernel.Message, tools []kernel.ToolDescriptor, systemPrompt string) (kernel.Message, engine.Usage, error) {
	req := chatRequest{Model: c.model}

	if systemPrompt != "" {
		req.Messages = append(req.Messages, wireMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, toWireMessage(m))
	}
	for _, t := range tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Schema
		req.Tools = append(req.Tools, wt)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return kernel.Message{}, engine.Usage{}, fmt.Errorf("modelclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return kernel.Message{}, engine.Usage{}, fmt.Errorf("modelclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return kernel.Message{}, engine.Usage{}, fmt.Errorf("modelclient: transport error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return kernel.Message{}, engine.Usage{}, fmt.Errorf("modelclient: read response: %w", err)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return kernel.Message{}, engine.Usage{}, fmt.Errorf("modelclient: parse response: %w", err)
	}
	if cr.Error != nil {
		return kernel.Message{}, engine.Usage{}, fmt.Errorf("modelclient: provider error: %s", cr.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return kernel.Message{}, engine.Usage{}, fmt.Errorf("modelclient: http %d: %s", resp.StatusCode, string(raw))
	}
	if len(cr.Choices) == 0 {
		return kernel.Message{}, engine.Usage{}, fmt.Errorf("modelclient: no choices in response")
	}

	return fromWireMessage(cr.Choices[0].Message), engine.Usage{
		Prompt:     cr.Usage.PromptTokens,
		Completion: cr.Usage.CompletionTokens,
	}, nil
}

func toWireMessage(m kernel.Message) wireMessage {
	wm := wireMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		args, _ := json.Marshal(tc.Arguments)
		wtc := wireToolCall{ID: tc.ID, Type: "function"}
		wtc.Function.Name = tc.Name
		wtc.Function.Arguments = string(args)
		wm.ToolCalls = append(wm.ToolCalls, wtc)
	}
	return wm
}

func fromWireMessage(wm wireMessage) kernel.Message {
	m := kernel.Message{Role: kernel.Role(wm.Role), Content: wm.Content, ToolCallID: wm.ToolCallID}
	for _, wtc := range wm.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(wtc.Function.Arguments), &args)
		m.ToolCalls = append(m.ToolCalls, kernel.ToolCall{ID: wtc.ID, Name: wtc.Function.Name, Arguments: args})
	}
	if m.Role == "" {
		m.Role = kernel.RoleAssistant
	}
	return m
}

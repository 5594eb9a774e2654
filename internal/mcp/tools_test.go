package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/crosslink-ai/crosslink/internal/agent"
	"github.com/crosslink-ai/crosslink/internal/config"
	"github.com/crosslink-ai/crosslink/internal/history"
	"github.com/crosslink-ai/crosslink/internal/parser"
	"github.com/crosslink-ai/crosslink/internal/runner"
)

type fakeInvoker struct {
	defs    []config.AgentDef
	result  *runner.Result
	err     error
	lastReq runner.Request
}

func (f *fakeInvoker) Run(_ context.Context, req runner.Request) (*runner.Result, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeInvoker) Agents() []config.AgentDef {
	return f.defs
}

func newTestServer(t *testing.T, invoker *fakeInvoker) *Server {
	t.Helper()
	store, err := history.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewServer(invoker, store, nil, "test", nil)
}

func callTool(t *testing.T, s *Server, name, args string) string {
	t.Helper()
	result, err := s.registry.CallTool(context.Background(), name, json.RawMessage(args))
	if err != nil {
		t.Fatalf("CallTool(%s) error = %v", name, err)
	}
	ctr, ok := result.(*mcp_sdk.CallToolResult)
	if !ok {
		t.Fatalf("CallTool(%s) returned %T, want *CallToolResult", name, result)
	}
	return ctr.Content[0].(*mcp_sdk.TextContent).Text
}

func callToolExpectError(t *testing.T, s *Server, name, args string) error {
	t.Helper()
	_, err := s.registry.CallTool(context.Background(), name, json.RawMessage(args))
	if err == nil {
		t.Fatalf("CallTool(%s) expected error", name)
	}
	return err
}

func TestChatTool(t *testing.T) {
	invoker := &fakeInvoker{
		result: &runner.Result{
			ID:    "inv_abc12345",
			Agent: "claude",
			Output: &agent.Output{
				Parsed: &parser.ParsedResponse{
					Content:  "The answer is 42.",
					Metadata: map[string]any{"session_id": "s1"},
				},
				SanitizedCommand: []string{"claude", "--print"},
				ParserName:       "claude_stream_json",
				DurationSeconds:  0.8,
			},
		},
	}
	s := newTestServer(t, invoker)

	text := callTool(t, s, "chat", `{"agent":"claude","prompt":"what is the answer?"}`)

	var resp ChatResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp.Content != "The answer is 42." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.InvocationID != "inv_abc12345" {
		t.Errorf("InvocationID = %q", resp.InvocationID)
	}
	if resp.ParserName != "claude_stream_json" {
		t.Errorf("ParserName = %q", resp.ParserName)
	}
	if invoker.lastReq.Prompt != "what is the answer?" {
		t.Errorf("prompt not forwarded: %q", invoker.lastReq.Prompt)
	}

	// The invocation is persisted and retrievable.
	rec, err := s.store.Get("inv_abc12345")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Content != "The answer is 42." {
		t.Errorf("stored Content = %q", rec.Content)
	}
}

func TestChatTool_RunnerError(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("claude exited with code 2: fatal")}
	s := newTestServer(t, invoker)

	err := callToolExpectError(t, s, "chat", `{"agent":"claude","prompt":"p"}`)
	if !strings.Contains(err.Error(), "exited with code 2") {
		t.Errorf("error %q does not preserve runner diagnostics", err.Error())
	}
}

func TestChatTool_MissingFields(t *testing.T) {
	s := newTestServer(t, &fakeInvoker{})

	if err := callToolExpectError(t, s, "chat", `{"prompt":"p"}`); !strings.Contains(err.Error(), "agent is required") {
		t.Errorf("error = %v, want agent validation", err)
	}
	if err := callToolExpectError(t, s, "chat", `{"agent":"claude"}`); !strings.Contains(err.Error(), "prompt is required") {
		t.Errorf("error = %v, want prompt validation", err)
	}
}

func TestListAgentsTool(t *testing.T) {
	invoker := &fakeInvoker{defs: []config.AgentDef{
		{Name: "claude", DisplayName: "Claude CLI", Command: "claude", Parser: config.ParserStreamJSON},
		{Name: "copilot", Command: "copilot", Parser: config.ParserPlaintext, Recovery: config.RecoverySalvage},
	}}
	s := newTestServer(t, invoker)

	text := callTool(t, s, "list_agents", `{}`)

	var resp struct {
		Agents []AgentInfo `json:"agents"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if len(resp.Agents) != 2 {
		t.Fatalf("agents = %d, want 2", len(resp.Agents))
	}
	if resp.Agents[0].DisplayName != "Claude CLI" {
		t.Errorf("DisplayName = %q", resp.Agents[0].DisplayName)
	}
	if resp.Agents[1].DisplayName != "copilot CLI" {
		t.Errorf("DisplayName fallback = %q, want derived name", resp.Agents[1].DisplayName)
	}
	if resp.Agents[1].Recovery != "salvage" {
		t.Errorf("Recovery = %q, want salvage", resp.Agents[1].Recovery)
	}
}

func TestGetInvocationTool(t *testing.T) {
	s := newTestServer(t, &fakeInvoker{})

	rec := &history.Record{Agent: "qwen", Prompt: "p", Content: "hello", ParserName: "qwen_stream_json"}
	if err := s.store.Save(rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	text := callTool(t, s, "get_invocation", `{"id":"`+rec.ID+`"}`)
	if !strings.Contains(text, `"content": "hello"`) {
		t.Errorf("response missing content: %s", text)
	}

	err := callToolExpectError(t, s, "get_invocation", `{"id":"inv_missing"}`)
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestListInvocationsTool(t *testing.T) {
	s := newTestServer(t, &fakeInvoker{})

	for _, agentName := range []string{"qwen", "claude", "qwen"} {
		rec := &history.Record{Agent: agentName, Prompt: "p", Content: "c", ParserName: agentName + "_stream_json"}
		if err := s.store.Save(rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	text := callTool(t, s, "list_invocations", `{"agent":"qwen"}`)
	var resp struct {
		Invocations []*history.Record `json:"invocations"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if len(resp.Invocations) != 2 {
		t.Errorf("invocations = %d, want 2", len(resp.Invocations))
	}

	// Empty history is an empty list, not an error.
	empty := newTestServer(t, &fakeInvoker{})
	text = callTool(t, empty, "list_invocations", `{}`)
	if !strings.Contains(text, `"invocations": []`) {
		t.Errorf("empty history response = %s", text)
	}
}

func TestServerRegistersAllTools(t *testing.T) {
	s := newTestServer(t, &fakeInvoker{})
	want := []string{"chat", "list_agents", "get_invocation", "list_invocations"}
	tools := s.GetRegistry().GetAllTools()
	if len(tools) != len(want) {
		t.Fatalf("registered %d tools, want %d", len(tools), len(want))
	}
	for i, name := range want {
		if tools[i].Name != name {
			t.Errorf("tool[%d] = %q, want %q", i, tools[i].Name, name)
		}
	}
}

package mcp

import (
	"context"
	"errors"
	"fmt"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/crosslink-ai/crosslink/internal/history"
	"github.com/crosslink-ai/crosslink/internal/logger"
	"github.com/crosslink-ai/crosslink/internal/metrics"
	"github.com/crosslink-ai/crosslink/internal/runner"
)

// ChatParams is the input for the chat tool.
type ChatParams struct {
	Agent      string `json:"agent" description:"Name of the configured agent to invoke"`
	Prompt     string `json:"prompt" description:"Prompt forwarded to the agent CLI via stdin"`
	WorkingDir string `json:"working_dir,omitempty" description:"Directory the agent CLI runs in"`
}

// ChatResponse is the normalized result returned by the chat tool.
type ChatResponse struct {
	InvocationID    string         `json:"invocation_id"`
	Agent           string         `json:"agent"`
	Content         string         `json:"content"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ParserName      string         `json:"parser_name"`
	ReturnCode      int            `json:"return_code"`
	DurationSeconds float64        `json:"duration_seconds"`
	OutputFile      string         `json:"output_file,omitempty"`
}

// AgentInfo describes one configured agent for the list_agents tool.
type AgentInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Command     string `json:"command"`
	Parser      string `json:"parser"`
	Recovery    string `json:"recovery,omitempty"`
	Sandbox     bool   `json:"sandbox,omitempty"`
}

// GetInvocationParams is the input for the get_invocation tool.
type GetInvocationParams struct {
	ID string `json:"id" description:"Invocation ID returned by a previous chat call"`
}

// ListInvocationsParams is the input for the list_invocations tool.
type ListInvocationsParams struct {
	Agent string `json:"agent,omitempty" description:"Only list invocations of this agent"`
	Limit int    `json:"limit,omitempty" description:"Maximum number of records, newest first"`
}

// registerAllTools wires the tool handlers into the registry.
func (s *Server) registerAllTools(r *Registry) {
	Register(r, ToolDef{
		Name:        "chat",
		Description: "Send a prompt to a configured AI agent CLI and return its normalized response",
	}, s.handleChat)

	Register(r, ToolDef{
		Name:        "list_agents",
		Description: "List the configured agents and how their output is handled",
	}, s.handleListAgents)

	Register(r, ToolDef{
		Name:        "get_invocation",
		Description: "Retrieve a stored invocation result by ID",
	}, s.handleGetInvocation)

	Register(r, ToolDef{
		Name:        "list_invocations",
		Description: "List stored invocation results, newest first",
	}, s.handleListInvocations)
}

func (s *Server) handleChat(ctx context.Context, _ *mcp_sdk.CallToolRequest, params ChatParams) (*mcp_sdk.CallToolResult, any, error) {
	if params.Agent == "" {
		metrics.RecordToolCall("chat", "error")
		return NewErrorResult("agent is required"), nil, nil
	}
	if params.Prompt == "" {
		metrics.RecordToolCall("chat", "error")
		return NewErrorResult("prompt is required"), nil, nil
	}

	res, err := s.invoker.Run(ctx, runner.Request{
		Agent:      params.Agent,
		Prompt:     params.Prompt,
		WorkingDir: params.WorkingDir,
	})
	if err != nil {
		metrics.RecordToolCall("chat", "error")
		return NewErrorResult(err.Error()), nil, nil
	}

	out := res.Output
	resp := &ChatResponse{
		InvocationID:    res.ID,
		Agent:           res.Agent,
		Content:         out.Parsed.Content,
		Metadata:        out.Parsed.Metadata,
		ParserName:      out.ParserName,
		ReturnCode:      out.ReturnCode,
		DurationSeconds: out.DurationSeconds,
		OutputFile:      out.OutputFileContent,
	}

	if s.store != nil {
		rec := &history.Record{
			ID:               res.ID,
			Agent:            res.Agent,
			Prompt:           params.Prompt,
			WorkingDir:       params.WorkingDir,
			Content:          out.Parsed.Content,
			Metadata:         out.Parsed.Metadata,
			ParserName:       out.ParserName,
			ReturnCode:       out.ReturnCode,
			DurationSeconds:  out.DurationSeconds,
			SanitizedCommand: out.SanitizedCommand,
		}
		if err := s.store.Save(rec); err != nil {
			logger.ErrorContext(ctx, "failed to record invocation", "error", err)
		}
	}

	metrics.RecordToolCall("chat", "ok")
	return NewJSONResult(resp), nil, nil
}

func (s *Server) handleListAgents(_ context.Context, _ *mcp_sdk.CallToolRequest, _ struct{}) (*mcp_sdk.CallToolResult, any, error) {
	defs := s.invoker.Agents()
	agents := make([]AgentInfo, 0, len(defs))
	for _, def := range defs {
		agents = append(agents, AgentInfo{
			Name:        def.Name,
			DisplayName: def.Display(),
			Command:     def.Command,
			Parser:      string(def.Parser),
			Recovery:    string(def.Recovery),
			Sandbox:     def.Sandbox,
		})
	}
	metrics.RecordToolCall("list_agents", "ok")
	return NewJSONResult(map[string]any{"agents": agents}), nil, nil
}

func (s *Server) handleGetInvocation(_ context.Context, _ *mcp_sdk.CallToolRequest, params GetInvocationParams) (*mcp_sdk.CallToolResult, any, error) {
	if s.store == nil {
		metrics.RecordToolCall("get_invocation", "error")
		return NewErrorResult("invocation history is disabled"), nil, nil
	}
	if params.ID == "" {
		metrics.RecordToolCall("get_invocation", "error")
		return NewErrorResult("id is required"), nil, nil
	}

	rec, err := s.store.Get(params.ID)
	if errors.Is(err, history.ErrNotFound) {
		metrics.RecordToolCall("get_invocation", "error")
		return NewErrorResult(fmt.Sprintf("invocation %q not found", params.ID)), nil, nil
	}
	if err != nil {
		metrics.RecordToolCall("get_invocation", "error")
		return NewErrorResult(err.Error()), nil, nil
	}

	metrics.RecordToolCall("get_invocation", "ok")
	return NewJSONResult(rec), nil, nil
}

func (s *Server) handleListInvocations(_ context.Context, _ *mcp_sdk.CallToolRequest, params ListInvocationsParams) (*mcp_sdk.CallToolResult, any, error) {
	if s.store == nil {
		metrics.RecordToolCall("list_invocations", "error")
		return NewErrorResult("invocation history is disabled"), nil, nil
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	records, err := s.store.List(&history.ListFilter{Agent: params.Agent, Limit: limit})
	if err != nil {
		metrics.RecordToolCall("list_invocations", "error")
		return NewErrorResult(err.Error()), nil, nil
	}
	if records == nil {
		records = []*history.Record{}
	}

	metrics.RecordToolCall("list_invocations", "ok")
	return NewJSONResult(map[string]any{"invocations": records}), nil, nil
}

package mcp

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoParams struct {
	Message string `json:"message" description:"text to echo"`
	Count   int    `json:"count,omitempty"`
}

func TestRegistry_RegisterAndCall(t *testing.T) {
	r := NewRegistry()
	Register(r, ToolDef{Name: "echo", Description: "echoes"}, func(_ context.Context, _ *mcp_sdk.CallToolRequest, params echoParams) (*mcp_sdk.CallToolResult, any, error) {
		return NewTextResult(params.Message), nil, nil
	})

	result, err := r.CallTool(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	ctr, ok := result.(*mcp_sdk.CallToolResult)
	if !ok {
		t.Fatalf("CallTool() returned %T, want *CallToolResult", result)
	}
	if text := ctr.Content[0].(*mcp_sdk.TextContent).Text; text != "hi" {
		t.Errorf("text = %q, want hi", text)
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.CallTool(context.Background(), "nope", nil); err == nil {
		t.Errorf("CallTool() expected error for unknown tool")
	}
}

func TestRegistry_ErrorResultBecomesError(t *testing.T) {
	r := NewRegistry()
	Register(r, ToolDef{Name: "fail"}, func(_ context.Context, _ *mcp_sdk.CallToolRequest, _ struct{}) (*mcp_sdk.CallToolResult, any, error) {
		return NewErrorResult("it broke"), nil, nil
	})

	_, err := r.CallTool(context.Background(), "fail", nil)
	if err == nil || !strings.Contains(err.Error(), "it broke") {
		t.Errorf("CallTool() error = %v, want handler message", err)
	}
}

func TestRegistry_InvalidParameters(t *testing.T) {
	r := NewRegistry()
	Register(r, ToolDef{Name: "echo"}, func(_ context.Context, _ *mcp_sdk.CallToolRequest, params echoParams) (*mcp_sdk.CallToolResult, any, error) {
		return NewTextResult(params.Message), nil, nil
	})

	if _, err := r.CallTool(context.Background(), "echo", json.RawMessage(`{"message":42}`)); err == nil {
		t.Errorf("CallTool() expected error for mistyped parameters")
	}
}

func TestRegistry_OrderPreserved(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		Register(r, ToolDef{Name: name}, func(_ context.Context, _ *mcp_sdk.CallToolRequest, _ struct{}) (*mcp_sdk.CallToolResult, any, error) {
			return NewTextResult(""), nil, nil
		})
	}

	var names []string
	for _, def := range r.GetAllTools() {
		names = append(names, def.Name)
	}
	if !reflect.DeepEqual(names, []string{"c", "a", "b"}) {
		t.Errorf("GetAllTools() order = %v, want registration order", names)
	}
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema[echoParams]()

	if schema["type"] != "object" {
		t.Errorf("type = %v, want object", schema["type"])
	}

	props := schema["properties"].(map[string]any)
	message := props["message"].(map[string]any)
	if message["type"] != "string" {
		t.Errorf("message type = %v, want string", message["type"])
	}
	if message["description"] != "text to echo" {
		t.Errorf("description = %v, want tag value", message["description"])
	}
	if count := props["count"].(map[string]any); count["type"] != "integer" {
		t.Errorf("count type = %v, want integer", count["type"])
	}

	required, _ := schema["required"].([]string)
	if !reflect.DeepEqual(required, []string{"message"}) {
		t.Errorf("required = %v, want omitempty fields excluded", required)
	}
}

func TestGenerateSchema_NonStruct(t *testing.T) {
	schema := GenerateSchema[struct{}]()
	if schema["type"] != "object" {
		t.Errorf("type = %v, want object", schema["type"])
	}
}

func TestToSchema(t *testing.T) {
	schema, err := toSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{"type": "string"},
		},
	})
	if err != nil {
		t.Fatalf("toSchema() error = %v", err)
	}
	if schema.Type != "object" {
		t.Errorf("Type = %q, want object", schema.Type)
	}
	if _, ok := schema.Properties["id"]; !ok {
		t.Errorf("Properties missing id: %v", schema.Properties)
	}

	empty, err := toSchema(nil)
	if err != nil {
		t.Fatalf("toSchema(nil) error = %v", err)
	}
	if empty.Type != "object" {
		t.Errorf("nil schema Type = %q, want object", empty.Type)
	}
}

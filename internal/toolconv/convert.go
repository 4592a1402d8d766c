// Package toolconv converts agent-framework tool capabilities into the
// schema + handler pairs the IPC layer serves (§4.5). A capability is
// anything satisfying Tool: a name, description, JSON Schema, and a
// synchronous or asynchronous function to call.
package toolconv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/drillan/claudecode-model/internal/ccerr"
	"github.com/drillan/claudecode-model/internal/ipc"
)

// Tool is the capability record a caller registers. Func is invoked with
// the call's arguments already decoded into a map keyed by argument name; its
// return value is coerced into an MCP-shaped envelope by Convert. Returning
// a context.Canceled or context.DeadlineExceeded error (directly or via
// errors.Is) propagates instead of being folded into an error envelope,
// mirroring the original's re-raise of asyncio.CancelledError.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Func        func(ctx context.Context, args map[string]any) (any, error)

	// TakesContext marks a tool that expects framework-injected run
	// context as opposed to plain keyword arguments. Such tools cannot
	// be converted; Convert rejects them instead of silently dropping
	// the context argument.
	TakesContext bool
}

// Convert validates tool's input schema and wraps tool.Func as an
// ipc.ToolHandler, returning both the wire-ready ipc.ToolSchema and the
// handler the session should register under tool.Name.
func Convert(tool Tool) (ipc.ToolSchema, ipc.ToolHandler, error) {
	if tool.TakesContext {
		return ipc.ToolSchema{}, nil, fmt.Errorf(
			"toolconv: tool %q takes a run context and cannot be converted; register it without context injection", tool.Name)
	}

	schema := tool.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	if err := validateSchema(tool.Name, schema); err != nil {
		return ipc.ToolSchema{}, nil, err
	}

	record := ipc.ToolSchema{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: schema,
	}

	fn := tool.Func
	handler := func(ctx context.Context, args map[string]any) (map[string]any, error) {
		result, err := fn(ctx, args)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			text := fmt.Sprintf("Error: %s: %s", ccerr.GoTypeName(err), err.Error())
			return formatAsMCP(text), nil
		}
		return formatReturnValueAsMCP(result), nil
	}

	return record, handler, nil
}

// validateSchema compiles schema as a JSON Schema document to catch
// malformed tool definitions at conversion time rather than at first use.
func validateSchema(toolName string, schema json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	resourceName := "toolconv://" + toolName
	if err := compiler.AddResource(resourceName, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("toolconv: tool %q has an invalid input schema: %w", toolName, err)
	}
	if _, err := compiler.Compile(resourceName); err != nil {
		return fmt.Errorf("toolconv: tool %q has an invalid input schema: %w", toolName, err)
	}
	return nil
}

// formatReturnValueAsMCP coerces a tool's return value into an MCP-shaped
// envelope, mirroring _format_return_value_as_mcp: a value that already
// looks like an MCP response (a map with a "content" list of text blocks)
// passes through with its text blocks and its "isError" flag; content
// blocks of other types are dropped. Everything else is rendered to a
// single text block (empty string for nil, as-is for string, JSON for
// map/slice, fmt.Sprintf("%v", ...) for anything else).
func formatReturnValueAsMCP(result any) map[string]any {
	if m, ok := result.(map[string]any); ok {
		if blocks, ok := extractTextBlocks(m); ok {
			out := map[string]any{"content": blocks}
			if isError, ok := m["isError"].(bool); ok {
				out["isError"] = isError
			}
			return out
		}
	}

	var text string
	switch v := result.(type) {
	case nil:
		text = ""
	case string:
		text = v
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			text = fmt.Sprintf("%v", v)
		} else {
			text = string(encoded)
		}
	default:
		text = fmt.Sprintf("%v", v)
	}
	return formatAsMCP(text)
}

// extractTextBlocks recognizes an already-MCP-shaped map: "content" must be
// a non-empty list whose first element is a map with type "text".
func extractTextBlocks(m map[string]any) ([]any, bool) {
	content, ok := m["content"].([]any)
	if !ok || len(content) == 0 {
		return nil, false
	}
	first, ok := content[0].(map[string]any)
	if !ok || first["type"] != "text" {
		return nil, false
	}

	blocks := make([]any, 0, len(content))
	for _, item := range content {
		entry, ok := item.(map[string]any)
		if !ok || entry["type"] != "text" {
			continue
		}
		text, _ := entry["text"].(string)
		blocks = append(blocks, map[string]any{"type": "text", "text": text})
	}
	return blocks, true
}

func formatAsMCP(text string) map[string]any {
	return map[string]any{
		"content": []any{map[string]any{"type": "text", "text": text}},
	}
}

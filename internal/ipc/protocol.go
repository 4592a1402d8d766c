// Package ipc implements the wire codec (§4.1) and the parent-side
// tool-call server (§4.2) of the length-prefixed Unix-domain-socket
// protocol between the parent process and the tool-call bridge.
package ipc

import "encoding/json"

// MaxMessageSize is the maximum IPC message payload size in bytes (10 MiB),
// enforced symmetrically on send and receive.
const MaxMessageSize = 10 * 1024 * 1024

// LengthPrefixSize is the byte count of the big-endian uint32 length
// prefix that precedes every payload.
const LengthPrefixSize = 4

// SocketPermissions is applied to both the socket file and the schema
// file: owner read/write only.
const SocketPermissions = 0o600

const (
	SocketFilePrefix = "claudecode_ipc_"
	SocketFileSuffix = ".sock"
	SchemaFilePrefix = "claudecode_ipc_schema_"
)

// CallToolParams are the parameters of a call_tool request.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// CallToolRequest is the request message from bridge to parent.
type CallToolRequest struct {
	Method string         `json:"method"`
	Params CallToolParams `json:"params"`
}

// ContentBlock is a single MCP-style text content block.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the CallToolResult-shaped payload carried in a success
// response. IsError here means "the tool itself reported failure" — it is
// relayed to the CLI as a normal tool result, never promoted to a
// request-level error. This is deliberately a different type from
// orchestrator.TerminalEvent's IsError field; see DESIGN.md's Open
// Questions entry on the naming collision spec.md calls out.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// SuccessResponse wraps a ToolResult on the wire.
type SuccessResponse struct {
	Result ToolResult `json:"result"`
}

// ErrorPayload is the error detail of an ErrorResponse.
type ErrorPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorResponse wraps an ErrorPayload on the wire.
type ErrorResponse struct {
	Error ErrorPayload `json:"error"`
}

// RawResponse is used when decoding a response whose result/error
// discriminant isn't known yet — receive-side callers inspect which
// field is present.
type RawResponse struct {
	Result *ToolResult   `json:"result,omitempty"`
	Error  *ErrorPayload `json:"error,omitempty"`
}

// ToolSchema is a tool schema record: serialized to the schema file for
// the bridge, never mutated after session start.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

func errorResponse(message, errType string) ErrorResponse {
	return ErrorResponse{Error: ErrorPayload{Message: message, Type: errType}}
}

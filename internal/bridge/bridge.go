// Package bridge implements the tool-call bridge (§4.3): a subprocess the
// CLI spawns to speak its native tool-server stdio protocol (newline-
// delimited JSON-RPC with tools/list and tools/call) while relaying actual
// tool execution to the parent process over the internal/ipc wire codec.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/drillan/claudecode-model/internal/ccerr"
	"github.com/drillan/claudecode-model/internal/ipc"
)

const jsonrpcVersion = "2.0"

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type mcpTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Bridge owns the loaded schema list and a lazily-established connection to
// the parent's Unix socket.
type Bridge struct {
	socketPath string
	tools      []mcpTool
	conn       net.Conn
}

// LoadSchemas reads a JSON array of ipc.ToolSchema from schemaPath, as
// written by internal/session.
func LoadSchemas(schemaPath string) ([]ipc.ToolSchema, error) {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("bridge: failed to read schema file: %w", err)
	}
	var schemas []ipc.ToolSchema
	if err := json.Unmarshal(data, &schemas); err != nil {
		return nil, fmt.Errorf("bridge: failed to parse schema file: %w", err)
	}
	return schemas, nil
}

// New builds a Bridge for socketPath that will answer tools/list from
// schemas without ever dialing the socket.
func New(socketPath string, schemas []ipc.ToolSchema) *Bridge {
	tools := make([]mcpTool, 0, len(schemas))
	for _, s := range schemas {
		inputSchema := s.InputSchema
		if len(inputSchema) == 0 {
			inputSchema = json.RawMessage(`{"type":"object"}`)
		}
		tools = append(tools, mcpTool{Name: s.Name, Description: s.Description, InputSchema: inputSchema})
	}
	return &Bridge{socketPath: socketPath, tools: tools}
}

// Run reads newline-delimited JSON-RPC requests from r and writes responses
// to w until r reaches EOF, at which point it shuts down cleanly, closing
// any open socket connection to the parent.
func (b *Bridge) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	defer b.closeConn()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), ipc.MaxMessageSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		resp := b.handle(ctx, req)
		if err := writeLine(w, resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (b *Bridge) handle(ctx context.Context, req rpcRequest) rpcResponse {
	switch req.Method {
	case "tools/list":
		return rpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Result: map[string]any{"tools": b.tools}}
	case "tools/call":
		return b.handleCallTool(ctx, req)
	default:
		return rpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found: " + req.Method}}
	}
}

func (b *Bridge) handleCallTool(ctx context.Context, req rpcRequest) rpcResponse {
	var params callToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return rpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params: " + err.Error()}}
		}
	}

	result, err := b.callTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return rpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &rpcError{Code: -32000, Message: err.Error()}}
	}

	content := make([]map[string]any, 0, len(result.Content))
	for _, block := range result.Content {
		content = append(content, map[string]any{"type": "text", "text": block.Text})
	}
	return rpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Result: map[string]any{"content": content, "isError": result.IsError}}
}

// callTool relays a single call_tool request to the parent over the
// wire codec, dialing the socket on first use and reusing the connection
// thereafter.
func (b *Bridge) callTool(ctx context.Context, name string, arguments map[string]any) (ipc.ToolResult, error) {
	if err := b.ensureConnected(); err != nil {
		return ipc.ToolResult{}, err
	}

	req := ipc.CallToolRequest{
		Method: "call_tool",
		Params: ipc.CallToolParams{Name: name, Arguments: arguments},
	}
	if err := ipc.Send(b.conn, req); err != nil {
		return ipc.ToolResult{}, err
	}

	raw, err := ipc.ReceiveRaw(b.conn)
	if err != nil {
		return ipc.ToolResult{}, err
	}
	if raw.Error != nil {
		return ipc.ToolResult{}, fmt.Errorf("%s (type: %s)", raw.Error.Message, raw.Error.Type)
	}
	if raw.Result == nil {
		return ipc.ToolResult{}, ccerr.NewIPCError("invalid IPC response: missing both result and error fields", nil)
	}
	return *raw.Result, nil
}

func (b *Bridge) ensureConnected() error {
	if b.conn != nil {
		return nil
	}
	conn, err := net.Dial("unix", b.socketPath)
	if err != nil {
		return &ccerr.IPCConnectionError{SocketPath: b.socketPath, Cause: err}
	}
	b.conn = conn
	return nil
}

func (b *Bridge) closeConn() {
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

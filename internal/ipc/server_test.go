package ipc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drillan/claudecode-model/internal/obslog"
)

func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.sock")
}

func startTestServer(t *testing.T, handlers map[string]ToolHandler) (*Server, string) {
	t.Helper()
	path := testSocketPath(t)
	srv := NewServer(path, handlers, obslog.New())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv, path
}

func callOnce(t *testing.T, socketPath string, req CallToolRequest) RawResponse {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := Send(conn, req); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	resp, err := ReceiveRaw(conn)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	return resp
}

func TestServerSocketPermissions(t *testing.T) {
	_, path := startTestServer(t, map[string]ToolHandler{})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != SocketPermissions {
		t.Fatalf("unexpected socket permissions: %v", info.Mode().Perm())
	}
}

func TestServerDispatchSuccess(t *testing.T) {
	handlers := map[string]ToolHandler{
		"add": func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{
				"content": []any{map[string]any{"type": "text", "text": "5"}},
			}, nil
		},
	}
	_, path := startTestServer(t, handlers)

	resp := callOnce(t, path, CallToolRequest{
		Method: "call_tool",
		Params: CallToolParams{Name: "add", Arguments: map[string]any{"a": float64(2), "b": float64(3)}},
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}
	if resp.Result == nil || len(resp.Result.Content) != 1 || resp.Result.Content[0].Text != "5" {
		t.Fatalf("unexpected result: %+v", resp.Result)
	}
}

func TestServerDispatchUnknownTool(t *testing.T) {
	_, path := startTestServer(t, map[string]ToolHandler{})

	resp := callOnce(t, path, CallToolRequest{
		Method: "call_tool",
		Params: CallToolParams{Name: "missing", Arguments: map[string]any{}},
	})

	if resp.Error == nil || resp.Error.Type != "ToolNotFoundError" {
		t.Fatalf("expected ToolNotFoundError, got %+v", resp.Error)
	}
}

func callOnceRaw(t *testing.T, socketPath string, envelope map[string]any) RawResponse {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := Send(conn, envelope); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	resp, err := ReceiveRaw(conn)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	return resp
}

func TestServerDispatchMalformedEnvelope(t *testing.T) {
	_, path := startTestServer(t, map[string]ToolHandler{})

	resp := callOnce(t, path, CallToolRequest{Method: "not_call_tool"})

	if resp.Error == nil || resp.Error.Type != "ValueError" {
		t.Fatalf("expected ValueError, got %+v", resp.Error)
	}
}

func TestServerDispatchNonStringNameYieldsValueError(t *testing.T) {
	_, path := startTestServer(t, map[string]ToolHandler{})

	resp := callOnceRaw(t, path, map[string]any{
		"method": "call_tool",
		"params": map[string]any{"name": 123, "arguments": map[string]any{}},
	})

	if resp.Error == nil || resp.Error.Type != "ValueError" {
		t.Fatalf("expected ValueError for a non-string name, got %+v", resp.Error)
	}
}

func TestServerDispatchNonObjectArgumentsYieldsValueError(t *testing.T) {
	_, path := startTestServer(t, map[string]ToolHandler{})

	resp := callOnceRaw(t, path, map[string]any{
		"method": "call_tool",
		"params": map[string]any{"name": "add", "arguments": "not an object"},
	})

	if resp.Error == nil || resp.Error.Type != "ValueError" {
		t.Fatalf("expected ValueError for non-object arguments, got %+v", resp.Error)
	}
}

func TestServerDispatchNonObjectParamsYieldsValueError(t *testing.T) {
	_, path := startTestServer(t, map[string]ToolHandler{})

	resp := callOnceRaw(t, path, map[string]any{
		"method": "call_tool",
		"params": "not an object",
	})

	if resp.Error == nil || resp.Error.Type != "ValueError" {
		t.Fatalf("expected ValueError for non-object params, got %+v", resp.Error)
	}
}

func TestServerDispatchSurvivesMalformedEnvelopeAndContinuesLoop(t *testing.T) {
	handlers := map[string]ToolHandler{
		"ping": func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"content": []any{map[string]any{"type": "text", "text": "pong"}}}, nil
		},
	}
	_, path := startTestServer(t, handlers)

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := Send(conn, map[string]any{"method": "call_tool", "params": map[string]any{"name": 123}}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	resp, err := ReceiveRaw(conn)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if resp.Error == nil || resp.Error.Type != "ValueError" {
		t.Fatalf("expected ValueError, got %+v", resp.Error)
	}

	if err := Send(conn, CallToolRequest{Method: "call_tool", Params: CallToolParams{Name: "ping", Arguments: map[string]any{}}}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	resp, err = ReceiveRaw(conn)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if resp.Error != nil || resp.Result.Content[0].Text != "pong" {
		t.Fatalf("expected the connection to still serve requests after a malformed envelope, got %+v", resp)
	}
}

type namedToolError struct{ msg string }

func (e *namedToolError) Error() string { return e.msg }
func (e *namedToolError) Name() string  { return "CustomToolError" }

func TestServerDispatchHandlerError(t *testing.T) {
	handlers := map[string]ToolHandler{
		"boom": func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, &namedToolError{msg: "kaboom"}
		},
	}
	_, path := startTestServer(t, handlers)

	resp := callOnce(t, path, CallToolRequest{
		Method: "call_tool",
		Params: CallToolParams{Name: "boom", Arguments: map[string]any{}},
	})

	if resp.Error == nil {
		t.Fatalf("expected error response")
	}
	if resp.Error.Message != "kaboom" || resp.Error.Type != "CustomToolError" {
		t.Fatalf("unexpected error payload: %+v", resp.Error)
	}
}

func TestServerDispatchPlainErrorUsesGoTypeName(t *testing.T) {
	handlers := map[string]ToolHandler{
		"boom": func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, errors.New("plain failure")
		},
	}
	_, path := startTestServer(t, handlers)

	resp := callOnce(t, path, CallToolRequest{
		Method: "call_tool",
		Params: CallToolParams{Name: "boom", Arguments: map[string]any{}},
	})

	if resp.Error == nil || resp.Error.Message != "plain failure" || resp.Error.Type != "*errorString" {
		t.Fatalf("unexpected error payload: %+v", resp.Error)
	}
}

func TestServerSequentialConnectionsAfterOneCloses(t *testing.T) {
	handlers := map[string]ToolHandler{
		"ping": func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"content": []any{map[string]any{"type": "text", "text": "pong"}}}, nil
		},
	}
	_, path := startTestServer(t, handlers)

	for i := 0; i < 2; i++ {
		resp := callOnce(t, path, CallToolRequest{
			Method: "call_tool",
			Params: CallToolParams{Name: "ping", Arguments: map[string]any{}},
		})
		if resp.Error != nil || resp.Result.Content[0].Text != "pong" {
			t.Fatalf("round %d: unexpected response %+v", i, resp)
		}
	}
}

func TestServerStopRemovesSocketFile(t *testing.T) {
	path := testSocketPath(t)
	srv := NewServer(path, map[string]ToolHandler{}, obslog.New())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected socket file to be removed, stat err: %v", err)
	}
}

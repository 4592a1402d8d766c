package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/drillan/claudecode-model/internal/ccerr"
	"github.com/drillan/claudecode-model/internal/obslog"
)

// ToolHandler executes one tool invocation with the given arguments and
// returns a result already shaped as the success envelope: a map whose
// "content" key holds a []any of {"type":"text","text":...} maps, plus an
// optional "isError" bool. Content held in any other Go type is dropped.
// internal/toolconv is responsible for producing handlers in this shape;
// the server only dispatches to them.
type ToolHandler func(ctx context.Context, arguments map[string]any) (map[string]any, error)

// Server is the parent-side tool-call server (§4.2): binds a Unix socket,
// accepts connections, and dispatches call_tool requests to registered
// handlers. Connections are independent; the server neither serializes
// them nor coordinates between them.
type Server struct {
	socketPath string
	handlers   map[string]ToolHandler
	log        *obslog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer builds a Server bound to socketPath, dispatching to handlers.
func NewServer(socketPath string, handlers map[string]ToolHandler, log *obslog.Logger) *Server {
	return &Server{socketPath: socketPath, handlers: handlers, log: log}
}

// Start binds the Unix socket and begins accepting connections in the
// background. Returns once the listener is bound and chmod'd.
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.socketPath, SocketPermissions); err != nil {
		listener.Close()
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			// Listener closed (Stop was called) or fatal accept error;
			// either way this loop is done.
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection reads requests in a loop until EOF, dispatching each.
// Errors in dispatch never terminate the loop; errors in the underlying
// connection end it cleanly.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	ctx := context.Background()

	for {
		// Decoded as a generic envelope rather than the typed
		// CallToolRequest: a malformed shape (non-string name, non-object
		// arguments/params, non-call_tool method) must still produce a
		// ValueError response, not a json.Unmarshal failure that would
		// otherwise end the connection before dispatch ever runs.
		var envelope map[string]any
		if err := Receive(conn, &envelope); err != nil {
			return
		}

		resp := s.dispatch(ctx, envelope)
		if err := Send(conn, resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, envelope map[string]any) any {
	method, _ := envelope["method"].(string)
	if method != "call_tool" {
		return errorResponse(fmt.Sprintf("unknown method: %v", envelope["method"]), "ValueError")
	}

	params, ok := envelope["params"].(map[string]any)
	if !ok {
		return errorResponse("invalid params: expected an object", "ValueError")
	}

	name, ok := params["name"].(string)
	if !ok || name == "" {
		return errorResponse("invalid tool name: expected non-empty string", "ValueError")
	}

	arguments := map[string]any{}
	if rawArgs, present := params["arguments"]; present && rawArgs != nil {
		m, ok := rawArgs.(map[string]any)
		if !ok {
			return errorResponse("invalid arguments: expected an object", "ValueError")
		}
		arguments = m
	}

	handler, ok := s.handlers[name]
	if !ok {
		return errorResponse("unknown tool: "+name, "ToolNotFoundError")
	}

	result, err := handler(ctx, arguments)
	if err != nil {
		s.log.Warn(ctx, "tool execution failed", "tool", name, "error", err)
		return errorResponse(err.Error(), ccerr.GoTypeName(err))
	}

	return SuccessResponse{Result: resultFrom(result)}
}

func resultFrom(m map[string]any) ToolResult {
	rawContent, _ := m["content"].([]any)
	blocks := make([]ContentBlock, 0, len(rawContent))
	for _, item := range rawContent {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		text, _ := entry["text"].(string)
		blocks = append(blocks, ContentBlock{Type: "text", Text: text})
	}
	isError, _ := m["isError"].(bool)
	return ToolResult{Content: blocks, IsError: isError}
}

// Stop closes the listener, waits for in-flight connections to finish,
// and unlinks the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	if listener == nil {
		return nil
	}
	listener.Close()
	s.wg.Wait()
	// Closing a unix listener usually unlinks the socket already; a file
	// that is already gone is not an error.
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

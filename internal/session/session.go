// Package session manages the lifecycle of one IPC session (§4.4): the
// socket and schema file paths, stale-file cleanup, schema serialization,
// and starting/stopping the underlying ipc.Server.
package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/drillan/claudecode-model/internal/ccerr"
	"github.com/drillan/claudecode-model/internal/ipc"
	"github.com/drillan/claudecode-model/internal/obslog"
)

// Session owns the socket path, schema path, and server for one request.
// Session IDs are hex UUIDs (32 hex digits, no dashes). Start and Stop are
// serialized by an internal mutex.
type Session struct {
	id         string
	socketPath string
	schemaPath string
	schemas    []ipc.ToolSchema
	handlers   map[string]ipc.ToolHandler
	log        *obslog.Logger

	mu      sync.Mutex
	server  *ipc.Server
	started bool
}

// New builds a Session rooted at dir (typically os.TempDir()) with a fresh
// UUID-stamped socket/schema path pair.
func New(dir string, handlers map[string]ipc.ToolHandler, schemas []ipc.ToolSchema, log *obslog.Logger) *Session {
	u := uuid.New()
	id := hex.EncodeToString(u[:])
	return &Session{
		id:         id,
		socketPath: filepath.Join(dir, fmt.Sprintf("%s%s%s", ipc.SocketFilePrefix, id, ipc.SocketFileSuffix)),
		schemaPath: filepath.Join(dir, fmt.Sprintf("%s%s.json", ipc.SchemaFilePrefix, id)),
		schemas:    schemas,
		handlers:   handlers,
		log:        log,
	}
}

// SocketPath is the Unix domain socket path the bridge should dial.
func (s *Session) SocketPath() string { return s.socketPath }

// SchemaPath is the JSON file path the bridge reads its tool schemas from.
func (s *Session) SchemaPath() string { return s.schemaPath }

// Start sweeps stale socket files left by crashed prior sessions, writes
// the schema file, and starts the IPC server. Idempotent: a second call
// while already started is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.cleanupStaleSockets(ctx)

	if err := s.writeSchemaFile(); err != nil {
		return err
	}

	server := ipc.NewServer(s.socketPath, s.handlers, s.log)
	if err := server.Start(); err != nil {
		os.Remove(s.schemaPath)
		return err
	}
	s.server = server
	s.started = true

	s.log.Info(ctx, "session started",
		"session_id", s.id, "socket", s.socketPath, "schema", s.schemaPath, "tools", len(s.schemas))
	return nil
}

// cleanupStaleSockets removes socket files left behind by sessions that
// never called Stop, e.g. after a process crash. Failure to remove any
// individual stale file is logged and otherwise ignored.
func (s *Session) cleanupStaleSockets(ctx context.Context) {
	dir := filepath.Dir(s.socketPath)
	pattern := filepath.Join(dir, ipc.SocketFilePrefix+"*"+ipc.SocketFileSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}

	own := filepath.Base(s.socketPath)
	for _, match := range matches {
		if filepath.Base(match) == own {
			continue
		}
		if err := os.Remove(match); err != nil {
			s.log.Warn(ctx, "failed to remove stale socket file", "path", match, "error", err)
			continue
		}
		s.log.Info(ctx, "removed stale socket file", "path", match)
	}
}

// writeSchemaFile serializes the tool schemas to schemaPath, creating the
// file with owner-only permissions in the same syscall that creates it so
// no window exists where the file is world-readable.
func (s *Session) writeSchemaFile() error {
	f, err := os.OpenFile(s.schemaPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_TRUNC, ipc.SocketPermissions)
	if err != nil {
		return ccerr.NewIPCError("failed to open schema file", err)
	}
	defer f.Close()

	payload := s.schemas
	if payload == nil {
		payload = []ipc.ToolSchema{}
	}
	if err := json.NewEncoder(f).Encode(payload); err != nil {
		return ccerr.NewIPCError("failed to write schema file", err)
	}
	return nil
}

// Stop stops the server and removes the socket and schema files. Safe to
// call multiple times, and safe to call on a Session that never started.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}

	var firstErr error
	if s.server != nil {
		if err := s.server.Stop(); err != nil {
			firstErr = err
		}
		s.server = nil
	}

	if err := os.Remove(s.schemaPath); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = err
	}

	s.started = false
	s.log.Info(ctx, "session stopped", "session_id", s.id)
	return firstErr
}

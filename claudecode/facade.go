package claudecode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/drillan/claudecode-model/internal/ccerr"
	"github.com/drillan/claudecode-model/internal/ipc"
	"github.com/drillan/claudecode-model/internal/obslog"
	"github.com/drillan/claudecode-model/internal/orchestrator"
	"github.com/drillan/claudecode-model/internal/toolconv"
)

// Transport selects how a registered toolset is advertised to the CLI.
// "auto" currently behaves identically to "stdio"; "sdk" is accepted but
// not implemented (see DESIGN.md's transport-mode open question).
type Transport string

const (
	TransportAuto  Transport = "auto"
	TransportStdio Transport = "stdio"
	TransportSDK   Transport = "sdk"
)

// FunctionTool is a single in-process tool the framework wants the model
// to be able to call.
type FunctionTool struct {
	Name         string
	Description  string
	InputSchema  []byte
	Func         func(ctx context.Context, args map[string]any) (any, error)
	TakesContext bool
}

// Profile reports what a Model instance supports, for callers deciding how
// to request structured output.
type Profile struct {
	SupportsNativeStructuredOutput bool
	DefaultOutputMode              OutputMode
}

// Model is the public facade (§4.10): owns the configuration, the
// registered toolset cache, and (for stdio/auto transports) the bridge
// config rebuilt on every SetAgentToolsets call.
type Model struct {
	config Config
	log    *obslog.Logger

	mu           sync.Mutex
	transport    Transport
	registration orchestrator.ToolRegistration
	toolNames    []string
}

// New builds a Model from cfg. No tools are registered; calls requesting
// function tools will fail with ToolsetNotRegisteredError until
// SetAgentToolsets is called.
func New(cfg Config) *Model {
	return &Model{config: cfg, log: obslog.New(), transport: TransportAuto}
}

// ModelName returns the configured upstream model name.
func (m *Model) ModelName() string { return m.config.modelName }

// SystemIdentifier is pydantic-ai's conventional system name for this
// backend.
func (m *Model) SystemIdentifier() string { return "claude-code" }

// GetProfile reports this facade's fixed capability profile: native
// structured output support, defaulting requests to "native" output mode.
func (m *Model) GetProfile() Profile {
	return Profile{SupportsNativeStructuredOutput: true, DefaultOutputMode: OutputModeNative}
}

// AdvertisedToolNames returns the names currently advertised to the CLI,
// for test inspection.
func (m *Model) AdvertisedToolNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.toolNames))
	copy(out, m.toolNames)
	return out
}

// SetAgentToolsets overwrites the registered toolset and rebuilds the
// bridge config for it. Calling this again after tools are already
// registered logs a warning before overwriting.
func (m *Model) SetAgentToolsets(ctx context.Context, tools []FunctionTool, transport Transport) error {
	if transport == TransportSDK {
		return ccerr.ErrUnsupportedTransport
	}
	if transport == "" {
		transport = TransportAuto
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.toolNames) > 0 {
		m.log.Warn(ctx, "overwriting previously registered toolset", "previous_tools", m.toolNames)
	}

	handlers := make(map[string]ipc.ToolHandler, len(tools))
	schemas := make([]ipc.ToolSchema, 0, len(tools))
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		schema, handler, err := toolconv.Convert(toolconv.Tool{
			Name:         t.Name,
			Description:  t.Description,
			InputSchema:  t.InputSchema,
			Func:         t.Func,
			TakesContext: t.TakesContext,
		})
		if err != nil {
			return fmt.Errorf("claudecode: failed to register tool %q: %w", t.Name, err)
		}
		handlers[t.Name] = handler
		schemas = append(schemas, schema)
		names = append(names, t.Name)
	}

	m.transport = transport
	m.registration = orchestrator.ToolRegistration{Handlers: handlers, Schemas: schemas}
	m.toolNames = names
	return nil
}

func (m *Model) newOrchestrator() *orchestrator.Orchestrator {
	m.mu.Lock()
	reg := m.registration
	m.mu.Unlock()

	o := orchestrator.New(m.config.toOrchestratorConfig(), orchestrator.NewProcessRunner(), m.log)
	o.Registration = reg
	o.SessionDir = sessionScratchDir()
	return o
}

func sessionScratchDir() string {
	return filepath.Join(os.TempDir())
}

// Request runs a single request and returns only the assembled response.
func (m *Model) Request(ctx context.Context, prompt string, settings Settings, params RequestParams) (Response, error) {
	resp, err := m.newOrchestrator().Request(ctx, prompt, settings.toOrchestratorSettings(), params.toOrchestratorParams())
	if err != nil {
		return Response{}, err
	}
	return toResponse(resp), nil
}

// RequestWithMetadata runs a single request and additionally returns the
// raw terminal event the response was assembled from.
func (m *Model) RequestWithMetadata(ctx context.Context, prompt string, settings Settings, params RequestParams) (Response, *TerminalEvent, error) {
	resp, term, err := m.newOrchestrator().RequestWithMetadata(ctx, prompt, settings.toOrchestratorSettings(), params.toOrchestratorParams())
	if err != nil {
		return Response{}, nil, err
	}
	return toResponse(resp), toTerminalEvent(term), nil
}

// StreamMessages exposes every event of a single request (assistant
// messages and the terminal event) rather than only the final response.
// Of the model's tool calls, only StructuredOutput invocations are
// surfaced (as Event.ToolUse). Session lifecycle and timeout discipline
// are identical to Request.
func (m *Model) StreamMessages(ctx context.Context, prompt string, settings Settings, params RequestParams) (<-chan Event, error) {
	rawEvents, err := m.newOrchestrator().StreamMessages(ctx, prompt, settings.toOrchestratorSettings(), params.toOrchestratorParams())
	if err != nil {
		return nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for ev := range rawEvents {
			if ev.Err != nil {
				out <- Event{Err: ev.Err}
				return
			}
			out <- toEvent(ev)
		}
	}()
	return out, nil
}

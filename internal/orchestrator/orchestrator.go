// Package orchestrator implements the request orchestrator (§4.7), the
// structured-output recovery engine (§4.8), and the response assembler
// (§4.9): the three pieces that turn a framework-neutral request into a
// single streamed `claude` CLI invocation and back into a framework-shaped
// response.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/drillan/claudecode-model/internal/ccerr"
	"github.com/drillan/claudecode-model/internal/ipc"
	"github.com/drillan/claudecode-model/internal/obslog"
	"github.com/drillan/claudecode-model/internal/permission"
	"github.com/drillan/claudecode-model/internal/session"
)

// Config is the facade's immutable per-instance configuration (§6
// "Configuration surface").
type Config struct {
	ModelName            string
	WorkingDirectory     string
	TimeoutSeconds       float64
	AllowedTools         []string
	DisallowedTools      []string
	PermissionMode       string
	MaxTurns             int
	ContinueConversation bool
	ResumeSessionID      string
	RestrictionTable     permission.Table
	MessageCallback      func(Event)
}

// ToolRegistration is the facade's currently registered toolset, already
// converted to wire-ready schemas and handlers by internal/toolconv.
type ToolRegistration struct {
	Schemas  []ipc.ToolSchema
	Handlers map[string]ipc.ToolHandler
}

// RequestParams is the per-call, framework-supplied request shape: the
// function-tool subset wanted this turn and the output-mode directive
// (§4.7 step 1 and step 3).
type RequestParams struct {
	FunctionTools []string
	OutputMode    string // "auto" | "native" | "tool" | "text"
	OutputSchema  json.RawMessage
}

// Settings is the raw, framework-supplied per-request settings map (§6
// "Per-request settings map").
type Settings map[string]any

type normalizedSettings struct {
	Timeout              float64
	MaxBudgetUSD         *float64
	AppendSystemPrompt   string
	MaxTurns             int
	WorkingDirectory     string
	ContinueConversation bool
	ResumeSessionID      string
}

// cancelScopeAnomalyMessage is the exact diagnostic the upstream streamed-
// query library raises when a cancel scope is exited out of LIFO order
// during a shielded close.
const cancelScopeAnomalyMessage = "Attempted to exit a cancel scope that isn't the current tasks's current cancel scope"

// IsCancelScopeAnomaly reports whether err is that specific close-time
// anomaly, as opposed to any other failure during stream teardown.
func IsCancelScopeAnomaly(err error) bool {
	return err != nil && strings.Contains(err.Error(), cancelScopeAnomalyMessage)
}

func isTimeoutExecutionError(err error) bool {
	ee, ok := ccerr.As[*ccerr.ExecutionError](err)
	return ok && ee.Type == ccerr.ErrorTypeTimeout
}

// Orchestrator runs the shared request/recovery/assembly flow against a
// Runner. One Orchestrator belongs to one facade instance; each call is
// independent (§5 "per-request isolation") and owns its own session.
type Orchestrator struct {
	Config        Config
	Runner        Runner
	Registration  ToolRegistration
	SessionDir    string
	BridgeCommand []string
	Log           *obslog.Logger
}

// New builds an Orchestrator. log defaults to obslog.New() (configured from
// the environment) if nil.
func New(cfg Config, runner Runner, log *obslog.Logger) *Orchestrator {
	if log == nil {
		log = obslog.New()
	}
	return &Orchestrator{Config: cfg, Runner: runner, Log: log}
}

// resolveToolSubset implements §4.7 step 1: verify a registration exists,
// resolve the requested names, and build a registration containing only
// the matched subset. An empty subset request is a no-op.
func (o *Orchestrator) resolveToolSubset(params RequestParams) (ToolRegistration, error) {
	if len(params.FunctionTools) == 0 {
		return o.Registration, nil
	}
	if len(o.Registration.Handlers) == 0 {
		return ToolRegistration{}, &ccerr.ToolsetNotRegisteredError{Requested: params.FunctionTools}
	}

	schemaByName := make(map[string]ipc.ToolSchema, len(o.Registration.Schemas))
	for _, s := range o.Registration.Schemas {
		schemaByName[s.Name] = s
	}
	available := make([]string, 0, len(o.Registration.Handlers))
	for name := range o.Registration.Handlers {
		available = append(available, name)
	}

	var missing []string
	handlers := make(map[string]ipc.ToolHandler, len(params.FunctionTools))
	var schemas []ipc.ToolSchema
	for _, name := range params.FunctionTools {
		h, ok := o.Registration.Handlers[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		handlers[name] = h
		if s, ok := schemaByName[name]; ok {
			schemas = append(schemas, s)
		}
	}
	if len(missing) > 0 {
		return ToolRegistration{}, &ccerr.ToolNotFoundError{Missing: missing, Available: available}
	}
	return ToolRegistration{Schemas: schemas, Handlers: handlers}, nil
}

// resolveOutputSchema implements §4.7 step 3. "auto" (and an empty mode)
// always resolves to "native", the facade profile's default output mode;
// any other mode carries no native schema.
func resolveOutputSchema(params RequestParams) json.RawMessage {
	mode := params.OutputMode
	if mode == "" {
		mode = "auto"
	}
	if mode == "auto" {
		mode = "native"
	}
	if mode != "native" {
		return nil
	}
	return params.OutputSchema
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// normalizeSettings implements §4.7 step 2's exact fatal-vs-warn rules.
func normalizeSettings(ctx context.Context, log *obslog.Logger, raw Settings, cfg Config) (normalizedSettings, error) {
	out := normalizedSettings{
		Timeout:              cfg.TimeoutSeconds,
		MaxTurns:             cfg.MaxTurns,
		WorkingDirectory:     cfg.WorkingDirectory,
		ContinueConversation: cfg.ContinueConversation,
		ResumeSessionID:      cfg.ResumeSessionID,
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeoutSeconds
	}
	if raw == nil {
		return out, nil
	}

	if v, ok := raw["timeout"]; ok && v != nil {
		if f, ok := toFloat(v); ok {
			out.Timeout = f
		} else {
			log.Warn(ctx, "settings: 'timeout' has invalid type, using default", "type", fmt.Sprintf("%T", v))
		}
	}

	if v, ok := raw["max_budget_usd"]; ok && v != nil {
		if f, ok := toFloat(v); ok {
			if f < 0 {
				return normalizedSettings{}, fmt.Errorf("settings: max_budget_usd must be non-negative")
			}
			out.MaxBudgetUSD = &f
		} else {
			log.Warn(ctx, "settings: 'max_budget_usd' has invalid type, ignoring", "type", fmt.Sprintf("%T", v))
		}
	}

	if v, ok := raw["append_system_prompt"]; ok && v != nil {
		if s, ok := v.(string); ok {
			out.AppendSystemPrompt = s
		} else {
			log.Warn(ctx, "settings: 'append_system_prompt' has invalid type, ignoring", "type", fmt.Sprintf("%T", v))
		}
	}

	if v, ok := raw["max_turns"]; ok && v != nil {
		if n, ok := toInt(v); ok {
			if n <= 0 {
				return normalizedSettings{}, fmt.Errorf("settings: max_turns must be a positive integer")
			}
			out.MaxTurns = n
		} else {
			log.Warn(ctx, "settings: 'max_turns' has invalid type, ignoring", "type", fmt.Sprintf("%T", v))
		}
	}

	if v, ok := raw["working_directory"]; ok && v != nil {
		s, isStr := v.(string)
		if !isStr {
			return normalizedSettings{}, fmt.Errorf("settings: working_directory must be a string, got %T", v)
		}
		if s == "" {
			log.Warn(ctx, "settings: 'working_directory' is an empty string, may not be a valid path")
		}
		out.WorkingDirectory = s
	}

	if v, ok := raw["continue_conversation"]; ok && v != nil {
		if b, ok := v.(bool); ok {
			out.ContinueConversation = b
		} else {
			log.Warn(ctx, "settings: 'continue_conversation' has invalid type, ignoring", "type", fmt.Sprintf("%T", v))
		}
	}

	if v, ok := raw["resume"]; ok && v != nil {
		if s, ok := v.(string); ok {
			out.ResumeSessionID = s
		} else {
			log.Warn(ctx, "settings: 'resume' has invalid type, ignoring", "type", fmt.Sprintf("%T", v))
		}
	}

	if out.ContinueConversation && out.ResumeSessionID != "" {
		return normalizedSettings{}, fmt.Errorf("settings: continue_conversation and resume are mutually exclusive")
	}

	return out, nil
}

// StreamMessages runs §4.7 steps 1-6 and exposes every event (assistant
// messages and the terminal event) over the returned channel rather than
// only the final response. Of the model's tool calls, only StructuredOutput
// invocations are surfaced (as Event.ToolUse); other tool calls do not
// appear on the channel. Session lifecycle and timeout discipline are
// identical to Request.
func (o *Orchestrator) StreamMessages(ctx context.Context, prompt string, settings Settings, params RequestParams) (<-chan Event, error) {
	reg, err := o.resolveToolSubset(params)
	if err != nil {
		return nil, err
	}

	norm, err := normalizeSettings(ctx, o.Log, settings, o.Config)
	if err != nil {
		return nil, err
	}

	outputSchema := resolveOutputSchema(params)

	var sess *session.Session
	if len(reg.Handlers) > 0 {
		sess = session.New(o.SessionDir, reg.Handlers, reg.Schemas, o.Log)
		if err := sess.Start(ctx); err != nil {
			return nil, err
		}
	}

	maxTurns := norm.MaxTurns
	if maxTurns == 0 && len(outputSchema) > 0 {
		maxTurns = DefaultMaxTurnsWithJSONSchema
	}

	opts := RunOptions{
		Prompt:               prompt,
		Model:                o.Config.ModelName,
		WorkingDirectory:     norm.WorkingDirectory,
		AppendSystemPrompt:   norm.AppendSystemPrompt,
		AllowedTools:         o.Config.AllowedTools,
		DisallowedTools:      o.Config.DisallowedTools,
		PermissionMode:       o.Config.PermissionMode,
		MaxTurns:             maxTurns,
		MaxBudgetUSD:         norm.MaxBudgetUSD,
		ContinueConversation: norm.ContinueConversation,
		ResumeSessionID:      norm.ResumeSessionID,
		OutputSchema:         outputSchema,
		BridgeCommand:        o.BridgeCommand,
		RestrictionTable:     o.Config.RestrictionTable,
	}
	if sess != nil {
		opts.SocketPath = sess.SocketPath()
		opts.SchemaPath = sess.SchemaPath()
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if norm.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(norm.Timeout*float64(time.Second)))
	}

	rawEvents, err := o.Runner.Run(runCtx, opts)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		if sess != nil {
			sess.Stop(ctx)
		}
		return nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		if cancel != nil {
			defer cancel()
		}
		if sess != nil {
			defer sess.Stop(ctx)
		}

		var terminal *TerminalEvent
		for ev := range rawEvents {
			if ev.Err != nil {
				if terminal != nil && (IsCancelScopeAnomaly(ev.Err) || isTimeoutExecutionError(ev.Err)) {
					o.Log.Warn(ctx, "swallowed cancel-scope anomaly after terminal event was already observed",
						"session_id", terminal.SessionID)
					break
				}
				o.deliver(out, Event{Err: ev.Err})
				return
			}
			if ev.Kind == EventTerminal {
				terminal = ev.Terminal
			}
			o.deliver(out, ev)
		}
	}()

	return out, nil
}

func (o *Orchestrator) deliver(out chan<- Event, ev Event) {
	if o.Config.MessageCallback != nil {
		o.Config.MessageCallback(ev)
	}
	out <- ev
}

// Request runs the full shared flow (§4.7) and returns only the assembled
// response.
func (o *Orchestrator) Request(ctx context.Context, prompt string, settings Settings, params RequestParams) (Response, error) {
	resp, _, err := o.RequestWithMetadata(ctx, prompt, settings, params)
	return resp, err
}

// RequestWithMetadata runs the full shared flow and additionally exposes
// the raw terminal event the response was assembled from.
func (o *Orchestrator) RequestWithMetadata(ctx context.Context, prompt string, settings Settings, params RequestParams) (Response, *TerminalEvent, error) {
	events, err := o.StreamMessages(ctx, prompt, settings, params)
	if err != nil {
		return Response{}, nil, err
	}

	var terminal *TerminalEvent
	var lastToolUse *ToolUse
	for ev := range events {
		if ev.Err != nil {
			return Response{}, nil, ev.Err
		}
		switch ev.Kind {
		case EventAssistant:
			if ev.ToolUse != nil {
				lastToolUse = ev.ToolUse
			}
		case EventTerminal:
			terminal = ev.Terminal
		}
	}

	if terminal == nil {
		return Response{}, nil, &ccerr.ExecutionError{
			Message:     "stream ended without a terminal event",
			Type:        ccerr.ErrorTypeTimeout,
			Recoverable: true,
		}
	}

	term := *terminal

	if term.IsError {
		return Response{}, &term, &ccerr.ExecutionError{
			Message:     fmt.Sprintf("claude CLI reported a fatal error (subtype=%s session=%s)", term.Subtype, term.SessionID),
			Type:        ccerr.ErrorTypeUnknown,
			Recoverable: false,
		}
	}

	hasSchema := len(resolveOutputSchema(params)) > 0
	needsRecovery := term.Subtype == "error_max_structured_output_retries" ||
		(term.Subtype == "error_max_turns" && hasSchema)

	if needsRecovery {
		recovered, err := recoverStructuredOutput(ctx, o.Log, term, lastToolUse)
		if err != nil {
			return Response{}, &term, err
		}
		term.StructuredOutput = recovered
	} else {
		unwrapBenign(ctx, o.Log, &term)
	}

	resp, err := assemble(term, o.Config.ModelName)
	if err != nil {
		return Response{}, &term, err
	}
	return resp, &term, nil
}

package claudecode

import (
	"encoding/json"

	"github.com/drillan/claudecode-model/internal/orchestrator"
)

// EventKind discriminates a stream Event delivered to a message callback
// or returned from StreamMessages.
type EventKind string

const (
	EventAssistant EventKind = "assistant"
	EventTerminal  EventKind = "terminal"
)

// ToolUse is a StructuredOutput tool invocation the model requested
// mid-stream. Tool invocations with any other name are not surfaced.
type ToolUse struct {
	Name  string
	Input map[string]any
}

// Usage carries the CLI's token-count fields for a finished request.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheWriteTokens int
	CacheReadTokens  int
}

// TerminalEvent is the event that ends a request, as exposed by
// RequestWithMetadata and StreamMessages: a copy of the CLI's result event
// with a null result read as "". The CLI's model_usage,
// permission_denials and service_tier fields are not carried.
type TerminalEvent struct {
	Subtype           string
	IsError           bool
	DurationMs        int64
	DurationAPIMs     int64
	NumTurns          int
	SessionID         string
	Result            string
	StructuredOutput  map[string]any
	TotalCostUSD      *float64
	Usage             Usage
}

// Event is one item from a streamed request: an assistant message, the
// terminal event that ends the stream, or a fatal error. A non-nil Err
// always terminates the stream.
type Event struct {
	Kind     EventKind
	Text     string
	ToolUse  *ToolUse
	Terminal *TerminalEvent
	Err      error
}

func toEvent(ev orchestrator.Event) Event {
	out := Event{Text: ev.Text}
	switch ev.Kind {
	case orchestrator.EventTerminal:
		out.Kind = EventTerminal
		out.Terminal = toTerminalEvent(ev.Terminal)
	default:
		out.Kind = EventAssistant
	}
	if ev.ToolUse != nil {
		out.ToolUse = &ToolUse{Name: ev.ToolUse.Name, Input: ev.ToolUse.Input}
	}
	return out
}

func toTerminalEvent(term *orchestrator.TerminalEvent) *TerminalEvent {
	if term == nil {
		return nil
	}
	result := ""
	if term.Result != nil {
		result = *term.Result
	}
	return &TerminalEvent{
		Subtype:          term.Subtype,
		IsError:          term.IsError,
		DurationMs:       term.DurationMs,
		DurationAPIMs:    term.DurationAPIMs,
		NumTurns:         term.NumTurns,
		SessionID:        term.SessionID,
		Result:           result,
		StructuredOutput: term.StructuredOutput,
		TotalCostUSD:     term.TotalCostUSD,
		Usage: Usage{
			InputTokens:      term.Usage.InputTokens,
			OutputTokens:     term.Usage.OutputTokens,
			CacheWriteTokens: term.Usage.CacheCreationInputTokens,
			CacheReadTokens:  term.Usage.CacheReadInputTokens,
		},
	}
}

// ResponsePart is one piece of a Response's content. Only Text is
// populated today; the field exists as a seam for future part kinds.
type ResponsePart struct {
	Text string
}

// Response is what Request returns: the framework-shaped counterpart of
// the CLI's terminal event.
type Response struct {
	Parts     []ResponsePart
	Usage     Usage
	ModelName string
}

func toResponse(r orchestrator.Response) Response {
	parts := make([]ResponsePart, 0, len(r.Parts))
	for _, p := range r.Parts {
		parts = append(parts, ResponsePart{Text: p.Text})
	}
	return Response{
		Parts: parts,
		Usage: Usage{
			InputTokens:      r.Usage.InputTokens,
			OutputTokens:     r.Usage.OutputTokens,
			CacheWriteTokens: r.Usage.CacheWriteTokens,
			CacheReadTokens:  r.Usage.CacheReadTokens,
		},
		ModelName: r.ModelName,
	}
}

// OutputMode directs how a request's output object (if any) is delivered.
type OutputMode string

const (
	OutputModeAuto   OutputMode = "auto"
	OutputModeNative OutputMode = "native"
	OutputModeTool   OutputMode = "tool"
	OutputModeText   OutputMode = "text"
)

// RequestParams is the per-call request shape: the function-tool subset
// wanted this turn and an optional JSON-schema output object.
type RequestParams struct {
	FunctionTools []string
	OutputMode    OutputMode
	OutputSchema  json.RawMessage
}

func (p RequestParams) toOrchestratorParams() orchestrator.RequestParams {
	return orchestrator.RequestParams{
		FunctionTools: p.FunctionTools,
		OutputMode:    string(p.OutputMode),
		OutputSchema:  p.OutputSchema,
	}
}

// Settings is the per-request settings map (§6): timeout, max_budget_usd,
// append_system_prompt, max_turns, working_directory,
// continue_conversation, resume.
type Settings map[string]any

func (s Settings) toOrchestratorSettings() orchestrator.Settings {
	if s == nil {
		return nil
	}
	return orchestrator.Settings(s)
}

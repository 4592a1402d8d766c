package orchestrator

import (
	"encoding/json"
	"strings"
)

// Usage carries the CLI's token-count fields, copied verbatim from the
// terminal event. Missing fields read as zero.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// TerminalEvent is the CLI event that ends a streamed query. IsError here
// is a request-level fatal signal, distinct from ipc.ToolResult.IsError —
// see DESIGN.md's Open Questions entry on the naming collision spec.md
// calls out.
type TerminalEvent struct {
	Subtype           string          `json:"subtype"`
	IsError           bool            `json:"is_error"`
	DurationMs        int64           `json:"duration_ms"`
	DurationAPIMs     int64           `json:"duration_api_ms"`
	NumTurns          int             `json:"num_turns"`
	SessionID         string          `json:"session_id"`
	Result            *string         `json:"result"`
	StructuredOutput  map[string]any  `json:"structured_output"`
	TotalCostUSD      *float64        `json:"total_cost_usd"`
	Usage             Usage           `json:"usage"`
	ModelUsage        json.RawMessage `json:"model_usage,omitempty"`
	PermissionDenials json.RawMessage `json:"permission_denials,omitempty"`
	ServiceTier       string          `json:"service_tier,omitempty"`
}

// contentBlock is one block of an assistant message: a text fragment or a
// tool invocation requested by the model.
type contentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type assistantMessage struct {
	Content []contentBlock `json:"content"`
}

// rawEvent is a single decoded line of the CLI's stream-json output. The
// "type" discriminant selects which of the remaining fields apply.
type rawEvent struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
}

// structuredOutputToolName is the distinguished tool-use name the
// recovery engine's stage 2 watches for in the assistant stream.
const structuredOutputToolName = "StructuredOutput"

// ToolUse is a StructuredOutput tool invocation surfaced on an assistant
// Event. Tool uses with any other name are not surfaced.
type ToolUse struct {
	Name  string
	Input map[string]any
}

// EventKind discriminates a stream Event. A zero Event has kind
// EventUnknown, meaning it carried neither assistant content nor a
// terminal result worth surfacing.
type EventKind string

const (
	EventUnknown   EventKind = ""
	EventAssistant EventKind = "assistant"
	EventTerminal  EventKind = "terminal"
)

// Event is what a streamed query delivers: exactly one assistant message,
// the terminal event, or a fatal error. A non-nil Err terminates the
// stream, matching the teacher's CompletionChunk convention of folding a
// terminal failure into the same channel as ordinary events.
type Event struct {
	Kind     EventKind
	Text     string
	ToolUse  *ToolUse
	Terminal *TerminalEvent
	Err      error
}

// parseStreamLine decodes one line of the CLI's stream-json output into an
// Event. Lines whose type isn't "assistant" or "result" produce a
// zero-value (EventUnknown) Event, which callers should simply skip.
func parseStreamLine(line []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return Event{}, err
	}

	switch raw.Type {
	case "assistant":
		return parseAssistantEvent(raw)
	case "result":
		var term TerminalEvent
		if err := json.Unmarshal(line, &term); err != nil {
			return Event{}, err
		}
		return Event{Kind: EventTerminal, Terminal: &term}, nil
	default:
		return Event{}, nil
	}
}

func parseAssistantEvent(raw rawEvent) (Event, error) {
	if len(raw.Message) == 0 {
		return Event{Kind: EventAssistant}, nil
	}
	var msg assistantMessage
	if err := json.Unmarshal(raw.Message, &msg); err != nil {
		return Event{}, err
	}

	var texts []string
	var lastTool *ToolUse
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			texts = append(texts, block.Text)
		case "tool_use":
			if block.Name == structuredOutputToolName {
				lastTool = &ToolUse{Name: block.Name, Input: block.Input}
			}
		}
	}

	return Event{Kind: EventAssistant, Text: strings.Join(texts, ""), ToolUse: lastTool}, nil
}

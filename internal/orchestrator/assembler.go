package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/drillan/claudecode-model/internal/ccerr"
)

// ResponseUsage mirrors pydantic-ai's RequestUsage field names, not the
// CLI's own usage JSON keys — this is the shape callers of the facade
// consume.
type ResponseUsage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
}

// ResponsePart is one piece of assembled response content. Only Text is
// populated today; the field exists as a seam for future part kinds.
type ResponsePart struct {
	Text string `json:"text"`
}

// Response is what the orchestrator hands back from a single request: the
// framework-shaped counterpart of the CLI's terminal event.
type Response struct {
	Parts     []ResponsePart `json:"parts"`
	Usage     ResponseUsage  `json:"usage"`
	ModelName string         `json:"model_name"`
}

// assemble converts a terminal event into a Response (§4.9). term must
// already have passed through the recovery cascade if it needed to; this
// function performs no recovery itself, only the invariant check and the
// structured-output-or-result content selection.
func assemble(term TerminalEvent, modelName string) (Response, error) {
	var content string

	switch {
	case term.StructuredOutput != nil:
		// encoding/json.Marshal HTML-escapes <, >, & by default; the CLI's
		// own structured output (and the Python original's
		// json.dumps(..., ensure_ascii=False)) is unescaped UTF-8, so the
		// encoder's HTML escaping is turned off to match byte-for-byte.
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(term.StructuredOutput); err != nil {
			return Response{}, ccerr.NewResponseParseError(
				fmt.Sprintf("failed to serialize structured output to JSON: %v", err),
				fmt.Sprintf("%v", term.StructuredOutput),
				err,
			)
		}
		content = strings.TrimSuffix(buf.String(), "\n")

	case term.Result != nil:
		content = *term.Result

	default:
		content = ""
	}

	if content == "" && !strings.HasPrefix(term.Subtype, "error_") {
		return Response{}, ccerr.NewResponseParseError(
			fmt.Sprintf(
				"terminal event has neither a structured output nor a non-empty result "+
					"(subtype=%s is_error=%v num_turns=%d duration_ms=%d)",
				term.Subtype, term.IsError, term.NumTurns, term.DurationMs,
			),
			"",
			nil,
		)
	}

	return Response{
		Parts: []ResponsePart{{Text: content}},
		Usage: ResponseUsage{
			InputTokens:      term.Usage.InputTokens,
			OutputTokens:     term.Usage.OutputTokens,
			CacheWriteTokens: term.Usage.CacheCreationInputTokens,
			CacheReadTokens:  term.Usage.CacheReadInputTokens,
		},
		ModelName: modelName,
	}, nil
}

package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/drillan/claudecode-model/internal/ccerr"
	"github.com/drillan/claudecode-model/internal/obslog"
)

// envelopeKeys is the small, closed set of wrapper keys the recovery
// engine and the benign unwrap path both recognize.
var envelopeKeys = []string{"parameters", "parameter", "output"}

// unwrapEnvelope checks whether raw decodes to a JSON object with exactly
// one key from envelopeKeys whose value is itself an object. On a match it
// returns the inner object, the matched key, and true. Any deviation
// (extra keys, non-object value, non-object root, parse failure, empty
// input) returns false.
func unwrapEnvelope(raw string) (map[string]any, string, bool) {
	if raw == "" {
		return nil, "", false
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, "", false
	}
	if len(parsed) != 1 {
		return nil, "", false
	}

	for _, key := range envelopeKeys {
		value, ok := parsed[key]
		if !ok {
			continue
		}
		inner, ok := value.(map[string]any)
		if !ok {
			return nil, "", false
		}
		return inner, key, true
	}
	return nil, "", false
}

// recoverStructuredOutput runs the three-stage cascade (§4.8) once the
// CLI's terminal event signals schema-retry exhaustion. lastToolUse is the
// last StructuredOutput tool-use block captured during the stream, if any.
func recoverStructuredOutput(ctx context.Context, log *obslog.Logger, term TerminalEvent, lastToolUse *ToolUse) (map[string]any, error) {
	// Stage 1: envelope unwrap on the result string.
	if term.Result != nil {
		if inner, key, ok := unwrapEnvelope(*term.Result); ok {
			log.Info(ctx, "recovered structured output via stage 1 envelope unwrap",
				"session_id", term.SessionID, "wrapper_key", key)
			return inner, nil
		}
	}

	// Stage 2: captured tool-use input.
	if lastToolUse != nil && lastToolUse.Input != nil {
		candidate := lastToolUse.Input
		if encoded, err := json.Marshal(candidate); err == nil {
			if inner, key, ok := unwrapEnvelope(string(encoded)); ok {
				log.Info(ctx, "recovered structured output via stage 2 tool-use unwrap",
					"session_id", term.SessionID, "wrapper_key", key)
				return inner, nil
			}
		}
		log.Info(ctx, "recovered structured output via stage 2 tool-use verbatim",
			"session_id", term.SessionID)
		return candidate, nil
	}

	// Stage 3: failure.
	log.Error(ctx, "structured output recovery exhausted all stages",
		"session_id", term.SessionID, "num_turns", term.NumTurns, "duration_ms", term.DurationMs)
	return nil, ccerr.NewStructuredOutputError(term.SessionID, term.NumTurns, term.DurationMs)
}

// unwrapBenign applies the same envelope-unwrap rule to a non-error
// terminal event's result string when no structured output is already
// set. Unlike recoverStructuredOutput, failing to unwrap is not an error: the result is
// simply left as-is.
func unwrapBenign(ctx context.Context, log *obslog.Logger, term *TerminalEvent) {
	if term.StructuredOutput != nil || term.Result == nil {
		return
	}
	inner, key, ok := unwrapEnvelope(*term.Result)
	if !ok {
		return
	}
	log.Info(ctx, "unwrapped benign envelope in result", "session_id", term.SessionID, "wrapper_key", key)
	term.StructuredOutput = inner
}

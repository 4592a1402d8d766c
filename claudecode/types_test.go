package claudecode

import (
	"testing"

	"github.com/drillan/claudecode-model/internal/orchestrator"
)

func TestToEventConvertsTerminal(t *testing.T) {
	result := "hello"
	ev := toEvent(orchestrator.Event{
		Kind: orchestrator.EventTerminal,
		Terminal: &orchestrator.TerminalEvent{
			Subtype:   "success",
			SessionID: "sess-1",
			Result:    &result,
			Usage:     orchestrator.Usage{InputTokens: 10, OutputTokens: 20},
		},
	})

	if ev.Kind != EventTerminal {
		t.Fatalf("expected EventTerminal, got %v", ev.Kind)
	}
	if ev.Terminal == nil || ev.Terminal.Result != "hello" {
		t.Fatalf("unexpected terminal conversion: %+v", ev.Terminal)
	}
	if ev.Terminal.Usage.InputTokens != 10 || ev.Terminal.Usage.OutputTokens != 20 {
		t.Fatalf("unexpected usage conversion: %+v", ev.Terminal.Usage)
	}
}

func TestToEventConvertsAssistantToolUse(t *testing.T) {
	ev := toEvent(orchestrator.Event{
		Kind: orchestrator.EventAssistant,
		Text: "thinking",
		ToolUse: &orchestrator.ToolUse{
			Name:  "StructuredOutput",
			Input: map[string]any{"parameters": map[string]any{"x": 1}},
		},
	})

	if ev.Kind != EventAssistant {
		t.Fatalf("expected EventAssistant, got %v", ev.Kind)
	}
	if ev.ToolUse == nil || ev.ToolUse.Name != "StructuredOutput" {
		t.Fatalf("unexpected tool use conversion: %+v", ev.ToolUse)
	}
}

func TestToResponseMapsUsageFields(t *testing.T) {
	resp := toResponse(orchestrator.Response{
		Parts:     []orchestrator.ResponsePart{{Text: "hi"}},
		Usage:     orchestrator.ResponseUsage{InputTokens: 1, OutputTokens: 2, CacheWriteTokens: 3, CacheReadTokens: 4},
		ModelName: "claude-sonnet-4-5",
	})

	if len(resp.Parts) != 1 || resp.Parts[0].Text != "hi" {
		t.Fatalf("unexpected parts: %+v", resp.Parts)
	}
	if resp.Usage.CacheWriteTokens != 3 || resp.Usage.CacheReadTokens != 4 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if resp.ModelName != "claude-sonnet-4-5" {
		t.Fatalf("unexpected model name: %q", resp.ModelName)
	}
}

package orchestrator

import "testing"

func TestParseStreamLineAssistantText(t *testing.T) {
	line := []byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`)
	ev, err := parseStreamLine(line)
	if err != nil {
		t.Fatalf("parseStreamLine failed: %v", err)
	}
	if ev.Kind != EventAssistant || ev.Text != "hi" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestParseStreamLineCapturesStructuredOutputToolUse(t *testing.T) {
	line := []byte(`{"type":"assistant","message":{"content":[
		{"type":"tool_use","name":"StructuredOutput","input":{"parameters":{"x":1}}},
		{"type":"tool_use","name":"Bash","input":{"command":"ls"}}
	]}}`)
	ev, err := parseStreamLine(line)
	if err != nil {
		t.Fatalf("parseStreamLine failed: %v", err)
	}
	if ev.ToolUse == nil || ev.ToolUse.Name != "StructuredOutput" {
		t.Fatalf("expected the StructuredOutput tool use to be captured, got %+v", ev.ToolUse)
	}
}

func TestParseStreamLineTerminal(t *testing.T) {
	line := []byte(`{"type":"result","subtype":"success","is_error":false,"num_turns":3,"session_id":"abc","result":"done"}`)
	ev, err := parseStreamLine(line)
	if err != nil {
		t.Fatalf("parseStreamLine failed: %v", err)
	}
	if ev.Kind != EventTerminal || ev.Terminal == nil {
		t.Fatalf("expected a terminal event, got %+v", ev)
	}
	if ev.Terminal.SessionID != "abc" || ev.Terminal.Result == nil || *ev.Terminal.Result != "done" {
		t.Fatalf("unexpected terminal decode: %+v", ev.Terminal)
	}
}

func TestParseStreamLineUnknownTypeIsSkippable(t *testing.T) {
	line := []byte(`{"type":"system","subtype":"init"}`)
	ev, err := parseStreamLine(line)
	if err != nil {
		t.Fatalf("parseStreamLine failed: %v", err)
	}
	if ev.Kind != EventUnknown {
		t.Fatalf("expected EventUnknown for an unrecognized type, got %+v", ev)
	}
}

func TestParseStreamLineRejectsMalformedJSON(t *testing.T) {
	if _, err := parseStreamLine([]byte(`not json`)); err == nil {
		t.Fatalf("expected an error for malformed JSON")
	}
}

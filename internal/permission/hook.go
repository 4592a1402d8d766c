package permission

import (
	"encoding/json"
	"fmt"
	"io"
)

// hookInput is the subset of the CLI's PreToolUse hook payload the gate
// cares about. The CLI sends additional fields (session_id, cwd,
// transcript_path); they are ignored here.
type hookInput struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

type hookSpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

type hookOutput struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

// RunHook implements the CLI-facing side of the permission gate: it reads
// one PreToolUse hook payload from r, evaluates it against table, and
// writes the hook's expected decision JSON to w. It never returns an error
// for a denied call — only for malformed input or a write failure, since a
// read/write error here must surface as a nonzero exit from the hook
// subcommand rather than a decision.
func RunHook(r io.Reader, w io.Writer, table Table) error {
	var in hookInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("permission hook: failed to decode hook input: %w", err)
	}

	gate := New(table)
	allow, reason := gate.Check(in.ToolName, in.ToolInput)

	out := hookOutput{
		HookSpecificOutput: hookSpecificOutput{
			HookEventName:      "PreToolUse",
			PermissionDecision: "allow",
		},
	}
	if !allow {
		out.HookSpecificOutput.PermissionDecision = "deny"
		out.HookSpecificOutput.PermissionDecisionReason = reason
	}

	if err := json.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("permission hook: failed to write decision: %w", err)
	}
	return nil
}

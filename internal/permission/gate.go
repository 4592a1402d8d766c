// Package permission implements the permission gate (§4.6): a restriction
// table of required argument values per tool, checked before a proposed
// tool call is allowed to execute.
package permission

import "fmt"

// Table maps a tool name to the argument values it must carry. An absent
// tool name imposes no restriction. For a present tool name, a restricted
// argument that is missing from the call never denies it; only a present
// argument whose value differs from the required one does.
type Table map[string]map[string]any

// Gate evaluates proposed tool-call arguments against a Table.
type Gate struct {
	table Table
}

// New builds a Gate over table. A nil table allows every call.
func New(table Table) *Gate {
	return &Gate{table: table}
}

// Check reports whether a call to toolName with proposedArgs is allowed.
// An argument absent from proposedArgs never triggers a denial on its own;
// only a present argument with a differing value does. When denied, reason
// names the offending argument and its required value.
func (g *Gate) Check(toolName string, proposedArgs map[string]any) (allow bool, reason string) {
	restrictions, ok := g.table[toolName]
	if !ok {
		return true, ""
	}

	for arg, required := range restrictions {
		got, present := proposedArgs[arg]
		if present && got != required {
			return false, fmt.Sprintf("tool %q requires %s=%v", toolName, arg, required)
		}
	}
	return true, ""
}

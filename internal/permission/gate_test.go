package permission

import "testing"

func TestCheckAllowsUnrestrictedTool(t *testing.T) {
	g := New(Table{})
	allow, _ := g.Check("shell", map[string]any{"command": "rm -rf /"})
	if !allow {
		t.Fatalf("expected an unrestricted tool to be allowed")
	}
}

func TestCheckAllowsNilTable(t *testing.T) {
	g := New(nil)
	allow, _ := g.Check("shell", map[string]any{"command": "anything"})
	if !allow {
		t.Fatalf("expected a nil table to allow everything")
	}
}

func TestCheckDeniesDifferingRestrictedArg(t *testing.T) {
	g := New(Table{
		"write_file": {"path": "/tmp/scratch.txt"},
	})
	allow, reason := g.Check("write_file", map[string]any{"path": "/etc/passwd"})
	if allow {
		t.Fatalf("expected denial for a differing restricted argument")
	}
	if reason == "" {
		t.Fatalf("expected a non-empty denial reason")
	}
}

func TestCheckAllowsMatchingRestrictedArg(t *testing.T) {
	g := New(Table{
		"write_file": {"path": "/tmp/scratch.txt"},
	})
	allow, _ := g.Check("write_file", map[string]any{"path": "/tmp/scratch.txt", "content": "hi"})
	if !allow {
		t.Fatalf("expected allow when the restricted argument matches")
	}
}

func TestCheckAllowsAbsentRestrictedArg(t *testing.T) {
	g := New(Table{
		"write_file": {"path": "/tmp/scratch.txt"},
	})
	allow, _ := g.Check("write_file", map[string]any{"content": "hi"})
	if !allow {
		t.Fatalf("expected allow when the restricted argument is simply absent")
	}
}

func TestCheckEvaluatesEveryRestrictedArg(t *testing.T) {
	g := New(Table{
		"deploy": {"env": "staging", "force": false},
	})
	allow, reason := g.Check("deploy", map[string]any{"env": "staging", "force": true})
	if allow {
		t.Fatalf("expected denial when one of several restricted args differs")
	}
	if reason == "" {
		t.Fatalf("expected a non-empty denial reason")
	}
}

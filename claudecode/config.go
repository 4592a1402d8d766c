// Package claudecode is the public facade: an adapter that lets a generic
// agent framework drive an external, subprocess-hosted `claude` CLI as if
// it were any other chat completion backend.
package claudecode

import (
	"github.com/drillan/claudecode-model/internal/orchestrator"
	"github.com/drillan/claudecode-model/internal/permission"
)

// PermissionMode selects how the claude CLI decides whether to run a
// built-in tool without asking.
type PermissionMode string

const (
	PermissionModeDefault     PermissionMode = "default"
	PermissionModeBypass      PermissionMode = "bypassPermissions"
	PermissionModePlan        PermissionMode = "plan"
	PermissionModeAcceptEdits PermissionMode = "acceptEdits"
)

// DefaultModelName is the model name used when a caller doesn't have a
// specific one in mind yet.
const DefaultModelName = orchestrator.DefaultModel

// Config is a model instance's immutable configuration. Construct one with
// NewConfig; registered tools and the active bridge session are per-
// registration state on Model, not part of Config.
type Config struct {
	modelName            string
	workingDirectory     string
	timeoutSeconds       float64
	allowedTools         []string
	disallowedTools      []string
	permissionMode       PermissionMode
	maxTurns             int
	messageCallback      func(Event)
	restrictionTable     permission.Table
	continueConversation bool
	resumeSessionID      string
}

// ConfigOption mutates a Config under construction. Options are applied in
// order, so a later option overrides an earlier one touching the same
// field.
type ConfigOption func(*Config)

// WithWorkingDirectory sets the default working directory for every
// request; a request's own settings.working_directory overrides it.
func WithWorkingDirectory(dir string) ConfigOption {
	return func(c *Config) { c.workingDirectory = dir }
}

// WithTimeoutSeconds sets the default per-request timeout.
func WithTimeoutSeconds(seconds float64) ConfigOption {
	return func(c *Config) { c.timeoutSeconds = seconds }
}

// WithAllowedTools restricts the CLI's built-in tools to this list.
func WithAllowedTools(names ...string) ConfigOption {
	return func(c *Config) { c.allowedTools = names }
}

// WithDisallowedTools excludes these built-in tools.
func WithDisallowedTools(names ...string) ConfigOption {
	return func(c *Config) { c.disallowedTools = names }
}

// WithPermissionMode sets the CLI's built-in permission mode.
func WithPermissionMode(mode PermissionMode) ConfigOption {
	return func(c *Config) { c.permissionMode = mode }
}

// WithMaxTurns sets the default max-turns budget for a request.
func WithMaxTurns(n int) ConfigOption {
	return func(c *Config) { c.maxTurns = n }
}

// WithMessageCallback registers a function invoked once per stream Event
// (assistant message, tool use, or terminal event) during a request.
func WithMessageCallback(fn func(Event)) ConfigOption {
	return func(c *Config) { c.messageCallback = fn }
}

// WithRestrictionTable configures the permission gate's (§4.6) required
// argument values per built-in tool.
func WithRestrictionTable(table map[string]map[string]any) ConfigOption {
	return func(c *Config) { c.restrictionTable = permission.Table(table) }
}

// WithContinueConversation resumes the CLI's most recent conversation by
// default. Mutually exclusive with WithResumeSessionID; the later option
// wins if both are applied.
func WithContinueConversation() ConfigOption {
	return func(c *Config) {
		c.continueConversation = true
		c.resumeSessionID = ""
	}
}

// WithResumeSessionID resumes a specific prior session by default.
// Mutually exclusive with WithContinueConversation; the later option wins.
func WithResumeSessionID(sessionID string) ConfigOption {
	return func(c *Config) {
		c.resumeSessionID = sessionID
		c.continueConversation = false
	}
}

// NewConfig builds a Config for modelName, applying opts in order.
func NewConfig(modelName string, opts ...ConfigOption) Config {
	c := Config{
		modelName:      modelName,
		timeoutSeconds: orchestrator.DefaultTimeoutSeconds,
		permissionMode: PermissionModeDefault,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c Config) toOrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		ModelName:            c.modelName,
		WorkingDirectory:     c.workingDirectory,
		TimeoutSeconds:       c.timeoutSeconds,
		AllowedTools:         c.allowedTools,
		DisallowedTools:      c.disallowedTools,
		PermissionMode:       string(c.permissionMode),
		MaxTurns:             c.maxTurns,
		ContinueConversation: c.continueConversation,
		ResumeSessionID:      c.resumeSessionID,
		RestrictionTable:     c.restrictionTable,
		MessageCallback: func(ev orchestrator.Event) {
			if c.messageCallback != nil {
				c.messageCallback(toEvent(ev))
			}
		},
	}
}

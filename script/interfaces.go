package script

import (
	"context"
)

// Engine executes scripts on a specific runtime implementation
type Engine interface {
	// Name identifies the engine implementation
	Name() string

	// Execute runs a script with the given input and returns results
	Execute(ctx context.Context, script *Script, input *ScriptInput) (*ScriptOutput, error)

	// SetLimits configures resource constraints for subsequent executions
	SetLimits(limits Limits) error

	// Shutdown gracefully stops the engine and cleans up resources
	Shutdown(ctx context.Context) error
}

// ScriptRegistry manages script discovery, loading, and hot-reloading
type ScriptRegistry interface {
	// LoadScripts discovers and loads all available scripts
	LoadScripts() error

	// GetScript retrieves a script by name
	GetScript(name string) (*Script, error)

	// ReloadScript reloads a specific script from disk
	ReloadScript(name string) error

	// ListScripts returns the names of all available scripts
	ListScripts() []string

	// StartWatcher begins monitoring external script files for changes
	StartWatcher(ctx context.Context) error
}

// EngineFactory creates engines by implementation name
type EngineFactory interface {
	// CreateEngine returns an engine for the specified implementation
	CreateEngine(name string) (Engine, error)

	// SupportedEngines returns all supported engine names
	SupportedEngines() []string
}

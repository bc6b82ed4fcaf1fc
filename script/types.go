package script

import (
	"time"

	"github.com/nfrund/quickbridge/events"
)

// ScriptSource indicates where a script was loaded from
type ScriptSource string

const (
	SourceEmbedded ScriptSource = "embedded"
	SourceExternal ScriptSource = "external"
)

// ErrorType categorizes different types of script errors
type ErrorType string

const (
	ErrorTypeCompilation   ErrorType = "compilation"
	ErrorTypeExecution     ErrorType = "execution"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeMemoryLimit   ErrorType = "memory_limit"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeInvalidSyntax ErrorType = "invalid_syntax"
	ErrorTypeCanceled      ErrorType = "canceled"
)

// Script represents a script file with metadata. Names are flat and may
// contain slashes for scripts in subdirectories ("jobs/cleanup").
type Script struct {
	Name         string
	Content      string
	Source       ScriptSource
	Path         string // file path for external scripts, empty for embedded
	Description  string // from the manifest, if any
	Timeout      time.Duration
	LastModified time.Time
	Checksum     string
}

// FileName returns the name the engine reports in error locations.
func (s *Script) FileName() string {
	if s.Path != "" {
		return s.Path
	}
	return s.Name + ".js"
}

// ExecutionRequest contains all data needed to execute a script
type ExecutionRequest struct {
	ScriptName string
	Input      *ScriptInput
	Timeout    time.Duration
	Limits     Limits
}

// ScriptInput provides context and data to the executing script
type ScriptInput struct {
	// Globals are bound as script globals before evaluation.
	Globals map[string]interface{}

	// Functions are host callables bound as script globals.
	Functions map[string]interface{}

	// Message data if triggered by the bus
	Message *events.Message
}

// ScriptOutput contains the results of script execution
type ScriptOutput struct {
	Result  interface{}
	Metrics ExecutionMetrics
}

// ExecutionMetrics tracks performance and execution data
type ExecutionMetrics struct {
	ExecutionTime time.Duration
	Success       bool
	ErrorType     ErrorType
}

// Limits defines resource constraints for script execution
type Limits struct {
	MaxExecutionTime time.Duration
	MaxMemoryBytes   int64
	MaxStackBytes    int64
}

// ScriptError represents script-related errors with context
type ScriptError struct {
	Type      ErrorType
	Engine    string
	Script    string
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *ScriptError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// NewScriptError creates a new ScriptError with the given parameters
func NewScriptError(errorType ErrorType, engine, script, message string, cause error) *ScriptError {
	return &ScriptError{
		Type:      errorType,
		Engine:    engine,
		Script:    script,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

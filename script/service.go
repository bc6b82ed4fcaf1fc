package script

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nfrund/quickbridge/events"
)

// Lifecycle events published on the bus for every execution.
var (
	EventScriptExecuted = events.NewEvent[ExecutionEvent](
		"script.executed",
		"A script finished successfully",
	)
	EventScriptFailed = events.NewEvent[ExecutionEvent](
		"script.failed",
		"A script execution failed",
	)
)

// ExecutionEvent is the payload published for script lifecycle events.
type ExecutionEvent struct {
	ContextID  string `json:"context_id"`
	ScriptName string `json:"script_name"`
	Engine     string `json:"engine"`
	DurationMs int64  `json:"duration_ms"`
	ErrorType  string `json:"error_type,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Dependencies holds the collaborators a Service requires. Zero-value
// fields fall back to working defaults, so tests can supply only what they
// exercise.
type Dependencies struct {
	Registry  ScriptRegistry
	Factory   EngineFactory
	Publisher events.Publisher
	Limits    Limits
	// MaxConcurrent caps in-flight executions. Zero means unlimited.
	MaxConcurrent int
	// EngineName selects the engine implementation. Empty selects QuickJS.
	EngineName string
}

// Service is the high-level entry point for running registered scripts: it
// resolves names through the registry, tracks executions through the
// context manager, delegates to the engine and reports lifecycle events on
// the bus.
type Service struct {
	registry  ScriptRegistry
	engine    Engine
	manager   *ContextManager
	publisher events.Publisher
}

// NewService wires a service from its dependencies.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Registry == nil {
		deps.Registry = NewRegistry("scripts")
	}
	if deps.Factory == nil {
		deps.Factory = NewFactory()
	}
	if deps.EngineName == "" {
		deps.EngineName = EngineQuickJS
	}
	limits := deps.Limits
	if limits.MaxExecutionTime == 0 && limits.MaxMemoryBytes == 0 && limits.MaxStackBytes == 0 {
		limits = GetDefaultLimits()
	}

	engine, err := deps.Factory.CreateEngine(deps.EngineName)
	if err != nil {
		return nil, fmt.Errorf("failed to create script engine: %w", err)
	}
	if err := engine.SetLimits(limits); err != nil {
		return nil, fmt.Errorf("failed to configure engine limits: %w", err)
	}

	slog.Info("Script service created", "engine", engine.Name(), "max_concurrent", deps.MaxConcurrent)
	return &Service{
		registry:  deps.Registry,
		engine:    engine,
		manager:   NewContextManager(deps.MaxConcurrent, limits),
		publisher: deps.Publisher,
	}, nil
}

// Initialize loads the registry and optionally starts the hot-reload
// watcher.
func (s *Service) Initialize(ctx context.Context, hotReload bool) error {
	if err := s.registry.LoadScripts(); err != nil {
		return fmt.Errorf("failed to load scripts: %w", err)
	}
	if hotReload {
		if err := s.registry.StartWatcher(ctx); err != nil {
			slog.Warn("Script hot reload unavailable", "error", err)
		}
	}
	return nil
}

// Registry exposes the underlying script registry.
func (s *Service) Registry() ScriptRegistry {
	return s.registry
}

// Engine exposes the underlying engine.
func (s *Service) Engine() Engine {
	return s.engine
}

// Run executes a registered script by name.
func (s *Service) Run(ctx context.Context, req ExecutionRequest) (*ScriptOutput, error) {
	script, err := s.registry.GetScript(req.ScriptName)
	if err != nil {
		return nil, err
	}
	if req.Timeout > 0 {
		scoped := *script
		scoped.Timeout = req.Timeout
		script = &scoped
	}
	return s.execute(ctx, script, req)
}

// RunSource executes an ad-hoc script that is not in the registry.
func (s *Service) RunSource(ctx context.Context, name, source string, input *ScriptInput) (*ScriptOutput, error) {
	script := &Script{
		Name:    name,
		Content: source,
		Source:  SourceEmbedded,
	}
	return s.execute(ctx, script, ExecutionRequest{ScriptName: name, Input: input})
}

func (s *Service) execute(ctx context.Context, script *Script, req ExecutionRequest) (*ScriptOutput, error) {
	execCtx, err := s.manager.CreateExecutionContext(req)
	if err != nil {
		return nil, err
	}
	defer s.manager.ReleaseExecutionContext(execCtx.ID)

	output, execErr := s.engine.Execute(ctx, script, req.Input)

	s.publishOutcome(ctx, execCtx, output, execErr)

	if execErr != nil {
		return output, execErr
	}
	return output, nil
}

// publishOutcome reports the execution result on the bus. Publishing is
// best effort; a bus failure never fails the execution itself.
func (s *Service) publishOutcome(ctx context.Context, execCtx *ExecutionContext, output *ScriptOutput, execErr error) {
	if s.publisher == nil {
		return
	}

	payload := ExecutionEvent{
		ContextID:  execCtx.ID,
		ScriptName: execCtx.ScriptName,
		Engine:     s.engine.Name(),
		DurationMs: time.Since(execCtx.StartTime).Milliseconds(),
	}
	event := EventScriptExecuted
	if execErr != nil {
		event = EventScriptFailed
		payload.Error = execErr.Error()
		if scriptErr, ok := execErr.(*ScriptError); ok {
			payload.ErrorType = string(scriptErr.Type)
		}
	} else if output != nil {
		payload.DurationMs = output.Metrics.ExecutionTime.Milliseconds()
	}

	if err := events.PublishFrom(ctx, s.publisher, event, execCtx.ID, payload); err != nil {
		slog.Error("Failed to publish script lifecycle event",
			"topic", event.Name(),
			"script", execCtx.ScriptName,
			"error", err,
		)
	}
}

// BindTrigger subscribes the service to a bus topic and runs the named
// script for every message, with the message bound as the script's
// "message" global.
func (s *Service) BindTrigger(ctx context.Context, sub events.Subscriber, topic, scriptName string) error {
	return sub.Subscribe(ctx, topic, func(ctx context.Context, msg events.Message) error {
		_, err := s.Run(ctx, ExecutionRequest{
			ScriptName: scriptName,
			Input:      &ScriptInput{Message: &msg},
		})
		if err != nil {
			slog.Error("Triggered script failed",
				"topic", topic,
				"script", scriptName,
				"error", err,
			)
		}
		return err
	})
}

// Shutdown stops the watcher and the engine.
func (s *Service) Shutdown(ctx context.Context) error {
	if r, ok := s.registry.(*Registry); ok {
		r.StopWatcher()
	}
	return s.engine.Shutdown(ctx)
}

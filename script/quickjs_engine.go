package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nfrund/quickbridge"
)

// EngineQuickJS is the name of the QuickJS engine implementation.
const EngineQuickJS = "quickjs"

// QuickJSEngine implements the Engine interface on the embedded QuickJS
// runtime. Executions are serialized; each one runs in a fresh context on
// a shared runtime sized to the configured limits.
type QuickJSEngine struct {
	mu     sync.Mutex
	limits Limits
	rt     *quickbridge.Runtime
}

// NewQuickJSEngine creates a new QuickJS engine with default limits
func NewQuickJSEngine() *QuickJSEngine {
	return &QuickJSEngine{
		limits: GetDefaultLimits(),
	}
}

// Name identifies the engine implementation
func (e *QuickJSEngine) Name() string {
	return EngineQuickJS
}

// SetLimits configures resource constraints. The current runtime is
// discarded so the next execution starts one sized to the new limits.
func (e *QuickJSEngine) SetLimits(limits Limits) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.limits = limits
	if e.rt != nil {
		if err := e.rt.Close(); err != nil {
			slog.Warn("Failed to close runtime while applying limits", "error", err)
		}
		e.rt = nil
	}
	return nil
}

// runtime returns the current runtime, building one when none is live.
// The caller must hold e.mu.
func (e *QuickJSEngine) runtime() (*quickbridge.Runtime, error) {
	if e.rt != nil {
		return e.rt, nil
	}

	var opts []quickbridge.Option
	if e.limits.MaxMemoryBytes > 0 {
		opts = append(opts, quickbridge.WithMemoryLimit(uint32(e.limits.MaxMemoryBytes)))
	}
	if e.limits.MaxStackBytes > 0 {
		opts = append(opts, quickbridge.WithMaxStackSize(uint32(e.limits.MaxStackBytes)))
	}

	rt, err := quickbridge.NewRuntime(opts...)
	if err != nil {
		return nil, err
	}
	e.rt = rt
	return rt, nil
}

// Execute runs a script in a fresh context with a watchdog. A script that
// overruns its deadline is interrupted at the bridge's cooperative
// checkpoints; the poisoned runtime is abandoned and the next execution
// builds a fresh one.
func (e *QuickJSEngine) Execute(ctx context.Context, script *Script, input *ScriptInput) (*ScriptOutput, error) {
	startTime := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	rt, err := e.runtime()
	if err != nil {
		return nil, NewScriptError(
			ErrorTypeCompilation,
			EngineQuickJS,
			script.Name,
			"failed to create runtime",
			err,
		)
	}

	timeout := e.limits.MaxExecutionTime
	if script.Timeout > 0 {
		timeout = script.Timeout
	}
	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	// The runtime limit is the in-engine backstop for the same deadline:
	// it stops scripts at host-call checkpoints even when the watchdog
	// goroutine is delayed.
	if err := rt.SetRuntimeLimit(timeout); err != nil {
		slog.Warn("Failed to arm runtime limit", "script", script.Name, "error", err)
	}

	qctx, err := rt.NewContext()
	if err != nil {
		return nil, NewScriptError(
			ErrorTypeCompilation,
			EngineQuickJS,
			script.Name,
			"failed to create execution context",
			err,
		)
	}

	if err := bindInput(qctx, input); err != nil {
		_ = qctx.Close()
		return nil, NewScriptError(
			ErrorTypeExecution,
			EngineQuickJS,
			script.Name,
			"failed to bind script input",
			err,
		)
	}

	type evalResult struct {
		value any
		err   error
	}
	resultChan := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- evalResult{err: fmt.Errorf("engine panic: %v", r)}
			}
		}()
		value, err := qctx.EvalFile(script.Content, script.FileName())
		resultChan <- evalResult{value: value, err: err}
	}()

	select {
	case res := <-resultChan:
		executionTime := time.Since(startTime)
		if err := qctx.Close(); err != nil && !errors.Is(err, quickbridge.ErrStaleHandle) {
			slog.Warn("Failed to close execution context", "script", script.Name, "error", err)
		}

		if res.err != nil {
			scriptErr := classifyError(script.Name, res.err)
			scriptErr.Timestamp = startTime
			return &ScriptOutput{
				Metrics: ExecutionMetrics{
					ExecutionTime: executionTime,
					Success:       false,
					ErrorType:     scriptErr.Type,
				},
			}, scriptErr
		}

		return &ScriptOutput{
			Result: res.value,
			Metrics: ExecutionMetrics{
				ExecutionTime: executionTime,
				Success:       true,
			},
		}, nil

	case <-execCtx.Done():
		// Stop the runtime at its next cooperative checkpoint and hand the
		// poisoned instance to the abandoned goroutine for cleanup. A
		// script that never yields to the host leaks that goroutine, the
		// same way an unstoppable interpreter run would.
		rt.Interrupt()
		e.rt = nil
		go func() {
			<-resultChan
			_ = qctx.Close()
			_ = rt.Close()
		}()

		errType := ErrorTypeTimeout
		message := "script execution timed out"
		if errors.Is(execCtx.Err(), context.Canceled) {
			errType = ErrorTypeCanceled
			message = "script execution canceled"
		}
		slog.Warn("Recycling runtime after overrun",
			"script", script.Name,
			"timeout", timeout,
			"error_type", errType,
		)
		scriptErr := NewScriptError(errType, EngineQuickJS, script.Name, message, execCtx.Err())
		return &ScriptOutput{
			Metrics: ExecutionMetrics{
				ExecutionTime: time.Since(startTime),
				Success:       false,
				ErrorType:     errType,
			},
		}, scriptErr
	}
}

// Shutdown releases the engine's runtime
func (e *QuickJSEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rt == nil {
		return nil
	}
	err := e.rt.Close()
	e.rt = nil
	if err != nil && !errors.Is(err, quickbridge.ErrStaleHandle) {
		return err
	}
	return nil
}

// bindInput installs globals, host functions and bus message data into the
// execution context.
func bindInput(qctx *quickbridge.Context, input *ScriptInput) error {
	if input == nil {
		return nil
	}

	for name, value := range input.Globals {
		if err := qctx.SetGlobal(name, value); err != nil {
			return fmt.Errorf("failed to set global %s: %w", name, err)
		}
	}

	for name, fn := range input.Functions {
		if err := qctx.SetGlobal(name, fn); err != nil {
			return fmt.Errorf("failed to bind function %s: %w", name, err)
		}
	}

	if input.Message != nil {
		msg := map[string]interface{}{
			"topic":      input.Message.Topic,
			"context_id": input.Message.ContextID,
			"payload":    string(input.Message.Payload),
			"metadata":   input.Message.Metadata,
		}
		if err := qctx.SetGlobal("message", msg); err != nil {
			return fmt.Errorf("failed to bind message: %w", err)
		}
	}

	return nil
}

// classifyError maps a bridge error to a ScriptError category.
func classifyError(scriptName string, err error) *ScriptError {
	if errors.Is(err, quickbridge.ErrInterrupted) {
		return NewScriptError(
			ErrorTypeTimeout,
			EngineQuickJS,
			scriptName,
			"script execution interrupted",
			err,
		)
	}

	var exc *quickbridge.ScriptException
	if errors.As(err, &exc) {
		errType := ErrorTypeExecution
		switch {
		case exc.Kind == "SyntaxError":
			errType = ErrorTypeInvalidSyntax
		case strings.Contains(strings.ToLower(exc.Message), "out of memory"):
			errType = ErrorTypeMemoryLimit
		}
		return NewScriptError(errType, EngineQuickJS, scriptName, "script execution failed", err)
	}

	return NewScriptError(ErrorTypeExecution, EngineQuickJS, scriptName, "script execution failed", err)
}

package script

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutionContext tracks one in-flight script execution: who asked for it,
// when it started, and the data bound into the script.
type ExecutionContext struct {
	ID         string
	ScriptName string
	StartTime  time.Time
	Limits     Limits

	Globals   map[string]interface{}
	Functions map[string]interface{}
}

// ContextManager tracks active executions and enforces the concurrency
// ceiling. Each execution gets a uuid so log lines and bus messages from
// one run can be correlated.
type ContextManager struct {
	mu             sync.RWMutex
	activeContexts map[string]*ExecutionContext
	maxConcurrent  int
	defaultLimits  Limits
}

// NewContextManager creates a new context manager.
func NewContextManager(maxConcurrent int, defaultLimits Limits) *ContextManager {
	return &ContextManager{
		activeContexts: make(map[string]*ExecutionContext),
		maxConcurrent:  maxConcurrent,
		defaultLimits:  defaultLimits,
	}
}

// CreateExecutionContext registers a new execution. It fails when the
// concurrency ceiling is reached.
func (cm *ContextManager) CreateExecutionContext(req ExecutionRequest) (*ExecutionContext, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.maxConcurrent > 0 && len(cm.activeContexts) >= cm.maxConcurrent {
		return nil, NewScriptError(
			ErrorTypeExecution,
			"",
			req.ScriptName,
			fmt.Sprintf("maximum concurrent executions reached: %d", cm.maxConcurrent),
			nil,
		)
	}

	limits := cm.defaultLimits
	if req.Limits.MaxExecutionTime > 0 {
		limits = req.Limits
	}

	execCtx := &ExecutionContext{
		ID:         uuid.New().String(),
		ScriptName: req.ScriptName,
		StartTime:  time.Now(),
		Limits:     limits,
		Globals:    make(map[string]interface{}),
		Functions:  make(map[string]interface{}),
	}
	if req.Input != nil {
		for k, v := range req.Input.Globals {
			execCtx.Globals[k] = v
		}
		for k, v := range req.Input.Functions {
			execCtx.Functions[k] = v
		}
	}

	cm.activeContexts[execCtx.ID] = execCtx

	slog.Debug("Created execution context",
		"context_id", execCtx.ID,
		"script", req.ScriptName,
		"active_contexts", len(cm.activeContexts),
	)
	return execCtx, nil
}

// ReleaseExecutionContext removes a context from active tracking.
func (cm *ContextManager) ReleaseExecutionContext(contextID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if execCtx, exists := cm.activeContexts[contextID]; exists {
		delete(cm.activeContexts, contextID)
		slog.Debug("Released execution context",
			"context_id", contextID,
			"script", execCtx.ScriptName,
			"duration", time.Since(execCtx.StartTime),
			"active_contexts", len(cm.activeContexts),
		)
	}
}

// ActiveCount reports how many executions are currently in flight.
func (cm *ContextManager) ActiveCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.activeContexts)
}

// ActiveContexts returns a snapshot of the in-flight executions.
func (cm *ContextManager) ActiveContexts() []*ExecutionContext {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]*ExecutionContext, 0, len(cm.activeContexts))
	for _, execCtx := range cm.activeContexts {
		out = append(out, execCtx)
	}
	return out
}

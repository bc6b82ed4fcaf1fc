package script

import (
	"fmt"
	"sort"
	"sync"
)

// Factory implements the EngineFactory interface
type Factory struct {
	mu       sync.RWMutex
	builders map[string]func() Engine
}

// NewFactory creates a new engine factory with the built-in engines
func NewFactory() *Factory {
	f := &Factory{
		builders: make(map[string]func() Engine),
	}
	f.Register(EngineQuickJS, func() Engine { return NewQuickJSEngine() })
	return f
}

// Register adds an engine builder under a name. Registering an existing
// name replaces the builder.
func (f *Factory) Register(name string, builder func() Engine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[name] = builder
}

// CreateEngine returns a new engine for the specified implementation
func (f *Factory) CreateEngine(name string) (Engine, error) {
	f.mu.RLock()
	builder, ok := f.builders[name]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported script engine: %s", name)
	}
	return builder(), nil
}

// SupportedEngines returns all supported engine names
func (f *Factory) SupportedEngines() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.builders))
	for name := range f.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

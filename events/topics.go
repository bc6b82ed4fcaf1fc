package events

import (
	"fmt"
	"sort"
	"sync"
)

// Topic describes a named channel on the bus.
type Topic struct {
	Name        string
	Description string
	// PayloadFields lists the JSON field names a typed payload carries,
	// recorded for documentation and tooling.
	PayloadFields []string
	// TypeName is the Go type the payload marshals from.
	TypeName string
}

// TopicRegistry tracks the topics a process publishes or subscribes to, so
// tooling can list what flows on the bus and duplicate names are caught at
// startup.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]Topic
}

// NewTopicRegistry creates an empty registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{topics: make(map[string]Topic)}
}

// Register adds a topic. Registering the same name twice is an error.
func (r *TopicRegistry) Register(t Topic) error {
	if t.Name == "" {
		return fmt.Errorf("topic name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.topics[t.Name]; exists {
		return fmt.Errorf("topic %q is already registered", t.Name)
	}
	r.topics[t.Name] = t
	return nil
}

// MustRegister adds a topic and panics on conflict. Topics are usually
// defined at package level, where a conflict is a configuration error that
// should stop startup.
func (r *TopicRegistry) MustRegister(t Topic) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get looks a topic up by name.
func (r *TopicRegistry) Get(name string) (Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[name]
	return t, ok
}

// List returns all registered topics sorted by name.
func (r *TopicRegistry) List() []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Topic, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var defaultRegistry = NewTopicRegistry()

// DefaultRegistry returns the process-wide topic registry.
func DefaultRegistry() *TopicRegistry {
	return defaultRegistry
}

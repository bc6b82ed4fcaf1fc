package events

import (
	"context"
	"reflect"

	"github.com/goccy/go-json"
)

// Event[T] wraps a topic name and provides type-safe publishing.
// Creating one registers the topic with the default registry.
type Event[T any] struct {
	topicName string
}

// NewEvent creates a typed event and auto-registers it with the default
// registry. It uses reflection to record the payload's JSON field names
// for documentation.
func NewEvent[T any](name string, description string) Event[T] {
	var zero T
	t := reflect.TypeOf(zero)
	fields := make([]string, 0)

	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	typeName := ""
	if t != nil && t.Kind() == reflect.Struct {
		typeName = t.Name()
		for i := 0; i < t.NumField(); i++ {
			jsonTag := t.Field(i).Tag.Get("json")
			if jsonTag != "" && jsonTag != "-" {
				// Keep the name part of the tag, dropping omitempty and friends.
				nameEnd := 0
				for nameEnd < len(jsonTag) && jsonTag[nameEnd] != ',' {
					nameEnd++
				}
				fields = append(fields, jsonTag[:nameEnd])
			}
		}
	}

	DefaultRegistry().MustRegister(Topic{
		Name:          name,
		Description:   description,
		PayloadFields: fields,
		TypeName:      typeName,
	})

	return Event[T]{topicName: name}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.topicName
}

// Publish sends a typed event. The compiler ensures 'payload' matches 'T'.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], payload T) error {
	return PublishFrom(ctx, p, event, "", payload)
}

// PublishFrom sends a typed event stamped with the execution context it
// originated from, so subscribers and traces can correlate it.
func PublishFrom[T any](ctx context.Context, p Publisher, event Event[T], contextID string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.Publish(ctx, Message{
		Topic:     event.Name(),
		ContextID: contextID,
		Payload:   data,
	})
}

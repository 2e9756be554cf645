// Package command holds the host's command table: an immutable map from
// command name to its class and handler, built once at startup.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mattjoyce/livebridge/internal/protocol"
)

// Handler performs exactly one host operation using the request params.
// Handlers never decide threading; the dispatcher does, from the class.
type Handler func(ctx context.Context, params protocol.Params) (any, error)

// Operation is a handler bound to one request's params.
type Operation func(ctx context.Context) (any, error)

// Entry is one registered command.
type Entry struct {
	Name    string
	Class   Class
	Handler Handler
}

// Bind returns the adapter closure the dispatcher invokes for one request.
func (e Entry) Bind(params protocol.Params) Operation {
	if params == nil {
		params = protocol.Params{}
	}
	return func(ctx context.Context) (any, error) {
		return e.Handler(ctx, params)
	}
}

var (
	ErrEmptyName      = errors.New("command: empty name")
	ErrInvalidClass   = errors.New("command: invalid class")
	ErrNilHandler     = errors.New("command: nil handler")
	ErrDuplicateEntry = errors.New("command: duplicate registration")
)

// Builder accumulates registrations. It is not safe for concurrent use and
// is discarded once Build succeeds.
type Builder struct {
	entries []Entry
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Register adds a command. Errors are reported by Build.
func (b *Builder) Register(name string, class Class, handler Handler) *Builder {
	b.entries = append(b.entries, Entry{Name: name, Class: class, Handler: handler})
	return b
}

// Build validates every registration and returns the immutable registry.
func (b *Builder) Build() (*Registry, error) {
	var errs []error
	entries := make(map[string]Entry, len(b.entries))
	for _, e := range b.entries {
		switch {
		case e.Name == "":
			errs = append(errs, ErrEmptyName)
			continue
		case !e.Class.Valid():
			errs = append(errs, fmt.Errorf("%w: %s has class %d", ErrInvalidClass, e.Name, int(e.Class)))
			continue
		case e.Handler == nil:
			errs = append(errs, fmt.Errorf("%w: %s", ErrNilHandler, e.Name))
			continue
		}
		if _, dup := entries[e.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Name))
			continue
		}
		entries[e.Name] = e
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Registry{entries: entries, names: names}, nil
}

// Registry is read-only after Build and safe for concurrent lookups.
type Registry struct {
	entries map[string]Entry
	names   []string
}

// Lookup resolves name by exact match.
func (r *Registry) Lookup(name string) (Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Class implements Classifier.
func (r *Registry) Class(name string) (Class, bool) {
	e, ok := r.entries[name]
	return e.Class, ok
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Names returns all command names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Entries returns all entries sorted by name.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.entries[name])
	}
	return out
}

// Table returns a detached name → class map.
func (r *Registry) Table() Table {
	t := make(Table, len(r.entries))
	for name, e := range r.entries {
		t[name] = e.Class
	}
	return t
}

// Invalid builds the error a handler returns for bad params or an out of
// range index. Its message reaches the client verbatim.
func Invalid(format string, args ...any) error {
	return protocol.Validationf(format, args...)
}

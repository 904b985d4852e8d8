// Package registry maps job kinds to action capabilities.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tannerhat/botjobs/pkg/core"
	"github.com/tannerhat/botjobs/pkg/security"
)

// ActionFunc is a type-erased action capability taking a job's raw
// payload. Typed handlers are converted to ActionFuncs at registration
// time by closing over JSON unmarshal + the typed function.
type ActionFunc func(ctx context.Context, payload []byte) error

// Registry maps job kinds to action capabilities. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

// New creates an empty action registry.
func New() *Registry {
	return &Registry{
		actions: make(map[string]ActionFunc),
	}
}

// RegisterFunc registers a raw action for a kind. Kinds must be
// alphanumeric (starting with a letter), max 255 chars.
func (r *Registry) RegisterFunc(kind string, fn ActionFunc) {
	if err := security.ValidateKind(kind); err != nil {
		panic(fmt.Sprintf("botjobs: invalid action kind %q: %v", kind, err))
	}
	if fn == nil {
		panic(fmt.Sprintf("botjobs: nil action for kind %q", kind))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[kind] = fn
}

// Register registers a typed action for a kind. The payload is
// JSON-decoded into T before the action runs; a payload that does not
// decode is an action failure for that job, not a crash.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Register[T any](r *Registry, kind string, fn func(ctx context.Context, args T) error) {
	r.RegisterFunc(kind, func(ctx context.Context, payload []byte) error {
		var args T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &args); err != nil {
				return fmt.Errorf("botjobs: decode payload for kind %q: %w", kind, err)
			}
		}
		return fn(ctx, args)
	})
}

// Get returns the action for a kind.
func (r *Registry) Get(kind string) (ActionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[kind]
	return fn, ok
}

// Has reports whether an action is registered for the kind.
func (r *Registry) Has(kind string) bool {
	_, ok := r.Get(kind)
	return ok
}

// Kinds returns the registered kinds in no particular order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.actions))
	for k := range r.actions {
		kinds = append(kinds, k)
	}
	return kinds
}

// Lookup returns the action for a kind, or an UnknownKindError suitable
// for recording as the job's failure reason.
func (r *Registry) Lookup(kind string) (ActionFunc, error) {
	fn, ok := r.Get(kind)
	if !ok {
		return nil, &core.UnknownKindError{Kind: kind}
	}
	return fn, nil
}

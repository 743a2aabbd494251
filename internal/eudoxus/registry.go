package eudoxus

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry maps names to loaded automata. It is safe for concurrent use;
// registered automata are shared, never copied.
type Registry struct {
	mu       sync.RWMutex
	automata map[string]*Automaton
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{automata: make(map[string]*Automaton)}
}

// Register stores a under name, replacing any previous automaton.
func (r *Registry) Register(name string, a *Automaton) error {
	if name == "" {
		return errors.New("automaton name is required")
	}
	if a == nil {
		return fmt.Errorf("automaton %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.automata[name] = a
	return nil
}

// Lookup returns the automaton registered under name.
func (r *Registry) Lookup(name string) (*Automaton, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.automata[name]
	return a, ok
}

// Remove drops name from the registry. Removing an unknown name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.automata, name)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.automata))
	for name := range r.automata {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered automata.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.automata)
}

// Evaluate runs the automaton registered under name over input.
func (r *Registry) Evaluate(name string, input []byte, policy Policy) ([]Match, error) {
	a, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotLoaded, name)
	}
	return Evaluate(a, input, policy), nil
}

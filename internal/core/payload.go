package core

import "sync"

// Payload is the opaque typed key/value container passed as task input and
// returned as task output. The core never serializes a Payload; transports
// that need to persist or transmit one must inject their own codec — see
// spec.md §4.1 and §6.6.
//
// A Payload is value-typed at the top level: Clone produces an independent
// map. A nested Payload stored as a value is shared by reference; mutating
// one observed by two owners is undefined, so Set always stores the value
// the caller handed it and callers that mutate a nested Payload after
// storing it should Clone first.
type Payload struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewPayload returns an empty Payload ready for use.
func NewPayload() *Payload {
	return &Payload{values: make(map[string]any)}
}

// PayloadFrom builds a Payload pre-populated from a plain map.
func PayloadFrom(values map[string]any) *Payload {
	p := NewPayload()
	for k, v := range values {
		p.values[k] = v
	}
	return p
}

// Set stores value under key, overwriting any existing entry.
func (p *Payload) Set(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
}

// Has reports whether key is present.
func (p *Payload) Has(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.values[key]
	return ok
}

// Remove deletes key, if present.
func (p *Payload) Remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, key)
}

// Size returns the number of entries.
func (p *Payload) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.values)
}

// Get returns the raw value stored under key.
func (p *Payload) Get(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key]
	return v, ok
}

// GetTyped fetches key and type-asserts it to T, returning the zero value
// and false on a missing key or a type mismatch.
func GetTyped[T any](p *Payload, key string) (T, bool) {
	var zero T
	v, ok := p.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Clone returns an independent copy of p. Values are copied by reference
// (shallow); nested *Payload values are not recursively cloned — callers
// that need an independent nested container should clone it explicitly
// before storing it, per the container-sharing convention above.
func (p *Payload) Clone() *Payload {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return &Payload{values: out}
}

// Keys returns a snapshot of the stored keys, in no particular order.
func (p *Payload) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	return keys
}

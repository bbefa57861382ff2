package core

type binding struct {
	identity string
	owner    *int64
}

// ConnectionRegistry maps live connections to the identity they joined as.
// A connection is bound at most once for its lifetime.
type ConnectionRegistry struct {
	bindings map[ConnID]binding
}

// NewConnectionRegistry returns an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{bindings: make(map[ConnID]binding)}
}

// Bind records the identity for id. Returns false, leaving the existing
// binding untouched, if id is already bound.
func (r *ConnectionRegistry) Bind(id ConnID, identity string, owner *int64) bool {
	if _, exists := r.bindings[id]; exists {
		return false
	}
	r.bindings[id] = binding{identity: identity, owner: owner}
	return true
}

// Resolve returns the identity bound to id.
func (r *ConnectionRegistry) Resolve(id ConnID) (string, bool) {
	b, ok := r.bindings[id]
	return b.identity, ok
}

// Owner returns the storage user id bound to id, if any.
func (r *ConnectionRegistry) Owner(id ConnID) *int64 {
	return r.bindings[id].owner
}

// Unbind removes the mapping for id.
func (r *ConnectionRegistry) Unbind(id ConnID) {
	delete(r.bindings, id)
}

// Len returns the number of bound connections.
func (r *ConnectionRegistry) Len() int {
	return len(r.bindings)
}

package core

import "sort"

// IdentityResolver maps a connection to its identity.
type IdentityResolver interface {
	Resolve(id ConnID) (string, bool)
}

// TypingSet tracks connections that are currently typing, in the order they
// started.
type TypingSet struct {
	seq     uint64
	members map[ConnID]uint64
}

// NewTypingSet returns an empty set.
func NewTypingSet() *TypingSet {
	return &TypingSet{members: make(map[ConnID]uint64)}
}

// SetTyping flags id. Returns whether the set changed.
func (t *TypingSet) SetTyping(id ConnID) bool {
	if _, ok := t.members[id]; ok {
		return false
	}
	t.seq++
	t.members[id] = t.seq
	return true
}

// ClearTyping unflags id. Returns whether the set changed.
func (t *TypingSet) ClearTyping(id ConnID) bool {
	if _, ok := t.members[id]; !ok {
		return false
	}
	delete(t.members, id)
	return true
}

// IsTyping reports whether id is flagged.
func (t *TypingSet) IsTyping(id ConnID) bool {
	_, ok := t.members[id]
	return ok
}

// CurrentTypingIdentities resolves flagged connections to identities.
// Connections that no longer resolve are purged. An identity typing from
// several connections appears once.
func (t *TypingSet) CurrentTypingIdentities(resolver IdentityResolver) []string {
	type entry struct {
		identity string
		seq      uint64
	}
	entries := make([]entry, 0, len(t.members))
	for id, seq := range t.members {
		identity, ok := resolver.Resolve(id)
		if !ok {
			delete(t.members, id)
			continue
		}
		entries = append(entries, entry{identity: identity, seq: seq})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.identity]; dup {
			continue
		}
		seen[e.identity] = struct{}{}
		out = append(out, e.identity)
	}
	return out
}

// Len returns the number of flagged connections, stale ones included.
func (t *TypingSet) Len() int {
	return len(t.members)
}

package core

import "sort"

// JoinResult describes the presence transition caused by AddConnection.
type JoinResult struct {
	FirstConnection bool
	TotalIdentities int
}

// LeaveResult describes the presence transition caused by RemoveConnection.
type LeaveResult struct {
	LastConnection  bool
	TotalIdentities int
}

// IdentitySessions tracks the open connections of every online identity.
// An identity is present only while it has at least one connection.
type IdentitySessions struct {
	conns map[string]map[ConnID]struct{}
}

// NewIdentitySessions returns an empty tracker.
func NewIdentitySessions() *IdentitySessions {
	return &IdentitySessions{conns: make(map[string]map[ConnID]struct{})}
}

// AddConnection attaches id to identity.
func (s *IdentitySessions) AddConnection(identity string, id ConnID) JoinResult {
	set, ok := s.conns[identity]
	if !ok {
		set = make(map[ConnID]struct{})
		s.conns[identity] = set
	}
	set[id] = struct{}{}
	return JoinResult{
		FirstConnection: !ok,
		TotalIdentities: len(s.conns),
	}
}

// RemoveConnection detaches id from identity, dropping the identity when
// its last connection goes away.
func (s *IdentitySessions) RemoveConnection(identity string, id ConnID) LeaveResult {
	set, ok := s.conns[identity]
	if !ok {
		return LeaveResult{TotalIdentities: len(s.conns)}
	}
	if _, present := set[id]; !present {
		return LeaveResult{TotalIdentities: len(s.conns)}
	}
	delete(set, id)
	last := len(set) == 0
	if last {
		delete(s.conns, identity)
	}
	return LeaveResult{
		LastConnection:  last,
		TotalIdentities: len(s.conns),
	}
}

// Connections returns the connections currently open for identity.
func (s *IdentitySessions) Connections(identity string) []ConnID {
	set := s.conns[identity]
	out := make([]ConnID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Online reports whether identity has any open connection.
func (s *IdentitySessions) Online(identity string) bool {
	_, ok := s.conns[identity]
	return ok
}

// Identities lists online identities in sorted order.
func (s *IdentitySessions) Identities() []string {
	out := make([]string, 0, len(s.conns))
	for identity := range s.conns {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of online identities.
func (s *IdentitySessions) Count() int {
	return len(s.conns)
}

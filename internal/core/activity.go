package core

import (
	"sort"
	"time"
)

// Pair is an unordered pair of identities in canonical (sorted) order.
type Pair struct {
	A string
	B string
}

// NewPair canonicalizes x and y so that NewPair(x, y) == NewPair(y, x).
func NewPair(x, y string) Pair {
	if y < x {
		x, y = y, x
	}
	return Pair{A: x, B: y}
}

// Other returns the member of the pair that is not identity.
func (p Pair) Other(identity string) string {
	if identity == p.A {
		return p.B
	}
	return p.A
}

func (p Pair) String() string {
	return p.A + ":" + p.B
}

// PrivateChatActivity tracks the last activity of private conversations.
type PrivateChatActivity struct {
	last map[Pair]time.Time
}

// NewPrivateChatActivity returns an empty tracker.
func NewPrivateChatActivity() *PrivateChatActivity {
	return &PrivateChatActivity{last: make(map[Pair]time.Time)}
}

// Touch records now as the last activity between a and b.
func (a *PrivateChatActivity) Touch(x, y string, now time.Time) {
	if x == y {
		return
	}
	a.last[NewPair(x, y)] = now
}

// LastActivity returns when the conversation between x and y was last active.
func (a *PrivateChatActivity) LastActivity(x, y string) (time.Time, bool) {
	t, ok := a.last[NewPair(x, y)]
	return t, ok
}

// Sweep removes and returns every pair idle for longer than window.
func (a *PrivateChatActivity) Sweep(now time.Time, window time.Duration) []Pair {
	var expired []Pair
	for pair, last := range a.last {
		if now.Sub(last) > window {
			delete(a.last, pair)
			expired = append(expired, pair)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].A != expired[j].A {
			return expired[i].A < expired[j].A
		}
		return expired[i].B < expired[j].B
	})
	return expired
}

// Len returns the number of tracked conversations.
func (a *PrivateChatActivity) Len() int {
	return len(a.last)
}

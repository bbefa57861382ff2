package core

// ReadReceipts records which identities have read each message.
// Entries are never evicted while the process runs.
type ReadReceipts struct {
	readers map[int64][]string
	seen    map[int64]map[string]struct{}
}

// NewReadReceipts returns an empty ledger.
func NewReadReceipts() *ReadReceipts {
	return &ReadReceipts{
		readers: make(map[int64][]string),
		seen:    make(map[int64]map[string]struct{}),
	}
}

// MarkRead adds identity as a reader of messageID. Returns true only the
// first time the pair is recorded.
func (l *ReadReceipts) MarkRead(messageID int64, identity string) bool {
	set, ok := l.seen[messageID]
	if !ok {
		set = make(map[string]struct{})
		l.seen[messageID] = set
	}
	if _, dup := set[identity]; dup {
		return false
	}
	set[identity] = struct{}{}
	l.readers[messageID] = append(l.readers[messageID], identity)
	return true
}

// Seed loads previously persisted readers without reporting them as new.
func (l *ReadReceipts) Seed(messageID int64, readers []string) {
	for _, r := range readers {
		l.MarkRead(messageID, r)
	}
}

// Readers returns readers of messageID in acknowledgement order.
func (l *ReadReceipts) Readers(messageID int64) []string {
	readers := l.readers[messageID]
	out := make([]string, len(readers))
	copy(out, readers)
	return out
}

// HasRead reports whether identity already read messageID.
func (l *ReadReceipts) HasRead(messageID int64, identity string) bool {
	_, ok := l.seen[messageID][identity]
	return ok
}

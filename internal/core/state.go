package core

// State is the runtime presence state owned by one Router.
type State struct {
	clients  map[ConnID]*Client
	registry *ConnectionRegistry
	sessions *IdentitySessions
	typing   *TypingSet
	receipts *ReadReceipts
	activity *PrivateChatActivity
}

// NewState returns empty registries.
func NewState() *State {
	return &State{
		clients:  make(map[ConnID]*Client),
		registry: NewConnectionRegistry(),
		sessions: NewIdentitySessions(),
		typing:   NewTypingSet(),
		receipts: NewReadReceipts(),
		activity: NewPrivateChatActivity(),
	}
}

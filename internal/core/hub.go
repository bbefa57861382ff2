package core

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lobbychat/internal/store"
)

// Hub is the chat coordination surface used by transports.
type Hub interface {
	// Run processes events until ctx is cancelled.
	Run(ctx context.Context)
	// RegisterClient announces a new transport connection.
	RegisterClient(c *Client) error
	// UnregisterClient tears a connection down. No further commands from c
	// are processed afterwards.
	UnregisterClient(c *Client)
	// Submit queues a command from c.
	Submit(c *Client, cmd *Command) error
	// Snapshot reports current presence from inside the event loop.
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Store is the persistence collaborator the router depends on.
type Store interface {
	store.MessageStore
	store.ReceiptStore
}

// Snapshot is a point-in-time view of presence.
type Snapshot struct {
	Connections int
	Identities  []string
}

// Options tunes the router.
type Options struct {
	// PrivateInactivity is how long a private conversation may stay idle.
	PrivateInactivity time.Duration
	// SweepInterval is the period of the expiry scan; keep it below PrivateInactivity.
	SweepInterval time.Duration
	// HistoryLimit is the number of messages sent on join.
	HistoryLimit int
	// StoreTimeout bounds every storage call.
	StoreTimeout time.Duration
	// Clock drives timestamps and the sweep ticker. Defaults to the wall clock.
	Clock clock.Clock
	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		PrivateInactivity: 60 * time.Second,
		SweepInterval:     10 * time.Second,
		HistoryLimit:      50,
		StoreTimeout:      5 * time.Second,
	}
}

type requestKind int

const (
	requestConnect requestKind = iota
	requestDisconnect
	requestCommand
	requestSnapshot
)

type request struct {
	kind   requestKind
	client *Client
	cmd    *Command
	reply  chan Snapshot
}

// Router owns all presence state and is the only component that emits
// events. Every mutation happens on the goroutine running Run.
type Router struct {
	store Store
	opts  Options
	clock clock.Clock
	log   *zerolog.Logger

	inbox chan request
	done  chan struct{}

	state *State
}

var _ Hub = (*Router)(nil)

// NewRouter creates a router backed by st. Zero-valued options fall back to
// DefaultOptions.
func NewRouter(st Store, opts Options) *Router {
	defaults := DefaultOptions()
	if opts.PrivateInactivity <= 0 {
		opts.PrivateInactivity = defaults.PrivateInactivity
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaults.SweepInterval
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaults.HistoryLimit
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaults.StoreTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	return &Router{
		store: st,
		opts:  opts,
		clock: opts.Clock,
		log:   opts.Logger,
		inbox: make(chan request, 256),
		done:  make(chan struct{}),
		state: NewState(),
	}
}

// Run processes inbound requests and periodic sweeps until ctx is done.
func (r *Router) Run(ctx context.Context) {
	defer close(r.done)

	ticker := r.clock.Ticker(r.opts.SweepInterval)
	defer ticker.Stop()

	r.log.Info().
		Dur("sweep_interval", r.opts.SweepInterval).
		Dur("private_inactivity", r.opts.PrivateInactivity).
		Msg("chat router started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("chat router stopped")
			return
		case req := <-r.inbox:
			r.dispatch(ctx, req)
		case <-ticker.C:
			r.sweep()
		}
	}
}

// RegisterClient announces a new connection.
func (r *Router) RegisterClient(c *Client) error {
	return r.enqueue(request{kind: requestConnect, client: c})
}

// UnregisterClient queues teardown for c behind its pending commands.
func (r *Router) UnregisterClient(c *Client) {
	if err := r.enqueue(request{kind: requestDisconnect, client: c}); err != nil {
		r.log.Debug().Str("conn_id", string(c.ID)).Msg("unregister after router stopped")
	}
}

// Submit queues a command from c.
func (r *Router) Submit(c *Client, cmd *Command) error {
	if cmd == nil {
		return nil
	}
	return r.enqueue(request{kind: requestCommand, client: c, cmd: cmd})
}

// Snapshot asks the event loop for current presence.
func (r *Router) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := r.enqueue(request{kind: requestSnapshot, reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-r.done:
		return Snapshot{}, ErrHubStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (r *Router) enqueue(req request) error {
	select {
	case <-r.done:
		return ErrHubStopped
	default:
	}
	select {
	case r.inbox <- req:
		return nil
	case <-r.done:
		return ErrHubStopped
	}
}

func (r *Router) dispatch(ctx context.Context, req request) {
	switch req.kind {
	case requestConnect:
		r.state.clients[req.client.ID] = req.client
		r.updateGauges()
		r.log.Debug().Str("conn_id", string(req.client.ID)).Msg("connection registered")
	case requestDisconnect:
		r.handleDisconnect(req.client)
	case requestSnapshot:
		req.reply <- Snapshot{
			Connections: len(r.state.clients),
			Identities:  r.state.sessions.Identities(),
		}
	case requestCommand:
		if err := r.handleCommand(ctx, req.client, req.cmd); err != nil {
			r.logCommandError(req.client, req.cmd, err)
		}
	}
}

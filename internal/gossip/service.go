package gossip

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// Config configures a Node.
type Config struct {
	// ID is the name the node advertises.
	ID string
	// Address, when set, is advertised instead of the resolved address.
	Address string
	// Group is the multicast group heartbeats are exchanged on.
	Group GroupConfig
	// Interval is the heartbeat period.
	Interval time.Duration
	// MaxRestarts bounds how many times a running node rejoins the group after
	// a loop failure. Zero fails the node on the first loop failure.
	MaxRestarts int
	// RestartBackoff is the delay before the first restart. It grows
	// exponentially for consecutive restarts.
	RestartBackoff time.Duration
	// Resolver determines the advertised address when Address is empty.
	Resolver Resolver
	// Join opens the group channel.
	Join JoinFunc
	// Observer receives node events.
	Observer Observer
}

// Merge fills the unset fields of cfg from def.
func (cfg Config) Merge(def Config) Config {
	cfg.Group = cfg.Group.Merge(def.Group)
	if cfg.Interval == 0 {
		cfg.Interval = def.Interval
	}
	if cfg.RestartBackoff == 0 {
		cfg.RestartBackoff = def.RestartBackoff
	}
	if cfg.Join == nil {
		cfg.Join = def.Join
	}
	if cfg.Observer == nil {
		cfg.Observer = def.Observer
	}
	return cfg
}

// Validate checks a merged config. Failures wrap ErrInvalidConfig.
func (cfg Config) Validate() error {
	if cfg.ID == "" {
		return errors.Wrap(ErrInvalidConfig, "node id required")
	}
	if cfg.Interval <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "heartbeat interval %s must be positive", cfg.Interval)
	}
	if cfg.MaxRestarts < 0 {
		return errors.Wrapf(ErrInvalidConfig, "max restarts %d must not be negative", cfg.MaxRestarts)
	}
	if cfg.Join == nil {
		return errors.Wrap(ErrInvalidConfig, "join function required")
	}
	_, err := cfg.Group.UDPAddr()
	return err
}

// DefaultConfig returns the settings New merges into every config.
func DefaultConfig() Config {
	return Config{
		Group: GroupConfig{
			Addr: DefaultGroupAddr,
			Port: DefaultPort,
			TTL:  DefaultTTL,
		},
		Interval:       DefaultInterval,
		RestartBackoff: time.Second,
		Join:           JoinGroup,
		Observer:       NopObserver{},
	}
}

// Node advertises itself on a multicast group and tracks the nodes it hears.
type Node struct {
	cfg   Config
	self  Identity
	table *Membership

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	err    error

	running     chan struct{}
	runningOnce sync.Once
	done        chan struct{}
	doneOnce    sync.Once
}

// New resolves the node's address and seeds its table with itself. No network
// traffic happens until Run.
func New(cfg Config) (*Node, error) {
	cfg = cfg.Merge(DefaultConfig())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	addr := cfg.Address
	if addr == "" {
		var err error
		if addr, err = cfg.Resolver.Resolve(); err != nil {
			return nil, err
		}
	}
	self := Identity{ID: cfg.ID, Address: addr}
	if _, err := EncodeHeartbeat(self); err != nil {
		return nil, err
	}
	return &Node{
		cfg:     cfg,
		self:    self,
		table:   NewMembership(self),
		state:   StateCreated,
		running: make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// StartNode creates a node and runs it in the background until ctx is
// cancelled or Stop is called. It returns once the node is running, or with
// the startup error.
func StartNode(ctx context.Context, cfg Config) (*Node, error) {
	n, err := New(cfg)
	if err != nil {
		return nil, err
	}
	errC := make(chan error, 1)
	go func() { errC <- n.Run(ctx) }()
	select {
	case <-n.running:
		return n, nil
	case err := <-errC:
		if err == nil {
			err = errors.Wrap(context.Canceled, "node stopped before running")
		}
		return nil, err
	}
}

// Run joins the group and runs the announcer and listener until ctx is
// cancelled or Stop is called, which return nil, or until the node fails.
// A failure before the node first reaches the running state is returned
// without restarting.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := n.begin(cancel); err != nil {
		return err
	}
	defer n.doneOnce.Do(func() { close(n.done) })

	err := n.supervise(ctx)
	if err != nil && ctx.Err() == nil {
		n.mu.Lock()
		n.err = err
		n.mu.Unlock()
		n.transition(StateFailed)
		return err
	}
	n.transition(StateStopping)
	n.transition(StateStopped)
	return nil
}

// Stop shuts the node down and waits for Run to return. It returns the error
// the node failed with, if any. Stop is safe to call more than once.
func (n *Node) Stop() error {
	n.mu.Lock()
	if n.state == StateCreated {
		n.state = StateStopped
		n.mu.Unlock()
		n.cfg.Observer.StateChanged(StateCreated, StateStopped)
		n.doneOnce.Do(func() { close(n.done) })
		return nil
	}
	cancel := n.cancel
	n.mu.Unlock()
	n.transition(StateStopping)
	if cancel != nil {
		cancel()
	}
	<-n.done
	return n.Err()
}

// Membership returns a copy of the node's view of the cluster. It stays
// available after the node stopped or failed.
func (n *Node) Membership() map[string]string { return n.table.Snapshot() }

// Table returns the live membership table.
func (n *Node) Table() *Membership { return n.table }

// Identity returns what the node advertises.
func (n *Node) Identity() Identity { return n.self }

// State returns the node's lifecycle state.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Err returns the error the node failed with.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Done is closed once the node reached a terminal state.
func (n *Node) Done() <-chan struct{} { return n.done }

func (n *Node) begin(cancel context.CancelFunc) error {
	n.mu.Lock()
	if n.state != StateCreated {
		defer n.mu.Unlock()
		return errors.Wrapf(ErrAlreadyStarted, "node is %s", n.state)
	}
	n.cancel = cancel
	n.state = StateStarting
	n.mu.Unlock()
	n.cfg.Observer.StateChanged(StateCreated, StateStarting)
	return nil
}

// transition moves the node to state to. Terminal states are final and a
// stopping node only moves on to a terminal state.
func (n *Node) transition(to State) {
	n.mu.Lock()
	from := n.state
	if from == to || from.Terminal() || (from == StateStopping && !to.Terminal()) {
		n.mu.Unlock()
		return
	}
	n.state = to
	n.mu.Unlock()
	if to == StateRunning {
		n.runningOnce.Do(func() { close(n.running) })
	}
	n.cfg.Observer.StateChanged(from, to)
}

func (n *Node) supervise(ctx context.Context) error {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(n.cfg.RestartBackoff),
		backoff.WithMaxElapsedTime(0),
	)
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(n.cfg.MaxRestarts)), ctx)
	started := false
	return backoff.RetryNotify(func() error {
		err := n.session(ctx, &started)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if !started {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(error, time.Duration) {
		n.transition(StateStarting)
	})
}

// session runs one membership of the group: join, both loops, leave.
func (n *Node) session(ctx context.Context, started *bool) error {
	ch, err := n.cfg.Join(n.cfg.Group)
	if err != nil {
		err = mark(err, ErrChannelJoin, "join group "+n.cfg.Group.String())
		n.cfg.Observer.LoopFailed(LoopChannel, err)
		return err
	}
	announcer, err := NewAnnouncer(ch, n.self, n.cfg.Interval, n.cfg.Observer)
	if err != nil {
		return errors.CombineErrors(err, ch.Close())
	}
	listener := NewListener(ch, n.table, n.cfg.Observer)

	*started = true
	n.transition(StateRunning)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.report(LoopListener, listener.Run(gctx)) })
	g.Go(func() error { return n.report(LoopAnnouncer, announcer.Run(gctx)) })
	g.Go(func() error {
		<-gctx.Done()
		if err := ch.Close(); err != nil {
			n.cfg.Observer.LoopFailed(LoopChannel, err)
		}
		return nil
	})
	return g.Wait()
}

func (n *Node) report(loop string, err error) error {
	if err != nil {
		n.cfg.Observer.LoopFailed(loop, err)
	}
	return err
}

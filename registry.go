package hubbub

import (
	"github.com/fogfish/opts"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/casualjim/hubbub/cell"
	"github.com/casualjim/hubbub/internal/graph"
)

// Registry owns the channel namespace, the persistent reachability graph,
// and the cycle detector. It is consulted once per subscription and never
// on the dispatch path: dispatch only exercises cells and containers.
//
// A Registry is single-threaded by design, like everything else here.
type Registry struct {
	log        zerolog.Logger
	dedupKinds bool

	stack    *cell.Stack
	channels *orderedmap.OrderedMap[string, *channelRecord]
	feeds    *orderedmap.OrderedMap[string, *feedRecord]
	graph    *graph.Graph
	frame    *Frame
}

// membership bookkeeping, kept for diagnostics independently of the graph.
type channelRecord struct {
	name      string
	node      int
	listeners []memberEntry
	emitters  []memberEntry
}

type feedRecord struct {
	name    string
	feeders []memberEntry
	feedees []memberEntry
}

type memberEntry struct {
	subID    string
	identity Identity
}

var (
	// WithLogger sets the registry's logger. The default discards
	// everything; subscriptions log at debug level, dispatch at trace.
	WithLogger = opts.ForName[Registry, zerolog.Logger]("log")

	// WithKindDedup collapses repeated subscriptions of the same
	// Identity.Kind into a single membership entry per channel.
	WithKindDedup = opts.ForName[Registry, bool]("dedupKinds")
)

// New creates an empty registry.
func New(options ...opts.Option[Registry]) (*Registry, error) {
	r := &Registry{
		log:      zerolog.Nop(),
		stack:    cell.NewStack(),
		channels: orderedmap.New[string, *channelRecord](),
		feeds:    orderedmap.New[string, *feedRecord](),
		graph:    graph.New(),
	}
	if err := opts.Apply(r, options); err != nil {
		return nil, err
	}
	return r, nil
}

// NewCell creates a cell guarding value on this registry's dispatch stack.
func NewCell[T any](r *Registry, value T) *cell.Cell[T] {
	return cell.New(r.stack, value)
}

func (r *Registry) declareChannel(name string) (*channelRecord, error) {
	if err := r.checkNamespace(name); err != nil {
		return nil, err
	}
	rec := &channelRecord{name: name, node: r.graph.Node(name)}
	r.channels.Set(name, rec)
	return rec, nil
}

// DeclareFeed reserves name for a feed. Feeds share the channel namespace
// but never contribute edges to the reachability graph.
func (r *Registry) DeclareFeed(name string) error {
	if err := r.checkNamespace(name); err != nil {
		return err
	}
	r.feeds.Set(name, &feedRecord{name: name})
	return nil
}

func (r *Registry) checkNamespace(name string) error {
	if _, taken := r.channels.Get(name); taken {
		return &DuplicateChannelError{Name: name}
	}
	if _, taken := r.feeds.Get(name); taken {
		return &DuplicateChannelError{Name: name}
	}
	return nil
}

// Subscription is the handle returned by Subscribe, used to remove the
// handler again. Removing it never retracts graph edges.
type Subscription struct {
	id       string
	identity Identity
	removals []func()
	closed   bool
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() string { return s.id }

// Identity returns the identity the handler subscribed under.
func (s *Subscription) Identity() Identity { return s.identity }

// Subscribe opens a construction frame for identity and runs register,
// which declares the handler's channel usage through container Register
// and Emitter calls. The declared (listen, emit) cross product is then
// staged into a scratch copy of the reachability graph and validated; only
// on success are edges, membership records, and container insertions
// committed. A rejected subscription has no side effects.
func (r *Registry) Subscribe(identity Identity, register func(*Frame) error) (*Subscription, error) {
	if r.frame != nil {
		return nil, ErrSubscribeInProgress
	}
	identity = identity.normalize()

	f := newFrame(r, identity)
	r.frame = f
	defer func() { r.frame = nil }()

	if err := register(f); err != nil {
		f.abort()
		return nil, err
	}

	listens := sorted(f.listens)
	emits := sorted(f.emits)

	staged := r.graph.Clone()
	for _, from := range listens {
		for _, to := range emits {
			staged.AddEdge(staged.Node(from), staged.Node(to))
		}
	}
	if chain, found := staged.FindCycle(); found {
		f.abort()
		return nil, r.recursionError(chain, f)
	}

	r.graph = staged
	sub := &Subscription{id: uuid.Must(uuid.NewV7()).String(), identity: identity}
	for _, commit := range f.commits {
		commit(sub)
	}
	for _, name := range listens {
		rec, _ := r.channels.Get(name)
		rec.listeners = r.appendMember(rec.listeners, sub)
	}
	for _, name := range emits {
		rec, _ := r.channels.Get(name)
		rec.emitters = r.appendMember(rec.emitters, sub)
	}
	for _, name := range sorted(f.feedListens) {
		rec, _ := r.feeds.Get(name)
		rec.feedees = r.appendMember(rec.feedees, sub)
	}
	for _, name := range sorted(f.feedEmits) {
		rec, _ := r.feeds.Get(name)
		rec.feeders = r.appendMember(rec.feeders, sub)
	}

	r.log.Debug().
		Str("handler", identity.Name).
		Strs("listens", listens).
		Strs("emits", emits).
		Msg("handler subscribed")
	return sub, nil
}

func (r *Registry) appendMember(entries []memberEntry, sub *Subscription) []memberEntry {
	if r.dedupKinds {
		for _, e := range entries {
			if e.identity.Kind == sub.identity.Kind {
				return entries
			}
		}
	}
	return append(entries, memberEntry{subID: sub.id, identity: sub.identity})
}

// Unsubscribe removes the subscription's cells from every container they
// were registered with and drops its membership records. The reachability
// graph keeps the subscription's edges: cycle safety must not depend on
// unsubscribe/resubscribe ordering.
func (r *Registry) Unsubscribe(sub *Subscription) error {
	if sub.closed {
		return ErrNotSubscribed
	}
	sub.closed = true
	for _, remove := range sub.removals {
		remove()
	}
	for pair := r.channels.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.listeners = dropMember(pair.Value.listeners, sub.id)
		pair.Value.emitters = dropMember(pair.Value.emitters, sub.id)
	}
	for pair := r.feeds.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.feedees = dropMember(pair.Value.feedees, sub.id)
		pair.Value.feeders = dropMember(pair.Value.feeders, sub.id)
	}
	r.log.Debug().Str("handler", sub.identity.Name).Msg("handler unsubscribed")
	return nil
}

func dropMember(entries []memberEntry, subID string) []memberEntry {
	kept := entries[:0]
	for _, e := range entries {
		if e.subID != subID {
			kept = append(kept, e)
		}
	}
	return kept
}

// recursionError builds the diagnostic for a rejected subscription: the
// cycle chain plus, per hop, every handler that listens on the hop's source
// and emits into its target. The in-flight frame's own declarations count.
func (r *Registry) recursionError(chain []string, f *Frame) *RecursionError {
	closed := append(append([]string(nil), chain...), chain[0])
	hops := make([]Hop, 0, len(chain))
	for i := 0; i+1 < len(closed); i++ {
		from, to := closed[i], closed[i+1]
		hops = append(hops, Hop{
			From:     from,
			To:       to,
			Handlers: r.hopHandlers(from, to, f),
		})
	}
	return &RecursionError{Chain: chain, Hops: hops}
}

func (r *Registry) hopHandlers(from, to string, f *Frame) []string {
	listeners := make(map[string]struct{})
	if rec, ok := r.channels.Get(from); ok {
		for _, e := range rec.listeners {
			listeners[e.identity.Name] = struct{}{}
		}
	}
	if _, ok := f.listens[from]; ok {
		listeners[f.identity.Name] = struct{}{}
	}

	names := make(map[string]struct{})
	if rec, ok := r.channels.Get(to); ok {
		for _, e := range rec.emitters {
			if _, both := listeners[e.identity.Name]; both {
				names[e.identity.Name] = struct{}{}
			}
		}
	}
	if _, ok := f.emits[to]; ok {
		if _, both := listeners[f.identity.Name]; both {
			names[f.identity.Name] = struct{}{}
		}
	}
	return sorted(names)
}

package hubbub

import "sort"

// Frame is the transient record of one in-flight subscription. Container
// Register and Emitter calls declare the handler's listen and emit sets on
// it; when the register callback returns, the registry folds the frame into
// the reachability graph and either commits or discards everything.
//
// A Frame is only valid inside the register callback passed to Subscribe.
type Frame struct {
	reg      *Registry
	identity Identity

	listens     map[string]struct{}
	emits       map[string]struct{}
	feedListens map[string]struct{}
	feedEmits   map[string]struct{}

	commits []func(*Subscription)
	aborts  []func()
}

func newFrame(r *Registry, identity Identity) *Frame {
	return &Frame{
		reg:         r,
		identity:    identity,
		listens:     make(map[string]struct{}),
		emits:       make(map[string]struct{}),
		feedListens: make(map[string]struct{}),
		feedEmits:   make(map[string]struct{}),
	}
}

// Identity returns the identity of the handler under construction.
func (f *Frame) Identity() Identity { return f.identity }

// OnCommit registers fn to run if this subscription commits. Used by
// collaborators (such as feeds) that must defer side effects until the
// cycle check has passed.
func (f *Frame) OnCommit(fn func()) {
	f.commits = append(f.commits, func(*Subscription) { fn() })
}

// OnAbort registers fn to run if this subscription is rejected.
func (f *Frame) OnAbort(fn func()) {
	f.aborts = append(f.aborts, fn)
}

// FeedListen declares that this handler consumes the named feed. Feed
// declarations are recorded for diagnostics only; they never enter the
// reachability graph. The feed must already be declared on the registry.
func (f *Frame) FeedListen(name string) error {
	if err := f.knownFeed(name); err != nil {
		return err
	}
	return declare(f.feedListens, name, "listen")
}

// FeedEmit declares that this handler produces into the named feed.
func (f *Frame) FeedEmit(name string) error {
	if err := f.knownFeed(name); err != nil {
		return err
	}
	return declare(f.feedEmits, name, "emit")
}

func (f *Frame) knownFeed(name string) error {
	if _, ok := f.reg.feeds.Get(name); !ok {
		return &UnknownFeedError{Feed: name}
	}
	return nil
}

func (f *Frame) listen(channel string) error {
	return declare(f.listens, channel, "listen")
}

func (f *Frame) emit(channel string) error {
	return declare(f.emits, channel, "emit")
}

func declare(set map[string]struct{}, name, direction string) error {
	if _, dup := set[name]; dup {
		return &DuplicateDeclarationError{Channel: name, Direction: direction}
	}
	set[name] = struct{}{}
	return nil
}

func (f *Frame) stage(commit func(*Subscription)) {
	f.commits = append(f.commits, commit)
}

func (f *Frame) abort() {
	for _, fn := range f.aborts {
		fn()
	}
}

func sorted(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package reactive

// Source is anything a Computed can list as a dependency.
type Source interface {
	// Watch calls fn every time the source fires, until owner is closed.
	Watch(owner *Scope, fn func())
}

// Value is a readable, observable value.
type Value[T any] interface {
	Source
	Get() T
	Subscribe(owner *Scope, fn func(T))
}

// subscriber is a registered callback. Inactive subscribers are skipped even
// when they are still present in a snapshot taken before removal.
type subscriber[T any] struct {
	fn     func(T)
	active bool
}

type subscribers[T any] struct {
	list []*subscriber[T]
}

func (s *subscribers[T]) add(owner *Scope, fn func(T)) {
	owner.mustBeOpen()
	if fn == nil {
		panic("reactive: nil subscriber")
	}
	sub := &subscriber[T]{fn: fn, active: true}
	s.list = append(s.list, sub)
	owner.OnClose(func() {
		sub.active = false
		s.remove(sub)
	})
}

func (s *subscribers[T]) remove(sub *subscriber[T]) {
	for i, x := range s.list {
		if x == sub {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return
		}
	}
}

func (s *subscribers[T]) notify(v T) {
	if len(s.list) == 0 {
		return
	}
	// Callbacks may subscribe or close scopes while we iterate.
	snapshot := make([]*subscriber[T], len(s.list))
	copy(snapshot, s.list)
	for _, sub := range snapshot {
		if sub.active {
			sub.fn(v)
		}
	}
}

func (s *subscribers[T]) len() int {
	return len(s.list)
}

// Cell is a mutable value that notifies subscribers when it changes.
type Cell[T comparable] struct {
	value T
	subs  subscribers[T]
}

// NewCell creates a cell holding initial.
func NewCell[T comparable](initial T) *Cell[T] {
	return &Cell[T]{value: initial}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	return c.value
}

// Set stores v and notifies subscribers if it differs from the current value.
// It reports whether the value changed.
func (c *Cell[T]) Set(v T) bool {
	if v == c.value {
		return false
	}
	c.value = v
	c.subs.notify(v)
	return true
}

// Update applies fn to the current value and stores the result.
func (c *Cell[T]) Update(fn func(T) T) bool {
	return c.Set(fn(c.value))
}

// Subscribe registers fn to be called with every new value until owner is closed.
func (c *Cell[T]) Subscribe(owner *Scope, fn func(T)) {
	c.subs.add(owner, fn)
}

// Watch implements Source.
func (c *Cell[T]) Watch(owner *Scope, fn func()) {
	c.subs.add(owner, func(T) { fn() })
}

// Subscribers returns the number of live subscriptions.
func (c *Cell[T]) Subscribers() int {
	return c.subs.len()
}

// constant is a Value that never changes.
type constant[T any] struct {
	value T
}

// Const returns a Value fixed at v. Subscribing to it registers nothing.
func Const[T any](v T) Value[T] {
	return constant[T]{value: v}
}

func (c constant[T]) Get() T { return c.value }

func (c constant[T]) Subscribe(owner *Scope, fn func(T)) { owner.mustBeOpen() }

func (c constant[T]) Watch(owner *Scope, fn func()) { owner.mustBeOpen() }

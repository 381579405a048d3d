package reactive

// Computed is a read-only cell derived from other values.
type Computed[T comparable] struct {
	fn    func() T
	value T
	subs  subscribers[T]
}

// Derive evaluates fn once and again after every firing of any dep. The
// dependency subscriptions belong to owner; once owner is closed the Computed
// keeps its last value and stops updating.
func Derive[T comparable](owner *Scope, fn func() T, deps ...Source) *Computed[T] {
	owner.mustBeOpen()
	if fn == nil {
		panic("reactive: nil derive function")
	}
	c := &Computed[T]{fn: fn, value: fn()}
	for _, dep := range deps {
		if dep == nil {
			panic("reactive: nil dependency")
		}
		dep.Watch(owner, c.recompute)
	}
	return c
}

// Map derives a value from a single source.
func Map[S any, T comparable](owner *Scope, src Value[S], fn func(S) T) *Computed[T] {
	return Derive(owner, func() T { return fn(src.Get()) }, src)
}

func (c *Computed[T]) recompute() {
	v := c.fn()
	if v == c.value {
		return
	}
	c.value = v
	c.subs.notify(v)
}

// Get returns the most recently computed value.
func (c *Computed[T]) Get() T {
	return c.value
}

// Subscribe registers fn to be called whenever the derived value changes.
func (c *Computed[T]) Subscribe(owner *Scope, fn func(T)) {
	c.subs.add(owner, fn)
}

// Watch implements Source.
func (c *Computed[T]) Watch(owner *Scope, fn func()) {
	c.subs.add(owner, func(T) { fn() })
}

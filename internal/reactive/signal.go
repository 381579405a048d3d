package reactive

// Signal is an event stream. Unlike a Cell it retains no value and fires on
// every Emit, including repeats. The zero value is ready to use.
type Signal[T any] struct {
	subs subscribers[T]
}

// Emit delivers v to every subscriber in registration order.
func (s *Signal[T]) Emit(v T) {
	s.subs.notify(v)
}

// Subscribe registers fn until owner is closed.
func (s *Signal[T]) Subscribe(owner *Scope, fn func(T)) {
	s.subs.add(owner, fn)
}

// Watch implements Source.
func (s *Signal[T]) Watch(owner *Scope, fn func()) {
	s.subs.add(owner, func(T) { fn() })
}

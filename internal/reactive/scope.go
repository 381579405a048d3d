package reactive

// Scope owns subscriptions and cleanup functions. Closing a scope closes its
// child scopes first, then runs its own cleanups in reverse registration order.
type Scope struct {
	parent   *Scope
	children []*Scope
	cleanups []func()
	closed   bool
}

// NewScope creates a root scope.
func NewScope() *Scope {
	return &Scope{}
}

// Child creates a scope that is closed together with s.
func (s *Scope) Child() *Scope {
	s.mustBeOpen()
	child := &Scope{parent: s}
	s.children = append(s.children, child)
	return child
}

// OnClose registers fn to run when the scope is closed.
func (s *Scope) OnClose(fn func()) {
	s.mustBeOpen()
	if fn == nil {
		return
	}
	s.cleanups = append(s.cleanups, fn)
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	return s.closed
}

// Close tears the scope down. Calling Close more than once is a no-op.
func (s *Scope) Close() {
	if s == nil || s.closed {
		return
	}
	s.closed = true

	for i := len(s.children) - 1; i >= 0; i-- {
		child := s.children[i]
		child.parent = nil
		child.Close()
	}
	s.children = nil

	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil

	if s.parent != nil {
		s.parent.detach(s)
		s.parent = nil
	}
}

func (s *Scope) detach(child *Scope) {
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

func (s *Scope) mustBeOpen() {
	if s == nil {
		panic("reactive: subscription requires an owner scope")
	}
	if s.closed {
		panic("reactive: scope already closed")
	}
}

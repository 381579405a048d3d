// Package reactive provides dependency-tracked value cells for stenotouch.
//
// A Cell holds a value and notifies its subscribers when Set stores a value
// that differs from the current one. A Computed is a read-only cell whose
// value is derived from other cells; it is re-evaluated synchronously every
// time one of its declared dependencies fires. There is no batching: when two
// dependencies change back to back, the Computed is evaluated twice.
//
// Every subscription names the Scope that owns it. Closing the scope removes
// the subscription, so a torn-down layout never receives notifications from
// settings cells that outlive it:
//
//	settings := reactive.NewScope()
//	width := reactive.NewCell[float32](40)
//
//	layoutScope := settings.Child()
//	double := reactive.Map(layoutScope, width, func(w float32) float32 { return 2 * w })
//	width.Set(50) // double.Get() == 100
//
//	layoutScope.Close()
//	width.Set(60) // double is no longer updated; nothing fires into it
//
// The package is single-threaded by design of its callers: all cells are read
// and written from the goroutine that handles input events, and no locks are
// taken.
package reactive

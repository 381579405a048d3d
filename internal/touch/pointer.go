package touch

import (
	"sort"

	"gioui.org/f32"
	"gioui.org/io/pointer"
)

// Translator converts gio pointer events into touch samples. Each press gets
// a fresh touch ID, so IDs never repeat across gestures even when the
// platform reuses pointer IDs.
type Translator struct {
	next   ID
	active map[pointer.ID]ID
	last   map[pointer.ID]f32.Point
}

// NewTranslator creates a Translator with no active pointers.
func NewTranslator() *Translator {
	return &Translator{
		active: make(map[pointer.ID]ID),
		last:   make(map[pointer.ID]f32.Point),
	}
}

// Active returns the number of pointers currently down.
func (t *Translator) Active() int {
	return len(t.active)
}

// Translate returns the samples produced by ev. Hover, scroll, enter and
// leave events produce none.
func (t *Translator) Translate(ev pointer.Event) Batch {
	switch ev.Kind {
	case pointer.Press:
		var out Batch
		if old, ok := t.active[ev.PointerID]; ok {
			// A press without release: close the stale contact first.
			out = append(out, Sample{ID: old, Position: t.last[ev.PointerID], Phase: Ended, Time: ev.Time})
		}
		t.next++
		id := t.next
		t.active[ev.PointerID] = id
		t.last[ev.PointerID] = ev.Position
		return append(out, Sample{ID: id, Position: ev.Position, Phase: Began, Time: ev.Time})

	case pointer.Drag:
		id, ok := t.active[ev.PointerID]
		if !ok {
			return nil
		}
		phase := Moved
		if t.last[ev.PointerID] == ev.Position {
			phase = Stationary
		}
		t.last[ev.PointerID] = ev.Position
		return Batch{{ID: id, Position: ev.Position, Phase: phase, Time: ev.Time}}

	case pointer.Release:
		id, ok := t.active[ev.PointerID]
		if !ok {
			return nil
		}
		delete(t.active, ev.PointerID)
		delete(t.last, ev.PointerID)
		return Batch{{ID: id, Position: ev.Position, Phase: Ended, Time: ev.Time}}

	case pointer.Cancel:
		return t.cancelAll(ev)
	}
	return nil
}

// cancelAll ends every active contact; gio cancels gestures as a whole.
func (t *Translator) cancelAll(ev pointer.Event) Batch {
	if len(t.active) == 0 {
		return nil
	}
	out := make(Batch, 0, len(t.active))
	for pid, id := range t.active {
		out = append(out, Sample{ID: id, Position: t.last[pid], Phase: Cancelled, Time: ev.Time})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	t.active = make(map[pointer.ID]ID)
	t.last = make(map[pointer.ID]f32.Point)
	return out
}

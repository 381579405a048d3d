package layouts

import (
	"fmt"
	"slices"
	"strings"

	"gioui.org/f32"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"stenotouch/internal/layout"
	"stenotouch/internal/reactive"
)

// Env supplies the named values a layout document may refer to.
type Env interface {
	Lookup(name string) (reactive.Value[float32], bool)
}

// scalar is a compiled expression: its evaluation function and the values
// it reads.
type scalar struct {
	get  func() float32
	deps []reactive.Value[float32]
}

func constant(v float32) scalar {
	return scalar{get: func() float32 { return v }}
}

// parseScalar compiles an arithmetic expression over numbers and setting
// names: "key_width", "-stagger_ring", "0.5*key_height",
// "2*(key_width+key_gap)", "max(key_gap, 2)".
func parseScalar(src string, env Env) (scalar, error) {
	if blank(src) {
		return scalar{}, fmt.Errorf("expression %q: empty", src)
	}
	tree, err := parser.Parse(src)
	if err != nil {
		return scalar{}, fmt.Errorf("expression %q: %w", src, err)
	}

	names := &identifiers{}
	ast.Walk(&tree.Node, names)

	vars := make(map[string]any, len(names.list))
	deps := make([]reactive.Value[float32], 0, len(names.list))
	for _, name := range names.list {
		v, ok := env.Lookup(name)
		if !ok {
			return scalar{}, fmt.Errorf("expression %q: %w: %q", src, ErrUnknownSetting, name)
		}
		vars[name] = float64(v.Get())
		deps = append(deps, v)
	}

	program, err := expr.Compile(src, expr.Env(vars), expr.AsFloat64())
	if err != nil {
		return scalar{}, fmt.Errorf("expression %q: %w", src, err)
	}
	eval := func() (float32, error) {
		for i, name := range names.list {
			vars[name] = float64(deps[i].Get())
		}
		out, err := expr.Run(program, vars)
		if err != nil {
			return 0, err
		}
		return float32(out.(float64)), nil
	}

	if len(deps) == 0 {
		v, err := eval()
		if err != nil {
			return scalar{}, fmt.Errorf("expression %q: %w", src, err)
		}
		return constant(v), nil
	}
	return scalar{
		get: func() float32 {
			// Settings are numeric; only integer modulo by zero fails here.
			v, _ := eval()
			return v
		},
		deps: deps,
	}, nil
}

// identifiers collects the distinct variable names of an expression in
// order of first use.
type identifiers struct {
	list []string
}

func (v *identifiers) Visit(node *ast.Node) {
	id, ok := (*node).(*ast.IdentifierNode)
	if !ok || slices.Contains(v.list, id.Value) {
		return
	}
	v.list = append(v.list, id.Value)
}

// sources returns the distinct dependencies of every scalar.
func sources(ss ...scalar) []reactive.Source {
	var out []reactive.Source
	seen := make(map[reactive.Value[float32]]bool)
	for _, s := range ss {
		for _, d := range s.deps {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	return out
}

// derive turns fn over ss into a reactive value owned by owner. Expressions
// without setting references become constants.
func derive[T comparable](owner *reactive.Scope, fn func() T, ss ...scalar) reactive.Value[T] {
	deps := sources(ss...)
	if len(deps) == 0 {
		return reactive.Const(fn())
	}
	return reactive.Derive(owner, fn, deps...)
}

func (s scalar) value(owner *reactive.Scope) reactive.Value[float32] {
	return derive(owner, s.get, s)
}

func point(owner *reactive.Scope, x, y scalar) reactive.Value[f32.Point] {
	return derive(owner, func() f32.Point { return f32.Pt(x.get(), y.get()) }, x, y)
}

func placement(owner *reactive.Scope, x, y, angle scalar, anchor layout.Anchor) reactive.Value[layout.Placement] {
	return derive(owner, func() layout.Placement {
		return layout.Placement{Offset: f32.Pt(x.get(), y.get()), Angle: angle.get(), Anchor: anchor}
	}, x, y, angle)
}

// blank reports an empty expression.
func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

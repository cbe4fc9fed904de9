package sandbox

import (
	"strings"

	"github.com/dop251/goja"

	"github.com/abdul-hamid-achik/reqly/packages/assertions"
)

// chainWords are no-op getters that keep expectations readable.
var chainWords = []string{"to", "be", "been", "is", "that", "which", "and", "has", "have", "with", "at", "of", "same", "does"}

// expectation binds an assertions.Expectation to a chainable script object.
// Checks throw on failure and return the object so calls can continue.
func (inv *invocation) expectation(exp *assertions.Expectation, deep bool) *goja.Object {
	vm := inv.vm
	o := vm.NewObject()

	getter := func(fn func() goja.Value) goja.Value {
		return vm.ToValue(func(goja.FunctionCall) goja.Value { return fn() })
	}
	self := func() goja.Value { return o }
	for _, w := range chainWords {
		_ = o.DefineAccessorProperty(w, getter(self), nil, goja.FLAG_FALSE, goja.FLAG_FALSE)
	}
	_ = o.DefineAccessorProperty("not", getter(func() goja.Value {
		return inv.expectation(exp.Not(), deep)
	}), nil, goja.FLAG_FALSE, goja.FLAG_FALSE)
	_ = o.DefineAccessorProperty("deep", getter(func() goja.Value {
		return inv.expectation(exp, true)
	}), nil, goja.FLAG_FALSE, goja.FLAG_FALSE)

	method := func(fn func(call goja.FunctionCall) error) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			inv.check(fn(call))
			return o
		}
	}
	set := func(fn func(call goja.FunctionCall) error, names ...string) {
		m := method(fn)
		for _, name := range names {
			_ = o.Set(name, m)
		}
	}
	property := func(fn func() error, names ...string) {
		for _, name := range names {
			_ = o.DefineAccessorProperty(name, getter(func() goja.Value {
				inv.check(fn())
				return o
			}), nil, goja.FLAG_FALSE, goja.FLAG_FALSE)
		}
	}

	set(func(call goja.FunctionCall) error {
		if deep {
			return exp.Eql(export(call.Argument(0)))
		}
		return exp.Equal(export(call.Argument(0)))
	}, "equal", "equals", "eq")
	set(func(call goja.FunctionCall) error {
		return exp.Eql(export(call.Argument(0)))
	}, "eql", "eqls")
	set(func(call goja.FunctionCall) error {
		return exp.Below(export(call.Argument(0)))
	}, "below", "lessThan", "lt")
	set(func(call goja.FunctionCall) error {
		return exp.Above(export(call.Argument(0)))
	}, "above", "greaterThan", "gt")
	set(func(call goja.FunctionCall) error {
		return exp.AtLeast(export(call.Argument(0)))
	}, "least", "gte")
	set(func(call goja.FunctionCall) error {
		return exp.AtMost(export(call.Argument(0)))
	}, "most", "lte")
	set(func(call goja.FunctionCall) error {
		return exp.Include(export(call.Argument(0)))
	}, "include", "includes", "contain", "contains")
	set(func(call goja.FunctionCall) error {
		key := call.Argument(0).String()
		if len(call.Arguments) > 1 {
			return exp.HaveProperty(key, export(call.Argument(1)))
		}
		return exp.HaveProperty(key)
	}, "property")
	set(func(call goja.FunctionCall) error {
		return exp.A(call.Argument(0).String())
	}, "a", "an")
	set(func(call goja.FunctionCall) error {
		return exp.Match(inv.regexpPattern(call.Argument(0)))
	}, "match", "matches")
	set(func(call goja.FunctionCall) error {
		return exp.LengthOf(export(call.Argument(0)))
	}, "lengthOf", "length")
	set(func(call goja.FunctionCall) error {
		list, _ := export(call.Argument(0)).([]any)
		return exp.OneOf(list)
	}, "oneOf")

	property(exp.Exist, "exist")
	property(exp.OK, "ok")
	property(func() error { return exp.Equal(true) }, "true")
	property(func() error { return exp.Equal(false) }, "false")
	property(func() error { return exp.Equal(nil) }, "null", "undefined")
	property(func() error { return exp.LengthOf(0) }, "empty")

	return o
}

// regexpPattern converts a RegExp object or a string into the slash-delimited
// form assertions.Expectation.Match accepts, mapping i, m and s flags.
func (inv *invocation) regexpPattern(v goja.Value) string {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	source := obj.Get("source")
	if source == nil || goja.IsUndefined(source) {
		return v.String()
	}
	var prefix string
	if flags := obj.Get("flags"); flags != nil && !goja.IsUndefined(flags) {
		var mods strings.Builder
		for _, f := range flags.String() {
			if f == 'i' || f == 'm' || f == 's' {
				mods.WriteRune(f)
			}
		}
		if mods.Len() > 0 {
			prefix = "(?" + mods.String() + ")"
		}
	}
	return "/" + prefix + source.String() + "/"
}

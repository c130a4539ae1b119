package gojaeventloop

import (
	"errors"
	"fmt"
	"path"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-duxcore/modules"
)

var _ modules.Engine = (*Adapter)(nil)

const (
	moduleWrapperHead = "(function (exports, require, module, __filename, __dirname) {"
	moduleWrapperTail = "\n})"
)

// NewExports implements [modules.Engine].
func (a *Adapter) NewExports() any {
	return a.runtime.NewObject()
}

// Evaluate implements [modules.Engine]. The source runs inside a function
// wrapper, on the same line so that error positions are preserved.
func (a *Adapter) Evaluate(source string, m *modules.Module, require modules.RequireFunc) error {
	wrapper, err := a.runtime.RunScript(m.Filename, moduleWrapperHead+source+moduleWrapperTail)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return fmt.Errorf("gojaeventloop: module wrapper for %s is not a function", m.Filename)
	}

	exports := a.toValue(m.Exports)
	_, err = fn(exports,
		exports,
		a.requireFunction(m, require),
		a.moduleObject(m),
		a.runtime.ToValue(m.Filename),
		a.runtime.ToValue(path.Dir(m.Filename)),
	)
	return err
}

// ParseJSON implements [modules.Engine] using the runtime's JSON.parse.
func (a *Adapter) ParseJSON(source string) (any, error) {
	parse, ok := goja.AssertFunction(a.runtime.Get("JSON").ToObject(a.runtime).Get("parse"))
	if !ok {
		return nil, errors.New("gojaeventloop: JSON.parse is not a function")
	}
	return parse(goja.Undefined(), a.runtime.ToValue(source))
}

// bindModules installs require, module and exports for the top-level module.
func (a *Adapter) bindModules() error {
	main := a.registry.Main()
	if err := a.runtime.Set("require", a.requireFunction(main, a.registry.RequireFor(main))); err != nil {
		return err
	}
	if err := a.runtime.Set("module", a.moduleObject(main)); err != nil {
		return err
	}
	return a.runtime.Set("exports", a.toValue(main.Exports))
}

// requireFunction builds the require function seen by code in m.
func (a *Adapter) requireFunction(m *modules.Module, require modules.RequireFunc) *goja.Object {
	rt := a.runtime
	fn := rt.ToValue(func(call goja.FunctionCall) goja.Value {
		specifier := a.specifierArg(call.Argument(0))
		exports, err := require(specifier)
		if err != nil {
			a.throw(err)
		}
		return a.toValue(exports)
	}).ToObject(rt)

	_ = fn.Set("resolve", func(call goja.FunctionCall) goja.Value {
		resolved, err := a.registry.Resolve(a.specifierArg(call.Argument(0)), m)
		if err != nil {
			a.throw(err)
		}
		return rt.ToValue(resolved)
	})
	_ = fn.DefineAccessorProperty("cache", rt.ToValue(func(goja.FunctionCall) goja.Value {
		cache := rt.NewObject()
		for filename, cached := range a.registry.Cache() {
			_ = cache.Set(filename, a.moduleObject(cached))
		}
		return cache
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = fn.Set("main", a.moduleObject(a.registry.Main()))

	return fn
}

func (a *Adapter) specifierArg(v goja.Value) string {
	if s, ok := v.Export().(string); ok {
		return s
	}
	panic(a.runtime.NewTypeError("The \"id\" argument must be of type string. Received %s", v.String()))
}

// moduleObject returns the script view of m, creating it on first use.
// Properties that change after evaluation are accessors over m.
func (a *Adapter) moduleObject(m *modules.Module) *goja.Object {
	if obj, ok := a.moduleObjects[m]; ok {
		return obj
	}
	rt := a.runtime
	obj := rt.NewObject()
	a.moduleObjects[m] = obj

	getter := func(fn func() goja.Value) goja.Value {
		return rt.ToValue(func(goja.FunctionCall) goja.Value { return fn() })
	}

	_ = obj.DefineAccessorProperty("exports",
		getter(func() goja.Value { return a.toValue(m.Exports) }),
		rt.ToValue(func(call goja.FunctionCall) goja.Value {
			m.Exports = call.Argument(0)
			return goja.Undefined()
		}),
		goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = obj.Set("id", m.ID)
	if m.Filename == "" {
		_ = obj.Set("filename", goja.Null())
	} else {
		_ = obj.Set("filename", m.Filename)
	}
	_ = obj.DefineAccessorProperty("loaded",
		getter(func() goja.Value { return rt.ToValue(m.Loaded) }),
		nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("parent",
		getter(func() goja.Value {
			if parent := m.Parent(); parent != nil {
				return a.moduleObject(parent)
			}
			return goja.Undefined()
		}),
		nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("children",
		getter(func() goja.Value {
			children := make([]any, len(m.Children))
			for i, child := range m.Children {
				children[i] = a.moduleObject(child)
			}
			return rt.NewArray(children...)
		}),
		nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = obj.Set("require", a.requireFunction(m, a.registry.RequireFor(m)))

	return obj
}

package gojaeventloop

import (
	"errors"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-duxcore/eventloop"
	"github.com/joeycumines/go-duxcore/modules"
)

// exitRequest is the interrupt value used by process.exit.
type exitRequest struct {
	code int
}

// throw raises err as a script exception. It never returns.
func (a *Adapter) throw(err error) {
	panic(a.errorValue(err))
}

// errorValue converts a Go error to the script value that best represents
// it.
func (a *Adapter) errorValue(err error) goja.Value {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value()
	}

	var (
		typeErr  *eventloop.TypeError
		rangeErr *eventloop.RangeError
	)
	switch {
	case errors.As(err, &typeErr):
		return a.runtime.NewTypeError(typeErr.Error())
	case errors.As(err, &rangeErr):
		return a.newError("RangeError", rangeErr.Error())
	case errors.Is(err, modules.ErrInvalidSpecifier), errors.Is(err, eventloop.ErrInvalidArgument):
		return a.runtime.NewTypeError(err.Error())
	case errors.Is(err, eventloop.ErrUnknownHandle):
		return a.newError("RangeError", err.Error())
	case errors.Is(err, modules.ErrModuleNotFound):
		obj := a.newError("Error", err.Error())
		_ = obj.Set("code", "MODULE_NOT_FOUND")
		return obj
	}
	return a.runtime.NewGoError(err)
}

// newError constructs one of the global error types.
func (a *Adapter) newError(ctor, message string) *goja.Object {
	obj, err := a.runtime.New(a.runtime.Get(ctor), a.runtime.ToValue(message))
	if err != nil {
		return a.runtime.NewGoError(errors.New(message))
	}
	return obj
}

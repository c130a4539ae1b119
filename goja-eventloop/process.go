package gojaeventloop

import (
	"runtime"

	"github.com/dop251/goja"
)

// bindProcess installs the process global.
func (a *Adapter) bindProcess() error {
	rt := a.runtime
	process := rt.NewObject()
	a.process = process

	_ = process.Set("nextTick", func(call goja.FunctionCall) goja.Value {
		fn := a.callbackArg(call.Argument(0), "nextTick")
		if err := a.loop.NextTick(func(args ...any) error {
			_, err := fn(goja.Undefined(), a.values(args)...)
			return err
		}, a.captured(call.Arguments[min(1, len(call.Arguments)):])...); err != nil {
			a.throw(err)
		}
		return goja.Undefined()
	})
	_ = process.Set("exit", a.exit)
	_ = process.Set("exitCode", 0)
	_ = process.Set("version", Version)
	_ = process.Set("versions", map[string]any{
		"duxcore": Version,
		"go":      runtime.Version(),
	})
	_ = process.Set("arch", nodeArch(runtime.GOARCH))
	_ = process.Set("platform", nodePlatform(runtime.GOOS))

	argv := make([]any, len(a.argv))
	for i, arg := range a.argv {
		argv[i] = arg
	}
	_ = process.Set("argv", rt.NewArray(argv...))

	env := rt.NewObject()
	for k, v := range a.env {
		_ = env.Set(k, v)
	}
	_ = process.Set("env", env)

	return rt.Set("process", process)
}

// exit implements process.exit([code]). It closes the loop and interrupts
// the running script, so nothing else runs.
func (a *Adapter) exit(call goja.FunctionCall) goja.Value {
	if code := call.Argument(0); !goja.IsUndefined(code) {
		_ = a.process.Set("exitCode", code.ToInteger())
	}
	request := exitRequest{code: a.ExitCode()}

	a.logger.Debug().
		Int("code", request.code).
		Log("gojaeventloop: process.exit called")

	_ = a.loop.Close()
	a.runtime.Interrupt(request)
	return goja.Undefined()
}

func nodeArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "386":
		return "ia32"
	}
	return goarch
}

func nodePlatform(goos string) string {
	if goos == "windows" {
		return "win32"
	}
	return goos
}

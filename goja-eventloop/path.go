package gojaeventloop

import (
	"path"
	"strings"

	"github.com/dop251/goja"
)

// pathModule is the exports of require("path"), with POSIX semantics.
func (a *Adapter) pathModule() (goja.Value, error) {
	rt := a.runtime
	exports := rt.NewObject()

	str := func(call goja.FunctionCall, i int, name string) string {
		if s, ok := call.Argument(i).Export().(string); ok {
			return s
		}
		panic(rt.NewTypeError("The \"%s\" argument must be of type string. Received %s", name, call.Argument(i).String()))
	}
	all := func(call goja.FunctionCall) []string {
		parts := make([]string, len(call.Arguments))
		for i := range call.Arguments {
			parts[i] = str(call, i, "path")
		}
		return parts
	}

	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"normalize": func(call goja.FunctionCall) goja.Value {
			return rt.ToValue(normalizePath(str(call, 0, "path")))
		},
		"join": func(call goja.FunctionCall) goja.Value {
			joined := path.Join(all(call)...)
			if joined == "" {
				joined = "."
			}
			return rt.ToValue(joined)
		},
		"resolve": func(call goja.FunctionCall) goja.Value {
			return rt.ToValue(a.resolvePath(all(call)))
		},
		"dirname": func(call goja.FunctionCall) goja.Value {
			p := str(call, 0, "path")
			if p == "" {
				return rt.ToValue(".")
			}
			return rt.ToValue(path.Dir(strings.TrimRight(p, "/") + suffixIfRoot(p)))
		},
		"basename": func(call goja.FunctionCall) goja.Value {
			base := basename(str(call, 0, "path"))
			if ext := call.Argument(1); !goja.IsUndefined(ext) {
				if suffix := str(call, 1, "ext"); suffix != base {
					base = strings.TrimSuffix(base, suffix)
				}
			}
			return rt.ToValue(base)
		},
		"extname": func(call goja.FunctionCall) goja.Value {
			return rt.ToValue(extname(str(call, 0, "path")))
		},
		"isAbsolute": func(call goja.FunctionCall) goja.Value {
			return rt.ToValue(strings.HasPrefix(str(call, 0, "path"), "/"))
		},
		"relative": func(call goja.FunctionCall) goja.Value {
			from := a.resolvePath([]string{str(call, 0, "from")})
			to := a.resolvePath([]string{str(call, 1, "to")})
			return rt.ToValue(relativePath(from, to))
		},
	} {
		if err := exports.Set(name, fn); err != nil {
			return nil, err
		}
	}

	_ = exports.Set("sep", "/")
	_ = exports.Set("delimiter", ":")
	_ = exports.Set("posix", exports)

	return exports, nil
}

// resolvePath resolves parts right to left until an absolute path is
// formed, falling back to the registry's base directory.
func (a *Adapter) resolvePath(parts []string) string {
	resolved := ""
	for i := len(parts) - 1; i >= 0 && !strings.HasPrefix(resolved, "/"); i-- {
		if parts[i] == "" {
			continue
		}
		resolved = path.Join(parts[i], resolved)
	}
	if !strings.HasPrefix(resolved, "/") {
		resolved = path.Join(a.registry.BaseDir(), resolved)
	}
	return path.Clean(resolved)
}

// normalizePath cleans p, keeping a trailing slash and mapping "" to ".".
func normalizePath(p string) string {
	if p == "" {
		return "."
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func suffixIfRoot(p string) string {
	if strings.Trim(p, "/") == "" {
		return "/"
	}
	return ""
}

func basename(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// extname returns the extension of the last path element. A leading dot
// does not start an extension.
func extname(p string) string {
	base := basename(p)
	i := strings.LastIndex(base, ".")
	if i <= 0 {
		return ""
	}
	return base[i:]
}

func relativePath(from, to string) string {
	if from == to {
		return ""
	}
	split := func(p string) []string {
		if p == "/" {
			return nil
		}
		return strings.Split(strings.TrimPrefix(p, "/"), "/")
	}
	fromParts, toParts := split(from), split(to)
	common := 0
	for common < len(fromParts) && common < len(toParts) && fromParts[common] == toParts[common] {
		common++
	}
	rel := make([]string, 0, len(fromParts)-common+len(toParts)-common)
	for range fromParts[common:] {
		rel = append(rel, "..")
	}
	rel = append(rel, toParts[common:]...)
	return strings.Join(rel, "/")
}

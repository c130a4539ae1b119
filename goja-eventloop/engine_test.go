package gojaeventloop

import (
	"testing"
	"testing/fstest"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-duxcore/modules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func moduleFiles() fstest.MapFS {
	return fstest.MapFS{
		"app/main.js": {Data: []byte(`
			record(module.id);
			record(__dirname);
			require('./lib/x').name = 'from main';
		`)},
		"app/lib/x.js": {Data: []byte(`
			globalThis.xEvaluations = (globalThis.xEvaluations || 0) + 1;
			exports.name = 'x';
		`)},
		"app/lib/y.js": {Data: []byte(`module.exports = require('./x');`)},
		"app/lib/fn.js": {Data: []byte(`module.exports = function () { return 'called'; };`)},
		"app/a.js": {Data: []byte(`
			exports.early = true;
			const b = require('./b');
			exports.bSawEarly = b.sawEarly;
			exports.bSawLate = b.sawLate;
			exports.late = true;
		`)},
		"app/b.js": {Data: []byte(`
			const a = require('./a');
			exports.sawEarly = a.early === true;
			exports.sawLate = a.late === true;
			exports.aLoaded = module.parent.loaded;
		`)},
		"app/child.js": {Data: []byte(`
			exports.id = module.id;
			exports.filename = __filename;
			exports.dirname = __dirname;
			exports.parentId = module.parent.id;
			exports.thisIsExports = this === exports;
		`)},
		"app/data.json":   {Data: []byte(`{"answer": 42, "list": [1, 2]}`)},
		"app/broken.json": {Data: []byte(`{"answer": `)},
		"app/bad.js":      {Data: []byte(`exports.x = ;`)},
		"app/throws.js":   {Data: []byte(`throw new RangeError('thrown at load');`)},
	}
}

func newModuleAdapter(t *testing.T) (*Adapter, *recorder) {
	t.Helper()
	adapter, rt := newTestAdapter(t,
		WithFileSystem(modules.FSFileSystem{FS: moduleFiles()}),
		WithBaseDir("/app"),
	)
	return adapter, bindRecorder(t, rt)
}

func TestRequire_SameExportsForEquivalentPaths(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `
		const a = require('./lib/x');
		const b = require('/app/lib/../lib/x.js');
		const c = require('./lib/x.js');
		const d = require('./lib/y');
		a === b && b === c && c === d && globalThis.xEvaluations === 1
	`)
}

func TestRequire_MutationVisibleOnCacheHit(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `
		require('./lib/x').name = 'changed';
		require('/app/lib/x').name === 'changed'
	`)
}

func TestRequire_CircularSeesPartialExports(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `
		const a = require('./a');
		const b = require('./b');
		a.early && a.late && a.bSawEarly === true && a.bSawLate === false &&
			b.aLoaded === false
	`)
}

func TestRequire_ModuleScope(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `
		const child = require('./child');
		child.id === '/app/child.js' &&
			child.filename === '/app/child.js' &&
			child.dirname === '/app' &&
			child.parentId === '<repl>' &&
			child.thisIsExports === true
	`)
}

func TestRequire_TopLevelModule(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `
		module.id === '<repl>' &&
			module.filename === null &&
			module.parent === undefined &&
			require.main === module
	`)
}

func TestRequire_ModuleExportsReplacement(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `require('./lib/fn')() === 'called'`)
}

func TestRequire_JSON(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `
		const data = require('./data');
		data.answer === 42 && data.list.length === 2 && require('./data.json') === data
	`)
	evalBool(t, adapter, `
		(() => {
			try {
				require('./broken');
			} catch (e) {
				return e instanceof SyntaxError;
			}
			return false;
		})()
	`)
}

func TestRequire_NotFound(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `
		(() => {
			try {
				require('./missing');
			} catch (e) {
				return e.code === 'MODULE_NOT_FOUND' && e.message.includes('./missing');
			}
			return false;
		})()
	`)

	err := adapter.RunMain("./missing")
	require.ErrorIs(t, err, modules.ErrModuleNotFound)
}

func TestRequire_SyntaxError(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `
		(() => {
			try {
				require('./bad');
			} catch (e) {
				return e instanceof SyntaxError;
			}
			return false;
		})()
	`)

	err := adapter.RunMain("./bad.js")
	var compileErr *modules.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "/app/bad.js", compileErr.Filename)
	var ex *goja.Exception
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, "SyntaxError", ex.Value().ToObject(adapter.Runtime()).Get("name").String())
}

func TestRequire_RuntimeErrorKeepsType(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `
		(() => {
			try {
				require('./throws');
			} catch (e) {
				return e instanceof RangeError && e.message === 'thrown at load';
			}
			return false;
		})()
	`)
}

func TestRequire_InvalidSpecifier(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `
		(() => {
			try {
				require(42);
			} catch (e) {
				return e instanceof TypeError;
			}
			return false;
		})()
	`)
}

func TestRequire_ResolveAndCache(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `
		require('./lib/y');
		require.resolve('./lib/x') === '/app/lib/x.js' &&
			require.resolve('events') === 'events' &&
			Object.keys(require.cache).sort().join(',') === '/app/lib/x.js,/app/lib/y.js' &&
			require.cache['/app/lib/y.js'].children[0] === require.cache['/app/lib/x.js'] &&
			require.cache['/app/lib/x.js'].loaded === true
	`)
}

func TestRunMain(t *testing.T) {
	adapter, rec := newModuleAdapter(t)

	require.NoError(t, adapter.RunMain("./main.js"))
	require.NoError(t, runLoop(t, adapter))

	assert.Equal(t, []string{"/app/main.js", "/app"}, rec.labels)
	evalBool(t, adapter, `require('./lib/x').name === 'from main'`)
}

func TestCoreModules(t *testing.T) {
	adapter, _ := newModuleAdapter(t)

	evalBool(t, adapter, `
		const events = require('events');
		events === events.EventEmitter &&
			require('events') === events &&
			require('path').posix === require('path') &&
			require('process') === process &&
			typeof require('util').promisify === 'function'
	`)
}

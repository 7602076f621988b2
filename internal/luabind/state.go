package luabind

import (
	"fmt"
	"io"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Library names accepted by WithLibraries.
const (
	LibBase      = "base"
	LibTable     = "table"
	LibString    = "string"
	LibMath      = "math"
	LibCoroutine = "coroutine"
	LibOS        = "os"
	LibIO        = "io"
	LibDebug     = "debug"
)

// DefaultLibraries are opened when no library list is configured.
var DefaultLibraries = []string{LibBase, LibTable, LibString, LibMath, LibCoroutine}

var openers = map[string]lua.LGFunction{
	LibBase:      lua.OpenBase,
	LibTable:     lua.OpenTable,
	LibString:    lua.OpenString,
	LibMath:      lua.OpenMath,
	LibCoroutine: lua.OpenCoroutine,
	LibOS:        lua.OpenOs,
	LibIO:        lua.OpenIo,
	LibDebug:     lua.OpenDebug,
}

// StateOption configures NewState.
type StateOption func(*stateConfig)

type stateConfig struct {
	libraries []string
	preload   map[string]lua.LGFunction
	output    io.Writer
}

// WithLibraries replaces the set of standard libraries to open. Unknown
// names are ignored.
func WithLibraries(libs ...string) StateOption {
	return func(c *stateConfig) {
		if len(libs) > 0 {
			c.libraries = libs
		}
	}
}

// WithOutput redirects print to w.
func WithOutput(w io.Writer) StateOption {
	return func(c *stateConfig) {
		c.output = w
	}
}

// WithModule makes a module loadable through require.
func WithModule(name string, loader lua.LGFunction) StateOption {
	return func(c *stateConfig) {
		c.preload[name] = loader
	}
}

// NewState creates a Lua state with only the configured libraries and a
// require that resolves opened libraries and registered modules only.
func NewState(opts ...StateOption) *lua.LState {
	cfg := &stateConfig{
		libraries: DefaultLibraries,
		preload:   make(map[string]lua.LGFunction),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	// package backs require and preload.
	lua.OpenPackage(L)
	opened := map[string]bool{"_G": true}
	for _, name := range cfg.libraries {
		open, ok := openers[name]
		if !ok {
			continue
		}
		open(L)
		opened[name] = true
	}
	for name, loader := range cfg.preload {
		L.PreloadModule(name, loader)
	}
	L.SetTop(0)

	sandbox(L, opened, cfg.preload)
	if cfg.output != nil && opened[LibBase] {
		installPrint(L, cfg.output)
	}
	return L
}

// installPrint replaces print with one writing to w, formatted like the
// builtin.
func installPrint(L *lua.LState, w io.Writer) {
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		fmt.Fprintln(w, strings.Join(parts, "\t"))
		return 0
	}))
}

// sandbox removes file loading and installs the whitelisting require.
func sandbox(L *lua.LState, opened map[string]bool, preload map[string]lua.LGFunction) {
	for _, name := range []string{"dofile", "loadfile"} {
		L.SetGlobal(name, lua.LNil)
	}

	pkg, ok := L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return
	}
	L.SetField(pkg, "path", lua.LString(""))
	L.SetField(pkg, "cpath", lua.LString(""))

	original := L.GetGlobal("require")
	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if _, ok := preload[name]; !ok && !opened[name] {
			L.RaiseError("module %q: %s", name, ErrModuleNotAvailable.Error())
			return 0
		}
		L.Push(original)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))
}

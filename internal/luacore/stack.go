package luacore

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaspect/internal/inspector"
)

// CaptureStack returns the Lua frames of L's current call stack, innermost
// first. Frames of Go functions are skipped.
func (c *Core) CaptureStack(L *lua.LState) inspector.StackTrace {
	var frames inspector.StackTrace
	for level := 0; ; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			break
		}
		if _, err := L.GetInfo("Snl", dbg, lua.LNil); err != nil {
			continue
		}
		if dbg.What == "G" || dbg.Source == "" {
			continue
		}

		name := dbg.Name
		if dbg.What == "main" {
			name = "(main chunk)"
		}
		frames = append(frames, inspector.StackFrame{
			FunctionName: name,
			URL:          dbg.Source,
			Line:         dbg.CurrentLine,
			ScriptID:     c.scripts.idFor(dbg.Source),
		})
	}
	return frames
}

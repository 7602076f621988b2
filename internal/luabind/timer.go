package luabind

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaspect/internal/scheduler"
)

// TimerModuleName is the require name of the timer module.
const TimerModuleName = "timer"

// TimerHost runs Lua callbacks from the host loop.
type TimerHost interface {
	After(d time.Duration, fn *lua.LFunction) (scheduler.TimerID, error)
	CancelTimer(id scheduler.TimerID) bool
}

// TimerModule returns a loader for the timer module bound to host.
func TimerModule(host TimerHost) lua.LGFunction {
	return func(L *lua.LState) int {
		mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"after": func(L *lua.LState) int {
				ms := L.CheckNumber(1)
				fn := L.CheckFunction(2)
				if ms < 0 {
					L.ArgError(1, ErrInvalidDelay.Error())
					return 0
				}
				id, err := host.After(time.Duration(float64(ms)*float64(time.Millisecond)), fn)
				if err != nil {
					L.RaiseError("%s", err.Error())
					return 0
				}
				L.Push(lua.LNumber(id))
				return 1
			},
			"cancel": func(L *lua.LState) int {
				id := L.CheckNumber(1)
				L.Push(lua.LBool(host.CancelTimer(scheduler.TimerID(id))))
				return 1
			},
		})
		L.Push(mod)
		return 1
	}
}

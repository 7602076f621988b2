package luacore

import "strings"

// Script is a chunk of Lua source known to the core.
type Script struct {
	ID      int
	URL     string
	Source  string
	EndLine int
}

// scriptRegistry assigns increasing ids to scripts in registration order.
type scriptRegistry struct {
	scripts []*Script
	byURL   map[string]*Script
}

func newScriptRegistry() *scriptRegistry {
	return &scriptRegistry{byURL: make(map[string]*Script)}
}

// add registers a script. Registering a URL again yields a new script that
// replaces the old one for lookups.
func (r *scriptRegistry) add(url, source string) *Script {
	script := &Script{
		ID:      len(r.scripts) + 1,
		URL:     url,
		Source:  source,
		EndLine: strings.Count(source, "\n"),
	}
	r.scripts = append(r.scripts, script)
	r.byURL[url] = script
	return script
}

func (r *scriptRegistry) idFor(url string) int {
	if script, ok := r.byURL[url]; ok {
		return script.ID
	}
	return 0
}

func (r *scriptRegistry) all() []*Script {
	return append([]*Script(nil), r.scripts...)
}

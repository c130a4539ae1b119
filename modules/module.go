package modules

import (
	"path"
	"slices"
	"weak"
)

// MainID is the id of the top-level module that has no file.
const MainID = "<repl>"

// Module is a record in the module cache.
//
// Exports starts as the placeholder returned by [Engine.NewExports], and is
// visible to circular requires in that state. An engine that lets scripts
// replace the exports value must store the replacement in Exports before
// [Engine.Evaluate] returns.
type Module struct {
	Exports  any
	parent   weak.Pointer[Module]
	ID       string
	Filename string // empty for the top-level module
	Children []*Module
	Loaded   bool
}

// Parent returns the module that first required m, or nil for the
// top-level module (or if the parent has been collected).
func (m *Module) Parent() *Module {
	return m.parent.Value()
}

// Dir returns the directory relative requires from m resolve against, or
// an empty string for the top-level module.
func (m *Module) Dir() string {
	if m.Filename == "" {
		return ""
	}
	return path.Dir(m.Filename)
}

func (m *Module) addChild(child *Module) {
	if m == nil || child == m || slices.Contains(m.Children, child) {
		return
	}
	m.Children = append(m.Children, child)
}

func (m *Module) removeChild(child *Module) {
	if m == nil {
		return
	}
	m.Children = slices.DeleteFunc(m.Children, func(c *Module) bool { return c == child })
}

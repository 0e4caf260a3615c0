package command

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type Mode int

const (
	Sync Mode = iota
	Async
)

func (m Mode) String() string {
	if m == Async {
		return "async"
	}
	return "sync"
}

// Func is a command body with its arguments already bound.
type Func func(ctx context.Context) (any, error)

// BindFunc validates params and binds them to a command body. Errors from
// BindFunc are reported before any work is scheduled.
type BindFunc func(params Params) (Func, error)

type Handler struct {
	Mode Mode
	Bind BindFunc
}

func SyncHandler(bind BindFunc) Handler {
	return Handler{Mode: Sync, Bind: bind}
}

func AsyncHandler(bind BindFunc) Handler {
	return Handler{Mode: Async, Bind: bind}
}

// Extension is a named group of commands, e.g. "standby" or "clean".
type Extension interface {
	Name() string
	Commands() map[string]Handler
}

type Registry struct {
	extensions map[string]map[string]Handler
	disabled   []string
}

// NewRegistry builds the command map once from the given extensions.
// Commands whose full name matches one of the disabled glob patterns are
// rejected at resolve time.
func NewRegistry(disabled []string, exts ...Extension) (*Registry, error) {
	for _, pattern := range disabled {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid disabled command pattern %q", pattern)
		}
	}
	r := &Registry{
		extensions: make(map[string]map[string]Handler, len(exts)),
		disabled:   append([]string(nil), disabled...),
	}
	for _, ext := range exts {
		name := strings.TrimSpace(ext.Name())
		if name == "" || strings.Contains(name, ".") {
			return nil, fmt.Errorf("invalid extension name %q", ext.Name())
		}
		if _, exists := r.extensions[name]; exists {
			return nil, fmt.Errorf("duplicate extension %q", name)
		}
		cmds := make(map[string]Handler)
		for cmd, h := range ext.Commands() {
			if h.Bind == nil {
				return nil, fmt.Errorf("extension %s: command %q has no body", name, cmd)
			}
			cmds[cmd] = h
		}
		r.extensions[name] = cmds
	}
	return r, nil
}

func (r *Registry) Resolve(extension, cmd string) (Handler, error) {
	cmds, ok := r.extensions[extension]
	if !ok {
		return Handler{}, NotFoundError("Extension", extension)
	}
	h, ok := cmds[cmd]
	if !ok {
		return Handler{}, InvalidCommandError("Unknown command: " + cmd)
	}
	full := extension + "." + cmd
	for _, pattern := range r.disabled {
		if matched, _ := doublestar.Match(pattern, full); matched {
			return Handler{}, InvalidCommandError("Command " + full + " is disabled")
		}
	}
	return h, nil
}

// Names lists every registered command as "<extension>.<command>".
func (r *Registry) Names() []string {
	var out []string
	for ext, cmds := range r.extensions {
		for cmd := range cmds {
			out = append(out, ext+"."+cmd)
		}
	}
	sort.Strings(out)
	return out
}

// SplitCommand splits "<extension>.<command>" on the first dot.
func SplitCommand(name string) (string, string, error) {
	ext, cmd, ok := strings.Cut(name, ".")
	if !ok {
		return "", "", InvalidCommandError("Command name must be of the form <extension>.<name>")
	}
	return ext, cmd, nil
}

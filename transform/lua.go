package transform

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"
	"github.com/Shopify/goluago/util"
	"github.com/tfkr-ae/arsenal/model"
)

// DefaultFunction is the global a script must define unless WithFunction says otherwise.
const DefaultFunction = "transform"

const maxTableDepth = 64

// restrictedGlobals are removed after the standard libraries are opened.
var restrictedGlobals = []string{
	"os",
	"io",
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"require",
	"package",
	"debug",
	"collectgarbage",
}

// ErrNoFunction is returned when a script does not define its entry function.
var ErrNoFunction = errors.New("script does not define the transform function")

// Script is a sandboxed Lua state holding a transform function.
// Calls are serialized; a Script can be shared by several types.
type Script struct {
	mu     sync.Mutex
	state  *lua.State
	fn     string
	logger *slog.Logger
}

// WithLogger routes print() output of the script to logger at debug level.
func WithLogger(logger *slog.Logger) func(*Script) error {
	return func(s *Script) error {
		if logger == nil {
			s.logger = slog.Default()
			return nil
		}
		s.logger = logger
		return nil
	}
}

// WithFunction changes the name of the entry function.
func WithFunction(name string) func(*Script) error {
	return func(s *Script) error {
		if name == "" {
			return errors.New("function name is empty")
		}
		s.fn = name
		return nil
	}
}

// NewScript loads src into a fresh sandboxed state and checks that the entry
// function exists.
func NewScript(src string, options ...func(*Script) error) (*Script, error) {
	s := &Script{
		fn:     DefaultFunction,
		logger: slog.Default(),
	}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, fmt.Errorf("applying option on script : %w", err)
		}
	}

	l := lua.NewState()
	lua.OpenLibraries(l)
	for _, global := range restrictedGlobals {
		l.PushNil()
		l.SetGlobal(global)
	}
	l.Register("print", s.print)
	registerLibrary(l)

	if err := lua.DoString(l, src); err != nil {
		return nil, fmt.Errorf("loading script : %w", err)
	}

	l.Global(s.fn)
	defined := l.IsFunction(-1)
	l.Pop(1)
	if !defined {
		return nil, fmt.Errorf("%w: %q", ErrNoFunction, s.fn)
	}

	s.state = l
	return s, nil
}

// Call pushes raw into the entry function and converts its first result back.
// Tables with keys 1..n become []any, other tables map[string]any.
func (s *Script) Call(raw any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.state
	top := l.Top()
	defer l.SetTop(top)

	l.Global(s.fn)
	pushValue(l, raw)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		return nil, fmt.Errorf("calling %s : %w", s.fn, err)
	}
	return goValue(l, -1), nil
}

// Incoming adapts the script to a model.Incoming hook.
func (s *Script) Incoming() model.IncomingFunc {
	return s.Call
}

// Lua compiles src and returns its entry function as an incoming hook.
func Lua(src string, options ...func(*Script) error) (model.IncomingFunc, error) {
	s, err := NewScript(src, options...)
	if err != nil {
		return nil, err
	}
	return s.Incoming(), nil
}

func (s *Script) print(l *lua.State) int {
	n := l.Top()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, fmt.Sprint(goValue(l, i)))
	}
	s.logger.Debug(strings.Join(parts, "\t"), "function", s.fn)
	return 0
}

func pushValue(l *lua.State, v any) {
	if v == nil {
		l.PushNil()
		return
	}
	util.DeepPush(l, v)
}

// goValue converts the Lua value at index into a raw store value.
// Functions and userdata convert to nil.
func goValue(l *lua.State, index int) any {
	return valueAt(l, l.AbsIndex(index), 0)
}

func valueAt(l *lua.State, index, depth int) any {
	switch l.TypeOf(index) {
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return n
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeTable:
		if depth >= maxTableDepth {
			return nil
		}
		return tableValue(l, index, depth+1)
	}
	return nil
}

func tableValue(l *lua.State, index, depth int) any {
	keys := make([]any, 0)
	values := make(map[any]any)

	l.PushNil()
	for l.Next(index) {
		var key any
		switch l.TypeOf(-2) {
		case lua.TypeNumber:
			key, _ = l.ToNumber(-2)
		case lua.TypeString:
			key, _ = l.ToString(-2)
		default:
			l.Pop(1)
			continue
		}
		keys = append(keys, key)
		values[key] = valueAt(l, l.AbsIndex(-1), depth)
		l.Pop(1)
	}

	if list, ok := asList(keys, values); ok {
		return list
	}

	out := make(map[string]any, len(keys))
	for _, key := range keys {
		name, ok := key.(string)
		if !ok {
			name = strconv.FormatFloat(key.(float64), 'f', -1, 64)
		}
		out[name] = values[key]
	}
	return out
}

// asList reports whether the keys are exactly 1..n. An empty table is a list.
func asList(keys []any, values map[any]any) ([]any, bool) {
	list := make([]any, len(keys))
	for _, key := range keys {
		n, ok := key.(float64)
		if !ok || n != float64(int(n)) || n < 1 || int(n) > len(keys) {
			return nil, false
		}
		list[int(n)-1] = values[key]
	}
	return list, true
}

// asMap returns value as a mapping, treating an empty list as an empty mapping.
func asMap(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case []any:
		if len(v) == 0 {
			return map[string]any{}
		}
	}
	return nil
}

// CallMap is Call for scripts that must produce a mapping.
func (s *Script) CallMap(raw any) (map[string]any, error) {
	result, err := s.Call(raw)
	if err != nil {
		return nil, err
	}
	m := asMap(result)
	if m == nil {
		return nil, fmt.Errorf("%w: %s returned %T, want a table with string keys", model.ErrInvalidStoreShape, s.fn, result)
	}
	return m, nil
}

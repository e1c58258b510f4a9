// Package luascript runs the named functions Exec conditions and microscripts
// call. Scripts are compiled once and executed in a fresh sandboxed VM per
// call.
package luascript

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jwebster45206/questscript/pkg/script"
	"github.com/jwebster45206/questscript/pkg/values"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

type chunk struct {
	name  string
	proto *lua.FunctionProto
}

// Runner holds compiled script files. A Runner is safe for concurrent use.
type Runner struct {
	mu     sync.RWMutex
	chunks []chunk
	logger *slog.Logger
	env    *script.Env
}

var _ script.ScriptRunner = (*Runner)(nil)

func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// LoadDir compiles every .lua file in dir in alphabetical order.
func (r *Runner) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading script directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".lua") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		src, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return fmt.Errorf("reading %s: %w", f, err)
		}
		if err := r.LoadString(f, string(src)); err != nil {
			return err
		}
	}
	r.logger.Info("Loaded scripts", "dir", dir, "files", len(files))
	return nil
}

// LoadString compiles src. Chunks run in load order before every call.
func (r *Runner) LoadString(name, src string) error {
	stmts, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	proto, err := lua.Compile(stmts, name)
	if err != nil {
		return fmt.Errorf("compiling %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk{name: name, proto: proto})
	return nil
}

// Bind returns a runner sharing r's scripts whose calls can read and change
// the stores in env through the game API.
func (r *Runner) Bind(env *script.Env) *Runner {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Runner{chunks: r.chunks, logger: r.logger, env: env}
}

// CallForResult calls the global function name and returns its first result
// converted to a Go value.
func (r *Runner) CallForResult(ctx context.Context, name string, args ...any) (any, error) {
	L, err := r.newState(ctx)
	if err != nil {
		return nil, err
	}
	defer L.Close()

	fn := L.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: script function %q", script.ErrNotFound, name)
	}

	largs := make([]lua.LValue, 0, len(args))
	for _, a := range args {
		largs = append(largs, toLuaValue(L, a))
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, largs...); err != nil {
		return nil, fmt.Errorf("calling %s: %w", name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return toGoValue(ret), nil
}

// Call calls the global function name and discards its result.
func (r *Runner) Call(ctx context.Context, name string, args ...any) error {
	_, err := r.CallForResult(ctx, name, args...)
	return err
}

func (r *Runner) newState(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	if ctx != nil {
		L.SetContext(ctx)
	}
	openSafeLibs(L)
	sandbox(L)
	registerAPI(L, r.env)

	r.mu.RLock()
	chunks := r.chunks
	r.mu.RUnlock()

	for _, c := range chunks {
		L.Push(L.NewFunctionFromProto(c.proto))
		if err := L.PCall(0, lua.MultRet, nil); err != nil {
			L.Close()
			return nil, fmt.Errorf("executing %s: %w", c.name, err)
		}
	}
	return L, nil
}

// openSafeLibs opens only the safe subset of Lua standard libraries.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// sandbox removes globals that reach outside the VM.
func sandbox(L *lua.LState) {
	for _, name := range []string{
		"dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"collectgarbage", "require", "module",
	} {
		L.SetGlobal(name, lua.LNil)
	}
}

func toLuaValue(L *lua.LState, v any) lua.LValue {
	v = values.Normalize(v)
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case []any:
		tbl := L.NewTable()
		for _, item := range x {
			tbl.Append(toLuaValue(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range x {
			tbl.RawSetString(k, toLuaValue(L, item))
		}
		return tbl
	}
	if values.IsNumeric(v) {
		if f, err := strconv.ParseFloat(values.Format(v), 64); err == nil {
			return lua.LNumber(f)
		}
	}
	return lua.LString(values.Format(v))
}

func toGoValue(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case *lua.LNilType:
		return nil
	case lua.LString:
		return string(val)
	case *lua.LTable:
		maxN := val.MaxN()
		if maxN > 0 {
			arr := make([]any, 0, maxN)
			for i := 1; i <= maxN; i++ {
				arr = append(arr, toGoValue(val.RawGetInt(i)))
			}
			return arr
		}
		m := map[string]any{}
		val.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				m[string(ks)] = toGoValue(v)
			}
		})
		return m
	default:
		return nil
	}
}

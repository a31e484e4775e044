// internal/sandbox/sandbox.go
// Package sandbox runs generated Lua expressions against a document store with
// a restricted global environment, a wall-clock budget and a heap budget.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"runtime/metrics"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"nlquery-agent/internal/docstore"
)

var (
	ErrBudgetExceeded = errors.New("execution budget exceeded")
	ErrNoResult       = errors.New("no result produced")
)

// ResultName is the global an expression must assign.
const ResultName = "result"

const memorySampleInterval = 5 * time.Millisecond

type Config struct {
	Timeout      time.Duration
	MaxCallStack int
	RegistryMax  int
	MaxDocuments int
	// MaxMemory bounds heap growth in bytes while a run is in progress.
	MaxMemory uint64
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxCallStack <= 0 {
		c.MaxCallStack = 200
	}
	if c.RegistryMax <= 0 {
		c.RegistryMax = 1024 * 80
	}
	if c.MaxDocuments <= 0 {
		c.MaxDocuments = 1000
	}
	if c.MaxMemory == 0 {
		c.MaxMemory = 256 << 20
	}
	return c
}

// Sandbox evaluates expressions. It holds no interpreter state between runs.
type Sandbox struct {
	store docstore.Store
	cfg   Config
}

func New(store docstore.Store, cfg Config) *Sandbox {
	return &Sandbox{store: store, cfg: cfg.withDefaults()}
}

// globals copied from the base library into the script environment
var allowedBase = []string{
	"assert", "error", "ipairs", "next", "pairs", "pcall",
	"select", "tonumber", "tostring", "type", "unpack",
}

type evaluation struct {
	value interface{}
	err   error
}

// Run executes source and returns the plain Go value bound to result.
// Cursors bound to result are read to completion.
//
// The interpreter runs on its own goroutine so the budget holds even while a
// library function or store call is executing. A run abandoned on budget
// finishes in the background and closes its own state.
func (s *Sandbox) Run(ctx context.Context, source string) (interface{}, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	timer := time.AfterFunc(s.cfg.Timeout, func() { cancel(ErrBudgetExceeded) })
	defer timer.Stop()
	go watchMemory(runCtx, s.cfg.MaxMemory, cancel)

	done := make(chan evaluation, 1)
	go func() {
		value, err := s.evaluate(runCtx, source)
		done <- evaluation{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, stopReason(ctx, runCtx, out.err)
		}
		return out.value, nil
	case <-runCtx.Done():
		return nil, stopReason(ctx, runCtx, runCtx.Err())
	}
}

// stopReason prefers the caller's cancellation, then the budget, then err.
func stopReason(ctx, runCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(context.Cause(runCtx), ErrBudgetExceeded) {
		return ErrBudgetExceeded
	}
	return err
}

func (s *Sandbox) evaluate(ctx context.Context, source string) (interface{}, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:    true,
		CallStackSize:   s.cfg.MaxCallStack,
		RegistrySize:    1024,
		RegistryMaxSize: s.cfg.RegistryMax,
	})
	defer L.Close()

	if err := openLibs(L); err != nil {
		return nil, fmt.Errorf("sandbox setup: %w", err)
	}

	api := &storeAPI{store: s.store, ctx: ctx, maxDocs: s.cfg.MaxDocuments}
	env, bound := s.environment(L, api)

	fn, err := L.LoadString(source)
	if err != nil {
		return nil, fmt.Errorf("syntax error: %s", luaMessage(err))
	}
	fn.Env = env

	L.SetContext(ctx)
	L.Push(fn)
	if err := L.PCall(0, 0, nil); err != nil {
		return nil, errors.New(luaMessage(err))
	}

	if !*bound {
		return nil, ErrNoResult
	}
	return api.resultValue(env.RawGetString(ResultName))
}

// watchMemory cancels the run once the live heap has grown by more than limit
// bytes since the run started. The heap is process-wide, so concurrent runs
// count against each other.
func watchMemory(ctx context.Context, limit uint64, cancel context.CancelCauseFunc) {
	sample := []metrics.Sample{{Name: "/memory/classes/heap/objects:bytes"}}
	heap := func() uint64 {
		metrics.Read(sample)
		if sample[0].Value.Kind() != metrics.KindUint64 {
			return 0
		}
		return sample[0].Value.Uint64()
	}

	base := heap()
	ticker := time.NewTicker(memorySampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if now := heap(); now > base && now-base > limit {
				cancel(ErrBudgetExceeded)
				return
			}
		}
	}
}

func openLibs(L *lua.LState) error {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return err
		}
	}

	// the string metatable indexes this same table, so s:rep() and the
	// pattern methods go too
	if strlib, ok := L.GetGlobal(lua.StringLibName).(*lua.LTable); ok {
		for _, name := range []string{"rep", "match", "gmatch", "gsub"} {
			strlib.RawSetString(name, lua.LNil)
		}
		strlib.RawSetString("find", L.NewFunction(plainFind))
	}
	return nil
}

const patternSpecials = "^$*+?.([%-"

// plainFind is string.find restricted to plain substring search. Pattern
// matching backtracks inside a single library call.
func plainFind(L *lua.LState) int {
	s := L.CheckString(1)
	sub := L.CheckString(2)
	init := L.OptInt(3, 1)
	if !lua.LVAsBool(L.Get(4)) && strings.ContainsAny(sub, patternSpecials) {
		L.RaiseError("string patterns are not available; pass true as the fourth argument of find for a plain search")
	}

	if init < 0 {
		init = len(s) + init + 1
	}
	if init < 1 {
		init = 1
	}
	if init > len(s)+1 {
		L.Push(lua.LNil)
		return 1
	}
	idx := strings.Index(s[init-1:], sub)
	if idx < 0 {
		L.Push(lua.LNil)
		return 1
	}
	start := init + idx
	L.Push(lua.LNumber(start))
	L.Push(lua.LNumber(start + len(sub) - 1))
	return 2
}

// environment builds the allow-listed globals table. bound flips to true on
// the first assignment to result, including an explicit nil.
func (s *Sandbox) environment(L *lua.LState, api *storeAPI) (*lua.LTable, *bool) {
	env := L.NewTable()
	for _, name := range allowedBase {
		env.RawSetString(name, L.GetGlobal(name))
	}
	for _, lib := range []string{lua.StringLibName, lua.TabLibName, lua.MathLibName} {
		env.RawSetString(lib, L.GetGlobal(lib))
	}
	env.RawSetString("db", api.newDB(L))
	env.RawSetString("ObjectId", L.NewFunction(api.objectID))

	bound := new(bool)
	meta := L.NewTable()
	meta.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		key := L.Get(2)
		if key.Type() == lua.LTString && key.String() == ResultName {
			*bound = true
		}
		tbl.RawSet(key, L.Get(3))
		return 0
	}))
	L.SetMetatable(env, meta)
	return env, bound
}

// luaMessage drops the interpreter stack trace from an error.
func luaMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}

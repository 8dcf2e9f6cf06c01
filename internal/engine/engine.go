package engine

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/scriptbox/scriptbox/internal/core"
)

// Engine implements core.ContainerBackend over a pool of VMs created by a
// RuntimeFactory. It is engine-agnostic: the QuickJS and V8 backends differ
// only in the factory they plug in.
type Engine struct {
	id      string
	cfg     core.Config
	factory core.RuntimeFactory
	pool    *vmPool
	disp    *core.Dispatcher

	// mu serializes broadcast operations (load, global mirroring) so two
	// broadcasts never deadlock each other draining the pool. The discard
	// path must never take it: a broadcast may be blocked draining the pool
	// until discard returns the replacement VM.
	mu sync.Mutex

	// histMu guards history so discard can snapshot it without contending
	// with a broadcast in progress.
	histMu  sync.Mutex
	history []string // successfully loaded chunks, replayed into rebuilt VMs

	globals sync.Map // key -> caller-owned value
}

var _ core.ContainerBackend = (*Engine)(nil)

// New creates a container backend with cfg.Workers pre-warmed VMs and as many
// dispatcher goroutines for asynchronous completions.
func New(id string, cfg core.Config, factory core.RuntimeFactory) (*Engine, error) {
	pool, err := newVMPool(cfg.Workers, cfg, factory)
	if err != nil {
		return nil, fmt.Errorf("initializing container: %w", err)
	}

	e := &Engine{
		id:      id,
		cfg:     cfg,
		factory: factory,
		pool:    pool,
		disp:    core.NewDispatcher(cfg.Workers),
	}
	core.Logger().Debug("container created",
		zap.String("container", id),
		zap.Int("workers", cfg.Workers),
		zap.Int("memory_limit_mb", cfg.MemoryLimitMB))
	return e, nil
}

// SetGlobalValue registers a caller-owned value. String, bool, integer and
// float values are additionally mirrored into every VM's global scope so
// loaded code can read them; anything else stays host-side, retrievable via
// GlobalValue.
func (e *Engine) SetGlobalValue(key string, value any) core.ResponseCode {
	e.globals.Store(key, value)
	if !isMirrorable(value) {
		return core.ResponseSuccess
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	code := core.ResponseSuccess
	for _, rt := range e.pool.all() {
		rt = e.revive(rt)
		if err := rt.SetGlobal(key, value); err != nil {
			code = core.ResponseExecutionFailure
			core.Logger().Warn("mirroring global failed",
				zap.String("container", e.id),
				zap.String("key", key),
				zap.Error(err))
		}
		e.pool.put(rt)
	}
	return code
}

// GlobalValue returns a value previously registered with SetGlobalValue.
func (e *Engine) GlobalValue(key string) (any, bool) {
	return e.globals.Load(key)
}

// Load evaluates source at global scope in every VM of the pool, so any VM
// can serve a subsequent run. The source is recorded on success and replayed
// into replacement VMs built after a timeout discard.
func (e *Engine) Load(source string) core.ResponseCode {
	e.mu.Lock()
	defer e.mu.Unlock()

	code := core.ResponseSuccess
	for _, rt := range e.pool.all() {
		rt = e.revive(rt)
		if err := rt.Eval(source); err != nil {
			code = core.ResponseLoadFailure
			core.Logger().Debug("load failed",
				zap.String("container", e.id),
				zap.Error(err))
		}
		e.pool.put(rt)
	}

	if code == core.ResponseSuccess {
		e.appendHistory(source)
	}
	return code
}

// Run invokes a previously loaded function on one idle VM. A positive
// timeout arms a watchdog that interrupts the VM; an interrupted VM is
// discarded and rebuilt because its state is no longer trustworthy.
func (e *Engine) Run(fn string, args []string, timeoutMillis uint32) core.Response {
	rt := e.revive(e.pool.get())
	if _, dead := rt.(deadRuntime); dead {
		e.pool.put(rt)
		return core.Failure(core.ResponseExecutionFailure, errVMUnavailable.Error())
	}

	var timedOut atomic.Bool
	var watchdog *time.Timer
	var deadline time.Time
	if timeoutMillis > 0 {
		timeout := time.Duration(timeoutMillis) * time.Millisecond
		deadline = time.Now().Add(timeout)
		watchdog = time.AfterFunc(timeout, func() {
			timedOut.Store(true)
			rt.Interrupt()
		})
	}

	resp := runOn(rt, fn, args, deadline)

	stopped := watchdog == nil || watchdog.Stop()
	if resp.Code != core.ResponseSuccess && timedOut.Load() {
		resp = core.Failure(core.ResponseTimeout,
			fmt.Sprintf("function %q timed out after %dms", fn, timeoutMillis))
	}

	if stopped && !timedOut.Load() {
		e.pool.put(rt)
	} else {
		core.Logger().Info("discarding interrupted vm",
			zap.String("container", e.id),
			zap.String("function", fn))
		e.discard(rt)
	}
	return resp
}

// Dispatch hands an asynchronous operation to the dispatcher goroutines.
func (e *Engine) Dispatch(job core.Job) error {
	return e.disp.Submit(job)
}

// Release drains the dispatcher (queued jobs still complete) and closes all
// VMs. The engine is unusable afterwards.
func (e *Engine) Release() {
	e.disp.Close()
	e.pool.dispose()
	core.Logger().Debug("container released", zap.String("container", e.id))
}

// discard closes a poisoned VM and builds a replacement so the pool keeps
// its size. It must not touch the broadcast mutex: a broadcast may be blocked
// draining the pool until the replacement is returned.
func (e *Engine) discard(rt core.JSRuntime) {
	rt.Close()
	e.pool.put(e.rebuild())
}

// rebuild creates a VM with the load history replayed and the mirrored
// globals restored. If the factory fails, a dead placeholder keeps the pool
// slot so pool-draining operations never wait for a VM that no longer exists;
// later operations landing on the placeholder retry the rebuild.
func (e *Engine) rebuild() core.JSRuntime {
	fresh, err := e.factory(e.cfg)
	if err != nil {
		core.Logger().Error("rebuilding vm failed",
			zap.String("container", e.id),
			zap.Error(err))
		return deadRuntime{}
	}

	for _, src := range e.loadHistory() {
		if err := fresh.Eval(src); err != nil {
			core.Logger().Warn("replaying load into rebuilt vm failed",
				zap.String("container", e.id),
				zap.Error(err))
		}
	}
	e.globals.Range(func(key, value any) bool {
		if isMirrorable(value) {
			_ = fresh.SetGlobal(key.(string), value)
		}
		return true
	})
	return fresh
}

// revive swaps a dead placeholder for a freshly built VM if the factory has
// recovered. Live VMs pass through unchanged.
func (e *Engine) revive(rt core.JSRuntime) core.JSRuntime {
	if _, dead := rt.(deadRuntime); !dead {
		return rt
	}
	return e.rebuild()
}

func (e *Engine) appendHistory(source string) {
	e.histMu.Lock()
	e.history = append(e.history, source)
	e.histMu.Unlock()
}

func (e *Engine) loadHistory() []string {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	return append([]string(nil), e.history...)
}

var errVMUnavailable = errors.New("vm unavailable: rebuild failed")

// deadRuntime holds a lost VM's pool slot after a failed rebuild. Every
// evaluation on it fails, and operations that draw it from the pool attempt a
// rebuild before giving up.
type deadRuntime struct{}

func (deadRuntime) Eval(string) error                 { return errVMUnavailable }
func (deadRuntime) EvalString(string) (string, error) { return "", errVMUnavailable }
func (deadRuntime) EvalBool(string) (bool, error)     { return false, errVMUnavailable }
func (deadRuntime) SetGlobal(string, any) error       { return errVMUnavailable }
func (deadRuntime) RunMicrotasks()                    {}
func (deadRuntime) Interrupt()                        {}
func (deadRuntime) Close()                            {}

// isMirrorable reports whether a registered global can be represented as a
// plain JS value in the VMs.
func isMirrorable(value any) bool {
	switch value.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

// errDeadline reports that a Promise result did not settle before the run
// deadline. The caller maps it to a timeout response.
var errDeadline = errors.New("promise did not settle before the deadline")

const serializeResultJS = `(function() {
	var r = globalThis.__run_result;
	delete globalThis.__run_result;
	if (r === undefined || r === null) return "";
	var s = JSON.stringify(r);
	return s === undefined ? String(r) : s;
})()`

const cleanupResultJS = `
	delete globalThis.__run_result;
	delete globalThis.__run_state;
`

// runOn executes one function call on the given VM and converts the outcome
// into an owned Response. Engine-side text reaches Go as freshly allocated
// strings, so nothing in the Response aliases VM memory.
func runOn(rt core.JSRuntime, fn string, args []string, deadline time.Time) core.Response {
	call := fmt.Sprintf(`globalThis.__run_result = (function() {
		var fn = globalThis[%q];
		if (typeof fn !== 'function') {
			throw new Error('function ' + %q + ' is not defined');
		}
		return fn(%s);
	})();`, fn, fn, strings.Join(args, ", "))

	if err := rt.Eval(call); err != nil {
		_ = rt.Eval(cleanupResultJS)
		return core.Failure(core.ResponseExecutionFailure, fmt.Sprintf("invoking %q: %v", fn, err))
	}

	if err := awaitResult(rt, deadline); err != nil {
		_ = rt.Eval(cleanupResultJS)
		if errors.Is(err, errDeadline) {
			return core.Failure(core.ResponseTimeout, err.Error())
		}
		return core.Failure(core.ResponseExecutionFailure, err.Error())
	}

	ret, err := rt.EvalString(serializeResultJS)
	if err != nil {
		return core.Failure(core.ResponseExecutionFailure,
			fmt.Sprintf("serializing return value of %q: %v", fn, err))
	}
	return core.Response{Code: core.ResponseSuccess, ReturnValue: ret}
}

// awaitResult resolves a Promise stored in __run_result by pumping the
// microtask queue until it settles. A zero deadline waits indefinitely.
func awaitResult(rt core.JSRuntime, deadline time.Time) error {
	isPromise, err := rt.EvalBool("globalThis.__run_result instanceof Promise")
	if err != nil || !isPromise {
		return nil
	}

	setupJS := `
		delete globalThis.__run_state;
		globalThis.__run_result.then(
			function(r) { globalThis.__run_result = r; globalThis.__run_state = 'fulfilled'; },
			function(e) { globalThis.__run_result = e; globalThis.__run_state = 'rejected'; }
		);
	`
	if err := rt.Eval(setupJS); err != nil {
		return fmt.Errorf("setting up promise await: %w", err)
	}

	for {
		rt.RunMicrotasks()

		state, err := rt.EvalString("String(globalThis.__run_state)")
		if err != nil {
			return fmt.Errorf("checking promise state: %w", err)
		}
		if state == "rejected" {
			msg, _ := rt.EvalString("String(globalThis.__run_result)")
			_ = rt.Eval(cleanupResultJS)
			return fmt.Errorf("promise rejected: %s", msg)
		}
		if state != "undefined" {
			_ = rt.Eval("delete globalThis.__run_state;")
			return nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return errDeadline
		}
		runtime.Gosched()
	}
}

// Package sandbox executes generated transform code inside a memory- and
// time-bounded Starlark interpreter. Arguments and results cross the
// trust boundary only as JSON-serializable data: no host functions,
// closures, or live object references are shared into the sandbox, so
// whatever the untrusted code does internally it cannot touch host
// memory, the filesystem, network, or process environment.
package sandbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Default resource limits per invocation.
const (
	DefaultTimeout   = 5 * time.Second
	DefaultMaxMemory = 8 << 20 // 8 MiB
	DefaultMaxSteps  = 10_000_000
)

// memSampleInterval is how often the watchdog samples heap growth.
const memSampleInterval = 10 * time.Millisecond

// Cancellation reasons passed to Thread.Cancel. The interpreter folds
// them into the evaluation error; classify inspects them on the way out.
const (
	reasonTimeout  = "wall-clock timeout"
	reasonMemory   = "memory limit exceeded"
	reasonCanceled = "context cancelled"
)

// Limits bounds a single sandbox invocation. The caps are enforced by
// the interpreter and a watchdog goroutine, not by cooperative checks
// inside the transform code: a runaway invocation is forcibly cancelled.
type Limits struct {
	Timeout   time.Duration // wall-clock ceiling
	MaxMemory int64         // heap-growth ceiling in bytes
	MaxSteps  uint64        // interpreter step ceiling
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() Limits {
	return Limits{
		Timeout:   DefaultTimeout,
		MaxMemory: DefaultMaxMemory,
		MaxSteps:  DefaultMaxSteps,
	}
}

func (l Limits) withDefaults() Limits {
	if l.Timeout <= 0 {
		l.Timeout = DefaultTimeout
	}
	if l.MaxMemory <= 0 {
		l.MaxMemory = DefaultMaxMemory
	}
	if l.MaxSteps == 0 {
		l.MaxSteps = DefaultMaxSteps
	}
	return l
}

// Executor runs transform functions. It is stateless and safe for
// concurrent use; each invocation gets a fresh thread and fresh globals,
// so no object graph survives between calls even for the same template.
type Executor struct {
	logger *slog.Logger
}

// New creates a new Executor. A nil logger discards output.
func New(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{logger: logger}
}

// fileOptions returns the Starlark dialect options for transform code.
// While-loops and recursion are allowed - termination is guaranteed by
// the step and wall-clock caps, not by the grammar.
func fileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:               true,
		While:             true,
		TopLevelControl:   true,
		GlobalReassign:    true,
		Recursion:         true,
		LoadBindsGlobally: false,
	}
}

// Execute runs code, which must define a function named "transform",
// passing args positionally. The return value is converted back to
// plain Go data (the shapes encoding/json produces). Every failure is
// reported as a *Error carrying one of the four kinds.
func (e *Executor) Execute(ctx context.Context, code string, args []any, limits Limits) (any, error) {
	limits = limits.withDefaults()

	argv := make(starlark.Tuple, len(args))
	for i, a := range args {
		sv, err := goToStarlark(a)
		if err != nil {
			return nil, errf(KindRuntimeException, "argument %d: %v", i, err)
		}
		argv[i] = sv
	}

	thread := &starlark.Thread{
		Name: "transform",
		Print: func(_ *starlark.Thread, _ string) {
			// Sandboxed code has no output channel.
		},
	}
	thread.SetMaxExecutionSteps(limits.MaxSteps)

	done := make(chan struct{})
	defer close(done)
	go watchdog(ctx, thread, limits, done)

	start := time.Now()

	// Fresh, empty predeclared environment: the only names visible to
	// the code are the Starlark universe and its own definitions.
	globals, err := starlark.ExecFileOptions(fileOptions(), thread, "transform.star", code, starlark.StringDict{})
	if err != nil {
		return nil, classify(err)
	}

	fn, ok := globals["transform"]
	if !ok {
		return nil, errf(KindRuntimeException, "code does not define a transform function")
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, errf(KindRuntimeException, "transform is not callable (got %s)", fn.Type())
	}

	result, err := starlark.Call(thread, callable, argv, nil)
	if err != nil {
		return nil, classify(err)
	}

	out, err := toGo(result)
	if err != nil {
		return nil, errf(KindInvalidReturnShape, "transform return value: %v", err)
	}
	if _, err := json.Marshal(out); err != nil {
		return nil, errf(KindInvalidReturnShape, "transform return value is not JSON-serializable: %v", err)
	}

	e.logger.Debug("sandbox invocation completed",
		"steps", thread.ExecutionSteps(),
		"duration_ms", time.Since(start).Milliseconds())

	return out, nil
}

// watchdog cancels the thread when the wall clock, the heap budget, or
// the caller's context expires. Heap growth is sampled against a
// baseline taken at invocation start; the cancellation takes effect at
// the interpreter's next safepoint.
func watchdog(ctx context.Context, thread *starlark.Thread, limits Limits, done <-chan struct{}) {
	base := heapAlloc()
	timer := time.NewTimer(limits.Timeout)
	defer timer.Stop()
	ticker := time.NewTicker(memSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			thread.Cancel(reasonCanceled)
			return
		case <-timer.C:
			thread.Cancel(reasonTimeout)
			return
		case <-ticker.C:
			if heapAlloc()-base > limits.MaxMemory {
				thread.Cancel(reasonMemory)
				return
			}
		}
	}
}

func heapAlloc() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapAlloc)
}

// cancelPrefix is the wording the interpreter puts in front of a
// Thread.Cancel reason. Sandboxed code cannot forge it: fail() and the
// builtins always prepend their own context to the message.
const cancelPrefix = "Starlark computation cancelled: "

// classify maps an interpreter error to a structured sandbox error.
// Only a genuine cancellation is mapped to the limit kinds; a transform
// raising an error whose text mimics a cancel reason stays a runtime
// exception.
func classify(err error) *Error {
	msg := err.Error()
	if evalErr, ok := err.(*starlark.EvalError); ok {
		msg = evalErr.Msg
	}

	if reason, ok := strings.CutPrefix(msg, cancelPrefix); ok {
		switch reason {
		case reasonTimeout, reasonCanceled:
			return errf(KindTimeout, "%s", reason)
		case reasonMemory:
			return errf(KindMemoryExceeded, "%s", reason)
		case "too many steps":
			// Step exhaustion is a CPU bound, reported with the timeout kind.
			return errf(KindTimeout, "execution step budget exhausted")
		}
	}
	return errf(KindRuntimeException, "%s", msg)
}

// Package detect turns source text into heuristic facts. Instead of one
// hand-written function per banned call, detection is a static registry
// of call patterns matched by a single generic matcher over the
// scanner's code regions.
package detect

import (
	"github.com/codegate-dev/codegate/pkg/facts"
)

// Pattern describes one detectable call or identifier shape. Object and
// Property form a member access ("console" "." "log"); a pattern with no
// Object matches a bare identifier. CallShape requires an opening paren
// after the member. AsyncVariant also matches the Sync/Async-suffixed
// forms of the property. BridgeExempt patterns are tolerated under
// bridge directories where callback-style interop is expected.
type Pattern struct {
	RuleID       string
	Severity     facts.Severity
	Code         string
	Message      string
	Platform     facts.Platform
	Object       string
	Property     string
	CallShape    bool
	AsyncVariant bool
	BridgeExempt bool
}

// Registry is the set of active detection patterns.
type Registry []Pattern

// DefaultRegistry is the built-in pattern set. Platform generic patterns
// apply everywhere; platform-tagged patterns only fire on files that
// infer to that platform.
func DefaultRegistry() Registry {
	return Registry{
		{
			RuleID: "no-console-log", Severity: facts.SeverityWarn,
			Code: "CONSOLE_LOG", Message: "console logging left in production code",
			Platform: facts.PlatformGeneric,
			Object:   "console", Property: "log", CallShape: true,
		},
		{
			RuleID: "no-console-log", Severity: facts.SeverityWarn,
			Code: "CONSOLE_LOG", Message: "console logging left in production code",
			Platform: facts.PlatformGeneric,
			Object:   "console", Property: "debug", CallShape: true,
		},
		{
			RuleID: "no-debugger", Severity: facts.SeverityError,
			Code: "DEBUGGER_STATEMENT", Message: "debugger statement left in production code",
			Platform: facts.PlatformGeneric,
			Property: "debugger",
		},
		{
			RuleID: "no-eval", Severity: facts.SeverityCritical,
			Code: "EVAL_USAGE", Message: "dynamic code evaluation is forbidden",
			Platform: facts.PlatformGeneric,
			Property: "eval", CallShape: true,
		},
		{
			RuleID: "no-print-debug", Severity: facts.SeverityWarn,
			Code: "PRINT_DEBUG", Message: "print call left in production code",
			Platform: facts.PlatformIOS,
			Property: "print", CallShape: true,
		},
		{
			RuleID: "no-dispatch-main", Severity: facts.SeverityWarn,
			Code: "DISPATCH_MAIN", Message: "prefer structured concurrency over DispatchQueue.main",
			Platform: facts.PlatformIOS,
			Object:   "DispatchQueue", Property: "main", BridgeExempt: true,
		},
		{
			RuleID: "no-dispatch-semaphore", Severity: facts.SeverityError,
			Code: "DISPATCH_SEMAPHORE", Message: "semaphore-based waiting blocks cooperative threads",
			Platform: facts.PlatformIOS,
			Object:   "DispatchSemaphore", Property: "wait", CallShape: true, BridgeExempt: true,
		},
		{
			RuleID: "no-task-detached", Severity: facts.SeverityWarn,
			Code: "TASK_DETACHED", Message: "detached tasks escape structured concurrency",
			Platform: facts.PlatformIOS,
			Object:   "Task", Property: "detached", CallShape: true,
		},
		{
			RuleID: "no-sync-fs", Severity: facts.SeverityWarn,
			Code: "SYNC_FS", Message: "synchronous filesystem call on a request path",
			Platform: facts.PlatformBackend,
			Object:   "fs", Property: "readFile", CallShape: true, AsyncVariant: true,
		},
		{
			RuleID: "no-process-exit", Severity: facts.SeverityError,
			Code: "PROCESS_EXIT", Message: "process.exit bypasses graceful shutdown",
			Platform: facts.PlatformBackend,
			Object:   "process", Property: "exit", CallShape: true,
		},
		{
			RuleID: "no-log-debug", Severity: facts.SeverityWarn,
			Code: "LOG_DEBUG", Message: "debug logging left in production code",
			Platform: facts.PlatformAndroid,
			Object:   "Log", Property: "d", CallShape: true,
		},
	}
}

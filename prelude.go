package quickbridge

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Gaurav-Gosain/quickjs"
)

// harnessName is the global the script-side harness is installed under.
const harnessName = "__qjsb"

// preludeSource installs the script-side half of the bridge. The harness
// routes every host-initiated call through attempt so the real thrown value
// stays reachable, wraps raw host functions so they can throw marked errors
// through the slot protocol, and taps the native error constructors so the
// last constructed error can be recovered after a failed top-level eval.
const preludeSource = `(function () {
	'use strict';
	const qb = {};
	qb.slot = undefined;
	qb.lastThrown = undefined;
	qb.lastCreated = undefined;

	qb.attempt = function (f, thisArg, args) {
		try {
			return [true, f.apply(thisArg, args)];
		} catch (e) {
			qb.lastThrown = e;
			return [false, e];
		}
	};

	qb.wrapHost = function (raw, name) {
		const wrapped = function () {
			const ok = raw.apply(undefined, arguments);
			const out = qb.slot;
			qb.slot = undefined;
			if (ok) {
				return out;
			}
			qb.lastThrown = out;
			throw out;
		};
		try {
			Object.defineProperty(wrapped, 'name', { value: name, configurable: true });
		} catch (e) {
		}
		return wrapped;
	};

	qb.hostError = function (message, kind, file, line) {
		const e = new Error(message);
		e.hostErrorKind = kind;
		e.hostErrorFile = file;
		e.hostErrorLine = line;
		return e;
	};

	qb.bigIntFromString = function (s) {
		return BigInt(s);
	};

	qb.settle = function (p) {
		const s = { state: 'pending', value: undefined };
		Promise.resolve(p).then(
			function (v) { s.state = 'fulfilled'; s.value = v; },
			function (e) { s.state = 'rejected'; s.value = e; qb.lastThrown = e; }
		);
		return s;
	};

	const tap = function (name) {
		const Native = globalThis[name];
		if (typeof Native !== 'function') {
			return;
		}
		const Tapped = function () {
			const e = Reflect.construct(Native, arguments, new.target || Tapped);
			qb.lastCreated = e;
			return e;
		};
		Tapped.prototype = Native.prototype;
		Object.setPrototypeOf(Tapped, Native);
		try {
			Object.defineProperty(Tapped, 'name', { value: name, configurable: true });
		} catch (e) {
		}
		globalThis[name] = Tapped;
	};
	['Error', 'TypeError', 'RangeError', 'SyntaxError', 'ReferenceError', 'EvalError', 'URIError'].forEach(tap);

	globalThis.__qjsb = qb;
})();`

// install evaluates the harness into a fresh context and caches the harness
// object, then reroutes console output into structured logging.
func (cc *contextCore) install() error {
	if _, err := cc.ctx.EvalFile(preludeSource, "<quickbridge>"); err != nil {
		return fmt.Errorf("failed to install bridge harness: %w", err)
	}

	qb, err := cc.ctx.GetGlobal(harnessName)
	if err != nil {
		return fmt.Errorf("failed to resolve bridge harness: %w", err)
	}
	if !qb.IsObject() {
		return fmt.Errorf("bridge harness global %s is not an object", harnessName)
	}
	cc.qb = qb

	cc.installConsole()
	return nil
}

// resetThrowState clears the harness bookkeeping before a top-level eval so
// stale values from earlier evaluations cannot leak into error recovery.
func (cc *contextCore) resetThrowState() {
	if err := cc.qb.Set("lastThrown", cc.ctx.Undefined()); err != nil {
		slog.Debug("Failed to reset thrown-value bookkeeping", "error", err)
	}
	if err := cc.qb.Set("lastCreated", cc.ctx.Undefined()); err != nil {
		slog.Debug("Failed to reset created-value bookkeeping", "error", err)
	}
}

// consoleLevels maps console methods to log levels.
var consoleLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"log":   slog.LevelInfo,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// installConsole replaces the console methods with host functions that emit
// through slog, so script logging lands in the application log stream with
// the right level. A missing console object is left alone.
func (cc *contextCore) installConsole() {
	console, err := cc.ctx.GetGlobal("console")
	if err != nil || !console.IsObject() {
		return
	}

	for method, level := range consoleLevels {
		lvl := level
		fn := cc.ctx.Function("console_"+method, func(qc *quickjs.Context, this quickjs.Value, args []quickjs.Value) quickjs.Value {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = a.String()
			}
			slog.Default().Log(cc.rt.engineCtx(), lvl, "Script console output",
				"message", strings.Join(parts, " "),
				"source", "script",
			)
			return qc.Undefined()
		})
		if err := console.Set(method, fn); err != nil {
			slog.Debug("Failed to install console method", "method", method, "error", err)
		}
	}
}

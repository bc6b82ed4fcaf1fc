package quickbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/Gaurav-Gosain/quickjs"
)

// ErrInterrupted is reported when script execution is stopped by the
// interrupt handler, the runtime limit or Runtime.Interrupt.
var ErrInterrupted = errors.New("interrupted")

// ScriptException carries a script-side failure across the boundary. It is
// produced for thrown script values, for engine-reported evaluation errors
// and for boundary violations such as invoking a value that is not callable.
type ScriptException struct {
	// Message is the thrown error's message, or the thrown value rendered
	// as a string when something other than an error object was thrown.
	Message string

	// Kind is the script error class such as "TypeError" or "SyntaxError".
	// Empty when the thrown value was not an error object.
	Kind string

	// FileName and Line locate the failure in script source.
	FileName string
	Line     int

	// Stack is the script-side stack text when one was available.
	Stack string

	// HostFile and HostLine locate the host function a wrapped host error
	// originated from. Zero values when the failure is purely script-side.
	HostFile string
	HostLine int

	// Cause is the reconstructed host error for failures that started as a
	// host error, was rethrown by script and crossed back out.
	Cause error
}

func (e *ScriptException) Error() string {
	if e.FileName == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s:%d)", e.Message, e.FileName, e.Line)
}

func (e *ScriptException) Unwrap() error {
	return e.Cause
}

// Marker properties stamped on script errors that wrap a host error, so the
// originating error can be rebuilt when the value crosses back to the host.
const (
	markerKind = "hostErrorKind"
	markerFile = "hostErrorFile"
	markerLine = "hostErrorLine"
)

// interruptedKind tags interrupt errors so they round-trip through script
// back to ErrInterrupted.
const interruptedKind = "quickbridge.interrupted"

var errorKinds = struct {
	mu    sync.RWMutex
	ctors map[string]func(message string) error
}{ctors: map[string]func(message string) error{
	interruptedKind: func(string) error { return ErrInterrupted },
	"quickbridge.ScriptException": func(message string) error {
		return &ScriptException{Message: message}
	},
}}

// RegisterErrorKind associates an error kind name with a constructor. When a
// script exception carries a host error of that kind, the constructor
// rebuilds the cause. The name of a host error is its Go type name as
// reported by ErrorKind.
func RegisterErrorKind(kind string, ctor func(message string) error) {
	errorKinds.mu.Lock()
	defer errorKinds.mu.Unlock()
	errorKinds.ctors[kind] = ctor
}

// ErrorKind returns the kind name stamped on script errors that wrap err.
func ErrorKind(err error) string {
	if errors.Is(err, ErrInterrupted) {
		return interruptedKind
	}
	t := reflect.TypeOf(err)
	if t == nil {
		return "error"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// rebuildCause reconstructs the host error named by a marker. Unknown kinds
// degrade to a plain error with the original message.
func rebuildCause(kind, message string) error {
	errorKinds.mu.RLock()
	ctor, ok := errorKinds.ctors[kind]
	errorKinds.mu.RUnlock()
	if !ok {
		slog.Warn("Unknown host error kind in script exception", "kind", kind)
		return errors.New(message)
	}
	return ctor(message)
}

// classifyThrown turns a thrown script value into a ScriptException. The
// value may be an error object, a plain string, or anything else a script
// can throw.
func (cc *contextCore) classifyThrown(v quickjs.Value, evalName string) *ScriptException {
	if v.IsError() || (v.IsObject() && v.Has("message")) {
		exc := &ScriptException{FileName: evalName}
		if msgV, err := v.Get("message"); err == nil && !msgV.IsUndefined() {
			exc.Message = msgV.String()
		}
		if nameV, err := v.Get("name"); err == nil && !nameV.IsUndefined() {
			exc.Kind = nameV.String()
		}
		if stackV, err := v.Get("stack"); err == nil && !stackV.IsUndefined() {
			exc.Stack = stackV.String()
			exc.FileName, exc.Line = parseStackLocation(exc.Stack, evalName)
		}
		if v.Has(markerKind) {
			kindV, _ := v.Get(markerKind)
			fileV, _ := v.Get(markerFile)
			lineV, _ := v.Get(markerLine)
			exc.Cause = rebuildCause(kindV.String(), exc.Message)
			exc.HostFile = fileV.String()
			if n, err := lineV.Int32(); err == nil {
				exc.HostLine = int(n)
			}
		}
		if exc.Message == "" {
			exc.Message = "unknown script exception"
		}
		return exc
	}

	if v.IsString() {
		return &ScriptException{Message: v.String(), FileName: evalName}
	}

	msg := v.String()
	if msg == "" {
		msg = "unknown script exception"
	}
	return &ScriptException{Message: msg, FileName: evalName}
}

// recoverEvalError rebuilds a ScriptException for a failed top-level
// evaluation. The engine reports such failures as a bare error string, so
// the thrown object is recovered from the harness bookkeeping when the
// throw passed through it, and from the error construction tap otherwise.
// When neither matches, the error text itself is parsed.
func (cc *contextCore) recoverEvalError(evalErr error, evalName string) *ScriptException {
	text := evalErr.Error()
	kind, message := splitErrorText(text)
	// The engine substitutes this text when it cannot render the thrown
	// value, so it carries no information worth matching against.
	noInfo := text == "JavaScript exception"

	if thrown, ok := cc.harnessValue("lastThrown"); ok {
		exc := cc.classifyThrown(thrown, evalName)
		if noInfo || message == "" || exc.Message == message {
			return exc
		}
	}
	if created, ok := cc.harnessValue("lastCreated"); ok {
		exc := cc.classifyThrown(created, evalName)
		if noInfo || exc.Message == message {
			return exc
		}
	}

	file, line := parseStackLocation(text, evalName)
	return &ScriptException{
		Message:  message,
		Kind:     kind,
		FileName: file,
		Line:     line,
	}
}

// harnessValue reads a bookkeeping property off the script-side harness and
// reports whether it holds a usable value.
func (cc *contextCore) harnessValue(name string) (quickjs.Value, bool) {
	v, err := cc.qb.Get(name)
	if err != nil || v.IsUndefined() || v.IsNull() {
		return quickjs.Value{}, false
	}
	return v, true
}

// errorClassNames are the native error classes whose names prefix engine
// error text, longest first so "TypeError" is not matched as "Error".
var errorClassNames = []string{
	"InternalError",
	"ReferenceError",
	"SyntaxError",
	"RangeError",
	"TypeError",
	"EvalError",
	"URIError",
	"Error",
}

// splitErrorText splits engine error text such as "TypeError: x is not a
// function" into the error class and the bare message.
func splitErrorText(text string) (kind, message string) {
	for _, name := range errorClassNames {
		if strings.HasPrefix(text, name+": ") {
			return name, text[len(name)+2:]
		}
		if text == name {
			return name, ""
		}
	}
	return "", text
}

// parseStackLocation extracts the innermost "file:line" from script stack
// text. Frames look like "    at fn (file:line)" or "    at file:line".
// When no frame parses, the fallback file and line zero are returned.
func parseStackLocation(stack, fallback string) (string, int) {
	for _, frame := range strings.Split(stack, "\n") {
		frame = strings.TrimSpace(frame)
		if !strings.HasPrefix(frame, "at ") {
			continue
		}
		loc := strings.TrimPrefix(frame, "at ")
		if i := strings.LastIndexByte(loc, '('); i >= 0 {
			loc = strings.TrimSuffix(loc[i+1:], ")")
		}
		i := strings.LastIndexByte(loc, ':')
		if i < 0 {
			continue
		}
		line, err := strconv.Atoi(strings.TrimSpace(loc[i+1:]))
		if err != nil {
			continue
		}
		return loc[:i], line
	}
	return fallback, 0
}

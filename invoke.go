package quickbridge

import (
	"fmt"
	"strings"

	"github.com/Gaurav-Gosain/quickjs"
)

// Invoke calls a script function by dotted path, for example "math.square".
// Every path segment before the last must resolve to an object and the last
// must resolve to a function; violations are reported as a ScriptException
// naming the failing path. Arguments are converted host to script, the
// result script to host, and a throw inside the function surfaces as a
// ScriptException.
func (c *Context) Invoke(path string, args ...any) (any, error) {
	core, release, err := c.enter()
	if err != nil {
		return nil, err
	}
	defer release()
	return core.invoke(path, args)
}

func (cc *contextCore) invoke(path string, args []any) (any, error) {
	segments := strings.Split(path, ".")

	holder, err := cc.ctx.Global()
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(segments)-1; i++ {
		next, err := holder.Get(segments[i])
		if err != nil {
			return nil, err
		}
		if !next.IsObject() {
			return nil, &ScriptException{
				Message:  fmt.Sprintf("%s is not an object", strings.Join(segments[:i+1], ".")),
				FileName: defaultScriptName,
			}
		}
		holder = next
	}

	target, err := holder.Get(segments[len(segments)-1])
	if err != nil {
		return nil, err
	}
	if !target.IsFunction() {
		return nil, &ScriptException{
			Message:  fmt.Sprintf("%s is not a function", path),
			FileName: defaultScriptName,
		}
	}

	// Zero-argument calls skip the conversion pass entirely.
	var qargs []quickjs.Value
	if len(args) > 0 {
		qargs = make([]quickjs.Value, len(args))
		for i, a := range args {
			qa, err := cc.toScript(a)
			if err != nil {
				return nil, err
			}
			qargs[i] = qa
		}
	}

	result, exc, err := cc.callThrough(target, holder, qargs)
	if err != nil {
		return nil, err
	}
	if exc != nil {
		return nil, exc
	}
	return cc.fromScript(result)
}

package quickbridge

import (
	"reflect"
	"unicode"
	"unicode/utf8"
)

// MethodMap exposes a value's exported methods as a map keyed by the method
// name with its first letter lowered. Installing the map as a global gives
// script an object whose entries call the host value's methods, with
// arguments coerced to each method's declared parameter types.
//
//	calc := &Calculator{}
//	ctx.SetGlobal("calc", quickbridge.MethodMap(calc))
//	ctx.Eval(`calc.add(2, 3)`)
//
// Pass a pointer to reach pointer-receiver methods.
func MethodMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	t := rv.Type()

	out := make(map[string]any, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !m.IsExported() {
			continue
		}
		out[lowerFirst(m.Name)] = rv.Method(i).Interface()
	}
	return out
}

func lowerFirst(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToLower(r)) + name[size:]
}

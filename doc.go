// Package quickbridge embeds the QuickJS engine and bridges values between
// Go and script code running inside it.
//
// A Runtime owns one engine instance. Contexts created from it evaluate
// source and keep globals, top-level declarations and installed host
// functions alive across evaluations:
//
//	rt, err := quickbridge.NewRuntime()
//	defer rt.Close()
//	ctx, err := rt.NewContext()
//
//	ctx.SetGlobal("inc", func(v any) (any, error) { return v.(int32) + 1, nil })
//	out, err := ctx.Eval("inc(41)") // int32(42)
//
// Primitives cross the boundary by copy. Script functions, arrays and plain
// objects come back as live wrappers (ScriptFunction, ScriptArray,
// ScriptObject) that operate on the engine object itself, so mutation on
// either side is visible to the other. Passing a wrapper back into its own
// context restores the identical script value.
//
// Thrown script values surface as *ScriptException with message, error
// class and source location. Errors returned by host functions materialize
// script-side as Error objects that scripts can catch and rethrow; when one
// crosses back out, the original host error is reconstructed as the
// exception's Cause through the kind registry (RegisterErrorKind).
//
// Script execution is cooperative: interrupt handlers and runtime limits
// installed on the Runtime are checked at every boundary crossing and every
// host function entry.
package quickbridge

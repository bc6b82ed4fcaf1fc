package cli

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/nfrund/quickbridge"
)

// snapshot turns a bridge result into plain host data so it can be printed
// or marshaled. Live wrappers are copied; everything else passes through.
func snapshot(v any) any {
	switch w := v.(type) {
	case *quickbridge.ScriptArray:
		items, err := w.Slice()
		if err != nil {
			return fmt.Sprintf("<array: %v>", err)
		}
		for i, el := range items {
			items[i] = snapshot(el)
		}
		return items
	case *quickbridge.ScriptObject:
		entries, err := w.Map()
		if err != nil {
			return fmt.Sprintf("<object: %v>", err)
		}
		for k, el := range entries {
			entries[k] = snapshot(el)
		}
		return entries
	case *quickbridge.ScriptFunction:
		name := w.Name()
		if name == "" {
			name = "anonymous"
		}
		return fmt.Sprintf("<function %s>", name)
	}
	return v
}

// printResult writes an evaluation result, as JSON when asked.
func printResult(w io.Writer, v any, asJSON bool) error {
	v = snapshot(v)
	if asJSON {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render result as JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	if v == nil {
		_, err := fmt.Fprintln(w, "undefined")
		return err
	}
	_, err := fmt.Fprintf(w, "%v\n", v)
	return err
}

package isolate

import (
	"strings"

	"github.com/dop251/goja"
)

// consolePrefixes tags each console method's lines so the level survives in a
// flat []string log.
var consolePrefixes = map[string]string{
	"log":   "",
	"debug": "",
	"info":  "Info: ",
	"warn":  "Warning: ",
	"error": "Error: ",
}

// installConsole binds a console object whose methods append to this
// isolate's log buffer. It is the only capability the script receives.
func (iso *isolate) installConsole() error {
	console := iso.vm.NewObject()
	for method, prefix := range consolePrefixes {
		if err := console.Set(method, iso.consoleMethod(prefix)); err != nil {
			return err
		}
	}
	return iso.vm.Set("console", console)
}

// consoleMethod stringifies each argument with String() semantics and joins
// them with single spaces, like the browser console does for primitives.
func (iso *isolate) consoleMethod(prefix string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		iso.logs = append(iso.logs, prefix+strings.Join(parts, " "))
		return goja.Undefined()
	}
}

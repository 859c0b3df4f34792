// Package transpile converts TypeScript source into JavaScript the sandbox can run.
//
// TRANSFORM, NOT COMPILE:
// This is a single syntax-directed pass. Type annotations are stripped and
// ES module syntax is lowered to CommonJS, but nothing is type-checked,
// nothing is bundled and no import is resolved. A program that is
// syntactically valid TypeScript but semantically wrong (for example
// `const x: number = 'bad'`) still transpiles, and whether it then succeeds
// is decided by running it.
//
// esbuild's transform API does exactly this in-process, with no Node.js
// toolchain on the host, and produces the same output for the same input.
package transpile

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/sakif/js-playground/internal/apperror"
)

// sourceFile is the name diagnostics are reported against.
const sourceFile = "main.ts"

// Transpiler holds the fixed esbuild options used for every transform.
type Transpiler struct {
	options api.TransformOptions
}

// New returns a Transpiler targeting the language level the sandbox understands.
func New() *Transpiler {
	return &Transpiler{
		options: api.TransformOptions{
			Loader:        api.LoaderTS,
			Format:        api.FormatCommonJS,
			Target:        api.ES2020,
			Sourcefile:    sourceFile,
			Sourcemap:     api.SourceMapNone,
			LegalComments: api.LegalCommentsNone,
			LogLevel:      api.LogLevelSilent,
			Charset:       api.CharsetUTF8,
		},
	}
}

var defaultTranspiler = New()

// Transpile converts src with the default Transpiler.
func Transpile(src string) (string, error) {
	return defaultTranspiler.Transpile(src)
}

// Transpile converts TypeScript source to JavaScript.
// Unparseable source yields an *apperror.AppError wrapping apperror.ErrTranspile
// whose message lists every diagnostic as "line:column: text".
func (t *Transpiler) Transpile(src string) (string, error) {
	result := api.Transform(src, t.options)
	if len(result.Errors) > 0 {
		return "", apperror.Transpile(formatMessages(result.Errors))
	}
	return string(result.Code), nil
}

func formatMessages(msgs []api.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location == nil {
			lines = append(lines, m.Text)
			continue
		}
		// esbuild columns are 0-based; editors count from 1.
		lines = append(lines, fmt.Sprintf("%s:%d:%d: %s",
			m.Location.File, m.Location.Line, m.Location.Column+1, m.Text))
	}
	return strings.Join(lines, "\n")
}

package service

import (
	"strings"
	"time"

	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/model"
)

// builtinPrefix marks IDs of the examples compiled into the binary. xid IDs
// are lowercase base32 and never contain a dash, so the two can't collide.
const builtinPrefix = "example-"

// builtinEpoch is the fixed timestamp reported for every example.
var builtinEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

var builtinExamples = []model.Snippet{
	{
		ID:       builtinPrefix + "hello-world",
		Name:     "Hello World",
		Language: string(executor.JavaScript),
		Code:     `console.log('Hello, World!');`,
	},
	{
		ID:       builtinPrefix + "factorial-function",
		Name:     "Factorial Function",
		Language: string(executor.JavaScript),
		Code: `function factorial(n) {
  if (n <= 1) return 1;
  return n * factorial(n - 1);
}
console.log(factorial(5)); // Output: 120
`,
	},
	{
		ID:       builtinPrefix + "multiply-two-numbers",
		Name:     "Multiply Two Numbers",
		Language: string(executor.TypeScript),
		Code:     `console.log(2 * 2);`,
	},
	{
		ID:       builtinPrefix + "interface-example",
		Name:     "Interface Example",
		Language: string(executor.TypeScript),
		Code: `interface Person {
  name: string;
  age: number;
}

const person: Person = {
  name: 'Alice',
  age: 30,
};

console.log(person);
`,
	},
}

// Examples returns a copy of the built-in example snippets in display order.
func Examples() []model.Snippet {
	out := make([]model.Snippet, len(builtinExamples))
	for i, ex := range builtinExamples {
		ex.Builtin = true
		ex.CreatedAt = builtinEpoch
		ex.UpdatedAt = builtinEpoch
		out[i] = ex
	}
	return out
}

func isBuiltinID(id string) bool {
	return strings.HasPrefix(id, builtinPrefix)
}

func builtinByID(id string) (*model.Snippet, bool) {
	for _, ex := range Examples() {
		if ex.ID == id {
			return &ex, true
		}
	}
	return nil, false
}

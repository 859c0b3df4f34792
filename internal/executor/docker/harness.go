package docker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/executor"
)

// resultMarker prefixes the single stdout line carrying the result envelope.
const resultMarker = "__PLAYGROUND_RESULT__"

// harness is the Node.js program each container runs. It receives the user
// code through PLAYGROUND_CODE, evaluates it in a fresh vm context and prints
// one envelope line.
//
// Everything the script can reach (console, module, exports, the log buffer)
// is built inside the context by prelude, so every constructor chain ends in
// the context's own Function and never at the host's process. Only strings
// cross back to the host; the script never gets a host object, and the
// promise it returns is settled with the context's own then. The container
// (no network, read-only rootfs, memory cap) stays the outer boundary.
const harness = `
'use strict';
const vm = require('vm');
const MARKER = '` + resultMarker + `';
const code = process.env.PLAYGROUND_CODE || '';
const timeout = Number(process.env.PLAYGROUND_TIMEOUT_MS) || 1000;
const deadline = Date.now() + timeout;

function prelude() {
  'use strict';
  const stringify = JSON.stringify;
  const toString = String;
  const TypeErr = TypeError;
  const apply = Reflect.apply;
  const then = Promise.prototype.then;
  const resolve = Promise.resolve.bind(Promise);

  const logs = [];
  const line = (prefix) => (...args) => {
    let text = '';
    for (let i = 0; i < args.length; i++) text += (i ? ' ' : '') + toString(args[i]);
    logs[logs.length] = prefix + text;
  };
  globalThis.console = {
    log: line(''),
    debug: line(''),
    info: line('Info: '),
    warn: line('Warning: '),
    error: line('Error: '),
  };
  globalThis.module = { exports: {} };
  globalThis.exports = globalThis.module.exports;

  const reject = (key, value) => {
    const t = typeof value;
    if (t === 'function' || t === 'symbol') {
      throw new TypeErr(key === '' ? 'a ' + t + ' value is not JSON-serializable'
        : 'property "' + key + '" holds a ' + t + ', which is not JSON-serializable');
    }
    return value;
  };
  const describe = (e) => {
    try {
      if (e !== null && (typeof e === 'object' || typeof e === 'function') && e.message !== undefined) {
        return toString(e.message);
      }
      return toString(e);
    } catch (_) {
      return 'uncaught exception';
    }
  };

  let state = 'idle';
  let settled;
  return {
    settle(v) {
      state = 'pending';
      apply(then, resolve(v), [
        (r) => { state = 'fulfilled'; settled = r; },
        (e) => { state = 'rejected'; settled = e; },
      ]);
    },
    state: () => state,
    result: () => stringify(settled, reject),
    error: () => describe(settled),
    describe,
    logs: () => stringify(logs),
  };
}

const context = vm.createContext(Object.create(null));
const sandbox = vm.runInContext('(' + prelude.toString() + ')()', context);

const readLogs = () => {
  try {
    const parsed = JSON.parse(sandbox.logs());
    return Array.isArray(parsed) ? parsed.map(String) : [];
  } catch (_) {
    return [];
  }
};
const emit = (env) => process.stdout.write('\n' + MARKER + JSON.stringify(env) + '\n');

function compile() {
  try {
    return new vm.Script(code, { filename: 'main.js' });
  } catch (e) {
    if (e instanceof SyntaxError && /Illegal return/.test(e.message)) {
      return new vm.Script('(function() {\n' + code + '\n})()', { filename: 'main.js' });
    }
    throw e;
  }
}

function finish() {
  let state;
  try {
    state = sandbox.state();
  } catch (e) {
    emit({ ok: false, kind: 'runtime_error', error: sandbox.describe(e), logs: readLogs() });
    return;
  }
  if (state === 'pending') {
    if (Date.now() >= deadline) {
      emit({ ok: false, kind: 'timeout', logs: [] });
      return;
    }
    setTimeout(finish, 1);
    return;
  }
  if (state === 'rejected') {
    emit({ ok: false, kind: 'runtime_error', error: sandbox.error(), logs: readLogs() });
    return;
  }

  let result;
  try {
    result = sandbox.result();
  } catch (e) {
    emit({ ok: false, kind: 'serialization_error', error: 'result cannot be serialized: ' + sandbox.describe(e), logs: readLogs() });
    return;
  }
  emit(result === undefined ? { ok: true, logs: readLogs() } : { ok: true, result: String(result), logs: readLogs() });
}

(() => {
  let script;
  try {
    script = compile();
  } catch (e) {
    emit({ ok: false, kind: 'runtime_error', error: 'SyntaxError: ' + String(e && e.message), logs: [] });
    return;
  }

  try {
    sandbox.settle(script.runInContext(context, { timeout }));
  } catch (e) {
    if ((e instanceof Error && e.code === 'ERR_SCRIPT_EXECUTION_TIMEOUT') || Date.now() >= deadline) {
      emit({ ok: false, kind: 'timeout', logs: [] });
    } else {
      emit({ ok: false, kind: 'runtime_error', error: sandbox.describe(e), logs: readLogs() });
    }
    return;
  }
  setTimeout(finish, 0);
})();
`

// envelope is the JSON object the harness prints.
type envelope struct {
	OK     bool     `json:"ok"`
	Result *string  `json:"result,omitempty"`
	Logs   []string `json:"logs"`
	Kind   string   `json:"kind,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Exit codes of a Node process killed by its own heap limit (abort) or by the
// container's cgroup OOM killer.
const (
	exitNodeAbort = 134
	exitOOMKilled = 137
)

// parseOutput turns a finished harness run into an Outcome.
func parseOutput(stdout, stderr string, exitCode int, limits executor.Limits) executor.Outcome {
	env, found := lastEnvelope(stdout)
	if !found {
		if exitCode == exitNodeAbort || exitCode == exitOOMKilled ||
			strings.Contains(stderr, "heap out of memory") {
			return executor.Failed(apperror.OutOfMemory(fmt.Sprintf(
				"out of memory: script exceeded the %d MiB limit", limits.MemoryLimitBytes/(1024*1024))), nil)
		}
		return executor.Failed(fmt.Errorf("docker: harness exited with code %d and no result: %s",
			exitCode, strings.TrimSpace(stderr)), nil)
	}

	if env.OK {
		var value json.RawMessage
		if env.Result != nil {
			value = json.RawMessage(*env.Result)
		}
		return executor.Succeeded(value, env.Logs)
	}

	switch env.Kind {
	case "timeout":
		return executor.Failed(apperror.Timeout(timeoutMessage(limits.Timeout)), nil)
	case "serialization_error":
		return executor.Failed(apperror.Serialization(env.Error), env.Logs)
	default:
		return executor.Failed(apperror.Runtime(env.Error), env.Logs)
	}
}

func lastEnvelope(stdout string) (envelope, bool) {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		payload, ok := strings.CutPrefix(strings.TrimSpace(lines[i]), resultMarker)
		if !ok {
			continue
		}
		var env envelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			return envelope{}, false
		}
		return env, true
	}
	return envelope{}, false
}

func timeoutMessage(d time.Duration) string {
	return fmt.Sprintf("execution timed out after %s", d)
}

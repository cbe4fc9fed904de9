// Package sandbox runs pre-request and test scripts for reqly.
//
// Every invocation gets a fresh JavaScript runtime with no module loader,
// filesystem or network access. The only capability a script receives is
// the pm object passed as its argument:
//
//   - pm.test(name, fn) records one pass/fail result
//   - pm.expect(value) starts a chainable assertion
//   - pm.response exposes status, headers, text(), json() and jsonPath()
//   - pm.environment reads variables and queues writes
//   - pm.globals is private to the invocation
//   - pm.request exposes the request; pre-request scripts may add headers
//
// Script-level failures never escape as Go errors from RunTest. They are
// appended as a synthetic failed result named "Script Compilation",
// "Script Execution", "Script Timeout" or "Script Cancelled".
package sandbox

// Package assertions provides the expectation grammar used by test scripts.
//
// Supported checks:
//   - Equality (Equal strict, Eql deep)
//   - Numeric ordering (Below, Above, AtLeast, AtMost)
//   - Containment (Include on strings, arrays and objects)
//   - Property presence (HaveProperty, optionally with a value)
//   - Type, length, pattern and truthiness checks
//   - Response shortcuts: Status, Header and JSONSchema
//
// Failed checks return an *AssertionError whose message reads
// "Expected <actual> to <relation> <expected>". The package never records
// results; callers decide what a failure means.
package assertions

package assertions

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"
)

// AssertionError is the failure of one check. Message has the form
// "Expected <actual> to <relation> <expected>".
type AssertionError struct {
	Message  string
	Actual   any
	Expected any
	Relation string
}

func (e *AssertionError) Error() string {
	return e.Message
}

// Expectation is a check builder bound to one captured value.
type Expectation struct {
	actual  any
	negated bool
}

func Expect(actual any) *Expectation {
	return &Expectation{actual: actual}
}

// Not returns an expectation whose checks are inverted.
func (e *Expectation) Not() *Expectation {
	return &Expectation{actual: e.actual, negated: !e.negated}
}

func (e *Expectation) Actual() any {
	return e.actual
}

// assert turns a check outcome into an error, honoring negation.
func (e *Expectation) assert(passed bool, relation string, expected any, showExpected bool) error {
	if passed != e.negated {
		return nil
	}
	if e.negated {
		relation = "not " + relation
	}
	msg := "Expected " + Format(e.actual) + " to " + relation
	if showExpected {
		msg += " " + Format(expected)
	}
	return &AssertionError{Message: msg, Actual: e.actual, Expected: expected, Relation: relation}
}

// Equal is strict equality. Numbers compare by value regardless of their Go
// type; other values must have the same type and value.
func (e *Expectation) Equal(expected any) error {
	return e.assert(strictEqual(e.actual, expected), "equal", expected, true)
}

// Eql is deep equality over the JSON shape of both values.
func (e *Expectation) Eql(expected any) error {
	return e.assert(deepEqual(e.actual, expected), "deep equal", expected, true)
}

func (e *Expectation) Below(n any) error {
	a, aOk := toFloat64(e.actual)
	b, bOk := toFloat64(n)
	return e.assert(aOk && bOk && isNumber(e.actual) && a < b, "be below", n, true)
}

func (e *Expectation) Above(n any) error {
	a, aOk := toFloat64(e.actual)
	b, bOk := toFloat64(n)
	return e.assert(aOk && bOk && isNumber(e.actual) && a > b, "be above", n, true)
}

func (e *Expectation) AtLeast(n any) error {
	a, aOk := toFloat64(e.actual)
	b, bOk := toFloat64(n)
	return e.assert(aOk && bOk && isNumber(e.actual) && a >= b, "be at least", n, true)
}

func (e *Expectation) AtMost(n any) error {
	a, aOk := toFloat64(e.actual)
	b, bOk := toFloat64(n)
	return e.assert(aOk && bOk && isNumber(e.actual) && a <= b, "be at most", n, true)
}

// Include checks substring containment on strings, element membership on
// arrays and subset containment on objects.
func (e *Expectation) Include(expected any) error {
	return e.assert(includes(e.actual, expected), "include", expected, true)
}

// HaveProperty checks that an object has key, and when value is given, that
// the property deep-equals it.
func (e *Expectation) HaveProperty(key string, value ...any) error {
	obj, ok := normalize(e.actual).(map[string]any)
	var prop any
	has := false
	if ok {
		prop, has = obj[key]
	}
	if len(value) == 0 {
		return e.assert(has, "have property", key, true)
	}
	passed := has && deepEqual(prop, value[0])
	relation := "have property " + Format(key) + " of"
	return e.assert(passed, relation, value[0], true)
}

// Match checks a string against a regular expression. Surrounding slashes
// are stripped.
func (e *Expectation) Match(pattern string) error {
	s, ok := e.actual.(string)
	p := strings.TrimSuffix(strings.TrimPrefix(pattern, "/"), "/")
	re, err := regexp.Compile(p)
	if err != nil {
		return &AssertionError{Message: fmt.Sprintf("invalid regex pattern: %v", err), Actual: e.actual, Expected: pattern}
	}
	return e.assert(ok && re.MatchString(s), "match", regexpLiteral(p), true)
}

// A checks the JSON type name: string, number, boolean, object, array or null.
func (e *Expectation) A(typeName string) error {
	return e.assert(TypeName(e.actual) == strings.ToLower(typeName), "be a", typeName, true)
}

// LengthOf checks the length of a string, array or object.
func (e *Expectation) LengthOf(n any) error {
	want, ok := toInt(n)
	got := computeLength(normalize(e.actual))
	return e.assert(ok && got >= 0 && got == want, "have length", n, true)
}

// Exist fails for null and undefined.
func (e *Expectation) Exist() error {
	return e.assert(e.actual != nil, "exist", nil, false)
}

// OK checks JavaScript-style truthiness.
func (e *Expectation) OK() error {
	return e.assert(truthy(e.actual), "be ok", nil, false)
}

// OneOf checks membership in a list of candidates.
func (e *Expectation) OneOf(candidates []any) error {
	passed := false
	for _, c := range candidates {
		if strictEqual(e.actual, c) {
			passed = true
			break
		}
	}
	return e.assert(passed, "be one of", candidates, true)
}

func strictEqual(actual, expected any) bool {
	if isNumber(actual) && isNumber(expected) {
		a, _ := toFloat64(actual)
		b, _ := toFloat64(expected)
		return a == b
	}
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	ta, te := reflect.TypeOf(actual), reflect.TypeOf(expected)
	if ta != te || !ta.Comparable() {
		return false
	}
	return actual == expected
}

func deepEqual(actual, expected any) bool {
	return reflect.DeepEqual(normalize(actual), normalize(expected))
}

// normalize maps a value onto its JSON shape so numbers become float64 and
// slices and maps become []any and map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return v
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	}
	if isNumber(v) {
		f, _ := toFloat64(v)
		return f
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func includes(actual, expected any) bool {
	switch a := normalize(actual).(type) {
	case string:
		s, ok := expected.(string)
		return ok && strings.Contains(a, s)
	case []any:
		want := normalize(expected)
		for _, item := range a {
			if reflect.DeepEqual(item, want) {
				return true
			}
		}
		return false
	case map[string]any:
		sub, ok := normalize(expected).(map[string]any)
		if !ok {
			return false
		}
		for k, v := range sub {
			got, has := a[k]
			if !has || !reflect.DeepEqual(got, v) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := toFloat64(v); ok && isNumber(v) {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

func regexpLiteral(p string) rawText {
	return rawText("/" + p + "/")
}

package sandbox

import (
	"errors"

	"github.com/dop251/goja"
)

// Kind classifies a script-level failure.
type Kind int

const (
	KindExecution Kind = iota
	KindCompilation
	KindTimeout
	KindCancelled
)

// Name is the test name used for the synthetic failed result.
func (k Kind) Name() string {
	switch k {
	case KindCompilation:
		return "Script Compilation"
	case KindTimeout:
		return "Script Timeout"
	case KindCancelled:
		return "Script Cancelled"
	default:
		return "Script Execution"
	}
}

// ScriptError is a failure that escaped every pm.test call.
type ScriptError struct {
	Kind Kind
	Err  error
}

func (e *ScriptError) Error() string {
	return e.Kind.Name() + ": " + exceptionMessage(e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

func failureName(err error) string {
	var se *ScriptError
	if errors.As(err, &se) {
		return se.Kind.Name()
	}
	return KindExecution.Name()
}

// exceptionMessage extracts the message a script author would see: the
// thrown Error's message, the thrown value itself, or the Go error text.
func exceptionMessage(err error) string {
	var se *ScriptError
	if errors.As(err, &se) && se.Err != nil {
		err = se.Err
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		v := ex.Value()
		if obj, ok := v.(*goja.Object); ok {
			if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
				return m.String()
			}
		}
		if v != nil && !goja.IsUndefined(v) {
			return v.String()
		}
	}
	return err.Error()
}

// jsError is thrown into scripts for failed capability calls.
type jsError string

func (e jsError) Error() string {
	return string(e)
}

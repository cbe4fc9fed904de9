package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dop251/goja"
	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/reqly/packages/assertions"
	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

// invocation is the private state of one script run. Nothing in it outlives
// the call that created it.
type invocation struct {
	sb       *Sandbox
	vm       *goja.Runtime
	script   model.TestScript
	request  model.RequestConfig
	response *model.ResponseData
	env      *model.Environment
	globals  map[string]goja.Value
	writes   *pendingWrites
	results  []model.TestResult
}

func (s *Sandbox) newInvocation(script model.TestScript, req model.RequestConfig, resp *model.ResponseData, environment *model.Environment) *invocation {
	inv := &invocation{
		sb:       s,
		vm:       goja.New(),
		script:   script,
		request:  req,
		response: resp,
		env:      environment,
		globals:  make(map[string]goja.Value),
		writes:   &pendingWrites{},
	}
	_ = inv.vm.Set("console", inv.consoleObject())
	return inv
}

// throw raises msg as a script exception from inside a native callback.
func (inv *invocation) throw(msg string) {
	panic(inv.vm.NewGoError(jsError(msg)))
}

func (inv *invocation) check(err error) {
	if err != nil {
		panic(inv.vm.NewGoError(err))
	}
}

func (inv *invocation) baseContext() *goja.Object {
	pm := inv.vm.NewObject()
	_ = pm.Set("test", inv.test)
	_ = pm.Set("expect", inv.expect)
	_ = pm.Set("response", inv.responseObject())
	_ = pm.Set("environment", inv.environmentObject())
	_ = pm.Set("globals", inv.globalsObject())
	return pm
}

func (inv *invocation) testContext() *goja.Object {
	pm := inv.baseContext()
	_ = pm.Set("request", inv.requestObject(false))
	return pm
}

func (inv *invocation) preRequestContext() *goja.Object {
	pm := inv.baseContext()
	_ = pm.Set("request", inv.requestObject(true))
	return pm
}

// test runs one named check. A throw inside fn fails only this check.
func (inv *invocation) test(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	start := inv.sb.now()

	var err error
	if fn, ok := goja.AssertFunction(call.Argument(1)); ok {
		_, err = fn(goja.Undefined())
	} else {
		err = jsError("pm.test requires a callback function")
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		// Re-arm so the interrupt unwinds the whole script.
		inv.vm.Interrupt(interrupted.Value())
		return goja.Undefined()
	}

	result := model.TestResult{
		ID:        inv.sb.newID(),
		TestName:  name,
		Passed:    err == nil,
		Duration:  inv.sb.now().Sub(start).Milliseconds(),
		Timestamp: start,
	}
	if err != nil {
		result.Message = exceptionMessage(err)
	}
	inv.results = append(inv.results, result)
	return goja.Undefined()
}

func (inv *invocation) expect(call goja.FunctionCall) goja.Value {
	return inv.expectation(assertions.Expect(export(call.Argument(0))), false)
}

func (inv *invocation) responseObject() *goja.Object {
	vm := inv.vm
	var data model.ResponseData
	if inv.response != nil {
		data = *inv.response
	}

	o := vm.NewObject()
	_ = o.Set("status", data.Status)
	_ = o.Set("code", data.Status)
	_ = o.Set("statusText", data.StatusText)
	_ = o.Set("responseTime", data.Time)
	_ = o.Set("size", data.Size)
	_ = o.Set("text", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(data.Body)
	})
	_ = o.Set("json", func(goja.FunctionCall) goja.Value {
		body := data.Body
		if strings.TrimSpace(body) == "" {
			body = "{}"
		}
		v, err := inv.parseJSON(body)
		if err != nil {
			inv.throw("Response body is not valid JSON")
		}
		return v
	})
	_ = o.Set("jsonPath", func(call goja.FunctionCall) goja.Value {
		res := gjson.Get(data.Body, call.Argument(0).String())
		if !res.Exists() {
			return goja.Undefined()
		}
		return vm.ToValue(res.Value())
	})

	headers := vm.NewObject()
	_ = headers.Set("get", func(call goja.FunctionCall) goja.Value {
		v, ok := data.Header(call.Argument(0).String())
		if !ok {
			return goja.Undefined()
		}
		return vm.ToValue(v)
	})
	_ = headers.Set("has", func(call goja.FunctionCall) goja.Value {
		_, ok := data.Header(call.Argument(0).String())
		return vm.ToValue(ok)
	})
	_ = headers.Set("toObject", func(goja.FunctionCall) goja.Value {
		out := make(map[string]any, len(data.Headers))
		for k, v := range data.Headers {
			out[k] = v
		}
		return vm.ToValue(out)
	})
	_ = o.Set("headers", headers)

	have := vm.NewObject()
	_ = have.Set("status", func(call goja.FunctionCall) goja.Value {
		inv.check(assertions.Status(inv.response, int(call.Argument(0).ToInteger())))
		return goja.Undefined()
	})
	_ = have.Set("header", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		if len(call.Arguments) > 1 {
			inv.check(assertions.Header(inv.response, name, call.Argument(1).String()))
		} else {
			inv.check(assertions.Header(inv.response, name))
		}
		return goja.Undefined()
	})
	_ = have.Set("jsonSchema", func(call goja.FunctionCall) goja.Value {
		if inv.response == nil {
			inv.throw("No response available")
		}
		inv.check(assertions.JSONSchema(data.Body, export(call.Argument(0))))
		return goja.Undefined()
	})
	to := vm.NewObject()
	_ = to.Set("have", have)
	_ = o.Set("to", to)
	return o
}

func (inv *invocation) environmentObject() *goja.Object {
	vm := inv.vm
	o := vm.NewObject()
	_ = o.Set("get", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		if v, ok := inv.writes.get(key); ok {
			return vm.ToValue(v)
		}
		if v, ok := inv.env.Lookup(key); ok {
			return vm.ToValue(v)
		}
		return goja.Undefined()
	})
	_ = o.Set("has", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		_, pending := inv.writes.get(key)
		_, stored := inv.env.Lookup(key)
		return vm.ToValue(pending || stored)
	})
	_ = o.Set("set", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		value := inv.stringify(call.Argument(1))
		inv.writes.set(key, value)
		inv.sb.logger.Debug("environment write requested", "script", inv.script.Name, "key", key)
		return goja.Undefined()
	})
	return o
}

func (inv *invocation) globalsObject() *goja.Object {
	vm := inv.vm
	o := vm.NewObject()
	_ = o.Set("get", func(call goja.FunctionCall) goja.Value {
		if v, ok := inv.globals[call.Argument(0).String()]; ok {
			return v
		}
		return goja.Undefined()
	})
	_ = o.Set("set", func(call goja.FunctionCall) goja.Value {
		inv.globals[call.Argument(0).String()] = call.Argument(1)
		return goja.Undefined()
	})
	_ = o.Set("has", func(call goja.FunctionCall) goja.Value {
		_, ok := inv.globals[call.Argument(0).String()]
		return vm.ToValue(ok)
	})
	_ = o.Set("unset", func(call goja.FunctionCall) goja.Value {
		delete(inv.globals, call.Argument(0).String())
		return goja.Undefined()
	})
	return o
}

// requestObject exposes the request read-only, or with header mutation for
// pre-request scripts.
func (inv *invocation) requestObject(mutable bool) *goja.Object {
	vm := inv.vm
	o := vm.NewObject()
	_ = o.Set("url", inv.request.URL)
	_ = o.Set("method", inv.request.Method)
	_ = o.Set("name", inv.request.Name)
	if !mutable {
		headers := make(map[string]any)
		for k, v := range inv.request.EnabledHeaderMap() {
			headers[k] = v
		}
		_ = o.Set("headers", headers)
		return o
	}

	headers := vm.NewObject()
	_ = headers.Set("add", func(call goja.FunctionCall) goja.Value {
		key, value := inv.headerArgument(call)
		inv.request.Headers = append(inv.request.Headers, model.KeyValue{
			ID: inv.sb.newID(), Key: key, Value: value, Enabled: true,
		})
		return goja.Undefined()
	})
	_ = headers.Set("upsert", func(call goja.FunctionCall) goja.Value {
		key, value := inv.headerArgument(call)
		for i := range inv.request.Headers {
			if inv.request.Headers[i].Key == key {
				inv.request.Headers[i].Value = value
				inv.request.Headers[i].Enabled = true
				return goja.Undefined()
			}
		}
		inv.request.Headers = append(inv.request.Headers, model.KeyValue{
			ID: inv.sb.newID(), Key: key, Value: value, Enabled: true,
		})
		return goja.Undefined()
	})
	_ = headers.Set("get", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		for _, h := range inv.request.Headers {
			if h.Enabled && strings.EqualFold(h.Key, key) {
				return vm.ToValue(h.Value)
			}
		}
		return goja.Undefined()
	})
	_ = headers.Set("has", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		for _, h := range inv.request.Headers {
			if h.Enabled && strings.EqualFold(h.Key, key) {
				return vm.ToValue(true)
			}
		}
		return vm.ToValue(false)
	})
	_ = o.Set("headers", headers)
	return o
}

// headerArgument reads a {key, value} object argument.
func (inv *invocation) headerArgument(call goja.FunctionCall) (string, string) {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		inv.throw("header must be an object with key and value")
	}
	obj := arg.ToObject(inv.vm)
	key := obj.Get("key")
	if key == nil || goja.IsUndefined(key) || key.String() == "" {
		inv.throw("header key is required")
	}
	value := obj.Get("value")
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return key.String(), ""
	}
	return key.String(), inv.stringify(value)
}

func (inv *invocation) consoleObject() *goja.Object {
	o := inv.vm.NewObject()
	logAt := func(level slog.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = inv.stringify(arg)
			}
			inv.sb.logger.Log(context.Background(), level, strings.Join(parts, " "), "script", inv.script.Name)
			return goja.Undefined()
		}
	}
	_ = o.Set("log", logAt(slog.LevelInfo))
	_ = o.Set("info", logAt(slog.LevelInfo))
	_ = o.Set("debug", logAt(slog.LevelDebug))
	_ = o.Set("warn", logAt(slog.LevelWarn))
	_ = o.Set("error", logAt(slog.LevelError))
	return o
}

func (inv *invocation) parseJSON(s string) (goja.Value, error) {
	parse, ok := goja.AssertFunction(inv.vm.Get("JSON").ToObject(inv.vm).Get("parse"))
	if !ok {
		return nil, jsError("JSON.parse is not available")
	}
	return parse(goja.Undefined(), inv.vm.ToValue(s))
}

// stringify renders objects as JSON and everything else as its string form.
func (inv *invocation) stringify(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return v.String()
	}
	fn, ok := goja.AssertFunction(inv.vm.Get("JSON").ToObject(inv.vm).Get("stringify"))
	if !ok {
		return v.String()
	}
	out, err := fn(goja.Undefined(), v)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return v.String()
	}
	return out.String()
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// pendingWrites keeps environment writes in first-write order with the last
// value winning.
type pendingWrites struct {
	keys   []string
	values map[string]string
}

func (p *pendingWrites) set(key, value string) {
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

func (p *pendingWrites) get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

func (p *pendingWrites) list() []model.KeyValue {
	if len(p.keys) == 0 {
		return nil
	}
	out := make([]model.KeyValue, 0, len(p.keys))
	for _, k := range p.keys {
		out = append(out, model.KeyValue{Key: k, Value: p.values[k], Enabled: true})
	}
	return out
}

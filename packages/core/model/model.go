package model

import (
	"strings"
	"time"
)

// ScriptType selects when a script runs relative to dispatch.
type ScriptType string

const (
	ScriptPreRequest ScriptType = "pre-request"
	ScriptTest       ScriptType = "test"
)

// KeyValue is a toggleable pair used for headers, params, form fields and
// environment variables. Disabled entries are ignored everywhere.
type KeyValue struct {
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Key     string `json:"key" yaml:"key"`
	Value   string `json:"value" yaml:"value"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// EnabledPairs returns the enabled entries with a non-empty key, in order.
func EnabledPairs(kvs []KeyValue) []KeyValue {
	out := make([]KeyValue, 0, len(kvs))
	for _, kv := range kvs {
		if kv.Enabled && strings.TrimSpace(kv.Key) != "" {
			out = append(out, kv)
		}
	}
	return out
}

type ProxyConfig struct {
	Enabled      bool   `json:"enabled"`
	URL          string `json:"url,omitempty"`
	UserProvided bool   `json:"userProvided"`
}

type RequestConfig struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Method  string      `json:"method"`
	URL     string      `json:"url"`
	Headers []KeyValue  `json:"headers"`
	Params  []KeyValue  `json:"params"`
	Body    RequestBody `json:"-"`
	Auth    Auth        `json:"-"`
	Proxy   ProxyConfig `json:"proxy"`
}

// Clone returns a deep copy that keeps the same ID.
func (r RequestConfig) Clone() RequestConfig {
	c := r
	c.Headers = cloneKeyValues(r.Headers)
	c.Params = cloneKeyValues(r.Params)
	if r.Body != nil {
		c.Body = r.Body.cloneBody()
	}
	return c
}

// BodyOrNone returns the body, treating nil as NoBody.
func (r RequestConfig) BodyOrNone() RequestBody {
	if r.Body == nil {
		return NoBody{}
	}
	return r.Body
}

// AuthOrNone returns the auth, treating nil as NoAuth.
func (r RequestConfig) AuthOrNone() Auth {
	if r.Auth == nil {
		return NoAuth{}
	}
	return r.Auth
}

// EnabledHeaderMap returns enabled headers keyed by name. Later entries win.
func (r RequestConfig) EnabledHeaderMap() map[string]string {
	out := make(map[string]string)
	for _, h := range EnabledPairs(r.Headers) {
		out[h.Key] = h.Value
	}
	return out
}

func cloneKeyValues(kvs []KeyValue) []KeyValue {
	if kvs == nil {
		return nil
	}
	out := make([]KeyValue, len(kvs))
	copy(out, kvs)
	return out
}

type Environment struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Variables []KeyValue `json:"variables"`
}

// Lookup returns the first enabled variable with the given key.
func (e *Environment) Lookup(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, v := range e.Variables {
		if v.Enabled && v.Key == key {
			return v.Value, true
		}
	}
	return "", false
}

// ResponseData is the normalized result of a dispatch attempt. Transport
// failures are reported with Status 0.
type ResponseData struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Time       int64             `json:"time"`
	Size       int64             `json:"size"`
}

// IsNetworkError reports whether the response is a transport failure sentinel.
func (r ResponseData) IsNetworkError() bool {
	return r.Status == 0
}

// Header looks up a response header case-insensitively.
func (r ResponseData) Header(name string) (string, bool) {
	if v, ok := r.Headers[strings.ToLower(name)]; ok {
		return v, true
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func (r ResponseData) Clone() ResponseData {
	c := r
	if r.Headers != nil {
		c.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			c.Headers[k] = v
		}
	}
	return c
}

type TestScript struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Code      string     `json:"code"`
	Type      ScriptType `json:"type"`
	RequestID string     `json:"requestId"`
}

// TestResult is one recorded test() outcome, or one synthetic failure when a
// script fails outside any test.
type TestResult struct {
	ID        string         `json:"id"`
	TestName  string         `json:"testName"`
	Passed    bool           `json:"passed"`
	Message   string         `json:"message,omitempty"`
	Duration  int64          `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"requestId"`
	Response  *ResponseData  `json:"response,omitempty"`
	Request   *RequestConfig `json:"request,omitempty"`
}

// HistoryEntry is one dispatched request with the response it produced.
type HistoryEntry struct {
	ID        string        `json:"id"`
	Request   RequestConfig `json:"request"`
	Response  ResponseData  `json:"response"`
	Timestamp time.Time     `json:"timestamp"`
}

package env

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// ErrUnresolvedVariables is returned by strict resolution when a token has no
// value in any scope.
var ErrUnresolvedVariables = errors.New("unresolved variables")

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// Scope is a source of variable values. Environments and plain maps are scopes.
type Scope interface {
	Lookup(key string) (string, bool)
}

// MapScope adapts a plain map to Scope.
type MapScope map[string]string

func (m MapScope) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Resolve substitutes every {{name}} token in text with the value of the first
// scope that defines name. Tokens with no value are left verbatim. Substituted
// values are not rescanned.
func Resolve(text string, scopes ...Scope) string {
	return NewResolver(scopes...).Resolve(text)
}

// Resolver substitutes {{name}} tokens against an ordered list of scopes.
// It holds no mutable state once built and is safe for concurrent use.
type Resolver struct {
	scopes   []Scope
	warnFunc WarnFunc
}

func NewResolver(scopes ...Scope) *Resolver {
	r := &Resolver{}
	for _, s := range scopes {
		if s == nil {
			continue
		}
		if env, ok := s.(*model.Environment); ok && env == nil {
			continue
		}
		r.scopes = append(r.scopes, s)
	}
	return r
}

// WithWarnFunc returns a copy of the resolver that reports unresolved tokens to fn.
func (r *Resolver) WithWarnFunc(fn WarnFunc) *Resolver {
	c := *r
	c.warnFunc = fn
	return &c
}

func (r *Resolver) warn(format string, args ...any) {
	if r.warnFunc != nil {
		r.warnFunc(format, args...)
	}
}

func (r *Resolver) lookup(name string) (string, bool) {
	for _, s := range r.scopes {
		if v, ok := s.Lookup(name); ok {
			return v, true
		}
	}
	return "", false
}

func (r *Resolver) Resolve(input string) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if val, ok := r.lookup(name); ok {
			return val
		}
		r.warn("unresolved variable: %s", name)
		return match
	})
}

// ResolveStrict resolves input and fails if any token stayed unresolved.
func (r *Resolver) ResolveStrict(input string) (string, error) {
	if missing := r.Unresolved(input); len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedVariables, strings.Join(missing, ", "))
	}
	return r.Resolve(input), nil
}

// ResolveKeyValues resolves the key and value of every entry. Disabled
// entries are copied unchanged.
func (r *Resolver) ResolveKeyValues(kvs []model.KeyValue) []model.KeyValue {
	if kvs == nil {
		return nil
	}
	out := make([]model.KeyValue, len(kvs))
	for i, kv := range kvs {
		out[i] = kv
		if kv.Enabled {
			out[i].Key = r.Resolve(kv.Key)
			out[i].Value = r.Resolve(kv.Value)
		}
	}
	return out
}

// References lists the distinct variable names referenced by input, in order
// of first appearance.
func References(input string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range variablePattern.FindAllStringSubmatch(input, -1) {
		name := strings.TrimSpace(m[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Unresolved lists the referenced names that no scope defines.
func (r *Resolver) Unresolved(input string) []string {
	var missing []string
	for _, name := range References(input) {
		if _, ok := r.lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func (r *Resolver) HasUnresolvedVariables(input string) bool {
	return len(r.Unresolved(input)) > 0
}

// RequestReferences lists every variable referenced by the URL, enabled
// headers, enabled params and text, JSON or form-field body of req.
func RequestReferences(req model.RequestConfig) []string {
	var parts []string
	parts = append(parts, req.URL)
	for _, kv := range model.EnabledPairs(req.Headers) {
		parts = append(parts, kv.Key, kv.Value)
	}
	for _, kv := range model.EnabledPairs(req.Params) {
		parts = append(parts, kv.Key, kv.Value)
	}
	switch b := req.BodyOrNone().(type) {
	case model.TextBody:
		parts = append(parts, b.Content)
	case model.JSONBody:
		parts = append(parts, b.Content)
	case model.FormDataBody:
		for _, kv := range model.EnabledPairs(b.Fields) {
			parts = append(parts, kv.Key, kv.Value)
		}
	}
	return References(strings.Join(parts, "\n"))
}

// ValidateRequest returns the variables referenced by req that no scope defines.
func (r *Resolver) ValidateRequest(req model.RequestConfig) []string {
	var missing []string
	for _, name := range RequestReferences(req) {
		if _, ok := r.lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

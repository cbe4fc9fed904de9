package env

import (
	"errors"
	"reflect"
	"testing"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

func testEnv(vars ...model.KeyValue) *model.Environment {
	return &model.Environment{ID: "env-1", Name: "test", Variables: vars}
}

func on(key, value string) model.KeyValue {
	return model.KeyValue{Key: key, Value: value, Enabled: true}
}

func off(key, value string) model.KeyValue {
	return model.KeyValue{Key: key, Value: value, Enabled: false}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		env      *model.Environment
		expected string
	}{
		{
			name:     "simple substitution",
			input:    "https://{{host}}/api",
			env:      testEnv(on("host", "example.com")),
			expected: "https://example.com/api",
		},
		{
			name:     "identifier is trimmed",
			input:    "{{  host  }}",
			env:      testEnv(on("host", "example.com")),
			expected: "example.com",
		},
		{
			name:     "unresolved token stays verbatim",
			input:    "Bearer {{token}}",
			env:      testEnv(on("host", "example.com")),
			expected: "Bearer {{token}}",
		},
		{
			name:     "disabled variable is ignored",
			input:    "{{token}}",
			env:      testEnv(off("token", "secret")),
			expected: "{{token}}",
		},
		{
			name:     "first enabled match wins",
			input:    "{{a}}",
			env:      testEnv(off("a", "x"), on("a", "y"), on("a", "z")),
			expected: "y",
		},
		{
			name:     "substitution is not recursive",
			input:    "{{a}}",
			env:      testEnv(on("a", "{{b}}"), on("b", "B")),
			expected: "{{b}}",
		},
		{
			name:     "no environment passes through",
			input:    "{{a}} and {{b}}",
			env:      nil,
			expected: "{{a}} and {{b}}",
		},
		{
			name:     "text without tokens is unchanged",
			input:    `{"plain": true}`,
			env:      testEnv(on("plain", "nope")),
			expected: `{"plain": true}`,
		},
		{
			name:     "empty braces are not a token",
			input:    "{{}}",
			env:      testEnv(on("", "x")),
			expected: "{{}}",
		},
		{
			name:     "multiple tokens",
			input:    "{{scheme}}://{{host}}:{{port}}",
			env:      testEnv(on("scheme", "http"), on("host", "localhost"), on("port", "8080")),
			expected: "http://localhost:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			if tt.env == nil {
				got = Resolve(tt.input)
			} else {
				got = Resolve(tt.input, tt.env)
			}
			if got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	env := testEnv(on("uid", "42"))
	once := Resolve("/users/{{uid}}/{{missing}}", env)
	twice := Resolve(once, env)
	if once != twice {
		t.Errorf("second pass changed %q to %q", once, twice)
	}
}

func TestResolveScopeOrder(t *testing.T) {
	overrides := MapScope{"token": "from-script"}
	env := testEnv(on("token", "from-env"), on("host", "h"))

	got := Resolve("{{token}}@{{host}}", overrides, env)
	if got != "from-script@h" {
		t.Errorf("got %q", got)
	}
}

func TestResolverWarnFunc(t *testing.T) {
	var warned []string
	r := NewResolver(testEnv(on("a", "1"))).WithWarnFunc(func(format string, args ...any) {
		warned = append(warned, args[0].(string))
	})

	r.Resolve("{{a}} {{b}} {{c}}")
	if !reflect.DeepEqual(warned, []string{"b", "c"}) {
		t.Errorf("warned = %v", warned)
	}
}

func TestResolverResolveStrict(t *testing.T) {
	r := NewResolver(testEnv(on("a", "1")))

	got, err := r.ResolveStrict("{{a}}")
	if err != nil || got != "1" {
		t.Fatalf("ResolveStrict = %q, %v", got, err)
	}

	_, err = r.ResolveStrict("{{a}}{{b}}")
	if !errors.Is(err, ErrUnresolvedVariables) {
		t.Fatalf("expected ErrUnresolvedVariables, got %v", err)
	}
}

func TestResolverGetUnresolvedVariables(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		env      *model.Environment
		expected []string
	}{
		{
			name:     "no variables",
			input:    "hello world",
			env:      testEnv(),
			expected: nil,
		},
		{
			name:     "all resolved",
			input:    "{{foo}} and {{bar}}",
			env:      testEnv(on("foo", "1"), on("bar", "2")),
			expected: nil,
		},
		{
			name:     "mixed resolved and unresolved",
			input:    "{{foo}} and {{bar}} and {{bar}}",
			env:      testEnv(on("foo", "1")),
			expected: []string{"bar"},
		},
		{
			name:     "disabled counts as unresolved",
			input:    "{{foo}}",
			env:      testEnv(off("foo", "1")),
			expected: []string{"foo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.env)
			got := r.Unresolved(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Unresolved(%q) = %v, want %v", tt.input, got, tt.expected)
			}
			if r.HasUnresolvedVariables(tt.input) != (len(tt.expected) > 0) {
				t.Errorf("HasUnresolvedVariables(%q) disagrees with Unresolved", tt.input)
			}
		})
	}
}

func TestReferences(t *testing.T) {
	got := References("{{a}}/{{ b }}/{{a}}/{{c}}")
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("References = %v, want %v", got, want)
	}
}

func TestResolveKeyValues(t *testing.T) {
	r := NewResolver(testEnv(on("k", "X-Key"), on("v", "value")))
	in := []model.KeyValue{on("{{k}}", "{{v}}"), off("{{k}}", "{{v}}")}

	got := r.ResolveKeyValues(in)
	if got[0].Key != "X-Key" || got[0].Value != "value" {
		t.Errorf("enabled entry = %+v", got[0])
	}
	if got[1].Key != "{{k}}" || got[1].Value != "{{v}}" {
		t.Errorf("disabled entry should be untouched, got %+v", got[1])
	}
	if in[0].Key != "{{k}}" {
		t.Errorf("input was mutated")
	}
}

func TestValidateRequest(t *testing.T) {
	req := model.RequestConfig{
		URL:     "{{base}}/users/{{uid}}",
		Headers: []model.KeyValue{on("Authorization", "Bearer {{token}}"), off("X-Off", "{{ignored}}")},
		Params:  []model.KeyValue{on("page", "{{page}}")},
		Body:    model.JSONBody{Content: `{"name": "{{name}}"}`},
	}
	r := NewResolver(testEnv(on("base", "http://x"), on("page", "1")))

	got := r.ValidateRequest(req)
	want := []string{"uid", "token", "name"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ValidateRequest = %v, want %v", got, want)
	}
}

package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotEnv(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected map[string]string
	}{
		{
			name:    "simple key-value",
			content: "API_KEY=secret123",
			expected: map[string]string{
				"API_KEY": "secret123",
			},
		},
		{
			name:    "multiple keys",
			content: "KEY1=value1\nKEY2=value2\nKEY3=value3",
			expected: map[string]string{
				"KEY1": "value1",
				"KEY2": "value2",
				"KEY3": "value3",
			},
		},
		{
			name:    "double quoted value",
			content: `API_KEY="secret with spaces"`,
			expected: map[string]string{
				"API_KEY": "secret with spaces",
			},
		},
		{
			name:    "comments are skipped",
			content: "# This is a comment\nAPI_KEY=secret",
			expected: map[string]string{
				"API_KEY": "secret",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".env")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			env, err := LoadDotEnv(path)
			if err != nil {
				t.Fatalf("LoadDotEnv() error = %v", err)
			}
			if len(env.Variables) != len(tt.expected) {
				t.Fatalf("got %d variables, want %d", len(env.Variables), len(tt.expected))
			}
			for k, want := range tt.expected {
				got, ok := env.Lookup(k)
				if !ok || got != want {
					t.Errorf("%s = %q (found %v), want %q", k, got, ok, want)
				}
			}
		})
	}
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	_, err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadEnvironment_YAML(t *testing.T) {
	content := `name: staging
variables:
  baseUrl: https://staging.example.com
  token:
    value: abc
    enabled: false
  port: 8080
`
	path := filepath.Join(t.TempDir(), "staging.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	env, err := LoadEnvironment(path)
	if err != nil {
		t.Fatalf("LoadEnvironment() error = %v", err)
	}
	if env.Name != "staging" {
		t.Errorf("Name = %q", env.Name)
	}
	if len(env.Variables) != 3 {
		t.Fatalf("got %d variables", len(env.Variables))
	}
	if env.Variables[0].Key != "baseUrl" || env.Variables[2].Key != "port" {
		t.Errorf("document order not kept: %+v", env.Variables)
	}
	if _, ok := env.Lookup("token"); ok {
		t.Error("disabled variable should not resolve")
	}
	if v, _ := env.Lookup("port"); v != "8080" {
		t.Errorf("port = %q", v)
	}
}

func TestLoadEnvironment_DotEnvByName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.env")
	if err := os.WriteFile(path, []byte("HOST=localhost"), 0o644); err != nil {
		t.Fatal(err)
	}
	env, err := LoadEnvironment(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := env.Lookup("HOST"); v != "localhost" {
		t.Errorf("HOST = %q", v)
	}
}

func TestSystemScope(t *testing.T) {
	t.Setenv("REQLY_VAR_token", "abc")
	scope := SystemScope("REQLY_VAR_")
	if v, ok := scope.Lookup("token"); !ok || v != "abc" {
		t.Errorf("token = %q, %v", v, ok)
	}
}

package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

// LoadDotEnv parses a .env file into an enabled environment named after the
// file. Keys are sorted so the variable order is stable.
// Note: This does NOT export to the OS environment.
func LoadDotEnv(path string) (*model.Environment, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read env file: %w", err)
	}
	return FromMap(strings.TrimPrefix(filepath.Base(path), "."), vars), nil
}

// LoadAndExportDotEnv loads a .env file and exports its keys to the OS
// environment. Variables already set in the OS environment are kept.
func LoadAndExportDotEnv(path string) (*model.Environment, error) {
	env, err := LoadDotEnv(path)
	if err != nil {
		return nil, err
	}
	for _, v := range env.Variables {
		if os.Getenv(v.Key) == "" {
			_ = os.Setenv(v.Key, v.Value) // Error ignored: only fails for invalid key names
		}
	}
	return env, nil
}

// FromMap builds an environment with one enabled variable per map entry.
func FromMap(name string, vars map[string]string) *model.Environment {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := &model.Environment{ID: name, Name: name}
	for _, k := range keys {
		env.Variables = append(env.Variables, model.KeyValue{
			ID:      k,
			Key:     k,
			Value:   vars[k],
			Enabled: true,
		})
	}
	return env
}

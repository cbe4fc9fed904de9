package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

// environmentFile is the YAML shape of an environment file:
//
//	name: staging
//	variables:
//	  baseUrl: https://staging.example.com
//	  token:
//	    value: abc
//	    enabled: false
type environmentFile struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type variableEntry struct {
	Value   string `yaml:"value"`
	Enabled *bool  `yaml:"enabled"`
}

// LoadEnvironment reads an environment from a YAML file or, for files named
// .env or *.env, a dotenv file.
func LoadEnvironment(path string) (*model.Environment, error) {
	base := filepath.Base(path)
	if base == ".env" || strings.HasPrefix(base, ".env.") || strings.HasSuffix(base, ".env") {
		return LoadDotEnv(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read environment file: %w", err)
	}
	env, err := ParseEnvironment(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if env.Name == "" {
		env.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if env.ID == "" {
		env.ID = env.Name
	}
	return env, nil
}

// ParseEnvironment decodes the YAML environment format. Variables are kept in
// document order.
func ParseEnvironment(data []byte) (*model.Environment, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var file environmentFile
	if err := doc.Decode(&file); err != nil {
		return nil, err
	}

	env := &model.Environment{ID: file.ID, Name: file.Name}
	varsNode := findMapping(&doc, "variables")
	if varsNode == nil {
		return env, nil
	}
	for i := 0; i+1 < len(varsNode.Content); i += 2 {
		key := varsNode.Content[i].Value
		valNode := varsNode.Content[i+1]
		kv := model.KeyValue{ID: key, Key: key, Enabled: true}
		switch valNode.Kind {
		case yaml.MappingNode:
			var entry variableEntry
			if err := valNode.Decode(&entry); err != nil {
				return nil, fmt.Errorf("variable %s: %w", key, err)
			}
			kv.Value = entry.Value
			if entry.Enabled != nil {
				kv.Enabled = *entry.Enabled
			}
		case yaml.ScalarNode:
			kv.Value = valNode.Value
		default:
			return nil, fmt.Errorf("variable %s: expected a scalar or mapping", key)
		}
		env.Variables = append(env.Variables, kv)
	}
	return env, nil
}

func findMapping(doc *yaml.Node, key string) *yaml.Node {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key && root.Content[i+1].Kind == yaml.MappingNode {
			return root.Content[i+1]
		}
	}
	return nil
}

// SystemScope exposes OS environment variables with the given prefix
// stripped, e.g. REQLY_VAR_token becomes token.
func SystemScope(prefix string) MapScope {
	result := make(MapScope)
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if prefix == "" {
			result[key] = value
		} else if len(key) > len(prefix) && strings.HasPrefix(key, prefix) {
			result[key[len(prefix):]] = value
		}
	}
	return result
}

package workspace

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

// RequestFile is a saved request in YAML form.
type RequestFile struct {
	ID          string      `yaml:"id,omitempty"`
	Name        string      `yaml:"name"`
	Method      string      `yaml:"method"`
	URL         string      `yaml:"url"`
	Headers     Pairs       `yaml:"headers,omitempty"`
	Params      Pairs       `yaml:"params,omitempty"`
	Body        *BodySpec   `yaml:"body,omitempty"`
	Auth        *AuthSpec   `yaml:"auth,omitempty"`
	Proxy       *ProxySpec  `yaml:"proxy,omitempty"`
	Environment string      `yaml:"environment,omitempty"`
	Scripts     ScriptsSpec `yaml:"scripts,omitempty"`
}

// BodySpec is the YAML form of a request body. Content may be a string or
// any YAML value, which is encoded as JSON for json bodies.
type BodySpec struct {
	Type    string     `yaml:"type"`
	Content yaml.Node  `yaml:"content,omitempty"`
	Fields  Pairs      `yaml:"fields,omitempty"`
	Files   []FileSpec `yaml:"files,omitempty"`
}

type FileSpec struct {
	Path        string `yaml:"path"`
	Filename    string `yaml:"filename,omitempty"`
	ContentType string `yaml:"contentType,omitempty"`
}

type AuthSpec struct {
	Type     string `yaml:"type"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
	Header   string `yaml:"header,omitempty"`
	Key      string `yaml:"key,omitempty"`
}

type ProxySpec struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
}

type ScriptsSpec struct {
	PreRequest []ScriptSpec `yaml:"pre-request,omitempty"`
	Test       []ScriptSpec `yaml:"test,omitempty"`
}

// ScriptSpec holds inline code or a path to a script file.
type ScriptSpec struct {
	Name string `yaml:"name,omitempty"`
	Code string `yaml:"code,omitempty"`
	File string `yaml:"file,omitempty"`
}

// Pairs decodes either a mapping (document order, all enabled) or a
// sequence of {key, value, enabled} entries.
type Pairs []model.KeyValue

func (p *Pairs) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(Pairs, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			out = append(out, model.KeyValue{
				Key:     node.Content[i].Value,
				Value:   node.Content[i+1].Value,
				Enabled: true,
			})
		}
		*p = out
		return nil
	case yaml.SequenceNode:
		out := make(Pairs, 0, len(node.Content))
		for _, item := range node.Content {
			var entry struct {
				Key     string `yaml:"key"`
				Value   string `yaml:"value"`
				Enabled *bool  `yaml:"enabled"`
			}
			if err := item.Decode(&entry); err != nil {
				return err
			}
			if entry.Key == "" {
				return fmt.Errorf("line %d: pair key is required", item.Line)
			}
			enabled := entry.Enabled == nil || *entry.Enabled
			out = append(out, model.KeyValue{Key: entry.Key, Value: entry.Value, Enabled: enabled})
		}
		*p = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a mapping or a list of pairs", node.Line)
	}
}

// MarshalYAML writes all-enabled pairs as a mapping and anything else as a
// list so disabled entries survive a round trip.
func (p Pairs) MarshalYAML() (any, error) {
	allEnabled := true
	for _, kv := range p {
		if !kv.Enabled {
			allEnabled = false
			break
		}
	}
	if allEnabled {
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, kv := range p {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: kv.Key},
				&yaml.Node{Kind: yaml.ScalarNode, Value: kv.Value, Style: quoteStyle(kv.Value)},
			)
		}
		return node, nil
	}
	type entry struct {
		Key     string `yaml:"key"`
		Value   string `yaml:"value"`
		Enabled bool   `yaml:"enabled"`
	}
	out := make([]entry, len(p))
	for i, kv := range p {
		out[i] = entry{Key: kv.Key, Value: kv.Value, Enabled: kv.Enabled}
	}
	return out, nil
}

// quoteStyle keeps values that would not read back as strings quoted.
func quoteStyle(v string) yaml.Style {
	if v == "" {
		return yaml.DoubleQuotedStyle
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return yaml.DoubleQuotedStyle
	}
	switch v {
	case "true", "false", "null", "~", "yes", "no":
		return yaml.DoubleQuotedStyle
	}
	return 0
}

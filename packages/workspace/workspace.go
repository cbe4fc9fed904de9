package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/reqly/packages/core/env"
	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

// ErrEnvironmentNotFound is returned when no file matches an environment name.
var ErrEnvironmentNotFound = errors.New("environment not found")

// Request is a loaded request file with its scripts resolved.
type Request struct {
	Path    string
	Config  model.RequestConfig
	Scripts []model.TestScript
	// EnvironmentPath is the absolute path of the environment the file
	// references, or empty.
	EnvironmentPath string
}

// LoadRequest loads a request from a YAML file. Relative script, body file
// and environment paths resolve against the file's directory. Without an id
// the request is identified by RequestID(path); without a name it is named
// after the file.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var rf RequestFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML %s: %w", path, err)
	}

	if rf.Name == "" {
		base := filepath.Base(path)
		rf.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	req, err := Build(&rf, filepath.Dir(path), RequestID(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	req.Path = path
	return req, nil
}

// RequestID is the default id of the request file at path: the cleaned path
// without its extension, relative to the working directory when the file is
// under it and absolute otherwise. Files with the same name in different
// directories get different ids.
func RequestID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	id := abs
	if wd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(wd, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			id = rel
		}
	}
	return filepath.ToSlash(strings.TrimSuffix(id, filepath.Ext(id)))
}

// Build converts a decoded file into the model.
func Build(rf *RequestFile, baseDir, defaultID string) (*Request, error) {
	id := rf.ID
	if id == "" {
		id = defaultID
	}
	if strings.TrimSpace(rf.URL) == "" {
		return nil, fmt.Errorf("url is required")
	}
	method := strings.ToUpper(strings.TrimSpace(rf.Method))
	if method == "" {
		method = "GET"
	}

	cfg := model.RequestConfig{
		ID:      id,
		Name:    rf.Name,
		Method:  method,
		URL:     rf.URL,
		Headers: []model.KeyValue(rf.Headers),
		Params:  []model.KeyValue(rf.Params),
	}
	if cfg.Name == "" {
		cfg.Name = id
	}

	body, err := buildBody(rf.Body, baseDir)
	if err != nil {
		return nil, err
	}
	cfg.Body = body

	auth, err := buildAuth(rf.Auth)
	if err != nil {
		return nil, err
	}
	cfg.Auth = auth

	if rf.Proxy != nil {
		cfg.Proxy = model.ProxyConfig{
			Enabled:      rf.Proxy.Enabled,
			URL:          rf.Proxy.URL,
			UserProvided: rf.Proxy.URL != "",
		}
	}

	req := &Request{Config: cfg}
	if rf.Environment != "" {
		req.EnvironmentPath = resolvePath(baseDir, rf.Environment)
	}

	pre, err := buildScripts(rf.Scripts.PreRequest, model.ScriptPreRequest, id, baseDir)
	if err != nil {
		return nil, err
	}
	tests, err := buildScripts(rf.Scripts.Test, model.ScriptTest, id, baseDir)
	if err != nil {
		return nil, err
	}
	req.Scripts = append(pre, tests...)
	return req, nil
}

func buildBody(spec *BodySpec, baseDir string) (model.RequestBody, error) {
	if spec == nil {
		return model.NoBody{}, nil
	}
	kind := model.ParseBodyType(spec.Type)
	if kind == model.BodyNone && spec.Type != "" && !strings.EqualFold(spec.Type, "none") {
		return nil, fmt.Errorf("unknown body type %q", spec.Type)
	}

	switch kind {
	case model.BodyText:
		content, err := scalarContent(&spec.Content)
		if err != nil {
			return nil, err
		}
		return model.TextBody{Content: content}, nil
	case model.BodyJSON:
		content, err := jsonContent(&spec.Content)
		if err != nil {
			return nil, err
		}
		return model.JSONBody{Content: content}, nil
	case model.BodyFile:
		files, err := readFiles(spec.Files, baseDir)
		if err != nil {
			return nil, err
		}
		return model.FileBody{Files: files}, nil
	case model.BodyFormData:
		files, err := readFiles(spec.Files, baseDir)
		if err != nil {
			return nil, err
		}
		return model.FormDataBody{Fields: []model.KeyValue(spec.Fields), Files: files}, nil
	default:
		return model.NoBody{}, nil
	}
}

func scalarContent(node *yaml.Node) (string, error) {
	switch node.Kind {
	case 0:
		return "", nil
	case yaml.ScalarNode:
		return node.Value, nil
	default:
		return "", fmt.Errorf("line %d: text body content must be a string", node.Line)
	}
}

// jsonContent keeps string content as written and encodes structured YAML
// content as indented JSON.
func jsonContent(node *yaml.Node) (string, error) {
	if node.Kind == 0 || node.Kind == yaml.ScalarNode {
		return scalarContent(node)
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return "", fmt.Errorf("line %d: %w", node.Line, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("line %d: body is not JSON-compatible: %w", node.Line, err)
	}
	return string(data), nil
}

func readFiles(specs []FileSpec, baseDir string) ([]model.FilePart, error) {
	files := make([]model.FilePart, 0, len(specs))
	for _, f := range specs {
		if f.Path == "" {
			return nil, fmt.Errorf("file path is required")
		}
		path := resolvePath(baseDir, f.Path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		name := f.Filename
		if name == "" {
			name = filepath.Base(path)
		}
		contentType := f.ContentType
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(name))
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files = append(files, model.FilePart{Filename: name, ContentType: contentType, Data: data})
	}
	return files, nil
}

func buildAuth(spec *AuthSpec) (model.Auth, error) {
	if spec == nil {
		return model.NoAuth{}, nil
	}
	switch model.AuthType(strings.ToLower(strings.TrimSpace(spec.Type))) {
	case "", model.AuthNone:
		return model.NoAuth{}, nil
	case model.AuthBasic:
		return model.BasicAuth{Username: spec.Username, Password: spec.Password}, nil
	case model.AuthBearer:
		return model.BearerAuth{Token: spec.Token}, nil
	case model.AuthAPIKey, "api-key":
		return model.APIKeyAuth{Header: spec.Header, Key: spec.Key}, nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", spec.Type)
	}
}

func buildScripts(specs []ScriptSpec, typ model.ScriptType, requestID, baseDir string) ([]model.TestScript, error) {
	scripts := make([]model.TestScript, 0, len(specs))
	for i, s := range specs {
		code := s.Code
		if s.File != "" {
			if code != "" {
				return nil, fmt.Errorf("%s script %d: set either code or file, not both", typ, i+1)
			}
			data, err := os.ReadFile(resolvePath(baseDir, s.File))
			if err != nil {
				return nil, fmt.Errorf("failed to read script: %w", err)
			}
			code = string(data)
		}
		name := s.Name
		if name == "" {
			if s.File != "" {
				name = filepath.Base(s.File)
			} else {
				name = fmt.Sprintf("%s %d", typ, i+1)
			}
		}
		scripts = append(scripts, model.TestScript{
			ID:        fmt.Sprintf("%s:%s:%d", requestID, typ, i+1),
			Name:      name,
			Code:      code,
			Type:      typ,
			RequestID: requestID,
		})
	}
	return scripts, nil
}

func resolvePath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(filepath.Join(baseDir, path))
	if err != nil {
		return filepath.Join(baseDir, path)
	}
	return abs
}

// SaveRequest saves a request file as YAML, adding a .yaml extension when
// the path has none.
func SaveRequest(rf *RequestFile, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if !strings.HasSuffix(filePath, ".yaml") && !strings.HasSuffix(filePath, ".yml") {
		filePath += ".yaml"
	}

	data, err := yaml.Marshal(rf)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// ListRequests returns the request files under dir, skipping the
// environments directory.
func ListRequests(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (d.Name() == EnvironmentsDir || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if isRequestFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return files, nil
}

func isRequestFile(path string) bool {
	ext := filepath.Ext(path)
	if ext != ".yaml" && ext != ".yml" {
		return false
	}
	return !strings.HasSuffix(strings.TrimSuffix(path, ext), ".env")
}

// EnvironmentsDir is the conventional directory for environment files.
const EnvironmentsDir = "environments"

// FindEnvironment loads the environment called name, looking in dir for
// environments/<name>.yaml, environments/<name>.yml, <name>.env.yaml,
// .env.<name> and finally .env when name is empty.
func FindEnvironment(dir, name string) (*model.Environment, error) {
	var candidates []string
	if name == "" {
		candidates = []string{filepath.Join(dir, ".env")}
	} else {
		candidates = []string{
			filepath.Join(dir, EnvironmentsDir, name+".yaml"),
			filepath.Join(dir, EnvironmentsDir, name+".yml"),
			filepath.Join(dir, name+".env.yaml"),
			filepath.Join(dir, ".env."+name),
		}
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return env.LoadEnvironment(path)
		}
	}
	return nil, fmt.Errorf("%w: %q in %s", ErrEnvironmentNotFound, name, dir)
}

// ListEnvironments returns the environment names in dir/environments.
func ListEnvironments(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, EnvironmentsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read environments directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, strings.TrimSuffix(entry.Name(), ext))
		}
	}
	return names, nil
}

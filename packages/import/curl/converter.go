package curl

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
	"github.com/abdul-hamid-achik/reqly/packages/workspace"
)

// Converter converts curl commands to request files.
type Converter struct {
	generateTests bool
}

// Option is a functional option for Converter.
type Option func(*Converter)

// WithTests configures whether to attach a status test script.
func WithTests(generate bool) Option {
	return func(c *Converter) {
		c.generateTests = generate
	}
}

// NewConverter creates a new curl converter.
func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		generateTests: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Converted is one request file with a suggested file name.
type Converted struct {
	FileName string
	Request  *workspace.RequestFile
}

// ConvertAll converts every command read from r. Commands may span lines
// with trailing backslashes; blank lines and # comments are skipped.
func (c *Converter) ConvertAll(r io.Reader) ([]Converted, error) {
	commands, err := SplitCommands(r)
	if err != nil {
		return nil, err
	}

	out := make([]Converted, 0, len(commands))
	seen := make(map[string]int)
	for i, cmd := range commands {
		rf, err := c.Parse(cmd)
		if err != nil {
			return nil, fmt.Errorf("failed to convert command %d: %w", i+1, err)
		}
		name := fileName(rf.Method, rf.URL)
		if n := seen[name]; n > 0 {
			seen[name]++
			name = fmt.Sprintf("%s-%d", name, n+1)
		} else {
			seen[name] = 1
		}
		out = append(out, Converted{FileName: name + ".yaml", Request: rf})
	}
	return out, nil
}

// SplitCommands reads curl commands, joining continuation lines.
func SplitCommands(r io.Reader) ([]string, error) {
	var commands []string
	var current strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, "\\") {
			current.WriteString(strings.TrimSuffix(line, "\\"))
			current.WriteString(" ")
			continue
		}
		current.WriteString(line)
		commands = append(commands, current.String())
		current.Reset()
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read commands: %w", err)
	}
	if current.Len() > 0 {
		commands = append(commands, current.String())
	}
	return commands, nil
}

// Parse converts a single curl command.
func (c *Converter) Parse(curlCmd string) (*workspace.RequestFile, error) {
	tokens := tokenize(strings.TrimSpace(curlCmd))
	if len(tokens) > 0 && tokens[0] == "curl" {
		tokens = tokens[1:]
	}

	rf := &workspace.RequestFile{}
	var (
		method   string
		data     []string
		jsonData bool
		fields   workspace.Pairs
		files    []workspace.FileSpec
	)

	value := func(i int) (string, error) {
		if i+1 >= len(tokens) {
			return "", fmt.Errorf("missing value for %s", tokens[i])
		}
		return tokens[i+1], nil
	}

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		switch token {
		case "-X", "--request":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			method = strings.ToUpper(v)
			i++
		case "-H", "--header":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			if key, val, ok := strings.Cut(v, ":"); ok {
				rf.Headers = append(rf.Headers, model.KeyValue{Key: strings.TrimSpace(key), Value: strings.TrimSpace(val), Enabled: true})
			}
			i++
		case "-d", "--data", "--data-raw", "--data-binary", "--data-ascii", "--json":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			data = append(data, v)
			jsonData = jsonData || token == "--json"
			i++
		case "-F", "--form":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			key, val, _ := strings.Cut(v, "=")
			if path, ok := strings.CutPrefix(val, "@"); ok {
				files = append(files, workspace.FileSpec{Path: path})
			} else {
				fields = append(fields, model.KeyValue{Key: key, Value: val, Enabled: true})
			}
			i++
		case "-u", "--user":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			user, pass, _ := strings.Cut(v, ":")
			rf.Auth = &workspace.AuthSpec{Type: string(model.AuthBasic), Username: user, Password: pass}
			i++
		case "-A", "--user-agent", "-e", "--referer", "-b", "--cookie":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			rf.Headers = append(rf.Headers, model.KeyValue{Key: flagHeaders[token], Value: v, Enabled: true})
			i++
		case "--url":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			rf.URL = v
			i++
		case "-k", "--insecure", "-L", "--location", "-s", "--silent", "-v", "--verbose", "-i", "--include", "--compressed":
			// transport options belong to the config, not the request
		default:
			if strings.HasPrefix(token, "-") {
				// skip unknown flags with a value
				if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") && !isURL(tokens[i+1]) {
					i++
				}
				continue
			}
			if rf.URL == "" {
				rf.URL = token
			}
		}
	}

	if rf.URL == "" {
		return nil, fmt.Errorf("no URL found in curl command")
	}

	switch {
	case len(fields) > 0 || len(files) > 0:
		rf.Body = &workspace.BodySpec{Type: string(model.BodyFormData), Fields: fields, Files: files}
	case len(data) > 0:
		content := strings.Join(data, "&")
		bodyType := model.BodyText
		if jsonData || isJSONContentType(rf.Headers) {
			bodyType = model.BodyJSON
		}
		rf.Body = &workspace.BodySpec{
			Type:    string(bodyType),
			Content: yaml.Node{Kind: yaml.ScalarNode, Value: content},
		}
		if jsonData && !hasHeader(rf.Headers, "Content-Type") {
			rf.Headers = append(rf.Headers, model.KeyValue{Key: "Content-Type", Value: "application/json", Enabled: true})
		}
	}

	if method == "" {
		method = "GET"
		if rf.Body != nil {
			method = "POST"
		}
	}
	rf.Method = method
	rf.Name = fmt.Sprintf("%s %s", method, urlPath(rf.URL))

	if c.generateTests {
		rf.Scripts.Test = []workspace.ScriptSpec{{
			Name: "status",
			Code: "pm.test(\"status is below 400\", () => {\n  pm.expect(pm.response.code).to.be.below(400);\n});\n",
		}}
	}
	return rf, nil
}

var flagHeaders = map[string]string{
	"-A": "User-Agent", "--user-agent": "User-Agent",
	"-e": "Referer", "--referer": "Referer",
	"-b": "Cookie", "--cookie": "Cookie",
}

func hasHeader(headers workspace.Pairs, name string) bool {
	for _, h := range headers {
		if strings.EqualFold(h.Key, name) {
			return true
		}
	}
	return false
}

func isJSONContentType(headers workspace.Pairs) bool {
	for _, h := range headers {
		if strings.EqualFold(h.Key, "Content-Type") && strings.Contains(strings.ToLower(h.Value), "json") {
			return true
		}
	}
	return false
}

// tokenize splits a curl command into tokens, respecting quotes.
func tokenize(cmd string) []string {
	var tokens []string
	var current strings.Builder
	inSingleQuote := false
	inDoubleQuote := false
	escaped := false
	started := false

	for _, r := range cmd {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}

		switch {
		case r == '\\' && !inSingleQuote:
			escaped = true
		case r == '\'' && !inDoubleQuote:
			inSingleQuote = !inSingleQuote
			started = true
		case r == '"' && !inSingleQuote:
			inDoubleQuote = !inDoubleQuote
			started = true
		case (r == ' ' || r == '\t' || r == '\n') && !inSingleQuote && !inDoubleQuote:
			if started || current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
		}
	}

	if started || current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// isURL checks if a string looks like a URL.
func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "{{")
}

var urlPattern = regexp.MustCompile(`^(?:https?://)?[^/?#]*(/[^?#]*)?`)

func urlPath(url string) string {
	matches := urlPattern.FindStringSubmatch(url)
	if len(matches) > 1 && matches[1] != "" {
		return matches[1]
	}
	return "/"
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// fileName derives a file name such as get-users-1 from the method and path.
func fileName(method, url string) string {
	path := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(urlPath(url)), "-"), "-")
	if path == "" {
		path = "root"
	}
	return strings.ToLower(method) + "-" + path
}

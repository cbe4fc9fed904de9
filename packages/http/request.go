package http

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/reqly/packages/core/env"
	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

const (
	ContentTypeJSON = "application/json; charset=utf-8"
)

var shorthandHostPattern = regexp.MustCompile(`^(localhost|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}):\d+`)

// Header is a single outgoing header. Order is kept for the wire.
type Header struct {
	Key   string
	Value string
}

// Headers is an ordered header list with case-insensitive lookups.
type Headers []Header

// Set replaces every header named key (case-insensitively) with a single
// entry at the position of the first match, or appends one.
func (h *Headers) Set(key, value string) {
	out := (*h)[:0]
	placed := false
	for _, hd := range *h {
		if strings.EqualFold(hd.Key, key) {
			if !placed {
				out = append(out, Header{Key: key, Value: value})
				placed = true
			}
			continue
		}
		out = append(out, hd)
	}
	if !placed {
		out = append(out, Header{Key: key, Value: value})
	}
	*h = out
}

func (h *Headers) Del(key string) {
	out := (*h)[:0]
	for _, hd := range *h {
		if !strings.EqualFold(hd.Key, key) {
			out = append(out, hd)
		}
	}
	*h = out
}

func (h Headers) Get(key string) (string, bool) {
	for _, hd := range h {
		if strings.EqualFold(hd.Key, key) {
			return hd.Value, true
		}
	}
	return "", false
}

func (h Headers) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Map returns the headers keyed by their declared names.
func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h))
	for _, hd := range h {
		m[hd.Key] = hd.Value
	}
	return m
}

// Request is a fully built outgoing request.
type Request struct {
	Method  string
	URL     string
	Headers Headers
	Body    []byte
}

// NormalizeURL prefixes http:// to localhost:<port> and <ipv4>:<port> shorthand.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if shorthandHostPattern.MatchString(raw) {
		return "http://" + raw
	}
	return raw
}

// AppendParams appends enabled params to rawURL in declaration order, keeping
// any query string already present.
func AppendParams(rawURL string, params []model.KeyValue) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	enabled := model.EnabledPairs(params)
	if len(enabled) == 0 {
		return u.String(), nil
	}
	var sb strings.Builder
	sb.WriteString(u.RawQuery)
	for _, p := range enabled {
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	u.RawQuery = sb.String()
	return u.String(), nil
}

// ApplyAuth sets the auth header on headers. It replaces any same-named
// header. Incomplete credentials leave headers unchanged.
func ApplyAuth(headers *Headers, auth model.Auth) {
	switch a := auth.(type) {
	case model.BasicAuth:
		if a.Username != "" && a.Password != "" {
			creds := a.Username + ":" + a.Password
			headers.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
		}
	case model.BearerAuth:
		if a.Token != "" {
			headers.Set("Authorization", "Bearer "+a.Token)
		}
	case model.APIKeyAuth:
		if a.Header != "" && a.Key != "" {
			headers.Set(a.Header, a.Key)
		}
	}
}

// preparedBody is the resolved body before it is encoded for one mode.
type preparedBody struct {
	kind   model.BodyType
	text   string
	fields []model.KeyValue
	files  []model.FilePart
}

// preparedRequest holds the resolved target, headers and body shared by
// direct and relayed dispatch.
type preparedRequest struct {
	method    string
	targetURL string
	headers   Headers
	body      *preparedBody
}

func methodAllowsBody(method string) bool {
	m := strings.ToUpper(method)
	return m != "GET" && m != "HEAD"
}

// prepare resolves req against r and builds the mode-independent parts.
func prepare(req model.RequestConfig, r *env.Resolver) (*preparedRequest, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = "GET"
	}

	target := NormalizeURL(r.Resolve(req.URL))
	if err := ValidateURL(target); err != nil {
		return nil, err
	}
	target, err := AppendParams(target, r.ResolveKeyValues(req.Params))
	if err != nil {
		return nil, err
	}

	var headers Headers
	for _, h := range model.EnabledPairs(r.ResolveKeyValues(req.Headers)) {
		headers.Set(h.Key, h.Value)
	}
	ApplyAuth(&headers, req.AuthOrNone())

	p := &preparedRequest{method: method, targetURL: target, headers: headers}
	if methodAllowsBody(method) {
		p.body = prepareBody(req.BodyOrNone(), r)
	}
	return p, nil
}

func prepareBody(body model.RequestBody, r *env.Resolver) *preparedBody {
	switch b := body.(type) {
	case model.TextBody:
		return &preparedBody{kind: model.BodyText, text: resolveBodyText(b.Content, r)}
	case model.JSONBody:
		return &preparedBody{kind: model.BodyJSON, text: resolveBodyText(b.Content, r)}
	case model.FileBody:
		if len(b.Files) == 0 {
			return nil
		}
		return &preparedBody{kind: model.BodyFile, files: b.Files}
	case model.FormDataBody:
		return &preparedBody{
			kind:   model.BodyFormData,
			fields: model.EnabledPairs(r.ResolveKeyValues(b.Fields)),
			files:  b.Files,
		}
	default:
		return nil
	}
}

// resolveBodyText substitutes variables in a text body, keeping the original
// when substitution leaves only whitespace from a non-blank body.
func resolveBodyText(content string, r *env.Resolver) string {
	resolved := r.Resolve(content)
	if strings.TrimSpace(resolved) == "" && strings.TrimSpace(content) != "" {
		return content
	}
	return resolved
}

func looksLikeJSON(s string) bool {
	t := strings.TrimSpace(s)
	return (strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}")) ||
		(strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]"))
}

// directRequest encodes p for sending straight to its target.
func (p *preparedRequest) directRequest() (*Request, error) {
	req := &Request{Method: p.method, URL: p.targetURL, Headers: append(Headers(nil), p.headers...)}
	if p.body == nil {
		return req, nil
	}
	switch p.body.kind {
	case model.BodyJSON:
		if !req.Headers.Has("Content-Type") {
			req.Headers.Set("Content-Type", ContentTypeJSON)
		}
		req.Body = []byte(p.body.text)
	case model.BodyText:
		if looksLikeJSON(p.body.text) && !req.Headers.Has("Content-Type") {
			req.Headers.Set("Content-Type", ContentTypeJSON)
		}
		req.Body = []byte(p.body.text)
	case model.BodyFile, model.BodyFormData:
		data, contentType, err := BuildMultipartBody(p.body.fields, p.body.files)
		if err != nil {
			return nil, err
		}
		req.Headers.Set("Content-Type", contentType)
		req.Body = data.Bytes()
	}
	return req, nil
}

// relayRequest wraps p in an envelope addressed to relayURL.
func (p *preparedRequest) relayRequest(relayURL, apiKey string) (*Request, error) {
	envelope := RelayEnvelope{
		URL:      p.targetURL,
		Method:   p.method,
		Headers:  p.headers.Map(),
		BodyType: model.BodyNone,
	}
	if p.body != nil {
		envelope.BodyType = p.body.kind
		switch p.body.kind {
		case model.BodyText, model.BodyJSON:
			raw, err := json.Marshal(p.body.text)
			if err != nil {
				return nil, err
			}
			envelope.Body = raw
		case model.BodyFile, model.BodyFormData:
			raw, err := encodeFormObject(p.body.fields, p.body.files)
			if err != nil {
				return nil, err
			}
			envelope.Body = raw
		}
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	var headers Headers
	headers.Set(RelayAPIKeyHeader, apiKey)
	headers.Set("Content-Type", "application/json")
	return &Request{Method: "POST", URL: relayURL, Headers: headers, Body: payload}, nil
}

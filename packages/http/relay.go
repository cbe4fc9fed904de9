package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

const (
	// RelayAPIKeyHeader carries the pre-shared key on relay calls.
	RelayAPIKeyHeader = "X-API-Key"
	// RelayFailureHeader marks a relay reply that reports its own upstream
	// failure rather than forwarding an upstream response. The value is the
	// FailureKind name and the body is {"error": message}.
	RelayFailureHeader = "X-Relay-Failure"
	// DefaultRelayURL is used when a request enables relaying without its own URL.
	DefaultRelayURL = "http://127.0.0.1:8765/proxy"
)

// RelayEnvelope is the JSON payload POSTed to a relay. Body is a JSON string
// for text and json bodies, and an object of fields and files for file and
// form-data bodies.
type RelayEnvelope struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	Body     json.RawMessage   `json:"body,omitempty"`
	BodyType model.BodyType    `json:"bodyType,omitempty"`
}

// RelayFile is the envelope encoding of an attached file.
type RelayFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Data        string `json:"data"`
}

// relayFailure reads a failure reply marked with RelayFailureHeader.
func relayFailure(kind string, body []byte) *RelayFailure {
	msg := gjson.GetBytes(body, "error").String()
	if msg == "" {
		msg = "relay failed without a message"
	}
	return &RelayFailure{Kind: ParseFailureKind(kind), Message: msg}
}

// encodeFormObject writes fields then files as one JSON object, keeping
// declaration order. Files are keyed file0..fileN.
func encodeFormObject(fields []model.KeyValue, files []model.FilePart) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}
	for _, f := range fields {
		if err := write(f.Key, f.Value); err != nil {
			return nil, err
		}
	}
	for i, f := range files {
		rf := RelayFile{
			Filename:    f.Filename,
			ContentType: f.ContentType,
			Data:        base64.StdEncoding.EncodeToString(f.Data),
		}
		if err := write(filePartName(i), rf); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func filePartName(i int) string {
	return "file" + strconv.Itoa(i)
}

// DecodeEnvelope parses and validates a relay payload.
func DecodeEnvelope(data []byte) (*RelayEnvelope, error) {
	var e RelayEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("invalid relay envelope: %w", err)
	}
	if e.URL == "" {
		return nil, fmt.Errorf("invalid relay envelope: url is required")
	}
	if e.Method == "" {
		e.Method = "GET"
	}
	if err := ValidateURL(e.URL); err != nil {
		return nil, err
	}
	return &e, nil
}

// Request rebuilds the target request carried by the envelope.
func (e *RelayEnvelope) Request() (*Request, error) {
	req := &Request{Method: strings.ToUpper(e.Method), URL: e.URL}
	keys := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		req.Headers.Set(k, e.Headers[k])
	}

	if len(e.Body) == 0 || !methodAllowsBody(req.Method) {
		return req, nil
	}

	body := gjson.ParseBytes(e.Body)
	switch {
	case body.Type == gjson.String:
		req.Body = []byte(body.String())
		if e.BodyType == model.BodyJSON && !req.Headers.Has("Content-Type") {
			req.Headers.Set("Content-Type", ContentTypeJSON)
		}
	case body.IsObject():
		fields, files, err := decodeFormObject(body)
		if err != nil {
			return nil, err
		}
		data, contentType, err := BuildMultipartBody(fields, files)
		if err != nil {
			return nil, err
		}
		req.Headers.Set("Content-Type", contentType)
		req.Body = data.Bytes()
	case body.Type == gjson.Null:
	default:
		req.Body = []byte(body.Raw)
	}
	return req, nil
}

func decodeFormObject(body gjson.Result) ([]model.KeyValue, []model.FilePart, error) {
	var fields []model.KeyValue
	var files []model.FilePart
	var decodeErr error
	body.ForEach(func(key, value gjson.Result) bool {
		if value.IsObject() && value.Get("data").Exists() {
			data, err := base64.StdEncoding.DecodeString(value.Get("data").String())
			if err != nil {
				decodeErr = fmt.Errorf("file %s: %w", key.String(), err)
				return false
			}
			files = append(files, model.FilePart{
				Filename:    value.Get("filename").String(),
				ContentType: value.Get("contentType").String(),
				Data:        data,
			})
			return true
		}
		fields = append(fields, model.KeyValue{Key: key.String(), Value: value.String(), Enabled: true})
		return true
	})
	return fields, files, decodeErr
}

package http

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/abdul-hamid-achik/reqly/packages/compress"
	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

func (r *Response) Header(key string) string {
	if v, ok := r.Headers[strings.ToLower(key)]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

func (r *Response) IsImage() bool {
	return strings.Contains(r.ContentType(), "image/")
}

// StatusText returns the reason phrase, e.g. "Not Found" for "404 Not Found".
func (r *Response) StatusText() string {
	code := strconv.Itoa(r.StatusCode)
	if text := strings.TrimSpace(strings.TrimPrefix(r.Status, code)); text != "" {
		return text
	}
	return http.StatusText(r.StatusCode)
}

// ResponseData normalizes the response. Size is the body's byte length.
func (r *Response) ResponseData() model.ResponseData {
	return model.ResponseData{
		Status:     r.StatusCode,
		StatusText: r.StatusText(),
		Headers:    r.Headers,
		Body:       string(r.Body),
		Time:       r.Duration.Milliseconds(),
		Size:       int64(len(r.Body)),
	}
}

// NormalizeHeaders lower-cases header names and joins repeated values with ", ".
func NormalizeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, values := range h {
		key := strings.ToLower(k)
		if prev, ok := out[key]; ok {
			out[key] = prev + ", " + strings.Join(values, ", ")
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}

// ReadBody reads the full body, undoes any Content-Encoding the transport did
// not already remove and converts a declared charset to UTF-8.
func ReadBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	encoding := strings.ToLower(resp.Header.Get("Content-Encoding"))
	if encoding != "" && !resp.Uncompressed && len(body) > 0 {
		decoded, err := compress.DecompressWithContentEncoding(body, encoding)
		if err != nil {
			return nil, err
		}
		body = decoded
	}

	contentType := resp.Header.Get("Content-Type")
	if declaresCharset(contentType) && len(body) > 0 {
		reader, err := charset.NewReader(bytes.NewReader(body), contentType)
		if err == nil {
			converted, err := io.ReadAll(reader)
			if err != nil {
				return nil, err
			}
			body = converted
		}
	}
	return body, nil
}

// declaresCharset limits conversion to bodies that name a charset or are HTML,
// where the decoder can find a meta declaration.
func declaresCharset(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "charset=") || strings.HasPrefix(ct, "text/html")
}

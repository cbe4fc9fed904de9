// Package compress encodes and decodes HTTP content codings (gzip, br, zstd).
package compress

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

type Type int8

const (
	TypeNone    Type = 0
	TypeGzip    Type = 1
	TypeZstd    Type = 2
	TypeBr      Type = 3
	TypeDeflate Type = 4
)

var encodingLookup = map[string]Type{
	"":         TypeNone,
	"identity": TypeNone,
	"gzip":     TypeGzip,
	"x-gzip":   TypeGzip,
	"deflate":  TypeDeflate,
	"zstd":     TypeZstd,
	"br":       TypeBr,
}

var (
	gzipWriterPool = sync.Pool{
		New: func() any {
			return gzip.NewWriter(io.Discard)
		},
	}
	brotliWriterPool = sync.Pool{
		New: func() any {
			return brotli.NewWriter(io.Discard)
		},
	}

	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// ParseEncoding maps a Content-Encoding value to a Type.
func ParseEncoding(contentEncoding string) (Type, bool) {
	t, ok := encodingLookup[strings.ToLower(strings.TrimSpace(contentEncoding))]
	return t, ok
}

func Compress(data []byte, t Type) ([]byte, error) {
	var buf bytes.Buffer
	switch t {
	case TypeNone:
		return data, nil
	case TypeGzip:
		z := gzipWriterPool.Get().(*gzip.Writer)
		defer gzipWriterPool.Put(z)

		z.Reset(&buf)
		if _, err := z.Write(data); err != nil {
			return nil, err
		}
		if err := z.Close(); err != nil {
			return nil, err
		}
	case TypeDeflate:
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case TypeZstd:
		return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data))), nil
	case TypeBr:
		w := brotliWriterPool.Get().(*brotli.Writer)
		defer brotliWriterPool.Put(w)

		w.Reset(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported compression type: %v", t)
	}
	return buf.Bytes(), nil
}

func Decompress(data []byte, t Type) ([]byte, error) {
	switch t {
	case TypeNone:
		return data, nil
	case TypeGzip:
		z, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = z.Close() }()
		return io.ReadAll(z)
	case TypeDeflate:
		r := flate.NewReader(bytes.NewReader(data))
		defer func() { _ = r.Close() }()
		return io.ReadAll(r)
	case TypeZstd:
		return zstdDecoder.DecodeAll(data, nil)
	case TypeBr:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	default:
		return nil, fmt.Errorf("unsupported compression type: %v", t)
	}
}

// DecompressWithContentEncoding undoes a Content-Encoding header value.
// Stacked codings ("gzip, br") are undone in reverse order.
func DecompressWithContentEncoding(data []byte, contentEncoding string) ([]byte, error) {
	codings := strings.Split(contentEncoding, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		t, ok := ParseEncoding(codings[i])
		if !ok {
			return nil, fmt.Errorf("%s encoding not supported", strings.TrimSpace(codings[i]))
		}
		var err error
		data, err = Decompress(data, t)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", strings.TrimSpace(codings[i]), err)
		}
	}
	return data, nil
}

package http

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// BuildMultipartBody creates a multipart form data body from fields followed
// by files. Files are sent as parts named file0..fileN.
func BuildMultipartBody(fields []model.KeyValue, files []model.FilePart) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, field := range fields {
		if err := writer.WriteField(field.Key, field.Value); err != nil {
			return nil, "", err
		}
	}

	for i, file := range files {
		part, err := writer.CreatePart(filePartHeader(filePartName(i), file))
		if err != nil {
			return nil, "", fmt.Errorf("creating part for %s: %w", file.Filename, err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

func filePartHeader(name string, file model.FilePart) textproto.MIMEHeader {
	filename := file.Filename
	if filename == "" {
		filename = name
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(name), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	return h
}

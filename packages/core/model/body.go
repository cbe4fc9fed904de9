package model

import "strings"

// BodyType names a RequestBody variant on the wire.
type BodyType string

const (
	BodyNone     BodyType = "none"
	BodyText     BodyType = "text"
	BodyJSON     BodyType = "json"
	BodyFile     BodyType = "file"
	BodyFormData BodyType = "form-data"
)

// RequestBody is one of NoBody, TextBody, JSONBody, FileBody or FormDataBody.
type RequestBody interface {
	Type() BodyType
	cloneBody() RequestBody
}

// FilePart is an in-memory file attached to a multipart body.
type FilePart struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data"`
}

type NoBody struct{}

type TextBody struct {
	Content string
}

type JSONBody struct {
	Content string
}

type FileBody struct {
	Files []FilePart
}

type FormDataBody struct {
	Fields []KeyValue
	Files  []FilePart
}

func (NoBody) Type() BodyType       { return BodyNone }
func (TextBody) Type() BodyType     { return BodyText }
func (JSONBody) Type() BodyType     { return BodyJSON }
func (FileBody) Type() BodyType     { return BodyFile }
func (FormDataBody) Type() BodyType { return BodyFormData }

func (b NoBody) cloneBody() RequestBody   { return b }
func (b TextBody) cloneBody() RequestBody { return b }
func (b JSONBody) cloneBody() RequestBody { return b }

func (b FileBody) cloneBody() RequestBody {
	return FileBody{Files: cloneFiles(b.Files)}
}

func (b FormDataBody) cloneBody() RequestBody {
	return FormDataBody{Fields: cloneKeyValues(b.Fields), Files: cloneFiles(b.Files)}
}

func cloneFiles(files []FilePart) []FilePart {
	if files == nil {
		return nil
	}
	out := make([]FilePart, len(files))
	for i, f := range files {
		out[i] = f
		out[i].Data = append([]byte(nil), f.Data...)
	}
	return out
}

// ParseBodyType maps a wire name to a BodyType. Unknown names map to BodyNone.
func ParseBodyType(s string) BodyType {
	switch BodyType(strings.ToLower(strings.TrimSpace(s))) {
	case BodyText:
		return BodyText
	case BodyJSON:
		return BodyJSON
	case BodyFile:
		return BodyFile
	case BodyFormData, "formdata", "multipart":
		return BodyFormData
	default:
		return BodyNone
	}
}

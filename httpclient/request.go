package httpclient

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"sort"

	"github.com/pkg/errors"
)

const contentTypeJSON = "application/json;charset=utf-8"

// Request describes one logical call. It is turned into a fresh *http.Request
// for every attempt, so a retry resubmits exactly the same request.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	JSON   any   // encoded as the JSON body
	Form   *Form // multipart body; takes precedence over JSON

	// SkipGlobalError keeps failures away from the Presenter; the caller
	// handles them.
	SkipGlobalError bool
	// SkipAuthRetry turns a 401 into an immediate error. Set on the auth
	// endpoints themselves.
	SkipAuthRetry bool
}

// Form is a multipart/form-data body.
type Form struct {
	Fields map[string]string
	Files  []File
}

// File is one uploaded file part.
type File struct {
	Field       string
	Name        string
	ContentType string
	Content     []byte
}

// requestState is the per-call auth context.
type requestState struct {
	retried         bool
	skipGlobalError bool
}

// body encodes the request body and returns its content type, empty when
// there is no body.
func (r *Request) body() (io.Reader, string, error) {
	if r.Form != nil {
		return r.Form.encode()
	}
	if r.JSON == nil {
		return nil, "", nil
	}
	b, err := json.Marshal(r.JSON)
	if err != nil {
		return nil, "", errors.Wrap(err, "[Request.body] marshal json")
	}
	return bytes.NewReader(b), contentTypeJSON, nil
}

// encode writes fields in key order so every attempt produces the same parts.
// The boundary differs per attempt and travels in the content type the writer
// reports.
func (f *Form) encode() (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, f.Fields[k]); err != nil {
			return nil, "", errors.Wrap(err, "[Form.encode] field")
		}
	}

	for _, file := range f.Files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
			"name":     file.Field,
			"filename": file.Name,
		}))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", errors.Wrap(err, "[Form.encode] file part")
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, "", errors.Wrap(err, "[Form.encode] file content")
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "[Form.encode] close")
	}
	return buf, w.FormDataContentType(), nil
}

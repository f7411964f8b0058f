package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
)

type multipartBody struct {
	reader      io.Reader
	contentType string
	length      int64
}

// newMultipartBody lays out form fields (sorted by name) followed by the file
// part. The payload is not copied, and the exact length is known up front so
// storage endpoints that reject chunked uploads accept it.
func newMultipartBody(fields map[string]string, fieldName, fileName, contentType string, data []byte) (*multipartBody, error) {
	var head bytes.Buffer
	w := multipart.NewWriter(&head)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(fieldName), escapeQuotes(fileName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	if _, err := w.CreatePart(h); err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}

	tail := "\r\n--" + w.Boundary() + "--\r\n"
	return &multipartBody{
		reader:      io.MultiReader(bytes.NewReader(head.Bytes()), bytes.NewReader(data), strings.NewReader(tail)),
		contentType: w.FormDataContentType(),
		length:      int64(head.Len()) + int64(len(data)) + int64(len(tail)),
	}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

package relay

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// FileField is the multipart field name carrying an uploaded file.
const FileField = "file"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// EncodeUpload re-encodes a file payload into a multipart body with a single
// file field. The filename and media type are written verbatim; an empty media
// type is sent as application/octet-stream. It returns the body and the
// Content-Type header (including the boundary) for the request.
func EncodeUpload(filename, mediaType string, data []byte) (*bytes.Buffer, string, error) {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FileField, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", mediaType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write multipart part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body, w.FormDataContentType(), nil
}

package domain

// Content types and encodings produced by the batch serializer.
const (
	// ContentTypeJSONStream is newline-delimited JSON.
	ContentTypeJSONStream = "application/x-json-stream"

	// EncodingGzip is the default content encoding.
	EncodingGzip = "gzip"
)

// Transmission is one compressed, ready-to-send batch of serialized records.
// It is immutable after construction and is consumed exactly once by an output.
type Transmission struct {
	content         []byte
	contentType     string
	contentEncoding string
}

// NewTransmission creates a Transmission.
// Content must be non-nil; content type and encoding must be non-empty.
// The content slice is retained, not copied. Callers must not modify it afterwards.
func NewTransmission(content []byte, contentType, contentEncoding string) (*Transmission, error) {
	if content == nil {
		return nil, ErrNilContent
	}
	if contentType == "" {
		return nil, ErrEmptyContentType
	}
	if contentEncoding == "" {
		return nil, ErrEmptyContentEncoding
	}
	return &Transmission{
		content:         content,
		contentType:     contentType,
		contentEncoding: contentEncoding,
	}, nil
}

// Content returns the compressed payload.
func (t *Transmission) Content() []byte {
	return t.content
}

// ContentType returns the payload's content type (e.g. application/x-json-stream).
func (t *Transmission) ContentType() string {
	return t.contentType
}

// ContentEncoding returns the payload's content encoding (e.g. gzip).
func (t *Transmission) ContentEncoding() string {
	return t.contentEncoding
}

// Size returns the payload length in bytes.
func (t *Transmission) Size() int {
	return len(t.content)
}

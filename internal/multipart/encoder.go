// Package multipart builds multipart/form-data request bodies from an
// ordered list of parts, emitting bytes lazily so binary parts are copied
// straight from their source streams without ever being held in memory.
package multipart

import (
	"fmt"
	"io"
	"strings"
)

// Part is one entry of a multipart body: either a literal form field or a
// lazily consumed binary stream.
type Part struct {
	name        string
	filename    string
	contentType string
	value       string
	source      io.Reader
}

// Field returns a literal text part.
func Field(name, value string) Part {
	return Part{name: name, value: value}
}

// Stream returns a binary part whose bytes are copied from source when the
// body is consumed. If source implements io.Closer it is closed after the
// copy, successful or not.
func Stream(name, filename, contentType string, source io.Reader) Part {
	return Part{name: name, filename: filename, contentType: contentType, source: source}
}

// Encoder emits a multipart body for a fixed part sequence. Parts appear in
// the body in exactly the order given; each stream part is fully copied
// before the next part begins.
type Encoder struct {
	boundary string
	parts    []Part
}

// NewEncoder creates an encoder with the given boundary token. The boundary
// must be non-empty and is expected to come from a random source so it does
// not collide with part content.
func NewEncoder(boundary string, parts ...Part) (*Encoder, error) {
	if boundary == "" {
		return nil, fmt.Errorf("multipart boundary is required")
	}
	for _, p := range parts {
		if p.name == "" {
			return nil, fmt.Errorf("multipart part name is required")
		}
	}
	return &Encoder{boundary: boundary, parts: parts}, nil
}

// ContentType returns the Content-Type header value for the body.
func (e *Encoder) ContentType() string {
	return "multipart/form-data; boundary=" + e.boundary
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// Reader returns the body as a stream. Bytes are produced on demand through
// a pipe: peak memory is bounded by the copy chunk size regardless of how
// large the stream parts are. A failed source read surfaces as a read error
// on the returned stream, which aborts the HTTP request consuming it.
func (e *Encoder) Reader() io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		err := e.writeTo(pw)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()
	return pr
}

func (e *Encoder) writeTo(w io.Writer) error {
	for _, p := range e.parts {
		if err := e.writePart(w, p); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "--%s--\r\n", e.boundary); err != nil {
		return err
	}
	return nil
}

func (e *Encoder) writePart(w io.Writer, p Part) error {
	var header strings.Builder
	fmt.Fprintf(&header, "--%s\r\n", e.boundary)
	fmt.Fprintf(&header, "Content-Disposition: form-data; name=%q", escapeQuotes(p.name))
	if p.filename != "" {
		fmt.Fprintf(&header, "; filename=%q", escapeQuotes(p.filename))
	}
	header.WriteString("\r\n")
	if p.contentType != "" {
		fmt.Fprintf(&header, "Content-Type: %s\r\n", p.contentType)
	}
	header.WriteString("\r\n")
	if _, err := io.WriteString(w, header.String()); err != nil {
		return err
	}

	if p.source != nil {
		_, err := io.Copy(w, p.source)
		if closer, ok := p.source.(io.Closer); ok {
			closer.Close()
		}
		if err != nil {
			return fmt.Errorf("copy part %q: %w", p.name, err)
		}
	} else if p.value != "" {
		if _, err := io.WriteString(w, p.value); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "\r\n")
	return err
}

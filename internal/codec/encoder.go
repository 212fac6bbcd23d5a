package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"sort"
	"strings"

	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
)

// ErrUnknownFormat is returned by Registry.Get for unregistered formats.
var ErrUnknownFormat = errors.New("unknown output format")

// Options tune an encoder.
type Options struct {
	// Quality is used by lossy encoders (1-100, 0 selects the default).
	Quality int
	// Title is written into document formats.
	Title string
}

// Encoder writes an image in one output format.
type Encoder interface {
	// Format returns the canonical format name ("png", "jpeg", "pdf").
	Format() string
	// Extension returns the file extension without dot.
	Extension() string
	// ContentType returns the MIME type.
	ContentType() string
	Encode(w io.Writer, img image.Image, opts Options) error
}

// Registry holds the available encoders.
type Registry struct {
	encoders map[string]Encoder
	aliases  map[string]string
}

// NewRegistry returns a registry with the PNG, JPEG and PDF encoders.
func NewRegistry() *Registry {
	r := &Registry{
		encoders: make(map[string]Encoder),
		aliases:  map[string]string{"jpg": "jpeg"},
	}
	for _, enc := range []Encoder{&PNGEncoder{}, &JPEGEncoder{}, &PDFEncoder{}} {
		r.Register(enc)
	}
	return r
}

// Register adds or replaces an encoder.
func (r *Registry) Register(enc Encoder) {
	r.encoders[enc.Format()] = enc
}

// Get returns the encoder for format (case-insensitive).
func (r *Registry) Get(format string) (Encoder, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	if a, ok := r.aliases[f]; ok {
		f = a
	}
	enc, ok := r.encoders[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownFormat, format, strings.Join(r.Available(), ", "))
	}
	return enc, nil
}

// Available returns the registered format names, sorted.
func (r *Registry) Available() []string {
	out := make([]string, 0, len(r.encoders))
	for f := range r.encoders {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// EncodeBuffer converts buf for display and encodes it.
func (r *Registry) EncodeBuffer(buf *imgbuf.Buffer, format string, opts Options) ([]byte, Encoder, error) {
	enc, err := r.Get(format)
	if err != nil {
		return nil, nil, err
	}
	var out bytes.Buffer
	if err := enc.Encode(&out, buf.ToImage(), opts); err != nil {
		return nil, nil, &Error{Operation: "encode " + enc.Format(), Err: err}
	}
	return out.Bytes(), enc, nil
}

package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
)

const pngDataURIPrefix = "data:image/png;base64,"

// DataURI encodes buf as PNG and wraps it in a base64 data URI, the payload
// handed to the tracing surface.
func DataURI(buf *imgbuf.Buffer) (string, error) {
	var png bytes.Buffer
	if err := (&PNGEncoder{}).Encode(&png, buf.ToImage(), Options{}); err != nil {
		return "", &Error{Operation: "encode png", Err: err}
	}
	return DataURIFromBytes(png.Bytes(), "image/png"), nil
}

// DataURIFromBytes wraps already encoded data.
func DataURIFromBytes(data []byte, contentType string) string {
	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(contentType) + base64.StdEncoding.EncodedLen(len(data)))
	sb.WriteString("data:")
	sb.WriteString(contentType)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(data))
	return sb.String()
}

// ParseDataURI decodes a base64 PNG data URI back into an image.
func ParseDataURI(uri string) (image.Image, error) {
	if !strings.HasPrefix(uri, pngDataURIPrefix) {
		return nil, errors.New("not a base64 PNG data URI")
	}
	data, err := base64.StdEncoding.DecodeString(uri[len(pngDataURIPrefix):])
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := Decode(bytes.NewReader(data))
	return img, err
}

// ContentHash returns the xxHash64 of data as 16 hex characters.
func ContentHash(data []byte) string {
	var b [8]byte
	h := xxhash.Sum64(data)
	for i := range b {
		b[i] = byte(h >> (56 - 8*i))
	}
	return hex.EncodeToString(b[:])
}

// ETag returns a strong entity tag for data.
func ETag(data []byte) string {
	return `"` + ContentHash(data) + `"`
}

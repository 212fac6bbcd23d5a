package codec

import (
	"image"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is used when Options.Quality is unset.
const DefaultJPEGQuality = 90

// PNGEncoder writes lossless PNG, the format of the trace hand-off.
type PNGEncoder struct{}

func (e *PNGEncoder) Format() string      { return "png" }
func (e *PNGEncoder) Extension() string   { return "png" }
func (e *PNGEncoder) ContentType() string { return "image/png" }

func (e *PNGEncoder) Encode(w io.Writer, img image.Image, _ Options) error {
	return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed))
}

// JPEGEncoder writes baseline JPEG.
type JPEGEncoder struct{}

func (e *JPEGEncoder) Format() string      { return "jpeg" }
func (e *JPEGEncoder) Extension() string   { return "jpg" }
func (e *JPEGEncoder) ContentType() string { return "image/jpeg" }

func (e *JPEGEncoder) Encode(w io.Writer, img image.Image, opts Options) error {
	q := opts.Quality
	if q <= 0 || q > 100 {
		q = DefaultJPEGQuality
	}
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(q))
}

// Package imgbuf provides the interleaved 8-bit pixel buffer every stage of
// the transform pipeline reads and writes. The channel order is part of the
// value, so conversions between display order (RGB) and working order (BGR)
// are always explicit.
package imgbuf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Order tags the channel layout of a Buffer.
type Order int

const (
	// Gray is a single luminance channel.
	Gray Order = iota
	// BGR is the working order of the pipeline.
	BGR
	// RGB is the display order.
	RGB
)

// Channels returns the number of interleaved samples per pixel.
func (o Order) Channels() int {
	if o == Gray {
		return 1
	}
	return 3
}

func (o Order) String() string {
	switch o {
	case Gray:
		return "gray"
	case BGR:
		return "bgr"
	case RGB:
		return "rgb"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// Buffer is a row-major interleaved 8-bit image.
type Buffer struct {
	Width  int
	Height int
	Order  Order
	Pix    []uint8
}

// New allocates a zeroed buffer.
func New(width, height int, order Order) *Buffer {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("imgbuf: negative size %dx%d", width, height))
	}
	return &Buffer{
		Width:  width,
		Height: height,
		Order:  order,
		Pix:    make([]uint8, width*height*order.Channels()),
	}
}

// Channels returns the samples per pixel.
func (b *Buffer) Channels() int {
	return b.Order.Channels()
}

// Stride returns the number of samples in one row.
func (b *Buffer) Stride() int {
	return b.Width * b.Order.Channels()
}

// Offset returns the index of the first sample of pixel (x, y).
func (b *Buffer) Offset(x, y int) int {
	return y*b.Stride() + x*b.Order.Channels()
}

// Empty reports whether the buffer holds no pixels.
func (b *Buffer) Empty() bool {
	return b == nil || b.Width == 0 || b.Height == 0
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{Width: b.Width, Height: b.Height, Order: b.Order}
	out.Pix = append([]uint8(nil), b.Pix...)
	return out
}

// Equal reports whether both buffers have the same geometry, order and samples.
func (b *Buffer) Equal(o *Buffer) bool {
	if b == nil || o == nil {
		return b == o
	}
	return b.Width == o.Width && b.Height == o.Height && b.Order == o.Order &&
		bytes.Equal(b.Pix, o.Pix)
}

// ToBGR returns the buffer in BGR order. A BGR buffer is returned as is.
func (b *Buffer) ToBGR() *Buffer {
	switch b.Order {
	case BGR:
		return b
	case RGB:
		return b.swapRB(BGR)
	default:
		out := New(b.Width, b.Height, BGR)
		for i, v := range b.Pix {
			out.Pix[i*3] = v
			out.Pix[i*3+1] = v
			out.Pix[i*3+2] = v
		}
		return out
	}
}

// ToRGB returns the buffer in RGB order. An RGB buffer is returned as is.
func (b *Buffer) ToRGB() *Buffer {
	switch b.Order {
	case RGB:
		return b
	case BGR:
		return b.swapRB(RGB)
	default:
		out := b.ToBGR()
		out.Order = RGB
		return out
	}
}

// ToGray returns the luminance of the buffer. A Gray buffer is returned as is.
func (b *Buffer) ToGray() *Buffer {
	if b.Order == Gray {
		return b
	}
	out := New(b.Width, b.Height, Gray)
	ri, bi := 2, 0
	if b.Order == RGB {
		ri, bi = 0, 2
	}
	for i := range out.Pix {
		p := b.Pix[i*3 : i*3+3 : i*3+3]
		out.Pix[i] = Luma(p[ri], p[1], p[bi])
	}
	return out
}

func (b *Buffer) swapRB(order Order) *Buffer {
	out := New(b.Width, b.Height, order)
	for i := 0; i < len(b.Pix); i += 3 {
		out.Pix[i] = b.Pix[i+2]
		out.Pix[i+1] = b.Pix[i+1]
		out.Pix[i+2] = b.Pix[i]
	}
	return out
}

// Luma is the BT.601 luminance in 14-bit fixed point, rounded.
func Luma(r, g, b uint8) uint8 {
	const (
		rw    = 4899
		gw    = 9617
		bw    = 1868
		shift = 14
	)
	return uint8((uint32(r)*rw + uint32(g)*gw + uint32(b)*bw + 1<<(shift-1)) >> shift)
}

// ToImage converts the buffer for display or encoding: Gray becomes
// *image.Gray, color orders become opaque *image.NRGBA in RGB.
func (b *Buffer) ToImage() image.Image {
	rect := image.Rect(0, 0, b.Width, b.Height)
	if b.Order == Gray {
		img := image.NewGray(rect)
		for y := 0; y < b.Height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+b.Width], b.Pix[y*b.Width:(y+1)*b.Width])
		}
		return img
	}
	ri, bi := 2, 0
	if b.Order == RGB {
		ri, bi = 0, 2
	}
	img := image.NewNRGBA(rect)
	for y := 0; y < b.Height; y++ {
		src := b.Pix[y*b.Stride() : (y+1)*b.Stride()]
		dst := img.Pix[y*img.Stride : y*img.Stride+b.Width*4]
		for x := 0; x < b.Width; x++ {
			dst[x*4] = src[x*3+ri]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+bi]
			dst[x*4+3] = 0xff
		}
	}
	return img
}

// FromImage converts any decoded image into a BGR buffer. Alpha is dropped
// without compositing, so a transparent pixel keeps its straight color.
func FromImage(img image.Image) *Buffer {
	var nrgba *image.NRGBA
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		nrgba = n
	} else {
		nrgba = imaging.Clone(img)
	}
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	out := New(w, h, BGR)
	for y := 0; y < h; y++ {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		dst := out.Pix[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			dst[x*3] = src[x*4+2]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4]
		}
	}
	return out
}

// Filled returns a BGR buffer where every pixel is c.
func Filled(width, height int, c color.RGBA) *Buffer {
	out := New(width, height, BGR)
	for i := 0; i < len(out.Pix); i += 3 {
		out.Pix[i] = c.B
		out.Pix[i+1] = c.G
		out.Pix[i+2] = c.R
	}
	return out
}

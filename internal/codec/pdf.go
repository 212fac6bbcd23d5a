package codec

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu would otherwise create a config directory in the user's home.
	api.DisableConfigDir()
}

// PDFEncoder writes a single page trace sheet holding the image.
type PDFEncoder struct{}

func (e *PDFEncoder) Format() string      { return "pdf" }
func (e *PDFEncoder) Extension() string   { return "pdf" }
func (e *PDFEncoder) ContentType() string { return "application/pdf" }

func (e *PDFEncoder) Encode(w io.Writer, img image.Image, _ Options) error {
	var page bytes.Buffer
	if err := (&PNGEncoder{}).Encode(&page, img, Options{}); err != nil {
		return fmt.Errorf("encode page image: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImages(nil, w, []io.Reader{&page}, imp, conf); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	return nil
}

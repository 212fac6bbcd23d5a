package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/MeKo-Tech/glasscanvas/internal/filters"
	"github.com/MeKo-Tech/glasscanvas/internal/imgbuf"
)

// NativeBackend is the name of the pure Go backend, always available.
const NativeBackend = "native"

// Backend executes the stylistic stage.
type Backend interface {
	Name() string
	// Apply runs style over a BGR buffer.
	Apply(style Style, src *imgbuf.Buffer, p Params) (*imgbuf.Buffer, error)
}

// StyleFunc implements one style variant.
type StyleFunc func(src *imgbuf.Buffer, p Params) (*imgbuf.Buffer, error)

// The native backend is seeded here rather than in init so that package
// level variables built from the registry see it.
var (
	backendsMu sync.RWMutex
	backends   = map[string]func() Backend{NativeBackend: newNativeBackend}
)

// RegisterBackend makes a backend available under name. Later
// registrations replace earlier ones.
func RegisterBackend(name string, factory func() Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// Backends lists the registered backend names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewBackend instantiates the backend registered under name.
func NewBackend(name string) (Backend, error) {
	if name == "" {
		name = NativeBackend
	}
	backendsMu.RLock()
	factory, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	return factory(), nil
}

func newNativeBackend() Backend {
	return tableBackend{name: NativeBackend, table: nativeStyles}
}

// tableBackend dispatches through a per-style function table.
type tableBackend struct {
	name  string
	table [styleCount]StyleFunc
}

func (b tableBackend) Name() string { return b.name }

func (b tableBackend) Apply(style Style, src *imgbuf.Buffer, p Params) (*imgbuf.Buffer, error) {
	if !style.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStyle, int(style))
	}
	fn := b.table[style]
	if fn == nil {
		fn = nativeStyles[style]
	}
	return fn(src.ToBGR(), p)
}

var nativeStyles = [styleCount]StyleFunc{
	StyleOriginal:      styleOriginal,
	StyleGrayscale:     styleGrayscale,
	StyleMagicOutline:  styleMagicOutline,
	StylePencilSketch:  stylePencilSketch,
	StyleCrayonDrawing: styleCrayonDrawing,
	StyleAbstract:      styleAbstract,
	StyleSepia:         styleSepia,
	StyleNegative:      styleNegative,
}

// Filter constants for the styles.
const (
	outlineBlurSize   = 5
	sketchBlurSize    = 21
	sketchDodgeScale  = 256
	crayonDiameter    = 9
	crayonSigmaColor  = 75
	crayonSigmaSpace  = 75
	crayonBlockSize   = 9
	crayonC           = 9
	abstractSpatial   = 21
	abstractColor     = 51
	thresholdMaxValue = 255
)

func styleOriginal(src *imgbuf.Buffer, _ Params) (*imgbuf.Buffer, error) {
	return src, nil
}

func styleGrayscale(src *imgbuf.Buffer, _ Params) (*imgbuf.Buffer, error) {
	return src.ToGray(), nil
}

func styleMagicOutline(src *imgbuf.Buffer, p Params) (*imgbuf.Buffer, error) {
	blurred, err := filters.GaussianBlur(src.ToGray(), outlineBlurSize, 0)
	if err != nil {
		return nil, err
	}
	low, high := p.EdgeThresholds()
	edges, err := filters.Canny(blurred, low, high)
	if err != nil {
		return nil, err
	}
	return filters.Invert(edges), nil
}

func stylePencilSketch(src *imgbuf.Buffer, _ Params) (*imgbuf.Buffer, error) {
	gray := src.ToGray()
	blurred, err := filters.GaussianBlur(filters.Invert(gray), sketchBlurSize, 0)
	if err != nil {
		return nil, err
	}
	return pencilDodge(gray, blurred)
}

// pencilDodge divides gray by the inverted blur and broadcasts to BGR.
func pencilDodge(gray, blurredInverse *imgbuf.Buffer) (*imgbuf.Buffer, error) {
	sketch, err := filters.Divide(gray, filters.Invert(blurredInverse), sketchDodgeScale)
	if err != nil {
		return nil, err
	}
	return sketch.ToBGR(), nil
}

func styleCrayonDrawing(src *imgbuf.Buffer, _ Params) (*imgbuf.Buffer, error) {
	smooth, err := filters.Bilateral(src, crayonDiameter, crayonSigmaColor, crayonSigmaSpace)
	if err != nil {
		return nil, err
	}
	mask, err := filters.AdaptiveMeanThreshold(smooth.ToGray(), thresholdMaxValue, crayonBlockSize, crayonC)
	if err != nil {
		return nil, err
	}
	return filters.AndMask(smooth, mask)
}

func styleAbstract(src *imgbuf.Buffer, _ Params) (*imgbuf.Buffer, error) {
	return filters.MeanShift(src, abstractSpatial, abstractColor, filters.DefaultMeanShiftCriteria())
}

func styleSepia(src *imgbuf.Buffer, _ Params) (*imgbuf.Buffer, error) {
	return filters.Sepia(src), nil
}

func styleNegative(src *imgbuf.Buffer, _ Params) (*imgbuf.Buffer, error) {
	return filters.Invert(src), nil
}

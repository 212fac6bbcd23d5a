package pipeline

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Style is the mutually exclusive stylistic filter applied after the
// photometric stage.
type Style int

const (
	StyleOriginal Style = iota
	StyleGrayscale
	StyleMagicOutline
	StylePencilSketch
	StyleCrayonDrawing
	StyleAbstract
	StyleSepia
	StyleNegative

	styleCount
)

var styleNames = [styleCount]string{
	"Original",
	"Grayscale",
	"Magic Outline",
	"Pencil Sketch",
	"Crayon Drawing",
	"Abstract",
	"Sepia",
	"Negative",
}

var styleFolder = cases.Fold()

// Styles returns every style in display order.
func Styles() []Style {
	out := make([]Style, styleCount)
	for i := range out {
		out[i] = Style(i)
	}
	return out
}

// Valid reports whether s is one of the defined styles.
func (s Style) Valid() bool {
	return s >= 0 && s < styleCount
}

// String returns the display name, e.g. "Magic Outline".
func (s Style) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Style(%d)", int(s))
	}
	return styleNames[s]
}

// Slug returns the lower-case, dash separated name, e.g. "magic-outline".
func (s Style) Slug() string {
	return strings.ReplaceAll(strings.ToLower(s.String()), " ", "-")
}

// SingleChannel reports whether the style produces a gray buffer.
func (s Style) SingleChannel() bool {
	return s == StyleGrayscale || s == StyleMagicOutline
}

// UsesEdgeThresholds reports whether EdgeLow/EdgeHigh affect the style.
func (s Style) UsesEdgeThresholds() bool {
	return s == StyleMagicOutline
}

func normalizeStyleName(name string) string {
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return styleFolder.String(strings.Join(strings.Fields(name), " "))
}

// ParseStyle accepts a display name or slug in any case. The empty string
// selects StyleOriginal.
func ParseStyle(name string) (Style, error) {
	key := normalizeStyleName(name)
	if key == "" {
		return StyleOriginal, nil
	}
	for i, n := range styleNames {
		if normalizeStyleName(n) == key {
			return Style(i), nil
		}
	}
	return StyleOriginal, fmt.Errorf("%w: %q", ErrUnknownStyle, name)
}

// MarshalText encodes the style as its display name.
func (s Style) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStyle, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a display name or slug.
func (s *Style) UnmarshalText(text []byte) error {
	v, err := ParseStyle(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

package thumbnail

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is an RGB triplet extracted as an album's dominant color.
type Color struct {
	R, G, B uint8
}

// String renders the color as ImageMagick's own "#rrggbb" hex format, the
// representation stored in the thumbnails table.
func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseColor parses the "#rrggbb" (or bare "rrggbb") string magick's
// "%[hex:p{4,4}]" format prints to stdout.
func ParseColor(s string) (Color, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	if len(s) < 6 {
		return Color{}, false
	}
	v, err := strconv.ParseUint(s[:6], 16, 32)
	if err != nil {
		return Color{}, false
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, true
}

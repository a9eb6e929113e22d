package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// ExtractCover returns the cover art embedded in flacPath's tags, falling
// back to the most-square image file sitting alongside it (the common
// folder.jpg / cover.png layout), the same two sources cmd/ingest's own
// cover art extraction checks.
func ExtractCover(flacPath string) ([]byte, error) {
	if data, ok := embeddedPicture(flacPath); ok {
		return data, nil
	}
	if data := bestFolderImage(filepath.Dir(flacPath)); data != nil {
		return data, nil
	}
	return nil, fmt.Errorf("thumbnail: no cover art found for %s", flacPath)
}

func embeddedPicture(flacPath string) ([]byte, bool) {
	f, err := os.Open(flacPath)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, false
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, false
	}
	return pic.Data, true
}

// bestFolderImage scans dir for image files and returns the one closest to
// square, since that is almost always the front cover rather than a back
// cover, liner note scan, or promo banner.
func bestFolderImage(dir string) []byte {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var best []byte
	bestDelta := int(^uint(0) >> 1)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if !strings.HasSuffix(name, ".jpg") && !strings.HasSuffix(name, ".jpeg") && !strings.HasSuffix(name, ".png") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil || len(data) == 0 {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			continue
		}
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		if delta := abs(w - h); delta < bestDelta {
			bestDelta = delta
			best = data
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

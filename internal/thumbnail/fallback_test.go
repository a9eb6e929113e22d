package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func solidRedJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestRunInProcessProducesThumbSizedJPEG(t *testing.T) {
	result, err := runInProcess(solidRedJPEG(t))
	if err != nil {
		t.Fatalf("runInProcess: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(result.JPEG))
	if err != nil {
		t.Fatalf("decode result jpeg: %v", err)
	}
	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != thumbSize || h != thumbSize {
		t.Fatalf("thumbnail size = %dx%d, want %dx%d", w, h, thumbSize, thumbSize)
	}
}

func TestRunInProcessPicksDominantColorNearInput(t *testing.T) {
	result, err := runInProcess(solidRedJPEG(t))
	if err != nil {
		t.Fatalf("runInProcess: %v", err)
	}
	if result.Color.R < 150 || result.Color.G > 60 || result.Color.B > 60 {
		t.Fatalf("dominant color = %+v, want something close to solid red", result.Color)
	}
}

func TestAbs(t *testing.T) {
	if abs(-5) != 5 || abs(5) != 5 || abs(0) != 0 {
		t.Fatal("abs produced an unexpected result")
	}
}

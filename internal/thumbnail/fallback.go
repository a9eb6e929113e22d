package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os/exec"

	"golang.org/x/image/draw"
)

const thumbSize = 140

// haveExternalTools reports whether both magick and cjpegli are on PATH.
// When either is missing, Run falls back to an in-process resize and
// dominant-color pass so the pipeline still produces thumbnails on a
// machine without ImageMagick or libjxl installed, at lower visual quality.
func haveExternalTools() bool {
	_, errMagick := exec.LookPath("magick")
	_, errCjpegli := exec.LookPath("cjpegli")
	return errMagick == nil && errCjpegli == nil
}

// runInProcess resizes cover to 140x140 with a Catmull-Rom scaler, samples
// its dominant color, and JPEG-encodes the result — the same decode/encode
// primitives cmd/ingest's storeCoverArt/bestFolderImage use, standing in for
// the magick+cjpegli pipeline when those binaries aren't installed.
func runInProcess(cover []byte) (Result, error) {
	src, _, err := image.Decode(bytes.NewReader(cover))
	if err != nil {
		return Result{}, fmt.Errorf("thumbnail: decode cover: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, thumbSize, thumbSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return Result{}, fmt.Errorf("thumbnail: encode jpeg: %w", err)
	}

	return Result{Color: dominantColor(dst), JPEG: buf.Bytes()}, nil
}

// dominantColor buckets pixels into a coarse RGB grid and returns the
// bucket center hit most often — a much cruder stand-in for magick's
// kmeans/mode-filter pipeline, adequate only as a fallback.
func dominantColor(img *image.RGBA) Color {
	const bucketsPerChannel = 8
	const bucketSize = 256 / bucketsPerChannel
	counts := make(map[[3]uint8]int)

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			key := [3]uint8{
				uint8(r>>8) / bucketSize * bucketSize,
				uint8(g>>8) / bucketSize * bucketSize,
				uint8(bl>>8) / bucketSize * bucketSize,
			}
			counts[key]++
		}
	}

	var best [3]uint8
	bestCount := -1
	for key, n := range counts {
		if n > bestCount {
			bestCount = n
			best = key
		}
	}
	return Color{R: best[0], G: best[1], B: best[2]}
}

// Package thumbnail drives the external-process pipeline that turns one
// embedded FLAC cover image into a 140x140 JPEG thumbnail and a dominant
// color.
package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/astrid-voss/musium/internal/prim"
)

// State names a task's position in the Pending → Resizing → Analyzing →
// Compressing → Done pipeline.
type State int

const (
	StatePending State = iota
	StateResizing
	StateAnalyzing
	StateCompressing
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResizing:
		return "resizing"
	case StateAnalyzing:
		return "analyzing"
	case StateCompressing:
		return "compressing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Task generates one album's thumbnail. Its exported fields identify the
// cover source; State tracks progress for callers that want to observe it
// (e.g. a status endpoint) while Run drives it to completion.
type Task struct {
	AlbumID  prim.AlbumID
	FileID   int64
	Filename string
	State    State
}

// Result is a finished task's output: the dominant color and compressed
// JPEG bytes, ready for tagstore.Store.PutThumbnail.
type Result struct {
	Color Color
	JPEG  []byte
}

// Run drives a Task through every stage against cover, the raw cover image
// bytes. When magick and cjpegli are both on PATH it shells out to magick
// twice and cjpegli once, exactly as the original Rust implementation did,
// and always cleans up the intermediate PNG it writes to a temp file;
// otherwise it does all the work in process with runInProcess.
func (t *Task) Run(ctx context.Context, cover []byte) (Result, error) {
	if !haveExternalTools() {
		t.State = StateResizing
		result, err := runInProcess(cover)
		t.State = StateDone
		return result, err
	}

	t.State = StateResizing
	pngPath, err := resize(ctx, t.AlbumID, cover)
	if err != nil {
		return Result{}, fmt.Errorf("thumbnail: resize: %w", err)
	}
	defer os.Remove(pngPath)

	t.State = StateAnalyzing
	color, err := analyze(ctx, pngPath)
	if err != nil {
		return Result{}, fmt.Errorf("thumbnail: analyze: %w", err)
	}

	t.State = StateCompressing
	jpeg, err := compress(ctx, pngPath)
	if err != nil {
		return Result{}, fmt.Errorf("thumbnail: compress: %w", err)
	}

	t.State = StateDone
	return Result{Color: color, JPEG: jpeg}, nil
}

// tmpPNGPath returns the intermediate file path for albumID's resize step,
// matching the original's musium-thumb-<id>.png naming so a crash mid-run
// leaves predictably-named litter an operator can find.
func tmpPNGPath(albumID prim.AlbumID) string {
	return fmt.Sprintf("%s/musium-thumb-%d.png", os.TempDir(), uint64(albumID))
}

// resize feeds cover to magick over stdin and writes a linear-color,
// alpha-flattened, Cosine-resized 140x140 PNG to a temp file.
func resize(ctx context.Context, albumID prim.AlbumID, cover []byte) (string, error) {
	outPath := tmpPNGPath(albumID)
	cmd := exec.CommandContext(ctx, "magick",
		"-limit", "time", "120",
		"-",
		"-background", "black",
		"-alpha", "remove",
		"-alpha", "off",
		"-flatten",
		"-colorspace", "RGB",
		"-virtual-pixel", "Edge",
		"-filter", "Cosine",
		"-distort", "Resize", "140x140!",
		"-colorspace", "sRGB",
		"-strip",
		outPath,
	)
	cmd.Stdin = bytes.NewReader(cover)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("magick resize: %w: %s", err, out)
	}
	return outPath, nil
}

// analyze runs the hand-tuned k-means/mode-filter pipeline that isolates a
// single dominant color from pngPath, printing it in hex on stdout.
func analyze(ctx context.Context, pngPath string) (Color, error) {
	cmd := exec.CommandContext(ctx, "magick",
		"-limit", "time", "120",
		pngPath,
		"-colorspace", "RGB",
		"-virtual-pixel", "mirror",
		"-filter", "box",
		"-resize", "72x72",
		"-kmeans", "5",
		"-statistic", "Mode", "18x18",
		"-resize", "18x18",
		"-statistic", "Mode", "9x9",
		"-kmeans", "3",
		"-statistic", "Mode", "9x9",
		"-statistic", "Mode", "9x9",
		"-resize", "9x9",
		"-kmeans", "3",
		"-statistic", "Mode", "9x9",
		"-colorspace", "sRGB",
		"-format", "%[hex:p{4,4}]",
		"info:-",
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return Color{}, fmt.Errorf("magick analyze: %w", err)
	}
	color, ok := ParseColor(stdout.String())
	if !ok {
		return Color{}, fmt.Errorf("magick analyze: %q is not a color", stdout.String())
	}
	return color, nil
}

// compress runs cjpegli over pngPath and returns the resulting JPEG bytes.
func compress(ctx context.Context, pngPath string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "cjpegli",
		"--distance=0.45",
		"--progressive_level=0",
		pngPath,
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("cjpegli: start: %w", err)
	}
	jpeg, err := io.ReadAll(stdout)
	if err != nil {
		cmd.Wait()
		return nil, fmt.Errorf("cjpegli: read: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("cjpegli: %w", err)
	}
	return jpeg, nil
}

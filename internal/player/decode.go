package player

import (
	"fmt"

	"github.com/astrid-voss/musium/internal/decoder"
	"github.com/astrid-voss/musium/internal/prim"
)

// decodeTask is one unit of work for the decode loop: either open a fresh
// file and decode the start of it (dec == nil), or resume an
// already-opened, partially-decoded file (dec != nil).
type decodeTask struct {
	queueID prim.QueueID
	trackID prim.TrackID
	dec     *decoder.Decoder
}

// decodeResult is what a decodeTask produces: a block to append to the
// matching queued track, and either the still-open decoder (more to
// decode) or nil (the file is exhausted).
type decodeResult struct {
	queueID prim.QueueID
	block   *Block
	dec     *decoder.Decoder
}

// run decodes frames from task until stopAfterBytes worth of samples have
// accumulated (at least one frame is always decoded while the file has one
// left, so a task can't stall forever on a pathologically small budget), or
// the file ends. A file that ends before any frame is decoded yields a block
// of one silent sample, since blocks are never empty.
func (task decodeTask) run(index Index, stopAfterBytes int) (decodeResult, error) {
	dec := task.dec
	if dec == nil {
		track, ok := index.GetTrack(task.trackID)
		if !ok {
			return decodeResult{}, fmt.Errorf("player: track %s does not exist, how did it end up queued?", task.trackID)
		}
		opened, err := decoder.OpenWithReadahead(track.Filename)
		if err != nil {
			// Mirrors player.rs's DecodeTask::start: surface the failure as
			// an already-finished block of one silent sample rather than
			// propagating the error, so one unreadable file doesn't wedge
			// the decode loop.
			return decodeResult{
				queueID: task.queueID,
				block:   NewBlock(44100, 16, []float64{0}, []float64{0}),
				dec:     nil,
			}, nil
		}
		dec = opened
	}

	sampleRate := dec.SampleRate()
	bits := dec.BitsPerSample()
	var left, right []float64
	done := false

	for len(left) == 0 || sizeBytes(len(left)) < stopAfterBytes {
		blk, err := dec.Next()
		if err != nil {
			done = true
			break
		}
		left = append(left, blk.Left...)
		right = append(right, blk.Right...)
	}

	if done {
		dec.Close()
		if len(left) == 0 {
			// A resumed decoder can already sit at the end of the file.
			left, right = []float64{0}, []float64{0}
		}
		return decodeResult{queueID: task.queueID, block: NewBlock(sampleRate, bits, left, right), dec: nil}, nil
	}
	return decodeResult{queueID: task.queueID, block: NewBlock(sampleRate, bits, left, right), dec: dec}, nil
}

func sizeBytes(samples int) int { return samples * 16 }

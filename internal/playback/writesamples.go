package playback

import (
	"fmt"
	"time"

	"github.com/astrid-voss/musium/internal/player"
	"github.com/astrid-voss/musium/internal/prim"
)

// writeResult mirrors playback.rs's WriteResult.
type writeResult int

const (
	// resultContinue: a state transition happened but nothing was
	// written; retry immediately.
	resultContinue writeResult = iota
	// resultChangeFormat: the format must change before playback can
	// continue.
	resultChangeFormat
	// resultQueueEmpty: the queue is empty, playback is done for now.
	resultQueueEmpty
	// resultYield: done for now, check back later (buffer full or
	// decode buffer empty).
	resultYield
)

// writeSamples mirrors playback.rs's write_samples: it tries to top up the
// device's buffer from the queue's front block, then inspects the PCM
// state to decide what the session loop should do next. newFormat is only
// meaningful when the result is resultChangeFormat.
func writeSamples(dev Device, currentFormat Format, pl *player.Player) (result writeResult, newFormat Format, err error) {
	var haveNextFormat bool
	nConsumed := 0

	nAvailable, err := dev.AvailUpdate()
	if err != nil {
		// The alsa-rs original treats a failed query the same as zero
		// frames available, and relies on the PCM-state match below
		// (XRun/Suspended) to recover.
		nAvailable = 0
	}

	if nAvailable > 0 {
		block := pl.PeekBlock()
		switch {
		case block != nil && (prim.Hertz(block.SampleRate) != currentFormat.SampleRate || block.BitsPerSample != currentFormat.BitsPerSample):
			// The next block needs a different format: finish what is
			// already buffered, then switch.
			if err := dev.Drain(); err != nil {
				return 0, Format{}, err
			}
			newFormat = Format{SampleRate: prim.Hertz(block.SampleRate), BitsPerSample: block.BitsPerSample}
			haveNextFormat = true
		case block != nil:
			left, right := block.Unconsumed()
			n, err := dev.WriteBlock(nAvailable, left, right)
			if err != nil {
				return 0, Format{}, err
			}
			nConsumed = n
		default:
			nConsumed = 0
		}

		if nConsumed > 0 {
			pl.Consume(nConsumed, time.Now())
		} else if pl.IsQueueEmpty() {
			if err := dev.Drain(); err != nil {
				return 0, Format{}, err
			}
		}
	}

	switch dev.State() {
	case StateRunning:
		switch {
		case nConsumed == 0:
			// Playing, but nothing decoded to write: release the lock
			// and hope the decoder caught up next time.
			return resultYield, Format{}, nil
		case nConsumed < nAvailable:
			// Made progress but didn't fill the buffer; there may be
			// more decoded samples in the next block already.
			return resultContinue, Format{}, nil
		default:
			return resultYield, Format{}, nil
		}

	case StateDraining:
		switch {
		case haveNextFormat:
			return resultYield, newFormat, nil
		case pl.IsQueueEmpty():
			return resultQueueEmpty, Format{}, nil
		default:
			panic("playback: PCM is unexpectedly in draining state")
		}

	case StateSetup:
		switch {
		case haveNextFormat:
			return resultChangeFormat, newFormat, nil
		case pl.IsQueueEmpty():
			return resultQueueEmpty, Format{}, nil
		default:
			return resultYield, Format{}, nil
		}

	case StatePrepared:
		switch {
		case nAvailable == 0:
			if err := dev.Start(); err != nil {
				return 0, Format{}, err
			}
			return resultYield, Format{}, nil
		case pl.IsQueueEmpty():
			if err := dev.Start(); err != nil {
				return 0, Format{}, err
			}
			if err := dev.Drain(); err != nil {
				return 0, Format{}, err
			}
			return resultQueueEmpty, Format{}, nil
		case nConsumed > 0 && nConsumed < nAvailable:
			return resultContinue, Format{}, nil
		default:
			return resultYield, Format{}, nil
		}

	case StateXRun:
		if err := dev.Prepare(); err != nil {
			return 0, Format{}, err
		}
		return resultContinue, Format{}, nil

	case StateSuspended:
		if err := dev.Resume(); err != nil {
			return 0, Format{}, err
		}
		return resultContinue, Format{}, nil

	case StateOpen:
		if block := pl.PeekBlock(); block != nil {
			return resultChangeFormat, Format{SampleRate: prim.Hertz(block.SampleRate), BitsPerSample: block.BitsPerSample}, nil
		}
		return resultYield, Format{}, nil

	default:
		panic(fmt.Sprintf("playback: unexpected PCM state %v", dev.State()))
	}
}

// fillKind mirrors playback.rs's FillResult.
type fillKind int

const (
	fillChangeFormat fillKind = iota
	fillQueueEmpty
	fillYield
)

type fillResult struct {
	kind   fillKind
	format Format
}

// ensureBuffersFull mirrors playback.rs's ensure_buffers_full: keep
// calling writeSamples until it reports something other than
// resultContinue. Device errors are logged and retried, matching the
// original's unconditional retry loop.
func ensureBuffersFull(dev Device, format Format, pl *player.Player, onError func(error)) fillResult {
	for {
		res, newFormat, err := writeSamples(dev, format, pl)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		switch res {
		case resultContinue:
			continue
		case resultChangeFormat:
			return fillResult{kind: fillChangeFormat, format: newFormat}
		case resultQueueEmpty:
			return fillResult{kind: fillQueueEmpty}
		case resultYield:
			return fillResult{kind: fillYield}
		}
	}
}

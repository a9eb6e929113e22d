package playback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/astrid-voss/musium/internal/player"
	"github.com/astrid-voss/musium/internal/prim"
)

const pollMaxSleep = 15 * time.Millisecond

// playQueue mirrors playback.rs's play_queue: it owns one audio device for
// the duration of a playback session, keeping the buffer full, reopening
// the device whenever the queue's next block needs a different format,
// and returning once the queue drains. pl.WakeDecoder is called whenever
// ensureBuffersFull reports the buffer needs more decoded input.
func playQueue(ctx context.Context, opener Opener, cardName, volumeControlName string, pl *player.Player, log *slog.Logger) error {
	dev, err := opener.Open(cardName, volumeControlName)
	if err != nil {
		return fmt.Errorf("playback: failed to open device %q: %w", cardName, err)
	}
	defer dev.Close()

	var volume *prim.Millibel
	currentFormat := Format{}
	var nextFormat *Format

	onError := func(err error) {
		log.Warn("playback: error while writing samples, resuming", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if nextFormat != nil {
			if err := dev.Close(); err != nil {
				log.Warn("playback: error closing device before format change", "err", err)
			}
			dev, err = opener.Open(cardName, volumeControlName)
			if err != nil {
				return fmt.Errorf("playback: failed to reopen device %q for format change: %w", cardName, err)
			}
			if err := dev.SetFormat(*nextFormat); err != nil {
				return fmt.Errorf("playback: failed to set format %v on device %q: %w", *nextFormat, cardName, err)
			}
			log.Info("playback: changed format", "device", cardName, "format", nextFormat.String())
			currentFormat = *nextFormat
			nextFormat = nil
		}

		fr := ensureBuffersFull(dev, currentFormat, pl, onError)

		if pl.State.NeedsDecode() {
			pl.WakeDecoder()
		}

		if target, ok := pl.TargetVolumeFullScale(); ok && (volume == nil || *volume != target) {
			if err := dev.SetVolume(target); err != nil {
				log.Warn("playback: failed to set volume", "err", err)
			} else {
				v := target
				volume = &v
			}
		}

		switch fr.kind {
		case fillQueueEmpty:
			return nil
		case fillYield:
			if err := dev.Poll(pollMaxSleep); err != nil {
				log.Warn("playback: poll failed", "err", err)
			}
		case fillChangeFormat:
			f := fr.format
			nextFormat = &f
		}
	}
}

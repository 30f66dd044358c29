package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/squadlink/voicemesh/internal/core"
)

// MediaController owns the local capture device and the mute flag. The
// device is acquired lazily after a channel join succeeded and at most once
// per membership; mute toggles never touch the device.
type MediaController struct {
	device core.CaptureDevice
	post   func(fn func())

	stream    core.CaptureStream
	acquiring bool
	failed    bool
	muted     bool

	// epoch invalidates an acquisition still in flight when Stop ran first.
	epoch uint64
}

func NewMediaController(device core.CaptureDevice, post func(fn func())) *MediaController {
	return &MediaController{device: device, post: post}
}

func (mc *MediaController) Active() bool { return mc.stream != nil }
func (mc *MediaController) Muted() bool  { return mc.muted }

// Start acquires the capture device asynchronously. Concurrent calls are
// idempotent; the device is never double-acquired. onReady/onErr run on the
// session loop.
func (mc *MediaController) Start(ctx context.Context, onReady func(core.CaptureStream), onErr func(error)) {
	if mc.stream != nil || mc.acquiring || mc.failed {
		return
	}
	mc.acquiring = true
	epoch := mc.epoch

	go func() {
		stream, err := mc.device.Acquire(ctx)
		mc.post(func() {
			if mc.epoch != epoch {
				// Stopped (or left the channel) while acquiring.
				if stream != nil {
					_ = stream.Close()
				}
				return
			}
			mc.acquiring = false
			if err != nil {
				// Recoverable: the channel stays usable receive-only.
				mc.failed = true
				log.Warn().Err(err).Str("module", "media").Msg("capture acquisition failed, receive-only")
				onErr(err)
				return
			}
			mc.stream = stream
			stream.SetEnabled(!mc.muted)
			log.Info().Str("module", "media").Bool("muted", mc.muted).Msg("capture active")
			onReady(stream)
		})
	}()
}

// SetMuted flips the capture track's enabled flag. Capture keeps running;
// with no stream (receive-only) only the flag is recorded.
func (mc *MediaController) SetMuted(muted bool) {
	mc.muted = muted
	if mc.stream != nil {
		mc.stream.SetEnabled(!muted)
	}
}

// Stop releases the capture device. Called only as part of leave; releases
// exactly once and cancels any acquisition still in flight.
func (mc *MediaController) Stop() {
	mc.epoch++
	mc.acquiring = false
	mc.failed = false
	if mc.stream != nil {
		if err := mc.stream.Close(); err != nil {
			log.Warn().Err(err).Str("module", "media").Msg("capture release")
		}
		mc.stream = nil
		log.Info().Str("module", "media").Msg("capture released")
	}
}

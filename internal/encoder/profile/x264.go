package profile

import (
	"strconv"

	"riverforge/internal/encoder/ladder"
)

const (
	defaultX264PixelFormat = "yuv420p"
	defaultX264Preset      = "veryfast"
)

// X264 is the software H.264 profile backed by libx264: CRF-driven with a
// VBV bitrate ceiling so live players never see a burst above the ladder.
type X264 struct {
	PixelFormat string
}

func (X264) Name() string    { return "x264" }
func (X264) Encoder() string { return "libx264" }

func (b X264) Build(params ladder.Resolved, first bool) Options {
	preset := params.Preset
	if preset == "" {
		preset = defaultX264Preset
	}
	pixelFormat := b.PixelFormat
	if pixelFormat == "" {
		pixelFormat = defaultX264PixelFormat
	}

	flags := []string{
		"-c:v", "libx264",
		"-preset", preset,
	}
	if params.CRF > 0 {
		flags = append(flags, "-crf", strconv.Itoa(params.CRF))
	}
	if params.MaxRate > 0 {
		flags = append(flags,
			"-maxrate", strconv.FormatInt(params.MaxRate, 10),
			"-bufsize", strconv.FormatInt(params.BufferSize, 10),
		)
	}
	flags = append(flags,
		"-g", strconv.Itoa(params.GoPFrames),
		"-keyint_min", strconv.Itoa(params.GoPFrames),
		"-sc_threshold", "0",
		"-pix_fmt", pixelFormat,
	)

	return Options{
		OutputFlags: flags,
		ScaleFilter: "scale",
	}
}

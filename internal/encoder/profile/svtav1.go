package profile

import (
	"fmt"
	"strconv"

	"riverforge/internal/encoder/ladder"
)

const (
	defaultSVTPixelFormat = "yuv420p10le"
	defaultSVTPreset      = "8"
)

// SVTAV1 is the software AV1 profile backed by libsvtav1. Quality is driven
// by CRF with the resolved bitrate acting as a ceiling.
type SVTAV1 struct {
	// PixelFormat overrides the default 10-bit output format.
	PixelFormat string
}

func (SVTAV1) Name() string    { return "svt-av1" }
func (SVTAV1) Encoder() string { return "libsvtav1" }

func (b SVTAV1) Build(params ladder.Resolved, first bool) Options {
	preset := params.Preset
	if preset == "" {
		preset = defaultSVTPreset
	}
	pixelFormat := b.PixelFormat
	if pixelFormat == "" {
		pixelFormat = defaultSVTPixelFormat
	}

	flags := []string{
		"-c:v", "libsvtav1",
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
		"-pix_fmt", pixelFormat,
		"-svtav1-params", fmt.Sprintf("keyint=%d:scd=0", params.GoPFrames),
	)

	return Options{
		OutputFlags: flags,
		ScaleFilter: "scale",
	}
}

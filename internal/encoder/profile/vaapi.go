package profile

import (
	"strconv"

	"riverforge/internal/encoder/ladder"
)

// DefaultRenderDevice is the DRM render node used when no setting overrides
// the hardware device path.
const DefaultRenderDevice = "/dev/dri/renderD128"

// VAAPI is the hardware profile family (AV1 and H.264 via VAAPI). Hardware
// encoders are bitrate-driven; the device initialization flags are expensive
// and must only be emitted for the first stream of a multi-stream job.
type VAAPI struct {
	// ProfileName distinguishes the registered profiles sharing this builder.
	ProfileName string
	// EncoderName is the VAAPI encoder, e.g. "av1_vaapi" or "h264_vaapi".
	EncoderName string
	// Device is the DRM render node path.
	Device string
}

// NewVAAPIAV1 returns the hardware AV1 profile on the given device.
func NewVAAPIAV1(device string) VAAPI {
	return VAAPI{ProfileName: "vaapi-av1", EncoderName: "av1_vaapi", Device: device}
}

// NewVAAPIH264 returns the hardware H.264 profile on the given device.
func NewVAAPIH264(device string) VAAPI {
	return VAAPI{ProfileName: "vaapi-h264", EncoderName: "h264_vaapi", Device: device}
}

func (b VAAPI) Name() string    { return b.ProfileName }
func (b VAAPI) Encoder() string { return b.EncoderName }

func (b VAAPI) Build(params ladder.Resolved, first bool) Options {
	device := b.Device
	if device == "" {
		device = DefaultRenderDevice
	}

	var pre []string
	if first {
		pre = []string{
			"-init_hw_device", "vaapi=hw:" + device,
			"-filter_hw_device", "hw",
			"-hwaccel", "vaapi",
			"-hwaccel_output_format", "vaapi",
		}
	}

	flags := []string{
		"-c:v", b.EncoderName,
	}
	if params.Bitrate > 0 {
		flags = append(flags,
			"-b:v", strconv.FormatInt(params.Bitrate, 10),
			"-maxrate", strconv.FormatInt(params.MaxRate, 10),
			"-bufsize", strconv.FormatInt(params.BufferSize, 10),
		)
	}
	flags = append(flags,
		"-g", strconv.Itoa(params.GoPFrames),
		"-rc_mode", "VBR",
	)

	return Options{
		PreInputFlags: pre,
		OutputFlags:   flags,
		ScaleFilter:   "scale_vaapi",
	}
}

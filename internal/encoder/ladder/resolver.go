package ladder

import "math"

const (
	// DefaultFPSScaleFactor matches the software encoders: a 60 fps encode is
	// allowed 1.4x the 30 fps bitrate. Hardware encoders typically configure
	// 1.6 instead.
	DefaultFPSScaleFactor = 1.4

	// DefaultGoPSeconds is the keyframe interval in seconds used when no
	// setting overrides it.
	DefaultGoPSeconds = 2.0
)

// ScaleBitrate maps a 30 fps base bitrate onto the requested frame rate. The
// base applies exactly at 30 fps; at 60 fps the result is floor(base*factor);
// between and beyond those anchors the relationship is linear. No clamping is
// applied: extrapolation below 30 fps follows the same line and can go
// negative, and callers that care must validate.
func ScaleBitrate(base int64, frameRate, factor float64) int64 {
	scaled := float64(base) + (frameRate-30)*((float64(base)*(factor-1))/30)
	return int64(math.Floor(scaled))
}

// CapToInput bounds the computed target by a measured input bitrate when one
// is known (measured > 0). The encoder should never be asked to produce more
// bits than the source carries.
func CapToInput(target, measured int64) int64 {
	if measured > 0 && measured < target {
		return measured
	}
	return target
}

// GoPFrames converts a keyframe interval in seconds into a frame count,
// truncating toward zero.
func GoPFrames(frameRate, gopSeconds float64) int {
	return int(frameRate * gopSeconds)
}

// Request describes one stream of a transcoding job. InputBitrate is 0 when
// the source bitrate was not measured; StreamIndex is nil outside multi-stream
// live jobs.
type Request struct {
	Tier         Tier
	FrameRate    float64
	InputBitrate int64
	StreamIndex  *int
}

// Resolved carries the concrete encoder parameters for one stream. The value
// is produced and consumed immediately; it is never shared or mutated after
// construction.
type Resolved struct {
	Bitrate    int64
	MaxRate    int64
	BufferSize int64
	CRF        int
	GoPFrames  int
	Preset     string
}

// Resolver turns a request into concrete encoder parameters using the
// configured tables. All methods are pure; the zero value falls back to the
// default constants but carries empty tables.
type Resolver struct {
	Bitrates       Table
	Quality        Table
	FPSScaleFactor float64
	GoPSeconds     float64
	Preset         string
}

// Resolve computes the parameters for a single stream.
func (r Resolver) Resolve(req Request) Resolved {
	factor := r.FPSScaleFactor
	if factor <= 0 {
		factor = DefaultFPSScaleFactor
	}
	gopSeconds := r.GoPSeconds
	if gopSeconds <= 0 {
		gopSeconds = DefaultGoPSeconds
	}

	target := ScaleBitrate(r.Bitrates.Value(req.Tier), req.FrameRate, factor)
	target = CapToInput(target, req.InputBitrate)

	return Resolved{
		Bitrate:    target,
		MaxRate:    target,
		BufferSize: 2 * target,
		CRF:        int(r.Quality.Value(req.Tier)),
		GoPFrames:  GoPFrames(req.FrameRate, gopSeconds),
		Preset:     r.Preset,
	}
}

package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"riverforge/internal/encoder/ladder"
	"riverforge/internal/observability/metrics"
	"riverforge/internal/settings"
)

func newTestManager(t *testing.T, values map[string]string) (*Manager, *settings.MemoryProvider, *metrics.Recorder) {
	t.Helper()
	provider := settings.NewMemoryProvider(values)
	recorder := metrics.New()
	manager, err := NewManager(ManagerConfig{
		Provider: provider,
		Metrics:  recorder,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := manager.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return manager, provider, recorder
}

func TestEncoderOptionsDefaults(t *testing.T) {
	manager, _, _ := newTestManager(t, nil)

	result, err := manager.EncoderOptions(context.Background(), OptionsRequest{
		Kind:      KindVOD,
		Tier:      ladder.Tier720p,
		FrameRate: 30,
	})
	if err != nil {
		t.Fatalf("EncoderOptions: %v", err)
	}
	if result.Profile != "svt-av1" {
		t.Fatalf("default VOD profile = %q, want svt-av1", result.Profile)
	}
	if result.Encoder != "libsvtav1" {
		t.Fatalf("encoder = %q, want libsvtav1", result.Encoder)
	}
	if !result.First {
		t.Fatal("VOD request should always be first")
	}
	if result.Params.Bitrate != 2_800_000 {
		t.Fatalf("720p bitrate at 30fps = %d, want 2800000", result.Params.Bitrate)
	}
	if result.Params.BufferSize != 5_600_000 {
		t.Fatalf("buffer size = %d, want 5600000", result.Params.BufferSize)
	}
	if result.Params.CRF != 34 {
		t.Fatalf("720p CRF = %d, want 34", result.Params.CRF)
	}
	if result.Options.ScaleFilter != "scale" {
		t.Fatalf("scale filter = %q, want scale", result.Options.ScaleFilter)
	}
}

func TestEncoderOptionsHardwareScaleFactor(t *testing.T) {
	manager, _, _ := newTestManager(t, nil)

	result, err := manager.EncoderOptions(context.Background(), OptionsRequest{
		Kind:      KindVOD,
		Profile:   "vaapi-av1",
		Tier:      ladder.Tier1080p,
		FrameRate: 60,
	})
	if err != nil {
		t.Fatalf("EncoderOptions: %v", err)
	}
	// 5_200_000 base scaled by the hardware 1.6 factor at 60fps.
	if result.Params.Bitrate != 8_320_000 {
		t.Fatalf("1080p bitrate at 60fps = %d, want 8320000", result.Params.Bitrate)
	}
	if result.Options.ScaleFilter != "scale_vaapi" {
		t.Fatalf("scale filter = %q, want scale_vaapi", result.Options.ScaleFilter)
	}
}

func TestReloadAppliesOverrides(t *testing.T) {
	manager, provider, _ := newTestManager(t, map[string]string{
		BitrateKey("svt-av1", ladder.Tier720p): "3000000",
		CRFKey("svt-av1", ladder.Tier720p):     "30",
		VariantKey("svt-av1", "preset"):        "6",
	})

	result, err := manager.EncoderOptions(context.Background(), OptionsRequest{
		Kind:      KindVOD,
		Tier:      ladder.Tier720p,
		FrameRate: 30,
	})
	if err != nil {
		t.Fatalf("EncoderOptions: %v", err)
	}
	if result.Params.Bitrate != 3_000_000 {
		t.Fatalf("overridden bitrate = %d, want 3000000", result.Params.Bitrate)
	}
	if result.Params.CRF != 30 {
		t.Fatalf("overridden CRF = %d, want 30", result.Params.CRF)
	}
	if result.Params.Preset != "6" {
		t.Fatalf("overridden preset = %q, want 6", result.Params.Preset)
	}

	// Removing the override restores the built-in value on the next reload.
	provider.Delete(BitrateKey("svt-av1", ladder.Tier720p))
	if err := manager.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	result, err = manager.EncoderOptions(context.Background(), OptionsRequest{
		Kind:      KindVOD,
		Tier:      ladder.Tier720p,
		FrameRate: 30,
	})
	if err != nil {
		t.Fatalf("EncoderOptions: %v", err)
	}
	if result.Params.Bitrate != 2_800_000 {
		t.Fatalf("bitrate after clearing override = %d, want 2800000", result.Params.Bitrate)
	}
}

func TestReloadKeepsUnparseableTierValues(t *testing.T) {
	manager, _, _ := newTestManager(t, map[string]string{
		BitrateKey("svt-av1", ladder.Tier480p): "not-a-number",
	})

	result, err := manager.EncoderOptions(context.Background(), OptionsRequest{
		Kind:      KindVOD,
		Tier:      ladder.Tier480p,
		FrameRate: 30,
	})
	if err != nil {
		t.Fatalf("EncoderOptions: %v", err)
	}
	if result.Params.Bitrate != 1_500_000 {
		t.Fatalf("bitrate with unparseable override = %d, want built-in 1500000", result.Params.Bitrate)
	}
}

func TestLiveStreamGating(t *testing.T) {
	manager, _, recorder := newTestManager(t, nil)
	ctx := context.Background()

	index := func(i int) *int { return &i }

	first, err := manager.EncoderOptions(ctx, OptionsRequest{
		JobID:       "job-a",
		Kind:        KindLive,
		Profile:     "vaapi-av1",
		Tier:        ladder.Tier1080p,
		FrameRate:   30,
		StreamIndex: index(0),
	})
	if err != nil {
		t.Fatalf("EncoderOptions: %v", err)
	}
	if !first.First {
		t.Fatal("stream 0 should be first")
	}
	if len(first.Options.PreInputFlags) == 0 {
		t.Fatal("first stream should carry device initialization flags")
	}

	second, err := manager.EncoderOptions(ctx, OptionsRequest{
		JobID:       "job-a",
		Kind:        KindLive,
		Profile:     "vaapi-av1",
		Tier:        ladder.Tier720p,
		FrameRate:   30,
		StreamIndex: index(1),
	})
	if err != nil {
		t.Fatalf("EncoderOptions: %v", err)
	}
	if second.First {
		t.Fatal("stream 1 should not be first")
	}
	if len(second.Options.PreInputFlags) != 0 {
		t.Fatal("non-first stream must not repeat device initialization flags")
	}

	// A different job is gated independently.
	other, err := manager.EncoderOptions(ctx, OptionsRequest{
		JobID:       "job-b",
		Kind:        KindLive,
		Profile:     "vaapi-av1",
		Tier:        ladder.Tier720p,
		FrameRate:   30,
		StreamIndex: index(2),
	})
	if err != nil {
		t.Fatalf("EncoderOptions: %v", err)
	}
	if !other.First {
		t.Fatal("first request of another job should be first")
	}

	if got := recorder.ActiveJobs(); got != 2 {
		t.Fatalf("active jobs gauge = %d, want 2", got)
	}

	manager.ReleaseJob("job-a")
	if got := manager.ActiveJobs(); got != 1 {
		t.Fatalf("active jobs after release = %d, want 1", got)
	}

	// Releasing resets the gate, so the job can start over.
	restart, err := manager.EncoderOptions(ctx, OptionsRequest{
		JobID:       "job-a",
		Kind:        KindLive,
		Profile:     "vaapi-av1",
		Tier:        ladder.Tier720p,
		FrameRate:   30,
		StreamIndex: index(3),
	})
	if err != nil {
		t.Fatalf("EncoderOptions: %v", err)
	}
	if !restart.First {
		t.Fatal("first stream after release should be first again")
	}
}

func TestLiveRequestRequiresJobID(t *testing.T) {
	manager, _, _ := newTestManager(t, nil)
	_, err := manager.EncoderOptions(context.Background(), OptionsRequest{
		Kind:      KindLive,
		Tier:      ladder.Tier720p,
		FrameRate: 30,
	})
	if err == nil {
		t.Fatal("expected error for live request without job id")
	}
}

func TestEncoderOptionsUnknownProfile(t *testing.T) {
	manager, _, _ := newTestManager(t, nil)
	_, err := manager.EncoderOptions(context.Background(), OptionsRequest{
		Kind:    KindVOD,
		Profile: "nvenc",
		Tier:    ladder.Tier720p,
	})
	if err == nil {
		t.Fatal("expected error for unregistered profile")
	}
}

type failingProvider struct{ err error }

func (p failingProvider) Lookup(context.Context, string) (string, bool, error) {
	return "", false, p.err
}

func TestReloadSurfacesTransportErrors(t *testing.T) {
	recorder := metrics.New()
	manager, err := NewManager(ManagerConfig{
		Provider: failingProvider{err: errors.New("store down")},
		Metrics:  recorder,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := manager.Reload(context.Background()); err == nil {
		t.Fatal("expected reload to fail when the provider is down")
	}
	if got := recorder.ReloadCounts()["failed"]; got != 1 {
		t.Fatalf("failed reload counter = %d, want 1", got)
	}
}

func TestReloadRecordsSuccess(t *testing.T) {
	_, _, recorder := newTestManager(t, nil)
	if got := recorder.ReloadCounts()["ok"]; got != 1 {
		t.Fatalf("ok reload counter = %d, want 1", got)
	}
}

func TestResolutionMetrics(t *testing.T) {
	manager, _, recorder := newTestManager(t, nil)
	for i := 0; i < 3; i++ {
		if _, err := manager.EncoderOptions(context.Background(), OptionsRequest{
			Kind:      KindVOD,
			Tier:      ladder.Tier1080p,
			FrameRate: 30,
		}); err != nil {
			t.Fatalf("EncoderOptions: %v", err)
		}
	}
	counts := recorder.ResolutionCounts()
	key := metrics.ResolutionLabel{Profile: "svt-av1", Tier: "1080p"}
	if counts[key] != 3 {
		t.Fatalf("resolution counter = %d, want 3", counts[key])
	}
}

func TestHardwareDeviceOverride(t *testing.T) {
	manager, _, _ := newTestManager(t, map[string]string{
		HardwareDeviceKey(): "/dev/dri/renderD129",
	})

	result, err := manager.EncoderOptions(context.Background(), OptionsRequest{
		JobID:       "job-dev",
		Kind:        KindLive,
		Profile:     "vaapi-h264",
		Tier:        ladder.Tier720p,
		FrameRate:   30,
		StreamIndex: nil,
	})
	if err != nil {
		t.Fatalf("EncoderOptions: %v", err)
	}
	want := "vaapi=hw:/dev/dri/renderD129"
	found := false
	for _, flag := range result.Options.PreInputFlags {
		if flag == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("pre-input flags %v missing %q", result.Options.PreInputFlags, want)
	}
}

func TestSchemaDeclaresOverrideKeys(t *testing.T) {
	manager, _, _ := newTestManager(t, nil)
	fields := manager.Schema()

	byKey := make(map[string]Field, len(fields))
	for _, field := range fields {
		if _, dup := byKey[field.Key]; dup {
			t.Fatalf("duplicate schema key %q", field.Key)
		}
		byKey[field.Key] = field
	}

	for _, key := range []string{
		HardwareDeviceKey(),
		BitrateKey("svt-av1", ladder.Tier720p),
		CRFKey("vaapi-av1", ladder.Tier1080p),
		VariantKey("x264", "preset"),
		VariantKey("vaapi-h264", "keyint-seconds"),
	} {
		if _, ok := byKey[key]; !ok {
			t.Fatalf("schema missing key %q", key)
		}
	}

	bitrate := byKey[BitrateKey("svt-av1", ladder.Tier720p)]
	if bitrate.Type != FieldInt {
		t.Fatalf("bitrate field type = %q, want int", bitrate.Type)
	}
	if bitrate.Default != fmt.Sprintf("%d", 2_800_000) {
		t.Fatalf("bitrate default = %q, want 2800000", bitrate.Default)
	}
}

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"riverforge/internal/encoder/ladder"
	"riverforge/internal/encoder/profile"
	"riverforge/internal/encoder/session"
	"riverforge/internal/observability/metrics"
	"riverforge/internal/settings"
)

// VariantSpec declares one encoder variant the manager knows how to build:
// its built-in tables, default knobs, and a constructor closing over the
// settings the variant honours.
type VariantSpec struct {
	Name        string
	Kinds       []Kind
	Priority    int
	Hardware    bool
	Bitrates    ladder.Table
	Quality     ladder.Table
	Preset      string
	PixelFormat string
	// Make builds the flag synthesizer from the effective pixel format and
	// hardware device path; software variants ignore the device.
	Make func(pixelFormat, device string) profile.Builder
}

// BuiltinVariants returns the encoder variants shipped with the plugin,
// highest priority first. SVT-AV1 is the preferred software path; the VAAPI
// variants are registered lower because they need a working render node.
func BuiltinVariants() []VariantSpec {
	bothKinds := []Kind{KindVOD, KindLive}
	return []VariantSpec{
		{
			Name:        "svt-av1",
			Kinds:       bothKinds,
			Priority:    1000,
			Bitrates:    ladder.DefaultBitrates(),
			Quality:     ladder.DefaultCRF(),
			Preset:      "8",
			PixelFormat: "yuv420p10le",
			Make: func(pixelFormat, _ string) profile.Builder {
				return profile.SVTAV1{PixelFormat: pixelFormat}
			},
		},
		{
			Name:        "vaapi-av1",
			Kinds:       bothKinds,
			Priority:    500,
			Hardware:    true,
			Bitrates:    ladder.DefaultBitrates(),
			Quality:     ladder.DefaultCRF(),
			PixelFormat: "vaapi",
			Make: func(_, device string) profile.Builder {
				return profile.NewVAAPIAV1(device)
			},
		},
		{
			Name:        "x264",
			Kinds:       bothKinds,
			Priority:    250,
			Bitrates:    ladder.DefaultBitrates(),
			Quality:     ladder.DefaultCRF(),
			Preset:      "veryfast",
			PixelFormat: "yuv420p",
			Make: func(pixelFormat, _ string) profile.Builder {
				return profile.X264{PixelFormat: pixelFormat}
			},
		},
		{
			Name:        "vaapi-h264",
			Kinds:       bothKinds,
			Priority:    100,
			Hardware:    true,
			Bitrates:    ladder.DefaultBitrates(),
			Quality:     ladder.DefaultCRF(),
			PixelFormat: "vaapi",
			Make: func(_, device string) profile.Builder {
				return profile.NewVAAPIH264(device)
			},
		},
	}
}

type variantState struct {
	spec     VariantSpec
	resolver ladder.Resolver
	builder  profile.Builder
}

// Manager owns the variant registry, the per-job stream gates, and the
// effective per-variant configuration. Reload rebuilds the configuration from
// the settings provider; EncoderOptions serves the host's per-stream request.
type Manager struct {
	provider settings.Provider
	registry *Registry
	gates    *session.Registry
	metrics  *metrics.Recorder
	logger   *slog.Logger

	mu       sync.RWMutex
	specs    []VariantSpec
	variants map[string]*variantState
}

// ManagerConfig collects the manager's collaborators. Provider is required;
// the rest default to sensible shared instances.
type ManagerConfig struct {
	Provider settings.Provider
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
	Variants []VariantSpec
}

// NewManager builds a manager and registers the configured variants. Reload
// must be called once before the first EncoderOptions request so the variants
// have effective tables.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("plugin: settings provider is required")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	specs := cfg.Variants
	if specs == nil {
		specs = BuiltinVariants()
	}

	m := &Manager{
		provider: cfg.Provider,
		registry: NewRegistry(),
		gates:    session.NewRegistry(),
		metrics:  recorder,
		logger:   logger.With("component", "plugin"),
		specs:    specs,
		variants: make(map[string]*variantState),
	}
	for _, spec := range specs {
		if spec.Make == nil {
			return nil, fmt.Errorf("plugin: variant %s has no builder constructor", spec.Name)
		}
	}
	return m, nil
}

// Registry exposes the profile registry for listing endpoints.
func (m *Manager) Registry() *Registry { return m.registry }

// Schema declares every settings key the registered variants honour, plus the
// shared keys.
func (m *Manager) Schema() []Field {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fields := SharedSchema()
	for _, spec := range m.specs {
		fields = append(fields, SchemaForVariant(spec.Name, spec.Bitrates, spec.Quality, spec.Preset, spec.PixelFormat)...)
	}
	return fields
}

// Reload rebuilds every variant's effective configuration from the settings
// provider and swaps it in atomically. On transport errors the previous
// configuration stays in place.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.RLock()
	specs := m.specs
	m.mu.RUnlock()

	device, err := settings.String(ctx, m.provider, HardwareDeviceKey(), profile.DefaultRenderDevice)
	if err != nil {
		m.metrics.ObserveReload("failed")
		return fmt.Errorf("read %s: %w", HardwareDeviceKey(), err)
	}

	next := make(map[string]*variantState, len(specs))
	for _, spec := range specs {
		state, err := m.loadVariant(ctx, spec, device.Value)
		if err != nil {
			m.metrics.ObserveReload("failed")
			return fmt.Errorf("variant %s: %w", spec.Name, err)
		}
		next[spec.Name] = state
	}

	m.mu.Lock()
	m.variants = next
	m.mu.Unlock()

	for _, spec := range specs {
		builder := next[spec.Name].builder
		for _, kind := range spec.Kinds {
			if err := m.registry.Register(Profile{
				Name:     spec.Name,
				Kind:     kind,
				Priority: spec.Priority,
				Builder:  builder,
			}); err != nil {
				m.metrics.ObserveReload("failed")
				return err
			}
		}
	}

	m.metrics.ObserveReload("ok")
	m.logger.InfoContext(ctx, "settings reloaded", "variants", len(next))
	return nil
}

func (m *Manager) loadVariant(ctx context.Context, spec VariantSpec, device string) (*variantState, error) {
	bitrateOverrides, err := m.tierOverrides(ctx, spec.Name, BitrateKey)
	if err != nil {
		return nil, err
	}
	qualityOverrides, err := m.tierOverrides(ctx, spec.Name, CRFKey)
	if err != nil {
		return nil, err
	}

	defaultScale := ladder.DefaultFPSScaleFactor
	if spec.Hardware {
		defaultScale = 1.6
	}
	fpsScale, err := settings.Float(ctx, m.provider, VariantKey(spec.Name, "fps-scale"), defaultScale)
	if err != nil {
		return nil, err
	}
	gopSeconds, err := settings.Float(ctx, m.provider, VariantKey(spec.Name, "keyint-seconds"), ladder.DefaultGoPSeconds)
	if err != nil {
		return nil, err
	}
	preset, err := settings.String(ctx, m.provider, VariantKey(spec.Name, "preset"), spec.Preset)
	if err != nil {
		return nil, err
	}
	pixelFormat, err := settings.String(ctx, m.provider, VariantKey(spec.Name, "pixfmt"), spec.PixelFormat)
	if err != nil {
		return nil, err
	}
	for _, invalid := range []struct {
		key    string
		source settings.Source
	}{
		{VariantKey(spec.Name, "fps-scale"), fpsScale.Source},
		{VariantKey(spec.Name, "keyint-seconds"), gopSeconds.Source},
	} {
		if invalid.source == settings.SourceInvalid {
			m.logger.WarnContext(ctx, "ignoring unparseable setting", "key", invalid.key)
		}
	}

	return &variantState{
		spec: spec,
		resolver: ladder.Resolver{
			Bitrates:       spec.Bitrates.Reload(bitrateOverrides),
			Quality:        spec.Quality.Reload(qualityOverrides),
			FPSScaleFactor: fpsScale.Value,
			GoPSeconds:     gopSeconds.Value,
			Preset:         preset.Value,
		},
		builder: spec.Make(pixelFormat.Value, device),
	}, nil
}

// tierOverrides gathers the raw stored values for one per-tier key family.
// Only keys that exist are returned; parse validation happens in the table
// reload so an unparseable value keeps the previous entry.
func (m *Manager) tierOverrides(ctx context.Context, variant string, key func(string, ladder.Tier) string) (map[ladder.Tier]string, error) {
	overrides := make(map[ladder.Tier]string)
	for _, tier := range ladder.Tiers() {
		raw, ok, err := m.provider.Lookup(ctx, key(variant, tier))
		if err != nil {
			return nil, err
		}
		if ok {
			overrides[tier] = raw
		}
	}
	return overrides, nil
}

// OptionsRequest is the host's per-stream encoder options query. Profile may
// be empty to select the highest-priority variant for the kind. StreamIndex
// is nil outside multi-stream live jobs.
type OptionsRequest struct {
	JobID        string
	Kind         Kind
	Profile      string
	Tier         ladder.Tier
	FrameRate    float64
	InputBitrate int64
	StreamIndex  *int
}

// OptionsResult is the resolved answer for one stream.
type OptionsResult struct {
	Profile string
	Encoder string
	First   bool
	Params  ladder.Resolved
	Options profile.Options
}

// EncoderOptions resolves ladder parameters for the request and synthesizes
// the encoder invocation fragments. Live requests are gated per job so
// one-time hardware initialization flags are emitted exactly once; VOD
// requests always count as first because the host runs them one stream per
// process.
func (m *Manager) EncoderOptions(ctx context.Context, req OptionsRequest) (OptionsResult, error) {
	state, prof, err := m.selectVariant(req.Profile, req.Kind)
	if err != nil {
		return OptionsResult{}, err
	}

	first := true
	if req.Kind == KindLive {
		if req.JobID == "" {
			return OptionsResult{}, fmt.Errorf("plugin: live request without job id")
		}
		first = m.gates.Gate(req.JobID).First(req.StreamIndex)
		m.metrics.SetActiveJobs(int64(m.gates.Active()))
	}

	params := state.resolver.Resolve(ladder.Request{
		Tier:         req.Tier,
		FrameRate:    req.FrameRate,
		InputBitrate: req.InputBitrate,
		StreamIndex:  req.StreamIndex,
	})
	options := prof.Builder.Build(params, first)

	m.metrics.ObserveResolution(prof.Name, req.Tier.String())
	m.logger.DebugContext(ctx, "resolved encoder options",
		"profile", prof.Name,
		"tier", req.Tier.String(),
		"bitrate", params.Bitrate,
		"first", first,
	)

	return OptionsResult{
		Profile: prof.Name,
		Encoder: prof.Builder.Encoder(),
		First:   first,
		Params:  params,
		Options: options,
	}, nil
}

func (m *Manager) selectVariant(name string, kind Kind) (*variantState, Profile, error) {
	var prof Profile
	var ok bool
	if name == "" {
		prof, ok = m.registry.Default(kind)
		if !ok {
			return nil, Profile{}, fmt.Errorf("plugin: no %s profiles registered", kind)
		}
	} else {
		prof, ok = m.registry.Lookup(name, kind)
		if !ok {
			return nil, Profile{}, fmt.Errorf("plugin: unknown %s profile %q", kind, name)
		}
	}

	m.mu.RLock()
	state, ok := m.variants[prof.Name]
	m.mu.RUnlock()
	if !ok {
		return nil, Profile{}, fmt.Errorf("plugin: profile %s has no loaded configuration", prof.Name)
	}
	return state, prof, nil
}

// ReleaseJob drops the job's stream gate when the host reports the job done.
func (m *Manager) ReleaseJob(jobID string) {
	m.gates.Release(jobID)
	m.metrics.SetActiveJobs(int64(m.gates.Active()))
}

// ActiveJobs reports how many live jobs currently hold a stream gate.
func (m *Manager) ActiveJobs() int {
	return m.gates.Active()
}

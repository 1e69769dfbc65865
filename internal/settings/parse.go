package settings

import (
	"context"
	"strconv"
	"strings"
)

// Source tags where a parsed value came from, so callers can tell a stored
// "0" apart from an unset key. Earlier plugin generations collapsed the two
// with a parse-or-default expression; keeping the tag makes that edge case a
// visible decision instead of an accident.
type Source int

const (
	// SourceDefault means the key was unset and the fallback applies.
	SourceDefault Source = iota
	// SourceSetting means the stored value parsed cleanly.
	SourceSetting
	// SourceInvalid means a value was stored but failed to parse; the
	// fallback applies and the caller may want to log.
	SourceInvalid
)

// IntValue is the outcome of an integer setting lookup.
type IntValue struct {
	Value  int64
	Source Source
}

// FloatValue is the outcome of a float setting lookup.
type FloatValue struct {
	Value  float64
	Source Source
}

// BoolValue is the outcome of a boolean setting lookup.
type BoolValue struct {
	Value  bool
	Source Source
}

// StringValue is the outcome of a string setting lookup.
type StringValue struct {
	Value  string
	Source Source
}

// Int64 reads key through the provider and parses it as a base-10 integer.
// Transport errors surface to the caller; parse failures degrade to the
// fallback with SourceInvalid.
func Int64(ctx context.Context, provider Provider, key string, fallback int64) (IntValue, error) {
	raw, ok, err := provider.Lookup(ctx, key)
	if err != nil {
		return IntValue{Value: fallback, Source: SourceDefault}, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return IntValue{Value: fallback, Source: SourceDefault}, nil
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return IntValue{Value: fallback, Source: SourceInvalid}, nil
	}
	return IntValue{Value: parsed, Source: SourceSetting}, nil
}

// Float reads key through the provider and parses it as a float.
func Float(ctx context.Context, provider Provider, key string, fallback float64) (FloatValue, error) {
	raw, ok, err := provider.Lookup(ctx, key)
	if err != nil {
		return FloatValue{Value: fallback, Source: SourceDefault}, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return FloatValue{Value: fallback, Source: SourceDefault}, nil
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return FloatValue{Value: fallback, Source: SourceInvalid}, nil
	}
	return FloatValue{Value: parsed, Source: SourceSetting}, nil
}

// Bool reads key through the provider and parses it with strconv.ParseBool.
func Bool(ctx context.Context, provider Provider, key string, fallback bool) (BoolValue, error) {
	raw, ok, err := provider.Lookup(ctx, key)
	if err != nil {
		return BoolValue{Value: fallback, Source: SourceDefault}, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return BoolValue{Value: fallback, Source: SourceDefault}, nil
	}
	parsed, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return BoolValue{Value: fallback, Source: SourceInvalid}, nil
	}
	return BoolValue{Value: parsed, Source: SourceSetting}, nil
}

// String reads key through the provider, trimming surrounding whitespace. An
// empty stored value counts as unset.
func String(ctx context.Context, provider Provider, key, fallback string) (StringValue, error) {
	raw, ok, err := provider.Lookup(ctx, key)
	if err != nil {
		return StringValue{Value: fallback, Source: SourceDefault}, err
	}
	trimmed := strings.TrimSpace(raw)
	if !ok || trimmed == "" {
		return StringValue{Value: fallback, Source: SourceDefault}, nil
	}
	return StringValue{Value: trimmed, Source: SourceSetting}, nil
}

package plugin

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"riverforge/internal/encoder/ladder"
)

// FieldType describes how a settings value should be rendered and parsed by
// the host's settings UI.
type FieldType string

const (
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	FieldString FieldType = "string"
)

// Field is one declared settings key. Default holds the string form of the
// built-in value so the UI can show it before any override exists.
type Field struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Default     string    `json:"default"`
	Description string    `json:"description,omitempty"`
}

// Settings key layout. Every key is namespaced under the variant it applies
// to so operators can override one encoder without touching the others.
const (
	settingsPrefix    = "encoder"
	hardwareDeviceKey = "encoder.hardware.device"
)

// BitrateKey builds the settings key for a per-tier bitrate override.
func BitrateKey(variant string, tier ladder.Tier) string {
	return fmt.Sprintf("%s.%s.bitrate.%s", settingsPrefix, variant, tier)
}

// CRFKey builds the settings key for a per-tier CRF override.
func CRFKey(variant string, tier ladder.Tier) string {
	return fmt.Sprintf("%s.%s.crf.%s", settingsPrefix, variant, tier)
}

// VariantKey builds a scalar settings key for a variant, e.g. "preset".
func VariantKey(variant, name string) string {
	return fmt.Sprintf("%s.%s.%s", settingsPrefix, variant, name)
}

// HardwareDeviceKey is the settings key for the VAAPI render device path.
func HardwareDeviceKey() string {
	return hardwareDeviceKey
}

var titleCaser = cases.Title(language.English)

// fieldLabel turns a variant and suffix into a human label, e.g.
// ("svt-av1", "bitrate 720p") -> "Svt-Av1 Bitrate 720p".
func fieldLabel(parts ...string) string {
	return titleCaser.String(strings.Join(parts, " "))
}

// SchemaForVariant declares every settings key one encoder variant honours.
// The defaults mirror the built-in tables so a fresh install shows the
// effective values.
func SchemaForVariant(variant string, bitrates, quality ladder.Table, preset, pixelFormat string) []Field {
	fields := make([]Field, 0, 2*len(ladder.Tiers())+4)
	for _, tier := range ladder.Tiers() {
		fields = append(fields, Field{
			Key:         BitrateKey(variant, tier),
			Label:       fieldLabel(variant, "bitrate", tier.String()),
			Type:        FieldInt,
			Default:     fmt.Sprintf("%d", bitrates.Value(tier)),
			Description: fmt.Sprintf("Target bitrate in bits per second for %s output.", tier),
		})
	}
	for _, tier := range ladder.Tiers() {
		fields = append(fields, Field{
			Key:         CRFKey(variant, tier),
			Label:       fieldLabel(variant, "crf", tier.String()),
			Type:        FieldInt,
			Default:     fmt.Sprintf("%d", quality.Value(tier)),
			Description: fmt.Sprintf("Constant rate factor for %s output.", tier),
		})
	}
	fields = append(fields,
		Field{
			Key:     VariantKey(variant, "preset"),
			Label:   fieldLabel(variant, "preset"),
			Type:    FieldString,
			Default: preset,
		},
		Field{
			Key:     VariantKey(variant, "pixfmt"),
			Label:   fieldLabel(variant, "pixel format"),
			Type:    FieldString,
			Default: pixelFormat,
		},
		Field{
			Key:         VariantKey(variant, "keyint-seconds"),
			Label:       fieldLabel(variant, "keyframe interval"),
			Type:        FieldFloat,
			Default:     "2",
			Description: "Keyframe interval in seconds.",
		},
		Field{
			Key:         VariantKey(variant, "fps-scale"),
			Label:       fieldLabel(variant, "frame rate scale factor"),
			Type:        FieldFloat,
			Default:     "",
			Description: "Bitrate multiplier applied at 60fps relative to 30fps.",
		},
	)
	return fields
}

// SharedSchema declares settings keys that apply across variants.
func SharedSchema() []Field {
	return []Field{
		{
			Key:         HardwareDeviceKey(),
			Label:       fieldLabel("hardware render device"),
			Type:        FieldString,
			Default:     "/dev/dri/renderD128",
			Description: "DRM render node used by hardware encoders.",
		},
	}
}

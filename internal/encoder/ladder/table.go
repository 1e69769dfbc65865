package ladder

import "strconv"

// Table associates every resolution tier with a numeric base value: bits per
// second for bitrate tables, a unitless CRF score for quality tables. Tables
// are immutable once built; Reload produces a replacement rather than
// mutating in place, so resolutions in flight never observe a partial update.
type Table struct {
	values map[Tier]int64
}

// NewTable copies the provided associations into a Table.
func NewTable(values map[Tier]int64) Table {
	copied := make(map[Tier]int64, len(values))
	for tier, value := range values {
		copied[tier] = value
	}
	return Table{values: copied}
}

// Value returns the base value for the tier, or 0 when the tier is not
// present. The zero here is deliberate: an unconfigured tier contributes
// nothing, and must stay distinguishable from reload-time defaulting, which
// falls back to the prior value instead.
func (t Table) Value(tier Tier) int64 {
	return t.values[tier]
}

// Len reports how many tiers the table carries.
func (t Table) Len() int {
	return len(t.values)
}

// Reload builds a new table from this one, replacing values with parsed
// overrides where present. A missing or unparseable override keeps the prior
// value, so a reload never drops a tier and never widens the key set.
func (t Table) Reload(overrides map[Tier]string) Table {
	next := make(map[Tier]int64, len(t.values))
	for tier, prior := range t.values {
		next[tier] = prior
		raw, ok := overrides[tier]
		if !ok {
			continue
		}
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		next[tier] = parsed
	}
	return Table{values: next}
}

// Snapshot exposes a copy of the underlying associations, mostly for
// reporting and tests.
func (t Table) Snapshot() map[Tier]int64 {
	copied := make(map[Tier]int64, len(t.values))
	for tier, value := range t.values {
		copied[tier] = value
	}
	return copied
}

// DefaultBitrates is the compiled-in bitrate ladder. Values are bits per
// second and apply at 30 fps; higher frame rates scale through ScaleBitrate.
func DefaultBitrates() Table {
	return NewTable(map[Tier]int64{
		TierAudio: 0,
		Tier144p:  320_000,
		Tier240p:  600_000,
		Tier360p:  780_000,
		Tier480p:  1_500_000,
		Tier720p:  2_800_000,
		Tier1080p: 5_200_000,
		Tier1440p: 10_000_000,
		Tier2160p: 17_000_000,
	})
}

// DefaultCRF is the compiled-in per-tier quality ladder. Lower is higher
// quality; the audio tier carries no CRF.
func DefaultCRF() Table {
	return NewTable(map[Tier]int64{
		TierAudio: 0,
		Tier144p:  38,
		Tier240p:  37,
		Tier360p:  36,
		Tier480p:  35,
		Tier720p:  34,
		Tier1080p: 33,
		Tier1440p: 32,
		Tier2160p: 31,
	})
}

package ladder

import (
	"fmt"
	"strings"
)

// Tier identifies one discrete output resolution class. The set is closed;
// every table carries exactly one value per tier.
type Tier int

const (
	// TierAudio is the audio-only rendition (no video track).
	TierAudio Tier = iota
	Tier144p
	Tier240p
	Tier360p
	Tier480p
	Tier720p
	Tier1080p
	Tier1440p
	Tier2160p
)

var tierNames = map[Tier]string{
	TierAudio: "0p",
	Tier144p:  "144p",
	Tier240p:  "240p",
	Tier360p:  "360p",
	Tier480p:  "480p",
	Tier720p:  "720p",
	Tier1080p: "1080p",
	Tier1440p: "1440p",
	Tier2160p: "2160p",
}

var tierHeights = map[Tier]int{
	TierAudio: 0,
	Tier144p:  144,
	Tier240p:  240,
	Tier360p:  360,
	Tier480p:  480,
	Tier720p:  720,
	Tier1080p: 1080,
	Tier1440p: 1440,
	Tier2160p: 2160,
}

// Tiers returns every tier in ascending resolution order.
func Tiers() []Tier {
	return []Tier{
		TierAudio,
		Tier144p,
		Tier240p,
		Tier360p,
		Tier480p,
		Tier720p,
		Tier1080p,
		Tier1440p,
		Tier2160p,
	}
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Height returns the vertical resolution in pixels, or 0 for the audio tier.
func (t Tier) Height() int {
	return tierHeights[t]
}

// ParseTier converts a resolution label such as "720p" into a Tier. The
// audio-only tier accepts both "0p" and "audio"; "4k" is accepted as an alias
// for "2160p".
func ParseTier(value string) (Tier, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "audio":
		return TierAudio, nil
	case "4k":
		return Tier2160p, nil
	}
	for tier, name := range tierNames {
		if name == normalized {
			return tier, nil
		}
	}
	return TierAudio, fmt.Errorf("unknown resolution tier %q", value)
}

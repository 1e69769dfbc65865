// Package plugin registers encoder profiles with the host transcoding
// subsystem and resolves encoder options per stream using the configured
// ladders.
package plugin

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"riverforge/internal/encoder/profile"
)

// Kind separates video-on-demand profiles from live-streaming profiles. The
// host keeps independent priority lists for the two.
type Kind string

const (
	KindVOD  Kind = "vod"
	KindLive Kind = "live"
)

// ParseKind validates a job kind supplied by the host.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindVOD:
		return KindVOD, nil
	case KindLive:
		return KindLive, nil
	}
	return "", fmt.Errorf("unknown job kind %q", value)
}

// Profile is one registered encoder profile. Higher priority wins when the
// host asks for a default.
type Profile struct {
	Name     string
	Kind     Kind
	Priority int
	Builder  profile.Builder
}

// Registry holds the profiles currently registered with the host. Profiles
// are keyed by (name, kind); re-registering replaces the previous entry.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]Profile)}
}

func registryKey(name string, kind Kind) string {
	return string(kind) + "/" + name
}

// Register adds or replaces a profile.
func (r *Registry) Register(p Profile) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.Kind != KindVOD && p.Kind != KindLive {
		return fmt.Errorf("profile %s: invalid kind %q", p.Name, p.Kind)
	}
	if p.Builder == nil {
		return fmt.Errorf("profile %s: builder is required", p.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[registryKey(p.Name, p.Kind)] = p
	return nil
}

// Deregister removes a profile. Unknown profiles are a no-op.
func (r *Registry) Deregister(name string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.profiles, registryKey(name, kind))
}

// Lookup finds a profile by name and kind.
func (r *Registry) Lookup(name string, kind Kind) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[registryKey(name, kind)]
	return p, ok
}

// Default returns the highest-priority profile of the given kind.
func (r *Registry) Default(kind Kind) (Profile, bool) {
	profiles := r.Profiles(kind)
	if len(profiles) == 0 {
		return Profile{}, false
	}
	return profiles[0], true
}

// Profiles lists registered profiles of the given kind, highest priority
// first; ties break on name for stable output.
func (r *Registry) Profiles(kind Kind) []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profiles := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		if p.Kind == kind {
			profiles = append(profiles, p)
		}
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].Priority != profiles[j].Priority {
			return profiles[i].Priority > profiles[j].Priority
		}
		return profiles[i].Name < profiles[j].Name
	})
	return profiles
}

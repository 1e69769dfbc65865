// Package profile synthesizes external-encoder command line fragments from
// resolved ladder parameters. Builders are stateless aside from their
// configuration; the flag strings they emit are opaque to the rest of the
// system and are handed to the host verbatim.
package profile

import "riverforge/internal/encoder/ladder"

// Options carries the synthesized invocation fragments for one stream.
// PreInputFlags are emitted once per job, ahead of the input declaration;
// OutputFlags apply to every stream. ScaleFilter names the filter the host
// should use when resizing for this encoder family.
type Options struct {
	PreInputFlags []string
	OutputFlags   []string
	ScaleFilter   string
}

// Builder turns resolved parameters into encoder options. first reports
// whether the request is the first stream of its job and therefore eligible
// for one-time initialization flags.
type Builder interface {
	// Name is the stable profile identifier registered with the host.
	Name() string
	// Encoder is the external encoder selected by this profile.
	Encoder() string
	Build(params ladder.Resolved, first bool) Options
}

// Package session scopes the "first stream of a job" decision that controls
// one-time hardware initialization flags. Earlier plugin generations kept a
// single process-wide stream counter, which raced when the host resolved
// interleaved jobs; here each job owns its own gate and the host releases it
// when the job ends.
package session

import "sync"

// sentinelStreamIndex is larger than any realistic stream count, so the first
// defined index of a job always passes the gate.
const sentinelStreamIndex = 9999

// Gate tracks the lowest stream index admitted so far within one job.
type Gate struct {
	mu   sync.Mutex
	last int
}

// NewGate returns a gate in its initial sentinel state.
func NewGate() *Gate {
	return &Gate{last: sentinelStreamIndex}
}

// First reports whether the request should carry one-time initialization
// flags. A nil index (single-stream or VOD request) is always first. A defined
// index is first when it does not exceed the stored value, and is then
// recorded; later, larger indexes within the same job are not first. Streams
// must therefore be requested in increasing index order, which is how the
// host issues them.
func (g *Gate) First(streamIndex *int) bool {
	if streamIndex == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if *streamIndex <= g.last {
		g.last = *streamIndex
		return true
	}
	return false
}

// Registry hands out one gate per job ID.
type Registry struct {
	mu    sync.Mutex
	gates map[string]*Gate
}

// NewRegistry returns an empty gate registry.
func NewRegistry() *Registry {
	return &Registry{gates: make(map[string]*Gate)}
}

// Gate returns the gate for the job, creating it on first use.
func (r *Registry) Gate(jobID string) *Gate {
	r.mu.Lock()
	defer r.mu.Unlock()
	gate, ok := r.gates[jobID]
	if !ok {
		gate = NewGate()
		r.gates[jobID] = gate
	}
	return gate
}

// Release drops the job's gate. Releasing an unknown job is a no-op.
func (r *Registry) Release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.gates, jobID)
}

// Active reports how many jobs currently hold a gate.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.gates)
}

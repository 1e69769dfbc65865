package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// ResolutionLabel identifies one encoder-options resolution outcome.
type ResolutionLabel struct {
	Profile string
	Tier    string
}

// Recorder aggregates in-memory metrics counters and gauges for HTTP
// requests, encoder-options resolutions, settings reloads, and settings-cache
// traffic. It coordinates concurrent writers via a RWMutex while exposing a
// thread-safe gauge for active job tracking.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	resolutions     map[ResolutionLabel]uint64
	reloads         map[string]uint64
	activeJobs      atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		resolutions:     make(map[ResolutionLabel]uint64),
		reloads:         make(map[string]uint64),
	}
}

// Default returns the singleton Recorder instance shared across packages that
// do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveResolution records one successful encoder-options resolution keyed
// by profile name and resolution tier.
func (r *Recorder) ObserveResolution(profile, tier string) {
	label := ResolutionLabel{
		Profile: normalizeName(profile),
		Tier:    normalizeName(tier),
	}
	r.mu.Lock()
	r.resolutions[label]++
	r.mu.Unlock()
}

// ObserveReload records a settings reload outcome ("ok" or "failed").
func (r *Recorder) ObserveReload(status string) {
	r.mu.Lock()
	r.reloads[normalizeName(status)]++
	r.mu.Unlock()
}

// SetActiveJobs replaces the active-job gauge, typically with the number of
// live jobs currently holding a stream gate.
func (r *Recorder) SetActiveJobs(count int64) {
	if count < 0 {
		count = 0
	}
	r.activeJobs.Store(count)
}

// ActiveJobs exposes the current gauge of jobs with open stream gates.
func (r *Recorder) ActiveJobs() int64 {
	return r.activeJobs.Load()
}

// ResolutionCounts returns a copy of the resolution counters for tests and
// reporting.
func (r *Recorder) ResolutionCounts() map[ResolutionLabel]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	copied := make(map[ResolutionLabel]uint64, len(r.resolutions))
	for label, count := range r.resolutions {
		copied[label] = count
	}
	return copied
}

// ReloadCounts returns a copy of the reload counters.
func (r *Recorder) ReloadCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	copied := make(map[string]uint64, len(r.reloads))
	for status, count := range r.reloads {
		copied[status] = count
	}
	return copied
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.resolutions = make(map[ResolutionLabel]uint64)
	r.reloads = make(map[string]uint64)
	r.activeJobs.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	resolutionLabels := r.sortedResolutionLabels()
	reloadStatuses := r.sortedReloadStatuses()

	fmt.Fprintln(w, "# HELP riverforge_http_requests_total Total number of HTTP requests processed by the plugin API")
	fmt.Fprintln(w, "# TYPE riverforge_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "riverforge_http_requests_total{method=%q,path=%q,status=%q} %d\n",
			label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP riverforge_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE riverforge_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "riverforge_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %f\n",
			label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP riverforge_encoder_resolutions_total Encoder option resolutions by profile and tier")
	fmt.Fprintln(w, "# TYPE riverforge_encoder_resolutions_total counter")
	for _, label := range resolutionLabels {
		fmt.Fprintf(w, "riverforge_encoder_resolutions_total{profile=%q,tier=%q} %d\n",
			label.Profile, label.Tier, r.resolutions[label])
	}

	fmt.Fprintln(w, "# HELP riverforge_settings_reloads_total Settings reload attempts by status")
	fmt.Fprintln(w, "# TYPE riverforge_settings_reloads_total counter")
	for _, status := range reloadStatuses {
		fmt.Fprintf(w, "riverforge_settings_reloads_total{status=%q} %d\n", status, r.reloads[status])
	}

	fmt.Fprintln(w, "# HELP riverforge_active_jobs Jobs currently holding a stream gate")
	fmt.Fprintln(w, "# TYPE riverforge_active_jobs gauge")
	fmt.Fprintf(w, "riverforge_active_jobs %d\n", r.activeJobs.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedResolutionLabels() []ResolutionLabel {
	labels := make([]ResolutionLabel, 0, len(r.resolutions))
	for label := range r.resolutions {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Profile != labels[j].Profile {
			return labels[i].Profile < labels[j].Profile
		}
		return labels[i].Tier < labels[j].Tier
	})
	return labels
}

func (r *Recorder) sortedReloadStatuses() []string {
	statuses := make([]string, 0, len(r.reloads))
	for status := range r.reloads {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	return statuses
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
